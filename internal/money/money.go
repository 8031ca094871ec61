package money

import (
    "errors"
    "math/big"

    "github.com/shopspring/decimal"
)

// Scale is the number of decimal places held by an Amount.
const Scale = 2

var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a non-negative-by-convention currency value in minor units (cents).
type Amount int64

// Units builds an Amount from whole currency units.
func Units(n int64) Amount {
    return Amount(n * 100)
}

func Parse(s string) (Amount, error) {
    d, err := decimal.NewFromString(s)
    if err != nil {
        return 0, ErrInvalidAmount
    }
    if d.IsNegative() {
        return 0, ErrInvalidAmount
    }
    minor := d.Shift(Scale)
    if !minor.Equal(minor.Truncate(0)) {
        return 0, ErrInvalidAmount
    }
    if !minor.BigInt().IsInt64() {
        return 0, ErrInvalidAmount
    }
    return Amount(minor.IntPart()), nil
}

func (a Amount) Decimal() decimal.Decimal {
    return decimal.New(int64(a), -Scale)
}

// String renders the amount with exactly two decimals, e.g. "25.00".
func (a Amount) String() string {
    return a.Decimal().StringFixed(Scale)
}

// TokenUnits converts the amount into the integer base units of a token with the
// given number of decimals. Precision below the token's decimals is truncated.
func (a Amount) TokenUnits(decimals int32) *big.Int {
    return a.Decimal().Shift(decimals).Truncate(0).BigInt()
}
