package chain

import (
    "context"
    "errors"
    "strings"

    "github.com/ethereum/go-ethereum/common"

    "airdrop.bot/internal/money"
)

var (
    ErrInsufficientFunds = errors.New("gateway: insufficient token funds")
    ErrInsufficientFee   = errors.New("gateway: insufficient fee reserve")
    ErrSubmissionFailed  = errors.New("gateway: submission failed")
    ErrTimeout           = errors.New("gateway: timeout")
)

// Gateway moves tokens from the bot's hot wallet to a destination address.
type Gateway interface {
    // EnsureFunds returns ErrInsufficientFunds when the hot wallet holds less than amount.
    EnsureFunds(ctx context.Context, amount money.Amount) error
    // EnsureFee returns ErrInsufficientFee when the native balance cannot pay for a transfer.
    EnsureFee(ctx context.Context) error
    // SubmitTransfer blocks until the transfer is included or fails. On failure the
    // returned reference may still be set when a transaction was broadcast.
    // Failures wrap ErrSubmissionFailed or ErrTimeout.
    SubmitTransfer(ctx context.Context, to string, amount money.Amount) (string, error)
}

// IsValidAddress reports whether s is a 0x-prefixed, 40 hex digit address.
// Checksum casing is not enforced.
func IsValidAddress(s string) bool {
    return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}
