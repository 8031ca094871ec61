package store

import (
    "time"

    "airdrop.bot/internal/money"
)

const (
    StatusPending   = "pending"
    StatusCompleted = "completed"
    StatusFailed    = "failed"
    StatusRejected  = "rejected"
)

type Account struct {
    ID         int64
    Username   string
    Balance    money.Amount
    Referrals  int
    Wallet     string
    ReferrerID *int64
    CreatedAt  time.Time
}

type Withdrawal struct {
    ID         int64
    AccountID  int64
    Username   string
    Amount     money.Amount
    Status     string
    Wallet     string
    TxRef      string
    CreatedAt  time.Time
    ResolvedAt *time.Time
}

type RegisterInput struct {
    ID         int64
    Username   string
    ReferrerID *int64
    Bonus      money.Amount
}

type CreateWithdrawalInput struct {
    AccountID int64
    Amount    money.Amount
    Wallet    string
}

func IsTerminal(status string) bool {
    switch status {
    case StatusCompleted, StatusFailed, StatusRejected:
        return true
    }
    return false
}
