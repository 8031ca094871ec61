package bot

import (
    "context"
    "fmt"

    "airdrop.bot/internal/store"
)

// Sender delivers a plain text message to a chat.
type Sender interface {
    Send(ctx context.Context, chatID int64, text string) error
}

// Notifier tells the admin about new requests and the account owner about
// how their withdrawal ended.
type Notifier struct {
    sender      Sender
    adminID     int64
    explorerURL string
}

func NewNotifier(sender Sender, adminID int64, explorerURL string) *Notifier {
    return &Notifier{sender: sender, adminID: adminID, explorerURL: explorerURL}
}

func (n *Notifier) WithdrawalRequested(ctx context.Context, w store.Withdrawal) error {
    return n.sender.Send(ctx, n.adminID, requestedAdminText(w))
}

func (n *Notifier) WithdrawalResolved(ctx context.Context, w store.Withdrawal) error {
    var text string
    switch w.Status {
    case store.StatusCompleted:
        text = completedUserText(w, n.explorerURL)
    case store.StatusFailed:
        text = failedUserText(w)
    case store.StatusRejected:
        text = rejectedUserText(w)
    default:
        return fmt.Errorf("withdrawal %d is not resolved: %s", w.ID, w.Status)
    }
    return n.sender.Send(ctx, w.AccountID, text)
}
