package bot

import (
    "context"

    "github.com/sirupsen/logrus"

    "airdrop.bot/internal/metrics"
)

type pendingCounter interface {
    PendingCount(ctx context.Context) (int, error)
}

// PendingDigest reminds the admin of withdrawals waiting for review.
type PendingDigest struct {
    counter pendingCounter
    sender  Sender
    adminID int64
    log     logrus.FieldLogger
}

func NewPendingDigest(counter pendingCounter, sender Sender, adminID int64, log logrus.FieldLogger) *PendingDigest {
    if log == nil {
        log = logrus.New()
    }
    return &PendingDigest{counter: counter, sender: sender, adminID: adminID, log: log}
}

// Run sends one digest. Nothing is sent when the queue is empty.
func (p *PendingDigest) Run(ctx context.Context) error {
    n, err := p.counter.PendingCount(ctx)
    if err != nil {
        return err
    }
    metrics.SetPending(n)
    if n == 0 {
        return nil
    }
    if err := p.sender.Send(ctx, p.adminID, digestText(n)); err != nil {
        return err
    }
    p.log.WithField("pending", n).Info("pending_digest_sent")
    return nil
}
