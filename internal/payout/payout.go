package payout

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/sirupsen/logrus"

    "airdrop.bot/internal/chain"
    "airdrop.bot/internal/metrics"
    "airdrop.bot/internal/money"
    "airdrop.bot/internal/store"
)

var (
    ErrBanned        = errors.New("account is banned")
    ErrInvalidWallet = errors.New("invalid wallet address")
    ErrWalletNotSet  = errors.New("wallet not set")
    ErrBelowMinimum  = errors.New("balance below minimum withdrawal")
)

// Ledger is the durable account and withdrawal store.
type Ledger interface {
    RegisterAccount(ctx context.Context, input store.RegisterInput) (store.Account, bool, error)
    GetAccount(ctx context.Context, id int64) (store.Account, error)
    SetWallet(ctx context.Context, id int64, wallet string) error
    IsBanned(ctx context.Context, id int64) (bool, error)
    Ban(ctx context.Context, id int64) error
    ListAccounts(ctx context.Context, offset, limit int) ([]store.Account, error)
    CountAccounts(ctx context.Context) (int, error)
    CreateWithdrawal(ctx context.Context, input store.CreateWithdrawalInput) (store.Withdrawal, error)
    GetWithdrawal(ctx context.Context, id int64) (store.Withdrawal, error)
    ListPendingWithdrawals(ctx context.Context, offset, limit int) ([]store.Withdrawal, error)
    CountPendingWithdrawals(ctx context.Context) (int, error)
    ClaimWithdrawal(ctx context.Context, id int64) (store.Withdrawal, error)
    ReleaseWithdrawal(ctx context.Context, id int64) error
    ResolveWithdrawal(ctx context.Context, id int64, status, txRef string) (store.Withdrawal, error)
}

// Notifier receives withdrawal lifecycle events for delivery to people.
type Notifier interface {
    WithdrawalRequested(ctx context.Context, w store.Withdrawal) error
    WithdrawalResolved(ctx context.Context, w store.Withdrawal) error
}

type nopNotifier struct{}

func (nopNotifier) WithdrawalRequested(context.Context, store.Withdrawal) error { return nil }
func (nopNotifier) WithdrawalResolved(context.Context, store.Withdrawal) error  { return nil }

type Config struct {
    MinWithdrawal money.Amount
    ReferralBonus money.Amount
    SubmitTimeout time.Duration
}

type Service struct {
    ledger   Ledger
    gateway  chain.Gateway
    notifier Notifier
    cfg      Config
    log      logrus.FieldLogger
}

func NewService(ledger Ledger, gateway chain.Gateway, notifier Notifier, cfg Config, log logrus.FieldLogger) *Service {
    if notifier == nil {
        notifier = nopNotifier{}
    }
    if log == nil {
        log = logrus.New()
    }
    if cfg.SubmitTimeout <= 0 {
        cfg.SubmitTimeout = 2 * time.Minute
    }
    return &Service{
        ledger:   ledger,
        gateway:  gateway,
        notifier: notifier,
        cfg:      cfg,
        log:      log,
    }
}

func (s *Service) Config() Config {
    return s.cfg
}

// Register creates the account if it does not exist. The referral bonus is
// credited only when the account is created here.
func (s *Service) Register(ctx context.Context, id int64, username string, referrerID *int64) (store.Account, bool, error) {
    acc, created, err := s.ledger.RegisterAccount(ctx, store.RegisterInput{
        ID:         id,
        Username:   username,
        ReferrerID: referrerID,
        Bonus:      s.cfg.ReferralBonus,
    })
    if err != nil {
        return store.Account{}, false, fmt.Errorf("register account: %w", err)
    }
    if created {
        fields := logrus.Fields{"account_id": id}
        if acc.ReferrerID != nil {
            fields["referrer_id"] = *acc.ReferrerID
            metrics.ReferralCredited()
        }
        s.log.WithFields(fields).Info("account_registered")
    }
    return acc, created, nil
}

func (s *Service) Account(ctx context.Context, id int64) (store.Account, error) {
    return s.ledger.GetAccount(ctx, id)
}

func (s *Service) IsBanned(ctx context.Context, id int64) (bool, error) {
    return s.ledger.IsBanned(ctx, id)
}

func (s *Service) SetWallet(ctx context.Context, id int64, wallet string) error {
    if !chain.IsValidAddress(wallet) {
        return ErrInvalidWallet
    }
    if err := s.ledger.SetWallet(ctx, id, wallet); err != nil {
        return err
    }
    s.log.WithFields(logrus.Fields{"account_id": id, "wallet": wallet}).Info("wallet_set")
    return nil
}

func (s *Service) Ban(ctx context.Context, id int64) error {
    if err := s.ledger.Ban(ctx, id); err != nil {
        return err
    }
    s.log.WithField("account_id", id).Info("account_banned")
    return nil
}

// Request opens a withdrawal for the account's whole balance to its saved
// wallet. The balance is not debited until the withdrawal completes.
func (s *Service) Request(ctx context.Context, accountID int64) (store.Withdrawal, error) {
    return s.RequestTo(ctx, accountID, "")
}

// RequestTo is Request with an optional destination that overrides the saved
// wallet for this withdrawal only.
func (s *Service) RequestTo(ctx context.Context, accountID int64, walletOverride string) (store.Withdrawal, error) {
    if walletOverride != "" && !chain.IsValidAddress(walletOverride) {
        return store.Withdrawal{}, ErrInvalidWallet
    }

    banned, err := s.ledger.IsBanned(ctx, accountID)
    if err != nil {
        return store.Withdrawal{}, err
    }
    if banned {
        return store.Withdrawal{}, ErrBanned
    }

    acc, err := s.ledger.GetAccount(ctx, accountID)
    if err != nil {
        return store.Withdrawal{}, err
    }
    if acc.Balance < s.cfg.MinWithdrawal || acc.Balance <= 0 {
        return store.Withdrawal{}, ErrBelowMinimum
    }
    wallet := acc.Wallet
    if walletOverride != "" {
        wallet = walletOverride
    }
    if wallet == "" {
        return store.Withdrawal{}, ErrWalletNotSet
    }

    w, err := s.ledger.CreateWithdrawal(ctx, store.CreateWithdrawalInput{
        AccountID: accountID,
        Amount:    acc.Balance,
        Wallet:    wallet,
    })
    if err != nil {
        s.log.WithFields(logrus.Fields{"account_id": accountID, "reason": err.Error()}).Warn("withdrawal_request_failed")
        return store.Withdrawal{}, err
    }

    metrics.WithdrawalRequested()
    s.log.WithFields(logrus.Fields{
        "withdrawal_id": w.ID,
        "account_id":    w.AccountID,
        "amount":        w.Amount.String(),
    }).Info("withdrawal_requested")

    s.notify(ctx, w, s.notifier.WithdrawalRequested)
    return w, nil
}

// Approve pays out a pending withdrawal. Funds and fee checks that fail leave
// the withdrawal pending so it can be approved again later. Once submission
// starts the withdrawal always ends completed or failed.
func (s *Service) Approve(ctx context.Context, id int64) (store.Withdrawal, error) {
    w, err := s.ledger.ClaimWithdrawal(ctx, id)
    if err != nil {
        return store.Withdrawal{}, err
    }

    if err := s.precheck(ctx, w); err != nil {
        if rerr := s.ledger.ReleaseWithdrawal(context.WithoutCancel(ctx), id); rerr != nil {
            s.log.WithFields(logrus.Fields{"withdrawal_id": id, "error": rerr.Error()}).Error("withdrawal_release_failed")
        }
        s.log.WithFields(logrus.Fields{"withdrawal_id": id, "reason": err.Error()}).Warn("withdrawal_approve_aborted")
        return w, err
    }

    // once submission starts only the timeout may end it
    started := time.Now()
    submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SubmitTimeout)
    ref, submitErr := s.gateway.SubmitTransfer(submitCtx, w.Wallet, w.Amount)
    timedOut := errors.Is(submitCtx.Err(), context.DeadlineExceeded)
    cancel()
    metrics.ObserveSubmit(time.Since(started), submitErr == nil)

    recordCtx := context.WithoutCancel(ctx)

    if submitErr != nil {
        if timedOut && !errors.Is(submitErr, chain.ErrTimeout) {
            submitErr = fmt.Errorf("%w: %v", chain.ErrTimeout, submitErr)
        } else if !errors.Is(submitErr, chain.ErrTimeout) && !errors.Is(submitErr, chain.ErrSubmissionFailed) {
            submitErr = fmt.Errorf("%w: %v", chain.ErrSubmissionFailed, submitErr)
        }

        failed, err := s.ledger.ResolveWithdrawal(recordCtx, id, store.StatusFailed, ref)
        if err != nil {
            return w, fmt.Errorf("record failed withdrawal %d: %w", id, err)
        }
        metrics.WithdrawalResolved(store.StatusFailed)
        s.log.WithFields(logrus.Fields{
            "withdrawal_id": id,
            "account_id":    failed.AccountID,
            "tx_ref":        ref,
            "reason":        submitErr.Error(),
        }).Error("withdrawal_failed")
        s.notify(recordCtx, failed, s.notifier.WithdrawalResolved)
        return failed, submitErr
    }

    completed, err := s.ledger.ResolveWithdrawal(recordCtx, id, store.StatusCompleted, ref)
    if err != nil {
        s.log.WithFields(logrus.Fields{"withdrawal_id": id, "tx_ref": ref, "error": err.Error()}).Error("withdrawal_record_failed")
        return w, fmt.Errorf("record completed withdrawal %d (tx %s): %w", id, ref, err)
    }
    metrics.WithdrawalResolved(store.StatusCompleted)
    s.log.WithFields(logrus.Fields{
        "withdrawal_id": id,
        "account_id":    completed.AccountID,
        "amount":        completed.Amount.String(),
        "tx_ref":        ref,
    }).Info("withdrawal_completed")
    s.notify(recordCtx, completed, s.notifier.WithdrawalResolved)
    return completed, nil
}

func (s *Service) precheck(ctx context.Context, w store.Withdrawal) error {
    if err := s.gateway.EnsureFunds(ctx, w.Amount); err != nil {
        return err
    }
    return s.gateway.EnsureFee(ctx)
}

func (s *Service) Reject(ctx context.Context, id int64) (store.Withdrawal, error) {
    w, err := s.ledger.ResolveWithdrawal(ctx, id, store.StatusRejected, "")
    if err != nil {
        return store.Withdrawal{}, err
    }
    metrics.WithdrawalResolved(store.StatusRejected)
    s.log.WithFields(logrus.Fields{"withdrawal_id": id, "account_id": w.AccountID}).Info("withdrawal_rejected")
    s.notify(ctx, w, s.notifier.WithdrawalResolved)
    return w, nil
}

func (s *Service) Withdrawal(ctx context.Context, id int64) (store.Withdrawal, error) {
    return s.ledger.GetWithdrawal(ctx, id)
}

func (s *Service) notify(ctx context.Context, w store.Withdrawal, fn func(context.Context, store.Withdrawal) error) {
    if err := fn(ctx, w); err != nil {
        s.log.WithFields(logrus.Fields{
            "withdrawal_id": w.ID,
            "status":        w.Status,
            "error":         err.Error(),
        }).Warn("notify_failed")
    }
}
