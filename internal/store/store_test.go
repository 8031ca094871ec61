package store_test

import (
    "context"
    "os"
    "sync"
    "testing"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"

    "airdrop.bot/internal/money"
    "airdrop.bot/internal/store"
)

type ledger interface {
    RegisterAccount(ctx context.Context, input store.RegisterInput) (store.Account, bool, error)
    CreditReferral(ctx context.Context, referrerID int64, amount money.Amount) error
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

const wallet = "0x1111111111111111111111111111111111111111"

func setupPostgres(t *testing.T) ledger {
    t.Helper()

    dbURL := os.Getenv("DATABASE_URL")
    if dbURL == "" {
        t.Skip("DATABASE_URL is not set")
    }

    if err := store.Migrate(dbURL); err != nil {
        t.Fatalf("migrate: %v", err)
    }

    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    pool, err := pgxpool.New(ctx, dbURL)
    if err != nil {
        t.Fatalf("db connection: %v", err)
    }
    t.Cleanup(pool.Close)

    if _, err := pool.Exec(ctx, "TRUNCATE banned_accounts, withdrawals, accounts RESTART IDENTITY"); err != nil {
        t.Fatalf("reset db: %v", err)
    }
    return store.New(pool)
}

func setupMemory(t *testing.T) ledger {
    return store.NewMemory()
}

var backends = map[string]func(*testing.T) ledger{
    "memory":   setupMemory,
    "postgres": setupPostgres,
}

func forEachBackend(t *testing.T, fn func(t *testing.T, st ledger)) {
    for name, setup := range backends {
        setup := setup
        t.Run(name, func(t *testing.T) {
            fn(t, setup(t))
        })
    }
}

func register(t *testing.T, st ledger, id int64, referrer *int64) store.Account {
    t.Helper()
    acc, _, err := st.RegisterAccount(context.Background(), store.RegisterInput{
        ID:         id,
        Username:   "user",
        ReferrerID: referrer,
        Bonus:      money.Units(8),
    })
    if err != nil {
        t.Fatalf("register %d: %v", id, err)
    }
    return acc
}

func fund(t *testing.T, st ledger, id int64, referrals int) {
    t.Helper()
    for i := 0; i < referrals; i++ {
        if err := st.CreditReferral(context.Background(), id, money.Units(8)); err != nil {
            t.Fatalf("credit: %v", err)
        }
    }
}

func balance(t *testing.T, st ledger, id int64) money.Amount {
    t.Helper()
    acc, err := st.GetAccount(context.Background(), id)
    if err != nil {
        t.Fatalf("get account: %v", err)
    }
    return acc.Balance
}

func ptr(v int64) *int64 { return &v }

func TestRegisterCreditsReferrerOnce(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        register(t, st, 2, nil)

        _, created, err := st.RegisterAccount(context.Background(), store.RegisterInput{ID: 1, ReferrerID: ptr(2), Bonus: money.Units(8)})
        if err != nil || !created {
            t.Fatalf("expected created, got %v %v", created, err)
        }

        ref, _ := st.GetAccount(context.Background(), 2)
        if ref.Balance != money.Units(8) || ref.Referrals != 1 {
            t.Fatalf("expected balance 8 and 1 referral, got %s and %d", ref.Balance, ref.Referrals)
        }

        acc, created, err := st.RegisterAccount(context.Background(), store.RegisterInput{ID: 1, ReferrerID: ptr(2), Bonus: money.Units(8)})
        if err != nil || created {
            t.Fatalf("expected existing account, got %v %v", created, err)
        }
        if acc.ReferrerID == nil || *acc.ReferrerID != 2 {
            t.Fatalf("expected referrer 2, got %v", acc.ReferrerID)
        }

        ref, _ = st.GetAccount(context.Background(), 2)
        if ref.Balance != money.Units(8) || ref.Referrals != 1 {
            t.Fatalf("expected unchanged referrer, got %s and %d", ref.Balance, ref.Referrals)
        }
    })
}

func TestRegisterSkipsSelfMissingAndBannedReferrer(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        acc := register(t, st, 1, ptr(1))
        if acc.ReferrerID != nil || acc.Balance != 0 {
            t.Fatalf("self referral must not credit: %+v", acc)
        }

        acc = register(t, st, 3, ptr(99))
        if acc.ReferrerID != nil {
            t.Fatalf("missing referrer must not be recorded: %+v", acc)
        }

        register(t, st, 4, nil)
        if err := st.Ban(context.Background(), 4); err != nil {
            t.Fatalf("ban: %v", err)
        }
        register(t, st, 5, ptr(4))
        if got := balance(t, st, 4); got != 0 {
            t.Fatalf("banned referrer credited: %s", got)
        }
    })
}

func TestCreditReferralSkipsMissingAndBanned(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        ctx := context.Background()
        register(t, st, 1, nil)

        if err := st.CreditReferral(ctx, 1, money.Units(8)); err != nil {
            t.Fatalf("credit: %v", err)
        }
        acc, _ := st.GetAccount(ctx, 1)
        if acc.Balance != money.Units(8) || acc.Referrals != 1 {
            t.Fatalf("expected balance 8 and 1 referral, got %s and %d", acc.Balance, acc.Referrals)
        }

        if err := st.CreditReferral(ctx, 99, money.Units(8)); err != nil {
            t.Fatalf("credit missing referrer: %v", err)
        }
        if n, _ := st.CountAccounts(ctx); n != 1 {
            t.Fatalf("missing referrer must not create an account, got %d accounts", n)
        }

        if err := st.Ban(ctx, 1); err != nil {
            t.Fatalf("ban: %v", err)
        }
        if err := st.CreditReferral(ctx, 1, money.Units(8)); err != nil {
            t.Fatalf("credit banned referrer: %v", err)
        }
        acc, _ = st.GetAccount(ctx, 1)
        if acc.Balance != money.Units(8) || acc.Referrals != 1 {
            t.Fatalf("banned referrer credited: %s and %d", acc.Balance, acc.Referrals)
        }
    })
}

func TestSetWalletRequiresAccount(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        if err := st.SetWallet(context.Background(), 1, wallet); err != store.ErrNotRegistered {
            t.Fatalf("expected ErrNotRegistered, got %v", err)
        }
        register(t, st, 1, nil)
        if err := st.SetWallet(context.Background(), 1, wallet); err != nil {
            t.Fatalf("set wallet: %v", err)
        }
        acc, _ := st.GetAccount(context.Background(), 1)
        if acc.Wallet != wallet {
            t.Fatalf("expected wallet %s, got %s", wallet, acc.Wallet)
        }
    })
}

func TestBanIsIdempotent(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        for i := 0; i < 2; i++ {
            if err := st.Ban(context.Background(), 42); err != nil {
                t.Fatalf("ban: %v", err)
            }
        }
        banned, err := st.IsBanned(context.Background(), 42)
        if err != nil || !banned {
            t.Fatalf("expected banned, got %v %v", banned, err)
        }
        banned, _ = st.IsBanned(context.Background(), 43)
        if banned {
            t.Fatalf("unexpected ban for 43")
        }
    })
}

func TestCreateWithdrawalSinglePending(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        register(t, st, 1, nil)
        fund(t, st, 1, 3)

        input := store.CreateWithdrawalInput{AccountID: 1, Amount: money.Units(24), Wallet: wallet}
        w, err := st.CreateWithdrawal(context.Background(), input)
        if err != nil {
            t.Fatalf("create withdrawal: %v", err)
        }
        if w.Status != store.StatusPending || w.Amount != money.Units(24) || w.Wallet != wallet {
            t.Fatalf("unexpected withdrawal: %+v", w)
        }

        if _, err := st.CreateWithdrawal(context.Background(), input); err != store.ErrDuplicatePending {
            t.Fatalf("expected ErrDuplicatePending, got %v", err)
        }

        if got := balance(t, st, 1); got != money.Units(24) {
            t.Fatalf("request must not debit, got %s", got)
        }
    })
}

func TestCreateWithdrawalChecksBalance(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        register(t, st, 1, nil)
        _, err := st.CreateWithdrawal(context.Background(), store.CreateWithdrawalInput{AccountID: 1, Amount: money.Units(1), Wallet: wallet})
        if err != store.ErrInsufficientBalance {
            t.Fatalf("expected ErrInsufficientBalance, got %v", err)
        }
        _, err = st.CreateWithdrawal(context.Background(), store.CreateWithdrawalInput{AccountID: 9, Amount: money.Units(1), Wallet: wallet})
        if err != store.ErrNotRegistered {
            t.Fatalf("expected ErrNotRegistered, got %v", err)
        }
    })
}

func TestConcurrentCreateWithdrawal(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        register(t, st, 1, nil)
        fund(t, st, 1, 3)

        var wg sync.WaitGroup
        errs := make(chan error, 8)
        for i := 0; i < 8; i++ {
            wg.Add(1)
            go func() {
                defer wg.Done()
                _, err := st.CreateWithdrawal(context.Background(), store.CreateWithdrawalInput{AccountID: 1, Amount: money.Units(24), Wallet: wallet})
                errs <- err
            }()
        }
        wg.Wait()
        close(errs)

        created, duplicates := 0, 0
        for err := range errs {
            switch err {
            case nil:
                created++
            case store.ErrDuplicatePending:
                duplicates++
            default:
                t.Fatalf("unexpected error: %v", err)
            }
        }
        if created != 1 || duplicates != 7 {
            t.Fatalf("expected 1 created and 7 duplicates, got %d and %d", created, duplicates)
        }
    })
}

func TestResolveCompletedDebits(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        register(t, st, 1, nil)
        fund(t, st, 1, 3)
        w, _ := st.CreateWithdrawal(context.Background(), store.CreateWithdrawalInput{AccountID: 1, Amount: money.Units(24), Wallet: wallet})

        done, err := st.ResolveWithdrawal(context.Background(), w.ID, store.StatusCompleted, "0xabc")
        if err != nil {
            t.Fatalf("resolve: %v", err)
        }
        if done.Status != store.StatusCompleted || done.TxRef != "0xabc" || done.ResolvedAt == nil {
            t.Fatalf("unexpected withdrawal: %+v", done)
        }
        if got := balance(t, st, 1); got != 0 {
            t.Fatalf("expected balance 0, got %s", got)
        }

        if _, err := st.ResolveWithdrawal(context.Background(), w.ID, store.StatusFailed, ""); err != store.ErrAlreadyResolved {
            t.Fatalf("expected ErrAlreadyResolved, got %v", err)
        }
        if got := balance(t, st, 1); got != 0 {
            t.Fatalf("expected balance 0, got %s", got)
        }
    })
}

func TestResolveFailedKeepsBalance(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        register(t, st, 1, nil)
        fund(t, st, 1, 3)
        w, _ := st.CreateWithdrawal(context.Background(), store.CreateWithdrawalInput{AccountID: 1, Amount: money.Units(24), Wallet: wallet})

        failed, err := st.ResolveWithdrawal(context.Background(), w.ID, store.StatusFailed, "")
        if err != nil {
            t.Fatalf("resolve: %v", err)
        }
        if failed.Status != store.StatusFailed || failed.TxRef != "" {
            t.Fatalf("unexpected withdrawal: %+v", failed)
        }
        if got := balance(t, st, 1); got != money.Units(24) {
            t.Fatalf("expected balance 24, got %s", got)
        }

        if _, err := st.CreateWithdrawal(context.Background(), store.CreateWithdrawalInput{AccountID: 1, Amount: money.Units(24), Wallet: wallet}); err != nil {
            t.Fatalf("new request after failure: %v", err)
        }
    })
}

func TestResolveRejectsNonTerminalStatus(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        if _, err := st.ResolveWithdrawal(context.Background(), 1, store.StatusPending, ""); err != store.ErrInvalidStatus {
            t.Fatalf("expected ErrInvalidStatus, got %v", err)
        }
        if _, err := st.ResolveWithdrawal(context.Background(), 1, store.StatusRejected, ""); err != store.ErrNotFound {
            t.Fatalf("expected ErrNotFound, got %v", err)
        }
    })
}

func TestClaimWithdrawal(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        register(t, st, 1, nil)
        fund(t, st, 1, 3)
        w, _ := st.CreateWithdrawal(context.Background(), store.CreateWithdrawalInput{AccountID: 1, Amount: money.Units(24), Wallet: wallet})

        if _, err := st.ClaimWithdrawal(context.Background(), w.ID); err != nil {
            t.Fatalf("claim: %v", err)
        }
        if _, err := st.ClaimWithdrawal(context.Background(), w.ID); err != store.ErrAlreadyResolved {
            t.Fatalf("expected ErrAlreadyResolved, got %v", err)
        }
        if _, err := st.ResolveWithdrawal(context.Background(), w.ID, store.StatusRejected, ""); err != store.ErrAlreadyResolved {
            t.Fatalf("reject during submission: expected ErrAlreadyResolved, got %v", err)
        }

        if err := st.ReleaseWithdrawal(context.Background(), w.ID); err != nil {
            t.Fatalf("release: %v", err)
        }
        if _, err := st.ClaimWithdrawal(context.Background(), w.ID); err != nil {
            t.Fatalf("claim after release: %v", err)
        }
        if _, err := st.ClaimWithdrawal(context.Background(), 999); err != store.ErrNotFound {
            t.Fatalf("expected ErrNotFound, got %v", err)
        }
    })
}

func TestListingsAreOrderedAndPaged(t *testing.T) {
    forEachBackend(t, func(t *testing.T, st ledger) {
        for _, id := range []int64{5, 3, 1, 4, 2} {
            register(t, st, id, nil)
            fund(t, st, id, 3)
        }
        for _, id := range []int64{4, 2, 5} {
            if _, err := st.CreateWithdrawal(context.Background(), store.CreateWithdrawalInput{AccountID: id, Amount: money.Units(24), Wallet: wallet}); err != nil {
                t.Fatalf("create: %v", err)
            }
        }

        accounts, err := st.ListAccounts(context.Background(), 1, 2)
        if err != nil {
            t.Fatalf("list accounts: %v", err)
        }
        if len(accounts) != 2 || accounts[0].ID != 2 || accounts[1].ID != 3 {
            t.Fatalf("unexpected page: %+v", accounts)
        }
        if n, _ := st.CountAccounts(context.Background()); n != 5 {
            t.Fatalf("expected 5 accounts, got %d", n)
        }

        pending, err := st.ListPendingWithdrawals(context.Background(), 0, 5)
        if err != nil {
            t.Fatalf("list pending: %v", err)
        }
        if len(pending) != 3 || pending[0].AccountID != 4 || pending[2].AccountID != 5 {
            t.Fatalf("unexpected pending order: %+v", pending)
        }
        if pending[0].Username != "user" {
            t.Fatalf("expected username, got %q", pending[0].Username)
        }

        if _, err := st.ResolveWithdrawal(context.Background(), pending[0].ID, store.StatusRejected, ""); err != nil {
            t.Fatalf("reject: %v", err)
        }
        if n, _ := st.CountPendingWithdrawals(context.Background()); n != 2 {
            t.Fatalf("expected 2 pending, got %d", n)
        }

        empty, err := st.ListPendingWithdrawals(context.Background(), 10, 5)
        if err != nil || len(empty) != 0 {
            t.Fatalf("expected empty page, got %v %v", empty, err)
        }
    })
}
