package store

import (
    "context"
    "errors"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"

    "airdrop.bot/internal/money"
)

type Store struct {
    pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
    return &Store{pool: pool}
}

type querier interface {
    QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, COALESCE(username, ''), balance, referrals, COALESCE(wallet, ''), referrer_id, created_at`

const withdrawalSelect = `
    SELECT w.id, w.account_id, COALESCE(a.username, ''), w.amount, w.status, w.wallet,
           COALESCE(w.tx_ref, ''), w.created_at, w.resolved_at
    FROM withdrawals w
    JOIN accounts a ON a.id = w.account_id
`

func (s *Store) Ping(ctx context.Context) error {
    return s.pool.Ping(ctx)
}

func (s *Store) RegisterAccount(ctx context.Context, input RegisterInput) (Account, bool, error) {
    tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return Account{}, false, err
    }
    defer func() {
        _ = tx.Rollback(ctx)
    }()

    tag, err := tx.Exec(ctx, `
        INSERT INTO accounts (id, username)
        VALUES ($1, NULLIF($2, ''))
        ON CONFLICT (id) DO NOTHING
    `, input.ID, input.Username)
    if err != nil {
        return Account{}, false, err
    }
    created := tag.RowsAffected() == 1

    if created && input.ReferrerID != nil && *input.ReferrerID != input.ID {
        credited, err := creditReferral(ctx, tx, *input.ReferrerID, input.Bonus)
        if err != nil {
            return Account{}, false, err
        }
        if credited {
            _, err = tx.Exec(ctx, "UPDATE accounts SET referrer_id = $1 WHERE id = $2", *input.ReferrerID, input.ID)
            if err != nil {
                return Account{}, false, err
            }
        }
    }

    acc, err := getAccount(ctx, tx, input.ID)
    if err != nil {
        return Account{}, false, err
    }

    if err := tx.Commit(ctx); err != nil {
        return Account{}, false, err
    }
    return acc, created, nil
}

// CreditReferral is a no-op when the referrer is missing or banned.
func (s *Store) CreditReferral(ctx context.Context, referrerID int64, amount money.Amount) error {
    tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return err
    }
    defer func() {
        _ = tx.Rollback(ctx)
    }()

    if _, err := creditReferral(ctx, tx, referrerID, amount); err != nil {
        return err
    }
    return tx.Commit(ctx)
}

func (s *Store) GetAccount(ctx context.Context, id int64) (Account, error) {
    return getAccount(ctx, s.pool, id)
}

func (s *Store) SetWallet(ctx context.Context, id int64, wallet string) error {
    tag, err := s.pool.Exec(ctx, "UPDATE accounts SET wallet = $1 WHERE id = $2", wallet, id)
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return ErrNotRegistered
    }
    return nil
}

func (s *Store) IsBanned(ctx context.Context, id int64) (bool, error) {
    var banned bool
    err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM banned_accounts WHERE account_id = $1)", id).Scan(&banned)
    return banned, err
}

func (s *Store) Ban(ctx context.Context, id int64) error {
    _, err := s.pool.Exec(ctx, "INSERT INTO banned_accounts (account_id) VALUES ($1) ON CONFLICT DO NOTHING", id)
    return err
}

func (s *Store) ListAccounts(ctx context.Context, offset, limit int) ([]Account, error) {
    rows, err := s.pool.Query(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        ORDER BY id
        LIMIT $1 OFFSET $2
    `, limit, offset)
    if err != nil {
        return nil, err
    }
    return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Account, error) {
        return scanAccount(row)
    })
}

func (s *Store) CountAccounts(ctx context.Context) (int, error) {
    var n int
    err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&n)
    return n, err
}

func (s *Store) CreateWithdrawal(ctx context.Context, input CreateWithdrawalInput) (Withdrawal, error) {
    tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return Withdrawal{}, err
    }
    defer func() {
        _ = tx.Rollback(ctx)
    }()

    var balance int64
    err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", input.AccountID).Scan(&balance)
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return Withdrawal{}, ErrNotRegistered
        }
        return Withdrawal{}, err
    }

    var pending bool
    err = tx.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM withdrawals WHERE account_id = $1 AND status = $2)
    `, input.AccountID, StatusPending).Scan(&pending)
    if err != nil {
        return Withdrawal{}, err
    }
    if pending {
        return Withdrawal{}, ErrDuplicatePending
    }

    if balance < int64(input.Amount) {
        return Withdrawal{}, ErrInsufficientBalance
    }

    var id int64
    err = tx.QueryRow(ctx, `
        INSERT INTO withdrawals (account_id, amount, status, wallet)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, input.AccountID, int64(input.Amount), StatusPending, input.Wallet).Scan(&id)
    if err != nil {
        if isUniqueViolation(err) {
            return Withdrawal{}, ErrDuplicatePending
        }
        return Withdrawal{}, err
    }

    created, err := getWithdrawal(ctx, tx, id)
    if err != nil {
        return Withdrawal{}, err
    }

    if err := tx.Commit(ctx); err != nil {
        if isUniqueViolation(err) {
            return Withdrawal{}, ErrDuplicatePending
        }
        return Withdrawal{}, err
    }
    return created, nil
}

func (s *Store) GetWithdrawal(ctx context.Context, id int64) (Withdrawal, error) {
    return getWithdrawal(ctx, s.pool, id)
}

func (s *Store) ListPendingWithdrawals(ctx context.Context, offset, limit int) ([]Withdrawal, error) {
    rows, err := s.pool.Query(ctx, withdrawalSelect+`
        WHERE w.status = $1
        ORDER BY w.id
        LIMIT $2 OFFSET $3
    `, StatusPending, limit, offset)
    if err != nil {
        return nil, err
    }
    return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Withdrawal, error) {
        return scanWithdrawal(row)
    })
}

func (s *Store) CountPendingWithdrawals(ctx context.Context) (int, error) {
    var n int
    err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM withdrawals WHERE status = $1", StatusPending).Scan(&n)
    return n, err
}

// ClaimWithdrawal marks a pending withdrawal as being submitted. Only one caller
// can hold the claim; everyone else gets ErrAlreadyResolved.
func (s *Store) ClaimWithdrawal(ctx context.Context, id int64) (Withdrawal, error) {
    tag, err := s.pool.Exec(ctx, `
        UPDATE withdrawals SET submitting = true
        WHERE id = $1 AND status = $2 AND NOT submitting
    `, id, StatusPending)
    if err != nil {
        return Withdrawal{}, err
    }
    w, err := getWithdrawal(ctx, s.pool, id)
    if err != nil {
        return Withdrawal{}, err
    }
    if tag.RowsAffected() == 0 {
        return Withdrawal{}, ErrAlreadyResolved
    }
    return w, nil
}

func (s *Store) ReleaseWithdrawal(ctx context.Context, id int64) error {
    _, err := s.pool.Exec(ctx, `
        UPDATE withdrawals SET submitting = false
        WHERE id = $1 AND status = $2
    `, id, StatusPending)
    return err
}

// ResolveWithdrawal moves a pending withdrawal to a terminal status. Completing
// debits the account by the withdrawal amount in the same transaction. A
// rejection is refused while a submission holds the claim.
func (s *Store) ResolveWithdrawal(ctx context.Context, id int64, status, txRef string) (Withdrawal, error) {
    if !IsTerminal(status) {
        return Withdrawal{}, ErrInvalidStatus
    }

    tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return Withdrawal{}, err
    }
    defer func() {
        _ = tx.Rollback(ctx)
    }()

    var (
        accountID  int64
        amount     int64
        current    string
        submitting bool
    )
    err = tx.QueryRow(ctx, `
        SELECT account_id, amount, status, submitting
        FROM withdrawals
        WHERE id = $1
        FOR UPDATE
    `, id).Scan(&accountID, &amount, &current, &submitting)
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return Withdrawal{}, ErrNotFound
        }
        return Withdrawal{}, err
    }

    if current != StatusPending {
        return Withdrawal{}, ErrAlreadyResolved
    }
    if status == StatusRejected && submitting {
        return Withdrawal{}, ErrAlreadyResolved
    }

    _, err = tx.Exec(ctx, `
        UPDATE withdrawals
        SET status = $1, tx_ref = NULLIF($2, ''), submitting = false, resolved_at = now()
        WHERE id = $3
    `, status, txRef, id)
    if err != nil {
        return Withdrawal{}, err
    }

    if status == StatusCompleted {
        if err := debitBalance(ctx, tx, accountID, amount); err != nil {
            return Withdrawal{}, err
        }
    }

    w, err := getWithdrawal(ctx, tx, id)
    if err != nil {
        return Withdrawal{}, err
    }

    if err := tx.Commit(ctx); err != nil {
        return Withdrawal{}, err
    }
    return w, nil
}

func creditReferral(ctx context.Context, tx pgx.Tx, referrerID int64, amount money.Amount) (bool, error) {
    tag, err := tx.Exec(ctx, `
        UPDATE accounts
        SET referrals = referrals + 1, balance = balance + $1
        WHERE id = $2
          AND NOT EXISTS (SELECT 1 FROM banned_accounts WHERE account_id = $2)
    `, int64(amount), referrerID)
    if err != nil {
        return false, err
    }
    return tag.RowsAffected() == 1, nil
}

func debitBalance(ctx context.Context, tx pgx.Tx, accountID, amount int64) error {
    tag, err := tx.Exec(ctx, `
        UPDATE accounts SET balance = balance - $1
        WHERE id = $2 AND balance >= $1
    `, amount, accountID)
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return ErrInsufficientBalance
    }
    return nil
}

func getAccount(ctx context.Context, q querier, id int64) (Account, error) {
    acc, err := scanAccount(q.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return Account{}, ErrNotRegistered
        }
        return Account{}, err
    }
    return acc, nil
}

func getWithdrawal(ctx context.Context, q querier, id int64) (Withdrawal, error) {
    w, err := scanWithdrawal(q.QueryRow(ctx, withdrawalSelect+" WHERE w.id = $1", id))
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return Withdrawal{}, ErrNotFound
        }
        return Withdrawal{}, err
    }
    return w, nil
}

func scanAccount(row pgx.Row) (Account, error) {
    var (
        a       Account
        balance int64
    )
    err := row.Scan(
        &a.ID,
        &a.Username,
        &balance,
        &a.Referrals,
        &a.Wallet,
        &a.ReferrerID,
        &a.CreatedAt,
    )
    a.Balance = money.Amount(balance)
    return a, err
}

func scanWithdrawal(row pgx.Row) (Withdrawal, error) {
    var (
        w      Withdrawal
        amount int64
    )
    err := row.Scan(
        &w.ID,
        &w.AccountID,
        &w.Username,
        &amount,
        &w.Status,
        &w.Wallet,
        &w.TxRef,
        &w.CreatedAt,
        &w.ResolvedAt,
    )
    w.Amount = money.Amount(amount)
    return w, err
}

func isUniqueViolation(err error) bool {
    var pgErr *pgconn.PgError
    if !errors.As(err, &pgErr) {
        return false
    }
    return pgErr.Code == "23505"
}
