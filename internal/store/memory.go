package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "airdrop.bot/internal/money"
)

// Memory is an in-process Store with the same transactional guarantees as the
// Postgres implementation: every method runs under a single lock.
type Memory struct {
    mu          sync.Mutex
    accounts    map[int64]*Account
    withdrawals map[int64]*memWithdrawal
    banned      map[int64]struct{}
    nextID      int64
    now         func() time.Time
}

type memWithdrawal struct {
    Withdrawal
    submitting bool
}

func NewMemory() *Memory {
    return &Memory{
        accounts:    make(map[int64]*Account),
        withdrawals: make(map[int64]*memWithdrawal),
        banned:      make(map[int64]struct{}),
        now:         time.Now,
    }
}

func (m *Memory) Ping(context.Context) error {
    return nil
}

func (m *Memory) RegisterAccount(ctx context.Context, input RegisterInput) (Account, bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()

    if acc, ok := m.accounts[input.ID]; ok {
        return *acc, false, nil
    }

    acc := &Account{ID: input.ID, Username: input.Username, CreatedAt: m.now()}
    m.accounts[input.ID] = acc

    if input.ReferrerID != nil && *input.ReferrerID != input.ID {
        if m.creditReferral(*input.ReferrerID, input.Bonus) {
            ref := *input.ReferrerID
            acc.ReferrerID = &ref
        }
    }
    return *acc, true, nil
}

// CreditReferral is a no-op when the referrer is missing or banned.
func (m *Memory) CreditReferral(ctx context.Context, referrerID int64, amount money.Amount) error {
    m.mu.Lock()
    defer m.mu.Unlock()

    m.creditReferral(referrerID, amount)
    return nil
}

func (m *Memory) creditReferral(referrerID int64, amount money.Amount) bool {
    ref, ok := m.accounts[referrerID]
    if !ok {
        return false
    }
    if _, banned := m.banned[referrerID]; banned {
        return false
    }
    ref.Referrals++
    ref.Balance += amount
    return true
}

func (m *Memory) GetAccount(ctx context.Context, id int64) (Account, error) {
    m.mu.Lock()
    defer m.mu.Unlock()

    acc, ok := m.accounts[id]
    if !ok {
        return Account{}, ErrNotRegistered
    }
    return *acc, nil
}

func (m *Memory) SetWallet(ctx context.Context, id int64, wallet string) error {
    m.mu.Lock()
    defer m.mu.Unlock()

    acc, ok := m.accounts[id]
    if !ok {
        return ErrNotRegistered
    }
    acc.Wallet = wallet
    return nil
}

func (m *Memory) IsBanned(ctx context.Context, id int64) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()

    _, banned := m.banned[id]
    return banned, nil
}

func (m *Memory) Ban(ctx context.Context, id int64) error {
    m.mu.Lock()
    defer m.mu.Unlock()

    m.banned[id] = struct{}{}
    return nil
}

func (m *Memory) ListAccounts(ctx context.Context, offset, limit int) ([]Account, error) {
    m.mu.Lock()
    defer m.mu.Unlock()

    ids := make([]int64, 0, len(m.accounts))
    for id := range m.accounts {
        ids = append(ids, id)
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

    var list []Account
    for _, id := range page(ids, offset, limit) {
        list = append(list, *m.accounts[id])
    }
    return list, nil
}

func (m *Memory) CountAccounts(ctx context.Context) (int, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    return len(m.accounts), nil
}

func (m *Memory) CreateWithdrawal(ctx context.Context, input CreateWithdrawalInput) (Withdrawal, error) {
    m.mu.Lock()
    defer m.mu.Unlock()

    acc, ok := m.accounts[input.AccountID]
    if !ok {
        return Withdrawal{}, ErrNotRegistered
    }
    for _, w := range m.withdrawals {
        if w.AccountID == input.AccountID && w.Status == StatusPending {
            return Withdrawal{}, ErrDuplicatePending
        }
    }
    if acc.Balance < input.Amount {
        return Withdrawal{}, ErrInsufficientBalance
    }

    m.nextID++
    w := &memWithdrawal{Withdrawal: Withdrawal{
        ID:        m.nextID,
        AccountID: input.AccountID,
        Amount:    input.Amount,
        Status:    StatusPending,
        Wallet:    input.Wallet,
        CreatedAt: m.now(),
    }}
    m.withdrawals[w.ID] = w
    return m.view(w), nil
}

func (m *Memory) GetWithdrawal(ctx context.Context, id int64) (Withdrawal, error) {
    m.mu.Lock()
    defer m.mu.Unlock()

    w, ok := m.withdrawals[id]
    if !ok {
        return Withdrawal{}, ErrNotFound
    }
    return m.view(w), nil
}

func (m *Memory) ListPendingWithdrawals(ctx context.Context, offset, limit int) ([]Withdrawal, error) {
    m.mu.Lock()
    defer m.mu.Unlock()

    ids := m.pendingIDs()
    var list []Withdrawal
    for _, id := range page(ids, offset, limit) {
        list = append(list, m.view(m.withdrawals[id]))
    }
    return list, nil
}

func (m *Memory) CountPendingWithdrawals(ctx context.Context) (int, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    return len(m.pendingIDs()), nil
}

func (m *Memory) ClaimWithdrawal(ctx context.Context, id int64) (Withdrawal, error) {
    m.mu.Lock()
    defer m.mu.Unlock()

    w, ok := m.withdrawals[id]
    if !ok {
        return Withdrawal{}, ErrNotFound
    }
    if w.Status != StatusPending || w.submitting {
        return Withdrawal{}, ErrAlreadyResolved
    }
    w.submitting = true
    return m.view(w), nil
}

func (m *Memory) ReleaseWithdrawal(ctx context.Context, id int64) error {
    m.mu.Lock()
    defer m.mu.Unlock()

    if w, ok := m.withdrawals[id]; ok && w.Status == StatusPending {
        w.submitting = false
    }
    return nil
}

func (m *Memory) ResolveWithdrawal(ctx context.Context, id int64, status, txRef string) (Withdrawal, error) {
    if !IsTerminal(status) {
        return Withdrawal{}, ErrInvalidStatus
    }

    m.mu.Lock()
    defer m.mu.Unlock()

    w, ok := m.withdrawals[id]
    if !ok {
        return Withdrawal{}, ErrNotFound
    }
    if w.Status != StatusPending {
        return Withdrawal{}, ErrAlreadyResolved
    }
    if status == StatusRejected && w.submitting {
        return Withdrawal{}, ErrAlreadyResolved
    }

    if status == StatusCompleted {
        acc, ok := m.accounts[w.AccountID]
        if !ok || acc.Balance < w.Amount {
            return Withdrawal{}, ErrInsufficientBalance
        }
        acc.Balance -= w.Amount
    }

    now := m.now()
    w.Status = status
    w.TxRef = txRef
    w.ResolvedAt = &now
    w.submitting = false
    return m.view(w), nil
}

func (m *Memory) pendingIDs() []int64 {
    var ids []int64
    for id, w := range m.withdrawals {
        if w.Status == StatusPending {
            ids = append(ids, id)
        }
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
    return ids
}

func (m *Memory) view(w *memWithdrawal) Withdrawal {
    out := w.Withdrawal
    if acc, ok := m.accounts[w.AccountID]; ok {
        out.Username = acc.Username
    }
    if w.ResolvedAt != nil {
        at := *w.ResolvedAt
        out.ResolvedAt = &at
    }
    return out
}

func page(ids []int64, offset, limit int) []int64 {
    if offset < 0 {
        offset = 0
    }
    if offset >= len(ids) {
        return nil
    }
    end := offset + limit
    if limit < 0 || end > len(ids) {
        end = len(ids)
    }
    return ids[offset:end]
}
