package payout

import (
    "context"
    "encoding/csv"
    "io"
    "strconv"

    "airdrop.bot/internal/store"
)

const exportBatch = 500

// Page describes one 1-based page of a listing.
type Page struct {
    Index int
    Size  int
    Total int
}

func NewPage(index, size, total int) Page {
    if index < 1 {
        index = 1
    }
    if size < 1 {
        size = 1
    }
    return Page{Index: index, Size: size, Total: total}
}

func (p Page) Offset() int {
    return (p.Index - 1) * p.Size
}

func (p Page) Pages() int {
    return (p.Total + p.Size - 1) / p.Size
}

func (p Page) HasPrev() bool {
    return p.Index > 1
}

func (p Page) HasNext() bool {
    return p.Index < p.Pages()
}

func (s *Service) AccountsPage(ctx context.Context, index, size int) ([]store.Account, Page, error) {
    total, err := s.ledger.CountAccounts(ctx)
    if err != nil {
        return nil, Page{}, err
    }
    p := NewPage(index, size, total)
    list, err := s.ledger.ListAccounts(ctx, p.Offset(), p.Size)
    if err != nil {
        return nil, Page{}, err
    }
    return list, p, nil
}

func (s *Service) PendingPage(ctx context.Context, index, size int) ([]store.Withdrawal, Page, error) {
    total, err := s.ledger.CountPendingWithdrawals(ctx)
    if err != nil {
        return nil, Page{}, err
    }
    p := NewPage(index, size, total)
    list, err := s.ledger.ListPendingWithdrawals(ctx, p.Offset(), p.Size)
    if err != nil {
        return nil, Page{}, err
    }
    return list, p, nil
}

func (s *Service) PendingCount(ctx context.Context) (int, error) {
    return s.ledger.CountPendingWithdrawals(ctx)
}

var exportHeader = []string{"User ID", "Username", "Balance (USDT)", "Referrals", "Wallet Address"}

// ExportAccounts writes every account as CSV and returns the number of rows.
func (s *Service) ExportAccounts(ctx context.Context, out io.Writer) (int, error) {
    w := csv.NewWriter(out)
    if err := w.Write(exportHeader); err != nil {
        return 0, err
    }

    rows := 0
    for offset := 0; ; offset += exportBatch {
        batch, err := s.ledger.ListAccounts(ctx, offset, exportBatch)
        if err != nil {
            return rows, err
        }
        for _, acc := range batch {
            if err := w.Write(exportRecord(acc)); err != nil {
                return rows, err
            }
            rows++
        }
        if len(batch) < exportBatch {
            break
        }
    }

    w.Flush()
    return rows, w.Error()
}

func exportRecord(acc store.Account) []string {
    username := acc.Username
    if username == "" {
        username = "N/A"
    }
    wallet := acc.Wallet
    if wallet == "" {
        wallet = "Not set"
    }
    return []string{
        strconv.FormatInt(acc.ID, 10),
        username,
        acc.Balance.String(),
        strconv.Itoa(acc.Referrals),
        wallet,
    }
}
