package api

import (
    "bytes"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/sirupsen/logrus"

    "airdrop.bot/internal/chain"
    "airdrop.bot/internal/payout"
    "airdrop.bot/internal/store"
)

type accountResponse struct {
    ID         int64     `json:"id"`
    Username   string    `json:"username,omitempty"`
    Balance    string    `json:"balance"`
    Referrals  int       `json:"referrals"`
    Wallet     string    `json:"wallet,omitempty"`
    ReferrerID *int64    `json:"referrer_id,omitempty"`
    CreatedAt  time.Time `json:"created_at"`
}

type withdrawalResponse struct {
    ID         int64      `json:"id"`
    AccountID  int64      `json:"account_id"`
    Username   string     `json:"username,omitempty"`
    Amount     string     `json:"amount"`
    Status     string     `json:"status"`
    Wallet     string     `json:"wallet"`
    TxRef      string     `json:"tx_ref,omitempty"`
    CreatedAt  time.Time  `json:"created_at"`
    ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type pageResponse struct {
    Page     int `json:"page"`
    PageSize int `json:"page_size"`
    Total    int `json:"total"`
    Pages    int `json:"pages"`
}

type accountsResponse struct {
    Accounts []accountResponse `json:"accounts"`
    pageResponse
}

type withdrawalsResponse struct {
    Withdrawals []withdrawalResponse `json:"withdrawals"`
    pageResponse
}

type banRequest struct {
    AccountID int64 `json:"account_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
    if err := s.db.Ping(r.Context()); err != nil {
        s.logFailure("health_check_failed", err, nil)
        writeError(w, http.StatusServiceUnavailable, "unavailable")
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
    list, p, err := s.svc.AccountsPage(r.Context(), parsePage(r.URL.Query().Get("page")), s.pageSize)
    if err != nil {
        s.logFailure("accounts_list_failed", err, nil)
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    resp := accountsResponse{Accounts: make([]accountResponse, 0, len(list)), pageResponse: toPageResponse(p)}
    for _, acc := range list {
        resp.Accounts = append(resp.Accounts, toAccountResponse(acc))
    }
    writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportAccounts(w http.ResponseWriter, r *http.Request) {
    var buf bytes.Buffer
    rows, err := s.svc.ExportAccounts(r.Context(), &buf)
    if err != nil {
        s.logFailure("accounts_export_failed", err, nil)
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    name := "users_export_" + time.Now().Format("20060102_150405") + ".csv"
    w.Header().Set("Content-Type", "text/csv")
    w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
    w.WriteHeader(http.StatusOK)
    _, _ = buf.WriteTo(w)

    s.logEvent("accounts_exported", logrus.Fields{"rows": rows})
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
    list, p, err := s.svc.PendingPage(r.Context(), parsePage(r.URL.Query().Get("page")), s.pageSize)
    if err != nil {
        s.logFailure("withdrawals_list_failed", err, nil)
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    resp := withdrawalsResponse{Withdrawals: make([]withdrawalResponse, 0, len(list)), pageResponse: toPageResponse(p)}
    for _, wd := range list {
        resp.Withdrawals = append(resp.Withdrawals, toWithdrawalResponse(wd))
    }
    writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
    id, ok := parseID(chi.URLParam(r, "id"))
    if !ok {
        writeError(w, http.StatusBadRequest, "invalid_id")
        return
    }

    withdrawal, err := s.svc.Withdrawal(r.Context(), id)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeError(w, http.StatusNotFound, "not_found")
            return
        }
        s.logFailure("withdrawal_get_failed", err, logrus.Fields{"withdrawal_id": id})
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    writeJSON(w, http.StatusOK, toWithdrawalResponse(withdrawal))
}

func (s *Server) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
    id, ok := parseID(chi.URLParam(r, "id"))
    if !ok {
        writeError(w, http.StatusBadRequest, "invalid_id")
        return
    }

    withdrawal, err := s.svc.Approve(r.Context(), id)
    if err != nil {
        status, code := approveError(err)
        if status == http.StatusInternalServerError {
            s.logFailure("withdrawal_approve_failed", err, logrus.Fields{"withdrawal_id": id})
        }
        s.logEvent("withdrawal_approve_refused", logrus.Fields{"withdrawal_id": id, "reason": code})
        writeError(w, status, code)
        return
    }

    writeJSON(w, http.StatusOK, toWithdrawalResponse(withdrawal))
}

func approveError(err error) (int, string) {
    switch {
    case errors.Is(err, store.ErrNotFound):
        return http.StatusNotFound, "not_found"
    case errors.Is(err, store.ErrAlreadyResolved):
        return http.StatusConflict, "already_resolved"
    case errors.Is(err, chain.ErrInsufficientFunds):
        return http.StatusConflict, "insufficient_funds"
    case errors.Is(err, chain.ErrInsufficientFee):
        return http.StatusConflict, "insufficient_fee"
    case errors.Is(err, chain.ErrTimeout):
        return http.StatusGatewayTimeout, "timeout"
    case errors.Is(err, chain.ErrSubmissionFailed):
        return http.StatusBadGateway, "submission_failed"
    }
    return http.StatusInternalServerError, "internal_error"
}

func (s *Server) handleRejectWithdrawal(w http.ResponseWriter, r *http.Request) {
    id, ok := parseID(chi.URLParam(r, "id"))
    if !ok {
        writeError(w, http.StatusBadRequest, "invalid_id")
        return
    }

    withdrawal, err := s.svc.Reject(r.Context(), id)
    if err != nil {
        switch {
        case errors.Is(err, store.ErrNotFound):
            writeError(w, http.StatusNotFound, "not_found")
        case errors.Is(err, store.ErrAlreadyResolved):
            writeError(w, http.StatusConflict, "already_resolved")
        default:
            s.logFailure("withdrawal_reject_failed", err, logrus.Fields{"withdrawal_id": id})
            writeError(w, http.StatusInternalServerError, "internal_error")
        }
        return
    }

    writeJSON(w, http.StatusOK, toWithdrawalResponse(withdrawal))
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
    var req banRequest

    dec := json.NewDecoder(r.Body)
    dec.DisallowUnknownFields()
    if err := dec.Decode(&req); err != nil {
        writeError(w, http.StatusBadRequest, "invalid_request")
        return
    }
    if err := dec.Decode(&struct{}{}); err != io.EOF {
        writeError(w, http.StatusBadRequest, "invalid_request")
        return
    }
    if req.AccountID <= 0 {
        writeError(w, http.StatusBadRequest, "invalid_request")
        return
    }

    if err := s.svc.Ban(r.Context(), req.AccountID); err != nil {
        s.logFailure("ban_failed", err, logrus.Fields{"account_id": req.AccountID})
        writeError(w, http.StatusInternalServerError, "internal_error")
        return
    }

    writeJSON(w, http.StatusOK, map[string]any{"account_id": req.AccountID, "banned": true})
}

func toPageResponse(p payout.Page) pageResponse {
    return pageResponse{Page: p.Index, PageSize: p.Size, Total: p.Total, Pages: p.Pages()}
}

func toAccountResponse(acc store.Account) accountResponse {
    return accountResponse{
        ID:         acc.ID,
        Username:   acc.Username,
        Balance:    acc.Balance.String(),
        Referrals:  acc.Referrals,
        Wallet:     acc.Wallet,
        ReferrerID: acc.ReferrerID,
        CreatedAt:  acc.CreatedAt,
    }
}

func toWithdrawalResponse(w store.Withdrawal) withdrawalResponse {
    return withdrawalResponse{
        ID:         w.ID,
        AccountID:  w.AccountID,
        Username:   w.Username,
        Amount:     w.Amount.String(),
        Status:     w.Status,
        Wallet:     w.Wallet,
        TxRef:      w.TxRef,
        CreatedAt:  w.CreatedAt,
        ResolvedAt: w.ResolvedAt,
    }
}
