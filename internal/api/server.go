package api

import (
    "context"
    "crypto/subtle"
    "net/http"
    "strings"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/sirupsen/logrus"

    "airdrop.bot/internal/metrics"
    "airdrop.bot/internal/payout"
)

type Pinger interface {
    Ping(ctx context.Context) error
}

type Config struct {
    AuthToken string
    PageSize  int
}

// Server is the admin HTTP API. It drives the same payout service as the bot.
type Server struct {
    svc       *payout.Service
    db        Pinger
    authToken string
    pageSize  int
    logger    logrus.FieldLogger
}

func NewServer(svc *payout.Service, db Pinger, cfg Config, logger logrus.FieldLogger) *Server {
    if logger == nil {
        logger = logrus.New()
    }
    if cfg.PageSize <= 0 {
        cfg.PageSize = 5
    }
    return &Server{
        svc:       svc,
        db:        db,
        authToken: cfg.AuthToken,
        pageSize:  cfg.PageSize,
        logger:    logger,
    }
}

func (s *Server) Routes() http.Handler {
    r := chi.NewRouter()
    r.Use(middleware.Recoverer)
    r.Get("/healthz", s.handleHealth)
    r.Handle("/metrics", metrics.Handler())
    r.Route("/v1", func(r chi.Router) {
        r.Use(s.authMiddleware)
        r.Get("/accounts", s.handleListAccounts)
        r.Get("/accounts/export", s.handleExportAccounts)
        r.Get("/withdrawals", s.handleListWithdrawals)
        r.Get("/withdrawals/{id}", s.handleGetWithdrawal)
        r.Post("/withdrawals/{id}/approve", s.handleApproveWithdrawal)
        r.Post("/withdrawals/{id}/reject", s.handleRejectWithdrawal)
        r.Post("/bans", s.handleBan)
    })
    return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        token := extractBearerToken(r.Header.Get("Authorization"))
        if !secureCompare(token, s.authToken) {
            writeError(w, http.StatusUnauthorized, "unauthorized")
            return
        }
        next.ServeHTTP(w, r)
    })
}

func extractBearerToken(header string) string {
    if header == "" {
        return ""
    }
    parts := strings.SplitN(header, " ", 2)
    if len(parts) != 2 {
        return ""
    }
    if !strings.EqualFold(parts[0], "Bearer") {
        return ""
    }
    return strings.TrimSpace(parts[1])
}

func secureCompare(a, b string) bool {
    if a == "" || len(a) != len(b) {
        return false
    }
    return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
