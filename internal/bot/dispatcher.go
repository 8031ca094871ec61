package bot

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "airdrop.bot/internal/chain"
    "airdrop.bot/internal/metrics"
    "airdrop.bot/internal/payout"
    "airdrop.bot/internal/store"
)

var (
    ErrUnauthorized = errors.New("unauthorized")
    ErrRateLimited  = errors.New("rate limited")
)

type Action string

const (
    ActionStart             Action = "start"
    ActionMenu              Action = "menu"
    ActionBalance           Action = "balance"
    ActionWallet            Action = "set_wallet"
    ActionWithdraw          Action = "withdraw"
    ActionBackToMain        Action = "back_to_main"
    ActionAdminDashboard    Action = "admin_dashboard"
    ActionViewUsers         Action = "admin_view_users"
    ActionManageWithdrawals Action = "admin_manage_withdrawals"
    ActionApprove           Action = "admin_approve_withdrawal"
    ActionReject            Action = "admin_reject_withdrawal"
    ActionExport            Action = "admin_export_users"
    ActionBan               Action = "ban"
)

var argActions = []Action{ActionViewUsers, ActionManageWithdrawals, ActionApprove, ActionReject}

var commandActions = map[string]Action{
    "start":    ActionStart,
    "menu":     ActionMenu,
    "balance":  ActionBalance,
    "wallet":   ActionWallet,
    "withdraw": ActionWithdraw,
    "admin":    ActionAdminDashboard,
    "ban":      ActionBan,
}

// CommandAction maps a slash command name to its action.
func CommandAction(name string) (Action, bool) {
    a, ok := commandActions[name]
    return a, ok
}

func (a Action) adminOnly() bool {
    switch a {
    case ActionAdminDashboard, ActionViewUsers, ActionManageWithdrawals,
        ActionApprove, ActionReject, ActionExport, ActionBan:
        return true
    }
    return false
}

// rateLimited lists the actions gated by the cooldown limiter.
func (a Action) rateLimited() bool {
    return a == ActionStart || a == ActionWithdraw
}

type Command struct {
    ActorID  int64
    Username string
    Action   Action
    Arg      string
}

type Document struct {
    Name    string
    Data    []byte
    Caption string
}

type Reply struct {
    Text     string
    Keyboard Keyboard
    Document *Document
}

type Limiter interface {
    Allow(actorID int64, action string) bool
}

type Config struct {
    AdminID     int64
    PageSize    int
    BotUsername string
}

// Dispatcher turns actor commands into payout operations. It is safe for
// concurrent use.
type Dispatcher struct {
    svc     *payout.Service
    limiter Limiter
    cfg     Config
    log     logrus.FieldLogger
    now     func() time.Time
}

func NewDispatcher(svc *payout.Service, limiter Limiter, cfg Config, log logrus.FieldLogger) *Dispatcher {
    if cfg.PageSize <= 0 {
        cfg.PageSize = 5
    }
    if log == nil {
        log = logrus.New()
    }
    return &Dispatcher{
        svc:     svc,
        limiter: limiter,
        cfg:     cfg,
        log:     log,
        now:     time.Now,
    }
}

func (d *Dispatcher) isAdmin(actorID int64) bool {
    return actorID == d.cfg.AdminID
}

// Handle runs one command. Failures are always turned into a reply.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) Reply {
    started := time.Now()
    entry := d.log.WithFields(logrus.Fields{
        "request_id": uuid.NewString(),
        "actor_id":   cmd.ActorID,
        "action":     string(cmd.Action),
    })

    reply, err := d.dispatch(ctx, cmd)
    outcome := "ok"
    if err != nil {
        text, known := errorText(err, d.svc.Config())
        if known {
            outcome = outcomeLabel(err)
            entry.WithField("reason", err.Error()).Info("command_refused")
        } else {
            outcome = "error"
            entry.WithError(err).Error("command_failed")
        }
        if reply.Text == "" {
            reply.Text = text
        }
    } else {
        entry.WithField("duration_ms", time.Since(started).Milliseconds()).Debug("command_handled")
    }
    metrics.CommandHandled(string(cmd.Action), outcome)
    return reply
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd Command) (Reply, error) {
    banned, err := d.svc.IsBanned(ctx, cmd.ActorID)
    if err != nil {
        return Reply{}, fmt.Errorf("ban check: %w", err)
    }
    if banned {
        return Reply{}, payout.ErrBanned
    }

    if cmd.Action.adminOnly() && !d.isAdmin(cmd.ActorID) {
        return Reply{}, ErrUnauthorized
    }

    if cmd.Action.rateLimited() && !d.limiter.Allow(cmd.ActorID, string(cmd.Action)) {
        if cmd.Action == ActionStart {
            return Reply{Text: msgStartRateLimit}, ErrRateLimited
        }
        return Reply{Text: msgWithdrawLimited}, ErrRateLimited
    }

    switch cmd.Action {
    case ActionStart:
        return d.start(ctx, cmd)
    case ActionMenu, ActionBackToMain:
        return Reply{Text: msgMainMenu, Keyboard: d.mainMenu(cmd.ActorID)}, nil
    case ActionBalance:
        return d.balance(ctx, cmd)
    case ActionWallet:
        return d.setWallet(ctx, cmd)
    case ActionWithdraw:
        return d.withdraw(ctx, cmd)
    case ActionAdminDashboard:
        return Reply{Text: msgAdminMenu, Keyboard: adminMenu()}, nil
    case ActionViewUsers:
        return d.viewUsers(ctx, parsePage(cmd.Arg))
    case ActionManageWithdrawals:
        return d.manageWithdrawals(ctx, parsePage(cmd.Arg))
    case ActionApprove:
        return d.approve(ctx, cmd.Arg)
    case ActionReject:
        return d.reject(ctx, cmd.Arg)
    case ActionExport:
        return d.export(ctx)
    case ActionBan:
        return d.ban(ctx, cmd.Arg)
    }
    return Reply{Text: msgInvalidAction}, nil
}

func (d *Dispatcher) start(ctx context.Context, cmd Command) (Reply, error) {
    var referrer *int64
    if ref, err := strconv.ParseInt(strings.TrimSpace(cmd.Arg), 10, 64); err == nil && ref > 0 && ref != cmd.ActorID {
        banned, err := d.svc.IsBanned(ctx, ref)
        if err != nil {
            return Reply{}, fmt.Errorf("referrer ban check: %w", err)
        }
        if !banned {
            referrer = &ref
        }
    }

    if _, _, err := d.svc.Register(ctx, cmd.ActorID, cmd.Username, referrer); err != nil {
        return Reply{}, err
    }
    return Reply{Text: welcomeText(d.inviteLink(cmd.ActorID)), Keyboard: d.mainMenu(cmd.ActorID)}, nil
}

func (d *Dispatcher) inviteLink(actorID int64) string {
    return fmt.Sprintf("https://t.me/%s?start=%d", d.cfg.BotUsername, actorID)
}

func (d *Dispatcher) balance(ctx context.Context, cmd Command) (Reply, error) {
    acc, err := d.svc.Account(ctx, cmd.ActorID)
    if err != nil {
        return Reply{}, err
    }
    return Reply{Text: balanceText(acc)}, nil
}

func (d *Dispatcher) setWallet(ctx context.Context, cmd Command) (Reply, error) {
    wallet := strings.TrimSpace(cmd.Arg)
    if wallet == "" {
        return Reply{Text: msgWalletUsage}, nil
    }
    if err := d.svc.SetWallet(ctx, cmd.ActorID, wallet); err != nil {
        return Reply{}, err
    }
    return Reply{Text: walletSavedText(wallet)}, nil
}

func (d *Dispatcher) withdraw(ctx context.Context, cmd Command) (Reply, error) {
    if _, err := d.svc.RequestTo(ctx, cmd.ActorID, strings.TrimSpace(cmd.Arg)); err != nil {
        return Reply{}, err
    }
    return Reply{Text: msgSubmitted}, nil
}

func (d *Dispatcher) viewUsers(ctx context.Context, index int) (Reply, error) {
    list, p, err := d.svc.AccountsPage(ctx, index, d.cfg.PageSize)
    if err != nil {
        return Reply{}, err
    }
    if len(list) == 0 {
        return Reply{Text: msgNoUsers, Keyboard: pager(ActionViewUsers, p)}, nil
    }
    return Reply{Text: accountsText(list, p), Keyboard: pager(ActionViewUsers, p)}, nil
}

func (d *Dispatcher) manageWithdrawals(ctx context.Context, index int) (Reply, error) {
    list, p, err := d.svc.PendingPage(ctx, index, d.cfg.PageSize)
    if err != nil {
        return Reply{}, err
    }
    if len(list) == 0 {
        return Reply{Text: msgNoPending, Keyboard: pager(ActionManageWithdrawals, p)}, nil
    }
    kb := Keyboard{}
    for _, w := range list {
        kb = append(kb, reviewButtons(w.ID, "✅ Approve #"+strconv.FormatInt(w.ID, 10)))
    }
    kb = append(kb, pager(ActionManageWithdrawals, p)...)
    return Reply{Text: pendingText(list, p), Keyboard: kb}, nil
}

func (d *Dispatcher) approve(ctx context.Context, arg string) (Reply, error) {
    id, err := parseID(arg)
    if err != nil {
        return Reply{Text: msgInvalidAction}, nil
    }

    w, err := d.svc.Approve(ctx, id)
    switch {
    case err == nil:
        return Reply{Text: approvedText(w), Keyboard: Keyboard{backToWithdrawals()}}, nil
    case errors.Is(err, chain.ErrInsufficientFunds), errors.Is(err, chain.ErrInsufficientFee):
        text, _ := errorText(err, d.svc.Config())
        return Reply{Text: text, Keyboard: Keyboard{reviewButtons(id, "🔁 Retry"), backToWithdrawals()}}, err
    case errors.Is(err, chain.ErrTimeout) && w.ID != 0:
        return Reply{Text: timeoutAdminText(w), Keyboard: Keyboard{backToWithdrawals()}}, err
    case errors.Is(err, chain.ErrSubmissionFailed) && w.ID != 0:
        return Reply{Text: failedAdminText(w), Keyboard: Keyboard{backToWithdrawals()}}, err
    }
    return Reply{}, err
}

func (d *Dispatcher) reject(ctx context.Context, arg string) (Reply, error) {
    id, err := parseID(arg)
    if err != nil {
        return Reply{Text: msgInvalidAction}, nil
    }
    w, err := d.svc.Reject(ctx, id)
    if err != nil {
        return Reply{}, err
    }
    return Reply{Text: rejectedAdminText(w), Keyboard: Keyboard{backToWithdrawals()}}, nil
}

func (d *Dispatcher) export(ctx context.Context) (Reply, error) {
    var buf bytes.Buffer
    rows, err := d.svc.ExportAccounts(ctx, &buf)
    if err != nil {
        return Reply{}, err
    }
    if rows == 0 {
        return Reply{Text: msgNoExport}, nil
    }
    return Reply{Document: &Document{
        Name:    "users_export_" + d.now().Format("20060102_150405") + ".csv",
        Data:    buf.Bytes(),
        Caption: msgExportCaption,
    }}, nil
}

func (d *Dispatcher) ban(ctx context.Context, arg string) (Reply, error) {
    id, err := parseID(arg)
    if err != nil {
        return Reply{Text: msgBanUsage}, nil
    }
    if err := d.svc.Ban(ctx, id); err != nil {
        return Reply{}, err
    }
    return Reply{Text: bannedText(id)}, nil
}

func parsePage(arg string) int {
    n, err := strconv.Atoi(strings.TrimSpace(arg))
    if err != nil || n < 1 {
        return 1
    }
    return n
}

func parseID(arg string) (int64, error) {
    id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
    if err != nil || id <= 0 {
        return 0, errors.New("invalid id")
    }
    return id, nil
}

// errorText maps a known failure to the text shown to the actor.
func errorText(err error, cfg payout.Config) (string, bool) {
    switch {
    case errors.Is(err, payout.ErrBanned):
        return msgBanned, true
    case errors.Is(err, ErrUnauthorized):
        return msgUnauthorized, true
    case errors.Is(err, ErrRateLimited):
        return msgWithdrawLimited, true
    case errors.Is(err, store.ErrNotRegistered):
        return msgNotRegistered, true
    case errors.Is(err, payout.ErrInvalidWallet):
        return msgInvalidWallet, true
    case errors.Is(err, payout.ErrWalletNotSet):
        return msgWalletNotSet, true
    case errors.Is(err, payout.ErrBelowMinimum):
        return belowMinimumText(cfg.MinWithdrawal), true
    case errors.Is(err, store.ErrDuplicatePending):
        return msgDuplicate, true
    case errors.Is(err, store.ErrAlreadyResolved), errors.Is(err, store.ErrNotFound):
        return msgNotFound, true
    case errors.Is(err, chain.ErrInsufficientFunds):
        return msgNoFunds, true
    case errors.Is(err, chain.ErrInsufficientFee):
        return msgNoFee, true
    case errors.Is(err, chain.ErrSubmissionFailed), errors.Is(err, chain.ErrTimeout):
        return "❌ Withdrawal transaction failed.", true
    }
    return msgGenericError, false
}

func outcomeLabel(err error) string {
    switch {
    case errors.Is(err, payout.ErrBanned):
        return "banned"
    case errors.Is(err, ErrUnauthorized):
        return "unauthorized"
    case errors.Is(err, ErrRateLimited):
        return "rate_limited"
    case errors.Is(err, chain.ErrSubmissionFailed), errors.Is(err, chain.ErrTimeout),
        errors.Is(err, chain.ErrInsufficientFunds), errors.Is(err, chain.ErrInsufficientFee):
        return "gateway_error"
    }
    return "refused"
}
