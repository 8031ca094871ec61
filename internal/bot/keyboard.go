package bot

import (
    "strconv"
    "strings"

    "airdrop.bot/internal/payout"
)

type Button struct {
    Text string
    Data string
}

type Keyboard [][]Button

// rows lays buttons out two per row.
func rows(buttons ...Button) Keyboard {
    var kb Keyboard
    for i := 0; i < len(buttons); i += 2 {
        end := i + 2
        if end > len(buttons) {
            end = len(buttons)
        }
        kb = append(kb, buttons[i:end])
    }
    return kb
}

func withArg(action Action, arg int64) string {
    return string(action) + "_" + strconv.FormatInt(arg, 10)
}

// ParseCallback splits button data such as "admin_view_users_2" into its action
// and numeric argument.
func ParseCallback(data string) (Action, string) {
    for _, action := range argActions {
        prefix := string(action) + "_"
        if strings.HasPrefix(data, prefix) {
            return action, strings.TrimPrefix(data, prefix)
        }
    }
    return Action(data), ""
}

func (d *Dispatcher) mainMenu(actorID int64) Keyboard {
    buttons := []Button{
        {Text: "💰 Balance", Data: string(ActionBalance)},
        {Text: "🪙 Set Wallet", Data: string(ActionWallet)},
        {Text: "📤 Withdraw", Data: string(ActionWithdraw)},
    }
    if d.isAdmin(actorID) {
        buttons = append(buttons, Button{Text: "🛠 Admin Dashboard", Data: string(ActionAdminDashboard)})
    }
    return rows(buttons...)
}

func adminMenu() Keyboard {
    return rows(
        Button{Text: "👥 View Users", Data: string(ActionViewUsers)},
        Button{Text: "📬 Manage Withdrawals", Data: string(ActionManageWithdrawals)},
        Button{Text: "📊 Export Users", Data: string(ActionExport)},
        Button{Text: "🔨 Ban User", Data: string(ActionBan)},
        Button{Text: "🔙 Back to Main", Data: string(ActionBackToMain)},
    )
}

func pager(action Action, p payout.Page) Keyboard {
    var buttons []Button
    if p.HasPrev() {
        buttons = append(buttons, Button{Text: "⬅️ Prev", Data: withArg(action, int64(p.Index-1))})
    }
    if p.HasNext() {
        buttons = append(buttons, Button{Text: "Next ➡️", Data: withArg(action, int64(p.Index+1))})
    }
    buttons = append(buttons, Button{Text: "🔙 Back to Admin", Data: string(ActionAdminDashboard)})
    return rows(buttons...)
}

func reviewButtons(id int64, approveLabel string) []Button {
    return []Button{
        {Text: approveLabel, Data: withArg(ActionApprove, id)},
        {Text: "❌ Reject", Data: withArg(ActionReject, id)},
    }
}

func backToWithdrawals() []Button {
    return []Button{{Text: "🔙 Back to Withdrawals", Data: withArg(ActionManageWithdrawals, 1)}}
}
