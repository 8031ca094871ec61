package bot

import (
    "fmt"
    "strconv"
    "strings"

    "airdrop.bot/internal/money"
    "airdrop.bot/internal/payout"
    "airdrop.bot/internal/store"
)

const (
    msgGenericError    = "❌ An error occurred. Please try again later."
    msgBanned          = "🚫 You are banned from using this bot."
    msgUnauthorized    = "🚫 Unauthorized access."
    msgInvalidAction   = "🚫 Invalid action."
    msgNotRegistered   = "❌ You are not registered. Use /start to register."
    msgStartRateLimit  = "⏳ Please wait before trying again."
    msgWithdrawLimited = "⏳ Please wait before submitting another withdrawal."
    msgWalletUsage     = "🪙 *Usage*:\n/wallet 0xYourBEP20Address"
    msgInvalidWallet   = "❌ Invalid wallet address. Must be a valid BEP20 address (0x... 42 characters)."
    msgWalletNotSet    = "⚠️ Please set your wallet using the *Set Wallet* button."
    msgDuplicate       = "⏳ You already have a pending withdrawal."
    msgSubmitted       = "✅ *Withdrawal request submitted for admin approval.*"
    msgBanUsage        = "🔨 *Usage*: /ban <user_id>"
    msgMainMenu        = "📋 *Main Menu*\nChoose an option below:"
    msgAdminMenu       = "🛠 *Admin Dashboard*\nSelect an option:"
    msgNoUsers         = "👥 *No users found.*"
    msgNoExport        = "👥 *No users to export.*"
    msgNoPending       = "📬 *No pending withdrawal requests.*"
    msgNotFound        = "❌ Withdrawal request not found or already processed."
    msgNoFunds         = "❌ Insufficient USDT in bot wallet."
    msgNoFee           = "❌ Insufficient BNB for gas."
    msgExportCaption   = "📊 *User Data Export*"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
    return markdownEscaper.Replace(s)
}

func orNA(s string) string {
    if s == "" {
        return "N/A"
    }
    return s
}

func walletOrNotSet(s string) string {
    if s == "" {
        return "Not set"
    }
    return s
}

func welcomeText(inviteLink string) string {
    return "👋 *Welcome to the USDT Airdrop Bot!*\n" +
        "💰 Check your earnings or withdraw USDT\n" +
        "🎯 Invite friends: `" + inviteLink + "`\n" +
        "📋 Use the buttons below to interact:"
}

func balanceText(acc store.Account) string {
    return fmt.Sprintf("🔁 *Referrals*: %d\n💰 *USDT Balance*: $%s", acc.Referrals, acc.Balance)
}

func walletSavedText(wallet string) string {
    return "✅ *Wallet saved for USDT withdrawals*:\n`" + wallet + "`"
}

func belowMinimumText(min money.Amount) string {
    return fmt.Sprintf("🚫 Minimum withdrawal amount is $%s.", min)
}

func bannedText(id int64) string {
    return fmt.Sprintf("🔨 User %d has been banned.", id)
}

func accountsText(list []store.Account, p payout.Page) string {
    var b strings.Builder
    fmt.Fprintf(&b, "👥 *Users (Page %d)*\n\n", p.Index)
    for _, acc := range list {
        fmt.Fprintf(&b, "👤 *User ID*: %d\n", acc.ID)
        fmt.Fprintf(&b, "📛 *Username*: %s\n", escape(orNA(acc.Username)))
        fmt.Fprintf(&b, "💰 *Balance*: $%s\n", acc.Balance)
        fmt.Fprintf(&b, "🔁 *Referrals*: %d\n", acc.Referrals)
        fmt.Fprintf(&b, "💼 *Wallet*: `%s`\n\n", walletOrNotSet(acc.Wallet))
    }
    return b.String()
}

func pendingText(list []store.Withdrawal, p payout.Page) string {
    var b strings.Builder
    fmt.Fprintf(&b, "📬 *Pending Withdrawals (Page %d)*\n\n", p.Index)
    for _, w := range list {
        fmt.Fprintf(&b, "🆔 *Withdrawal ID*: %d\n", w.ID)
        fmt.Fprintf(&b, "👤 *User ID*: %d\n", w.AccountID)
        fmt.Fprintf(&b, "📛 *Username*: %s\n", escape(orNA(w.Username)))
        fmt.Fprintf(&b, "💰 *Amount*: $%s\n", w.Amount)
        fmt.Fprintf(&b, "💼 *Wallet*: `%s`\n\n", w.Wallet)
    }
    return b.String()
}

func approvedText(w store.Withdrawal) string {
    return fmt.Sprintf("✅ *Withdrawal approved!*\n🆔 Withdrawal ID: %d\n💰 Amount: $%s\n📤 Tx Hash: `%s`", w.ID, w.Amount, w.TxRef)
}

func failedAdminText(w store.Withdrawal) string {
    text := fmt.Sprintf("❌ Withdrawal transaction failed.\n🆔 Withdrawal ID: %d\n💰 Amount: $%s", w.ID, w.Amount)
    if w.TxRef != "" {
        text += "\n📤 Tx Hash: `" + w.TxRef + "`"
    }
    return text
}

func timeoutAdminText(w store.Withdrawal) string {
    return fmt.Sprintf("⌛ Withdrawal %d timed out waiting for confirmation and was marked failed. Check the hot wallet before paying again.", w.ID)
}

func rejectedAdminText(w store.Withdrawal) string {
    return fmt.Sprintf("❌ *Withdrawal rejected!*\n🆔 Withdrawal ID: %d\n💰 Amount: $%s", w.ID, w.Amount)
}

func requestedAdminText(w store.Withdrawal) string {
    return fmt.Sprintf("📬 *New USDT Withdrawal Request*:\n👤 User: %d\n💰 Amount: $%s\n💼 Wallet: `%s`", w.AccountID, w.Amount, w.Wallet)
}

func completedUserText(w store.Withdrawal, explorer string) string {
    text := fmt.Sprintf("✅ *Your USDT withdrawal of $%s has been approved!*\n📤 Tx Hash: `%s`", w.Amount, w.TxRef)
    if explorer != "" {
        text += "\n🔗 Explorer: " + explorer + w.TxRef
    }
    return text
}

func failedUserText(w store.Withdrawal) string {
    return fmt.Sprintf("❌ Your USDT withdrawal of $%s failed. Please contact admin.", w.Amount)
}

func rejectedUserText(w store.Withdrawal) string {
    return fmt.Sprintf("❌ Your USDT withdrawal of $%s was rejected by the admin.", w.Amount)
}

func digestText(n int) string {
    if n == 1 {
        return "📬 1 withdrawal request is awaiting review."
    }
    return "📬 " + strconv.Itoa(n) + " withdrawal requests are awaiting review."
}
