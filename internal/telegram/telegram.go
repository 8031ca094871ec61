package telegram

import (
    "context"
    "sync"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
    "github.com/sirupsen/logrus"

    "airdrop.bot/internal/bot"
)

// API is the part of *tgbotapi.BotAPI the adapter uses.
type API interface {
    Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
    Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
    GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
    StopReceivingUpdates()
}

type Handler interface {
    Handle(ctx context.Context, cmd bot.Command) bot.Reply
}

// Bot moves Telegram updates into the dispatcher and its replies back out.
type Bot struct {
    api     API
    handler Handler
    log     logrus.FieldLogger
    wg      sync.WaitGroup
}

func New(api API, handler Handler, log logrus.FieldLogger) *Bot {
    if log == nil {
        log = logrus.New()
    }
    return &Bot{api: api, handler: handler, log: log}
}

// SetHandler must be called before Run.
func (b *Bot) SetHandler(h Handler) {
    b.handler = h
}

// Send delivers a Markdown text message.
func (b *Bot) Send(_ context.Context, chatID int64, text string) error {
    msg := tgbotapi.NewMessage(chatID, text)
    msg.ParseMode = tgbotapi.ModeMarkdown
    _, err := b.api.Send(msg)
    return err
}

// Run polls for updates until ctx is done, then waits for in-flight updates.
func (b *Bot) Run(ctx context.Context) error {
    u := tgbotapi.NewUpdate(0)
    u.Timeout = 60
    updates := b.api.GetUpdatesChan(u)

    b.log.Info("bot_polling_started")
    for {
        select {
        case <-ctx.Done():
            b.api.StopReceivingUpdates()
            b.wg.Wait()
            b.log.Info("bot_polling_stopped")
            return nil
        case update, ok := <-updates:
            if !ok {
                b.wg.Wait()
                return nil
            }
            b.wg.Add(1)
            go func() {
                defer b.wg.Done()
                b.handleUpdate(ctx, update)
            }()
        }
    }
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
    if q := update.CallbackQuery; q != nil {
        if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
            b.log.WithError(err).Warn("callback_answer_failed")
        }
    }

    cmd, chatID, ok := CommandFromUpdate(update)
    if !ok {
        return
    }

    reply := b.handler.Handle(ctx, cmd)
    msg := Render(chatID, reply)
    if msg == nil {
        return
    }
    if _, err := b.api.Send(msg); err != nil {
        b.log.WithFields(logrus.Fields{
            "chat_id": chatID,
            "action":  string(cmd.Action),
            "error":   err.Error(),
        }).Error("reply_send_failed")
    }
}

// CommandFromUpdate turns a slash command or a button press into a Command
// and the chat the reply goes to.
func CommandFromUpdate(update tgbotapi.Update) (bot.Command, int64, bool) {
    if m := update.Message; m != nil {
        if m.From == nil || m.Chat == nil || !m.IsCommand() {
            return bot.Command{}, 0, false
        }
        action, ok := bot.CommandAction(m.Command())
        if !ok {
            return bot.Command{}, 0, false
        }
        return bot.Command{
            ActorID:  m.From.ID,
            Username: m.From.UserName,
            Action:   action,
            Arg:      m.CommandArguments(),
        }, m.Chat.ID, true
    }

    if q := update.CallbackQuery; q != nil && q.From != nil {
        action, arg := bot.ParseCallback(q.Data)
        chatID := q.From.ID
        if q.Message != nil && q.Message.Chat != nil {
            chatID = q.Message.Chat.ID
        }
        return bot.Command{
            ActorID:  q.From.ID,
            Username: q.From.UserName,
            Action:   action,
            Arg:      arg,
        }, chatID, true
    }

    return bot.Command{}, 0, false
}

// Render builds the outgoing message for a reply, or nil if it is empty.
func Render(chatID int64, reply bot.Reply) tgbotapi.Chattable {
    if doc := reply.Document; doc != nil {
        out := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Data})
        out.Caption = doc.Caption
        out.ParseMode = tgbotapi.ModeMarkdown
        return out
    }
    if reply.Text == "" {
        return nil
    }

    msg := tgbotapi.NewMessage(chatID, reply.Text)
    msg.ParseMode = tgbotapi.ModeMarkdown
    if len(reply.Keyboard) > 0 {
        msg.ReplyMarkup = markup(reply.Keyboard)
    }
    return msg
}

func markup(kb bot.Keyboard) tgbotapi.InlineKeyboardMarkup {
    rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
    for _, row := range kb {
        buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
        for _, b := range row {
            buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
        }
        rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
    }
    return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
