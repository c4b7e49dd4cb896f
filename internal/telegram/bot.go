package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/rcortado/merienda/internal/lunchmoney"
	"github.com/rcortado/merienda/internal/reconcile"
	"github.com/rcortado/merienda/internal/storage"
)

// Categorizer suggests a category for a transaction. Optional; nil
// disables the AI-categorize button.
type Categorizer interface {
	SuggestCategory(ctx context.Context, tx *lunchmoney.Transaction, categories []lunchmoney.Category) (int64, error)
}

// Lunch Money caps transaction notes at 350 characters.
const notesMaxLength = 350

type Bot struct {
	api     *tgbotapi.BotAPI
	db      *storage.Database
	clients *lunchmoney.ClientCache
	engine  *reconcile.Engine
	ai      Categorizer
	log     zerolog.Logger

	done chan struct{}
}

func NewBot(token string, db *storage.Database, clients *lunchmoney.ClientCache, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram session: %w", err)
	}

	return &Bot{
		api:     api,
		db:      db,
		clients: clients,
		log:     log,
		done:    make(chan struct{}),
	}, nil
}

// SetEngine attaches the reconciliation engine. Must be called before
// Start; the engine itself takes the bot as its sink.
func (b *Bot) SetEngine(e *reconcile.Engine) { b.engine = e }

// SetCategorizer enables the AI-categorize button.
func (b *Bot) SetCategorizer(c Categorizer) { b.ai = c }

func (b *Bot) aiEnabled() bool { return b.ai != nil }

func (b *Bot) Start(ctx context.Context) error {
	if b.engine == nil {
		return errors.New("bot started without a reconciliation engine")
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	go func() {
		defer close(b.done)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				b.handleUpdate(ctx, update)
			}
		}
	}()

	b.log.Info().Str("username", b.api.Self.UserName).Msg("bot is running")
	return nil
}

func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	<-b.done
}

// Online reports whether the Telegram session is usable.
func (b *Bot) Online() bool {
	return b.api != nil && b.api.Self.ID != 0
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("handler panicked")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.ReplyToMessage != nil:
		b.handleReply(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		b.handleText(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.cmdStart(chatID)
	case "review_transactions":
		b.cmdPoll(ctx, chatID, false)
	case "pending_transactions":
		b.cmdPoll(ctx, chatID, true)
	case "settings":
		b.cmdSettings(chatID, 0)
	case "logout":
		b.cmdLogout(chatID)
	default:
		b.reply(chatID, "Unknown command.")
	}
}

func (b *Bot) cmdStart(chatID int64) {
	if _, err := b.db.CurrentSettings(chatID); err == nil {
		b.reply(chatID, "You are all set. Use /settings to tweak how I behave.")
		return
	}
	b.reply(chatID,
		"Welcome! Send me your Lunch Money API token to get started.\n"+
			"You can create one at https://my.lunchmoney.app/developers.")
}

// cmdPoll runs one manual reconcile for the chat.
func (b *Bot) cmdPoll(ctx context.Context, chatID int64, pending bool) {
	if !b.ensureRegistered(chatID) {
		return
	}

	txs, err := b.engine.Reconcile(ctx, chatID, pending)
	if err != nil {
		if lunchmoney.IsRevoked(err) {
			if err := b.db.MarkRevoked(chatID); err != nil {
				b.log.Error().Err(err).Int64("chat_id", chatID).Msg("recording revoked token failed")
			}
			b.reply(chatID, "Your API token was revoked. Send me a new one to continue.")
			return
		}
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("manual poll failed")
		b.reply(chatID, "Something went wrong while fetching transactions.")
		return
	}

	if err := b.db.UpdateLastPollAt(chatID, time.Now()); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("updating last poll time failed")
	}

	if len(txs) == 0 {
		if pending {
			b.reply(chatID, "No pending transactions found.")
		} else {
			b.reply(chatID, "No unreviewed transactions found.")
		}
	}
}

func (b *Bot) cmdLogout(chatID int64) {
	if !b.ensureRegistered(chatID) {
		return
	}
	if err := b.db.Logout(chatID); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("logout failed")
		b.reply(chatID, "Could not log you out, please try again.")
		return
	}
	b.clients.Invalidate(chatID)
	b.reply(chatID, "You are logged out. All your data has been deleted.")
}

// handleText treats a bare message from an unregistered chat as an API
// token registration attempt.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if _, err := b.db.CurrentSettings(chatID); err == nil {
		return
	}

	token := msg.Text
	client := lunchmoney.NewClient(token, b.clients.BaseURL())
	if err := client.Validate(ctx); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("token validation failed")
		b.reply(chatID, "That token does not seem to work. Double-check it and try again.")
		return
	}

	if err := b.db.SaveToken(chatID, token); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("saving token failed")
		b.reply(chatID, "Could not save your token, please try again.")
		return
	}
	b.clients.Invalidate(chatID)
	b.reply(chatID,
		"Token registered! I will start polling for transactions.\n"+
			"Use /review_transactions to fetch them right now, or /settings to adjust polling.")
}

// handleReply updates the notes or tags of the transaction whose
// notification the user replied to. A message made only of #words sets
// tags; anything else becomes the notes.
func (b *Bot) handleReply(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	txID, err := b.db.TxForMessage(chatID, msg.ReplyToMessage.MessageID)
	if err != nil {
		b.reply(chatID, "Could not find the transaction associated with that message.")
		return
	}

	client, err := b.clients.ForChat(chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("no client for chat")
		return
	}

	if tags, ok := parseTags(msg.Text); ok {
		err = client.UpdateTransaction(ctx, txID, &lunchmoney.TransactionUpdate{Tags: tags})
	} else {
		notes := msg.Text
		if len(notes) > notesMaxLength {
			notes = notes[:notesMaxLength]
		}
		err = client.UpdateTransaction(ctx, txID, &lunchmoney.TransactionUpdate{Notes: &notes})
	}
	if err != nil {
		b.log.Error().Err(err).Int64("tx_id", txID).Msg("updating transaction failed")
		b.reply(chatID, "Could not update the transaction.")
		return
	}

	b.refreshTxMessage(ctx, chatID, msg.ReplyToMessage.MessageID, txID)
}

func (b *Bot) refreshTxMessage(ctx context.Context, chatID int64, messageID int, txID int64) {
	client, err := b.clients.ForChat(chatID)
	if err != nil {
		return
	}
	tx, err := client.Transaction(ctx, txID)
	if err != nil {
		b.log.Error().Err(err).Int64("tx_id", txID).Msg("refetching transaction failed")
		return
	}
	if err := b.Edit(ctx, chatID, messageID, tx); err != nil {
		b.log.Error().Err(err).Int("message_id", messageID).Msg("editing message failed")
	}
}

func (b *Bot) ensureRegistered(chatID int64) bool {
	if _, err := b.db.CurrentSettings(chatID); err != nil {
		b.reply(chatID, "You are not set up yet. Send /start to begin.")
		return false
	}
	return true
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("sending reply failed")
	}
}

func parseTags(text string) ([]string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, false
	}
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || f[0] != '#' {
			return nil, false
		}
		tags = append(tags, f[1:])
	}
	return tags, true
}
