package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rcortado/merienda/internal/lunchmoney"
)

// IsBlocked reports whether err means the recipient blocked the bot.
func IsBlocked(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		if tgErr.Code == 403 {
			return true
		}
		return strings.Contains(tgErr.Message, "blocked by the user")
	}
	return false
}

// Send delivers a new transaction notification and returns its message
// id. A replyTo of 0 sends a top-level message. Implements the
// reconciliation engine's notification sink.
func (b *Bot) Send(_ context.Context, chatID int64, tx *lunchmoney.Transaction, replyTo int) (int, error) {
	settings, err := b.db.CurrentSettings(chatID)
	if err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(chatID, FormatTransaction(tx, settings))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = txButtons(tx, true, b.aiEnabled())
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, err
	}

	if err := b.db.IncMetric("sent_transaction_messages", 1); err != nil {
		b.log.Warn().Err(err).Msg("incrementing sent counter failed")
	}
	return sent.MessageID, nil
}

// Edit re-renders an existing transaction notification in place.
func (b *Bot) Edit(_ context.Context, chatID int64, messageID int, tx *lunchmoney.Transaction) error {
	settings, err := b.db.CurrentSettings(chatID)
	if err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(
		chatID, messageID,
		FormatTransaction(tx, settings),
		txButtons(tx, true, b.aiEnabled()),
	)
	edit.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(edit); err != nil {
		// Telegram rejects no-op edits; that is fine here.
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return err
	}
	return nil
}
