package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rcortado/merienda/internal/lunchmoney"
)

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID
	data := query.Data

	switch {
	case strings.HasPrefix(data, "review_"):
		b.btnSetReviewed(ctx, query, chatID, true)
	case strings.HasPrefix(data, "unreview_"):
		b.btnSetReviewed(ctx, query, chatID, false)
	case strings.HasPrefix(data, "skip_"):
		b.btnSkip(query, chatID)
	case strings.HasPrefix(data, "moreOptions_"):
		b.btnSetCollapsed(ctx, query, chatID, false)
	case strings.HasPrefix(data, "collapse_"):
		b.btnSetCollapsed(ctx, query, chatID, true)
	case strings.HasPrefix(data, "categorize_"):
		b.btnShowCategories(ctx, query, chatID)
	case strings.HasPrefix(data, "subcategorize_"):
		b.btnShowSubcategories(ctx, query, chatID)
	case strings.HasPrefix(data, "applyCategory_"):
		b.btnApplyCategory(ctx, query, chatID)
	case strings.HasPrefix(data, "cancelCategorization_"):
		b.btnSetCollapsed(ctx, query, chatID, false)
	case strings.HasPrefix(data, "aicategorize_"):
		b.btnAICategorize(ctx, query, chatID)
	case strings.HasPrefix(data, "settings"), strings.HasPrefix(data, "toggle"), strings.HasPrefix(data, "pollInterval_"), data == "doneSettings":
		b.handleSettingsCallback(query, chatID)
	default:
		b.answer(query, "Unknown command "+data)
	}
}

// btnSetReviewed flips a transaction's reviewed status from its buttons.
func (b *Bot) btnSetReviewed(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64, reviewed bool) {
	txID, ok := callbackID(query.Data, 1)
	if !ok {
		return
	}
	client, err := b.clients.ForChat(chatID)
	if err != nil {
		b.answer(query, "No API token registered.")
		return
	}

	status := lunchmoney.StatusUncleared
	if reviewed {
		status = lunchmoney.StatusCleared
	}
	if err := client.UpdateTransaction(ctx, txID, &lunchmoney.TransactionUpdate{Status: &status}); err != nil {
		b.answer(query, fmt.Sprintf("Error updating transaction: %v", err))
		return
	}

	if reviewed {
		err = b.db.MarkReviewedByMessage(chatID, query.Message.MessageID)
	} else {
		err = b.db.MarkUnreviewedByMessage(chatID, query.Message.MessageID)
	}
	if err != nil {
		b.log.Error().Err(err).Int64("tx_id", txID).Msg("recording review change failed")
	}

	b.refreshTxMessage(ctx, chatID, query.Message.MessageID, txID)
	b.answer(query, "")
}

func (b *Bot) btnSkip(query *tgbotapi.CallbackQuery, chatID int64) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, query.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error().Err(err).Msg("clearing buttons failed")
	}
	b.alert(query, "Transaction was left intact. You must review it manually from lunchmoney.app")
}

func (b *Bot) btnSetCollapsed(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64, collapsed bool) {
	txID, ok := callbackID(query.Data, 1)
	if !ok {
		return
	}
	client, err := b.clients.ForChat(chatID)
	if err != nil {
		return
	}
	tx, err := client.Transaction(ctx, txID)
	if err != nil {
		b.answer(query, "Could not load the transaction.")
		return
	}

	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, query.Message.MessageID,
		txButtons(tx, collapsed, b.aiEnabled()))
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error().Err(err).Msg("updating buttons failed")
	}
	b.answer(query, "")
}

func (b *Bot) btnShowCategories(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64) {
	txID, ok := callbackID(query.Data, 1)
	if !ok {
		return
	}
	client, err := b.clients.ForChat(chatID)
	if err != nil {
		return
	}
	categories, err := client.Categories(ctx)
	if err != nil {
		b.answer(query, "Could not load categories.")
		return
	}

	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, query.Message.MessageID,
		categoryButtons(txID, categories))
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error().Err(err).Msg("showing categories failed")
	}
	b.answer(query, "")
}

func (b *Bot) btnShowSubcategories(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64) {
	txID, ok := callbackID(query.Data, 1)
	groupID, ok2 := callbackID(query.Data, 2)
	if !ok || !ok2 {
		return
	}
	client, err := b.clients.ForChat(chatID)
	if err != nil {
		return
	}
	categories, err := client.Categories(ctx)
	if err != nil {
		b.answer(query, "Could not load categories.")
		return
	}

	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, query.Message.MessageID,
		subcategoryButtons(txID, groupID, categories))
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error().Err(err).Msg("showing subcategories failed")
	}
	b.answer(query, "")
}

func (b *Bot) btnApplyCategory(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64) {
	txID, ok := callbackID(query.Data, 1)
	categoryID, ok2 := callbackID(query.Data, 2)
	if !ok || !ok2 {
		return
	}
	client, err := b.clients.ForChat(chatID)
	if err != nil {
		return
	}

	if err := client.UpdateTransaction(ctx, txID, &lunchmoney.TransactionUpdate{CategoryID: &categoryID}); err != nil {
		b.answer(query, fmt.Sprintf("Error updating category: %v", err))
		return
	}
	b.log.Info().Int64("tx_id", txID).Int64("category_id", categoryID).Msg("category changed")

	b.refreshTxMessage(ctx, chatID, query.Message.MessageID, txID)
	b.answer(query, "")
}

func (b *Bot) btnAICategorize(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64) {
	if b.ai == nil {
		b.alert(query, "AI categorization is not configured.")
		return
	}
	txID, ok := callbackID(query.Data, 1)
	if !ok {
		return
	}
	client, err := b.clients.ForChat(chatID)
	if err != nil {
		return
	}

	tx, err := client.Transaction(ctx, txID)
	if err != nil {
		b.answer(query, "Could not load the transaction.")
		return
	}
	categories, err := client.Categories(ctx)
	if err != nil {
		b.answer(query, "Could not load categories.")
		return
	}

	categoryID, err := b.ai.SuggestCategory(ctx, tx, categories)
	if err != nil {
		b.log.Error().Err(err).Int64("tx_id", txID).Msg("AI categorization failed")
		b.alert(query, "Could not come up with a category suggestion.")
		return
	}

	if err := client.UpdateTransaction(ctx, txID, &lunchmoney.TransactionUpdate{CategoryID: &categoryID}); err != nil {
		b.answer(query, fmt.Sprintf("Error updating category: %v", err))
		return
	}

	b.refreshTxMessage(ctx, chatID, query.Message.MessageID, txID)
	b.alert(query, fmt.Sprintf("Categorized as %s", categoryName(categories, categoryID)))
}

func (b *Bot) answer(query *tgbotapi.CallbackQuery, text string) {
	callback := tgbotapi.NewCallback(query.ID, text)
	if _, err := b.api.Request(callback); err != nil {
		b.log.Warn().Err(err).Msg("answering callback failed")
	}
}

func (b *Bot) alert(query *tgbotapi.CallbackQuery, text string) {
	callback := tgbotapi.NewCallbackWithAlert(query.ID, text)
	if _, err := b.api.Request(callback); err != nil {
		b.log.Warn().Err(err).Msg("answering callback failed")
	}
}

// callbackID extracts the nth underscore-separated id from callback data
// like "applyCategory_123_456".
func callbackID(data string, n int) (int64, bool) {
	parts := strings.Split(data, "_")
	if n >= len(parts) {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[n], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func categoryName(categories []lunchmoney.Category, id int64) string {
	for _, c := range categories {
		if c.ID == id {
			return c.Name
		}
		for _, child := range c.Children {
			if child.ID == id {
				return child.Name
			}
		}
	}
	return "the suggested category"
}
