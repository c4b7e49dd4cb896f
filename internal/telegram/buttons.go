package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rcortado/merienda/internal/lunchmoney"
)

// keyboard collects (label, callback data) pairs and lays them out in rows.
type keyboard struct {
	buttons []tgbotapi.InlineKeyboardButton
}

func (k *keyboard) add(text, data string) {
	k.buttons = append(k.buttons, tgbotapi.NewInlineKeyboardButtonData(text, data))
}

func (k *keyboard) markup(columns int) tgbotapi.InlineKeyboardMarkup {
	if columns < 1 {
		columns = 2
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(k.buttons); i += columns {
		end := i + columns
		if end > len(k.buttons) {
			end = len(k.buttons)
		}
		rows = append(rows, k.buttons[i:end])
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// txButtons builds the inline keyboard for a transaction message.
func txButtons(tx *lunchmoney.Transaction, collapsed bool, aiEnabled bool) tgbotapi.InlineKeyboardMarkup {
	reviewed := tx.Status == lunchmoney.StatusCleared

	var kbd keyboard
	if collapsed {
		kbd.add("☷", fmt.Sprintf("moreOptions_%d", tx.ID))
	} else {
		// Recurring transactions are not categorizable.
		if tx.RecurringType == nil {
			kbd.add("Categorize", fmt.Sprintf("categorize_%d", tx.ID))
			if aiEnabled {
				kbd.add("AI-categorize 🪄", fmt.Sprintf("aicategorize_%d", tx.ID))
			}
		}
		if !tx.IsPending && !reviewed {
			kbd.add("Skip", fmt.Sprintf("skip_%d", tx.ID))
		}
		if reviewed {
			kbd.add("Unreview", fmt.Sprintf("unreview_%d", tx.ID))
		}
	}

	if !reviewed && !tx.IsPending {
		kbd.add("Reviewed ✓", fmt.Sprintf("review_%d", tx.ID))
	}
	if !collapsed && !tx.IsPending {
		kbd.add("⬒ Collapse", fmt.Sprintf("collapse_%d", tx.ID))
	}

	return kbd.markup(2)
}

// categoryButtons lists the top-level categories for picking.
func categoryButtons(txID int64, categories []lunchmoney.Category) tgbotapi.InlineKeyboardMarkup {
	var kbd keyboard
	for _, c := range categories {
		if c.GroupID != nil {
			continue
		}
		if len(c.Children) > 0 {
			kbd.add("📂 "+c.Name, fmt.Sprintf("subcategorize_%d_%d", txID, c.ID))
		} else {
			kbd.add(c.Name, fmt.Sprintf("applyCategory_%d_%d", txID, c.ID))
		}
	}
	kbd.add("Cancel", fmt.Sprintf("cancelCategorization_%d", txID))
	return kbd.markup(2)
}

// subcategoryButtons lists the children of one category group.
func subcategoryButtons(txID, groupID int64, categories []lunchmoney.Category) tgbotapi.InlineKeyboardMarkup {
	var kbd keyboard
	for _, c := range categories {
		if c.ID != groupID {
			continue
		}
		for _, child := range c.Children {
			kbd.add(child.Name, fmt.Sprintf("applyCategory_%d_%d", txID, child.ID))
		}
	}
	kbd.add("Cancel", fmt.Sprintf("cancelCategorization_%d", txID))
	return kbd.markup(2)
}
