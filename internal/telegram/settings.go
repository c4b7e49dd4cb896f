package telegram

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rcortado/merienda/internal/storage"
)

var pollIntervalPresets = []struct {
	label string
	secs  int
}{
	{"5 min", 300},
	{"30 min", 1800},
	{"1 hour", 3600},
	{"4 hours", 14400},
	{"24 hours", 86400},
}

// cmdSettings shows (or re-renders, when messageID != 0) the settings menu.
func (b *Bot) cmdSettings(chatID int64, messageID int) {
	settings, err := b.db.CurrentSettings(chatID)
	if err != nil {
		b.reply(chatID, "You are not set up yet. Send /start to begin.")
		return
	}

	text := settingsText(settings)
	markup := settingsButtons(settings)

	if messageID != 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
		edit.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.api.Send(edit); err != nil && !strings.Contains(err.Error(), "message is not modified") {
			b.log.Error().Err(err).Msg("re-rendering settings failed")
		}
		return
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = markup
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Msg("sending settings failed")
	}
}

func (b *Bot) handleSettingsCallback(query *tgbotapi.CallbackQuery, chatID int64) {
	settings, err := b.db.CurrentSettings(chatID)
	if err != nil {
		b.answer(query, "You are not set up yet.")
		return
	}

	data := query.Data
	switch {
	case data == "toggleAutoMarkReviewed":
		err = b.db.UpdateAutoMarkReviewed(chatID, !settings.AutoMarkReviewed)
	case data == "togglePollPending":
		err = b.db.UpdatePollPending(chatID, !settings.PollPending)
	case data == "toggleShowDateTime":
		err = b.db.UpdateShowDateTime(chatID, !settings.ShowDateTime)
	case data == "toggleTagging":
		err = b.db.UpdateTagging(chatID, !settings.Tagging)
	case strings.HasPrefix(data, "pollInterval_"):
		if secs, ok := callbackID(data, 1); ok {
			err = b.db.UpdatePollInterval(chatID, int(secs))
		}
	case data == "doneSettings":
		del := tgbotapi.NewDeleteMessage(chatID, query.Message.MessageID)
		if _, err := b.api.Request(del); err != nil {
			b.log.Warn().Err(err).Msg("deleting settings message failed")
		}
		b.answer(query, "")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("updating settings failed")
		b.answer(query, "Could not update settings.")
		return
	}

	b.cmdSettings(chatID, query.Message.MessageID)
	b.answer(query, "")
}

func settingsText(s *storage.Settings) string {
	var b strings.Builder
	b.WriteString("*Settings*\n\n")
	fmt.Fprintf(&b, "*Poll interval*: %s\n", intervalLabel(s.PollIntervalSecs))
	fmt.Fprintf(&b, "*Poll pending transactions*: %s\n", onOff(s.PollPending))
	fmt.Fprintf(&b, "*Auto-mark reviewed*: %s\n", onOff(s.AutoMarkReviewed))
	fmt.Fprintf(&b, "*Show date and time*: %s\n", onOff(s.ShowDateTime))
	fmt.Fprintf(&b, "*Tagging*: %s\n", onOff(s.Tagging))
	fmt.Fprintf(&b, "*Timezone*: %s\n", s.Timezone)
	if s.LastPollAt != nil {
		fmt.Fprintf(&b, "\n_Last polled %s_\n", s.LastPollAt.Format(time.RFC822))
	}
	return b.String()
}

func settingsButtons(s *storage.Settings) tgbotapi.InlineKeyboardMarkup {
	var kbd keyboard
	kbd.add("Poll pending: "+onOff(s.PollPending), "togglePollPending")
	kbd.add("Auto-review: "+onOff(s.AutoMarkReviewed), "toggleAutoMarkReviewed")
	kbd.add("Date/time: "+onOff(s.ShowDateTime), "toggleShowDateTime")
	kbd.add("Tagging: "+onOff(s.Tagging), "toggleTagging")
	for _, p := range pollIntervalPresets {
		if p.secs != s.PollIntervalSecs {
			kbd.add("Every "+p.label, fmt.Sprintf("pollInterval_%d", p.secs))
		}
	}
	kbd.add("Done", "doneSettings")
	return kbd.markup(2)
}

func intervalLabel(secs int) string {
	for _, p := range pollIntervalPresets {
		if p.secs == secs {
			return p.label
		}
	}
	return (time.Duration(secs) * time.Second).String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
