package telegram

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rcortado/merienda/internal/lunchmoney"
	"github.com/rcortado/merienda/internal/storage"
)

// FormatTransaction renders one transaction as a Markdown message body.
func FormatTransaction(tx *lunchmoney.Transaction, settings *storage.Settings) string {
	var b strings.Builder

	recurring := ""
	if tx.RecurringType != nil {
		recurring = " (recurring 🔄)"
	}
	split := ""
	if tx.ParentID != nil {
		split = " 🔀"
	}

	// Credits are negative in the API; surface them with an explicit +.
	sign := ""
	if tx.Amount.IsNegative() {
		sign = "➕"
	}

	fmt.Fprintf(&b, "*%s*%s%s\n\n", escapeMarkdown(tx.Payee), recurring, split)
	fmt.Fprintf(&b, "*Amount*: `%s%s` `%s`\n", sign, tx.Amount.Abs().StringFixed(2), strings.ToUpper(tx.Currency))
	fmt.Fprintf(&b, "*Date/Time*: %s\n", formatDateTime(tx, settings))

	category := tx.CategoryName
	if category == "" {
		category = "Uncategorized"
	}
	group := ""
	if tx.CategoryGroupName != "" {
		group = makeTag(tx.CategoryGroupName, settings.Tagging) + " / "
	}
	fmt.Fprintf(&b, "*Category*: %s%s\n", group, makeTag(category, settings.Tagging))

	account := tx.PlaidAccountDisplayName
	if account == "" {
		account = tx.AccountDisplayName
	}
	if account == "" {
		account = "Unknown Account"
	}
	fmt.Fprintf(&b, "*Account*: %s\n", makeTag(account, settings.Tagging))

	if tx.Notes != "" {
		fmt.Fprintf(&b, "*Notes*: %s\n", escapeMarkdown(tx.Notes))
	}
	if len(tx.Tags) > 0 {
		names := make([]string, 0, len(tx.Tags))
		for _, tag := range tx.Tags {
			names = append(names, makeTag(tag.Name, true))
		}
		fmt.Fprintf(&b, "*Tags*: %s\n", strings.Join(names, ", "))
	}

	return b.String()
}

func formatDateTime(tx *lunchmoney.Transaction, settings *storage.Settings) string {
	ts := tx.EffectiveTime()
	if ts.IsZero() {
		return tx.Date
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		loc = time.UTC
	}
	ts = ts.In(loc)

	hasClock := tx.Plaid != nil && tx.Plaid.AuthorizedDatetime != ""
	if settings.ShowDateTime && hasClock {
		return ts.Format("Mon, Jan 02 at 3:04 PM")
	}
	return ts.Format("Mon, Jan 02")
}

// makeTag turns a name into a Telegram hashtag ("Dining Out" -> "#DiningOut").
// With tagging disabled the name is returned as plain text.
func makeTag(s string, tagging bool) string {
	s = strings.TrimSpace(s)
	if !tagging {
		return escapeMarkdown(s)
	}

	var tag strings.Builder
	upperNext := true
	for _, r := range s {
		switch {
		case unicode.IsSpace(r) || r == '.' || r == '-' || r == '&' || r == '/':
			upperNext = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if upperNext {
				tag.WriteRune(unicode.ToUpper(r))
				upperNext = false
			} else {
				tag.WriteRune(r)
			}
		}
	}
	if tag.Len() == 0 {
		return escapeMarkdown(s)
	}
	return "#" + tag.String()
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer("*", "\\*", "_", "\\_", "`", "\\`", "[", "\\[")
	return replacer.Replace(s)
}
