package telegram

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/rcortado/merienda/internal/lunchmoney"
	"github.com/rcortado/merienda/internal/storage"
)

func defaultSettings() *storage.Settings {
	return &storage.Settings{
		ChatID:       100,
		Token:        "tok",
		ShowDateTime: true,
		Tagging:      true,
		Timezone:     "UTC",
	}
}

func TestFormatTransaction(t *testing.T) {
	tx := &lunchmoney.Transaction{
		ID:                      1,
		Date:                    "2024-05-09",
		Payee:                   "Corner Cafe",
		Amount:                  decimal.RequireFromString("12.5"),
		Currency:                "usd",
		Status:                  lunchmoney.StatusUncleared,
		CategoryName:            "Dining Out",
		CategoryGroupName:       "Food",
		PlaidAccountDisplayName: "Checking",
		Notes:                   "lunch with sam",
	}

	body := FormatTransaction(tx, defaultSettings())

	for _, want := range []string{
		"*Corner Cafe*",
		"`12.50` `USD`",
		"#Food / #DiningOut",
		"#Checking",
		"*Notes*: lunch with sam",
		"Thu, May 09",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("rendered message missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "➕") {
		t.Error("debit rendered with a credit sign")
	}
}

func TestFormatTransactionCredit(t *testing.T) {
	tx := &lunchmoney.Transaction{
		Date:   "2024-05-09",
		Payee:  "Refund",
		Amount: decimal.RequireFromString("-30"),
	}

	body := FormatTransaction(tx, defaultSettings())
	if !strings.Contains(body, "`➕30.00`") {
		t.Fatalf("credit not rendered with explicit plus:\n%s", body)
	}
}

func TestFormatTransactionShowsClockTime(t *testing.T) {
	tx := &lunchmoney.Transaction{
		Date:   "2024-05-09",
		Payee:  "Cafe",
		Amount: decimal.RequireFromString("5"),
		Plaid:  &lunchmoney.PlaidMetadata{AuthorizedDatetime: "2024-05-09T14:30:00Z"},
	}

	settings := defaultSettings()
	body := FormatTransaction(tx, settings)
	if !strings.Contains(body, "at 2:30 PM") {
		t.Fatalf("clock time missing:\n%s", body)
	}

	settings.ShowDateTime = false
	body = FormatTransaction(tx, settings)
	if strings.Contains(body, "2:30 PM") {
		t.Fatalf("clock time shown despite setting:\n%s", body)
	}

	settings.ShowDateTime = true
	settings.Timezone = "America/New_York"
	body = FormatTransaction(tx, settings)
	if !strings.Contains(body, "at 10:30 AM") {
		t.Fatalf("timezone not applied:\n%s", body)
	}
}

func TestMakeTag(t *testing.T) {
	tests := []struct {
		in      string
		tagging bool
		want    string
	}{
		{"Dining Out", true, "#DiningOut"},
		{"food & drink", true, "#FoodDrink"},
		{"U.S. Travel", true, "#USTravel"},
		{"savings-account", true, "#SavingsAccount"},
		{"Dining Out", false, "Dining Out"},
		{"---", true, "---"},
	}
	for _, tt := range tests {
		if got := makeTag(tt.in, tt.tagging); got != tt.want {
			t.Errorf("makeTag(%q, %v) = %q, want %q", tt.in, tt.tagging, got, tt.want)
		}
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b*c`d[e"); got != `a\_b\*c\`+"`"+`d\[e` {
		t.Fatalf("escapeMarkdown = %q", got)
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		in   string
		tags []string
		ok   bool
	}{
		{"#food #travel", []string{"food", "travel"}, true},
		{"#food", []string{"food"}, true},
		{"#food lunch notes", nil, false},
		{"just some notes", nil, false},
		{"#", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		tags, ok := parseTags(tt.in)
		if ok != tt.ok {
			t.Errorf("parseTags(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if len(tags) != len(tt.tags) {
			t.Errorf("parseTags(%q) = %v, want %v", tt.in, tags, tt.tags)
			continue
		}
		for i := range tags {
			if tags[i] != tt.tags[i] {
				t.Errorf("parseTags(%q) = %v, want %v", tt.in, tags, tt.tags)
			}
		}
	}
}

func TestIsBlocked(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"forbidden code", &tgbotapi.Error{Code: 403, Message: "Forbidden"}, true},
		{"blocked message", &tgbotapi.Error{Code: 400, Message: "Forbidden: bot was blocked by the user"}, true},
		{"other api error", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, false},
		{"plain error", errors.New("dial tcp: timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlocked(tt.err); got != tt.want {
				t.Fatalf("IsBlocked(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
