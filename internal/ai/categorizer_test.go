package ai

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rcortado/merienda/internal/lunchmoney"
)

func groupID(v int64) *int64 { return &v }

var taxonomy = []lunchmoney.Category{
	{ID: 1, Name: "Food", Children: []lunchmoney.Category{
		{ID: 11, Name: "Groceries", GroupID: groupID(1)},
		{ID: 12, Name: "Dining Out", GroupID: groupID(1)},
	}},
	{ID: 2, Name: "Transport"},
}

func TestBuildPrompt(t *testing.T) {
	tx := &lunchmoney.Transaction{
		Payee:    "Corner Cafe",
		Amount:   decimal.RequireFromString("12.5"),
		Currency: "usd",
		Notes:    "team lunch",
		Plaid:    &lunchmoney.PlaidMetadata{MerchantName: "CORNER CAFE LLC"},
	}

	prompt := buildPrompt(tx, taxonomy)

	for _, want := range []string{
		"Payee: Corner Cafe",
		"Amount: 12.5 usd",
		"merchant_name: CORNER CAFE LLC",
		"notes: team lunch",
		"11:Groceries (Food)",
		"12:Dining Out (Food)",
		"2:Transport",
		"ONLY RESPOND with the ID",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	// Groups with children are offered only through their children.
	if strings.Contains(prompt, "1:Food\n") {
		t.Errorf("group offered as a leaf category:\n%s", prompt)
	}
}

func TestValidCategoryID(t *testing.T) {
	tests := []struct {
		id   int64
		want bool
	}{
		{11, true},
		{12, true},
		{1, true},
		{2, true},
		{99, false},
		{0, false},
	}
	for _, tt := range tests {
		if got := validCategoryID(taxonomy, tt.id); got != tt.want {
			t.Errorf("validCategoryID(%d) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
