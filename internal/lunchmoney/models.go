package lunchmoney

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses as reported by the API.
const (
	StatusCleared   = "cleared"
	StatusUncleared = "uncleared"
)

// PlaidMetadata is the subset of Plaid's transaction metadata the bot
// cares about. Plaid reassigns transaction_id when a pending transaction
// posts; pending_transaction_id on the posted item points back at the
// old id.
type PlaidMetadata struct {
	TransactionID        string `json:"transaction_id"`
	PendingTransactionID string `json:"pending_transaction_id"`
	AuthorizedDatetime   string `json:"authorized_datetime"`
	MerchantName         string `json:"merchant_name"`
	Name                 string `json:"name"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Transaction struct {
	ID            int64           `json:"id"`
	Date          string          `json:"date"` // YYYY-MM-DD
	Payee         string          `json:"payee"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Notes         string          `json:"notes"`
	Status        string          `json:"status"`
	IsPending     bool            `json:"is_pending"`
	RecurringType *string         `json:"recurring_type"`

	CategoryID        *int64 `json:"category_id"`
	CategoryName      string `json:"category_name"`
	CategoryGroupName string `json:"category_group_name"`

	PlaidAccountDisplayName string `json:"plaid_account_display_name"`
	AccountDisplayName      string `json:"account_display_name"`

	ParentID *int64 `json:"parent_id"`
	Tags     []Tag  `json:"tags"`

	Plaid *PlaidMetadata `json:"plaid_metadata"`
}

// PlaidID returns the Plaid transaction id, or "" when the transaction
// has no Plaid metadata.
func (t *Transaction) PlaidID() string {
	if t.Plaid == nil {
		return ""
	}
	return t.Plaid.TransactionID
}

// PendingPlaidID returns the Plaid id this posted transaction carried
// while it was pending, or "".
func (t *Transaction) PendingPlaidID() string {
	if t.Plaid == nil {
		return ""
	}
	return t.Plaid.PendingTransactionID
}

// EffectiveTime is the timestamp used to order notifications. Plaid's
// authorized_datetime has sub-day precision; transactions without it
// fall back to their nominal date at midnight UTC.
func (t *Transaction) EffectiveTime() time.Time {
	if t.Plaid != nil && t.Plaid.AuthorizedDatetime != "" {
		if ts, err := time.Parse(time.RFC3339, t.Plaid.AuthorizedDatetime); err == nil {
			return ts
		}
	}
	d, err := time.Parse("2006-01-02", t.Date)
	if err != nil {
		return time.Time{}
	}
	return d
}

type Category struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	GroupID  *int64     `json:"group_id"`
	Children []Category `json:"children"`
}

// TransactionUpdate is a partial update; nil fields are left untouched.
type TransactionUpdate struct {
	Status     *string  `json:"status,omitempty"`
	CategoryID *int64   `json:"category_id,omitempty"`
	Payee      *string  `json:"payee,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}
