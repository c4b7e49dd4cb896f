package storage

import (
	"time"
)

// Sentinel token values that take a chat out of the polling rotation.
const (
	// TokenRevoked means the Lunch Money API rejected the chat's token.
	TokenRevoked = "revoked"
	// TokenBlocked means the user blocked the bot on Telegram.
	TokenBlocked = "blocked"
)

// Transaction links a Lunch Money transaction to the Telegram message
// that displays it. Exactly one row exists per (TxID, ChatID); TxID and
// PlaidID are rewritten in place when a pending transaction posts under
// a new id.
type Transaction struct {
	ID uint `gorm:"primaryKey"`

	// Telegram message currently displaying this transaction. Assigned
	// once, edited in place, never reused for another transaction.
	MessageID int `gorm:"not null"`

	// Lunch Money transaction id. Not stable across pending -> posted.
	TxID int64 `gorm:"index;not null"`

	// Telegram chat the message was sent to.
	ChatID int64 `gorm:"index;not null"`

	CreatedAt time.Time

	// Nil while the transaction awaits review.
	ReviewedAt *time.Time

	// Recurring transaction type (cleared, suggested, dismissed), if any.
	RecurringType *string

	// Plaid transaction id captured when the row was created. Posted
	// transactions carry their pending predecessor's id in
	// pending_transaction_id, which is matched against this column.
	PlaidID *string `gorm:"index"`

	// True until the transaction is observed as posted.
	Pending bool `gorm:"not null;default:false"`
}

// Settings holds per-chat configuration.
type Settings struct {
	ChatID int64 `gorm:"primaryKey"`

	// Lunch Money API token, or one of the sentinel values above.
	Token string `gorm:"not null"`

	PollIntervalSecs int `gorm:"not null;default:3600"`

	CreatedAt time.Time

	LastPollAt *time.Time

	// Mark transactions reviewed as soon as they are sent (posted mode)
	// or as soon as they post (pending mode).
	AutoMarkReviewed bool `gorm:"not null;default:false"`

	// Poll pending transactions instead of posted ones.
	PollPending bool `gorm:"not null;default:false"`

	// Rendering preferences.
	ShowDateTime bool   `gorm:"not null;default:true"`
	Tagging      bool   `gorm:"not null;default:true"`
	Timezone     string `gorm:"not null;default:UTC"`
}

// Analytics is a daily counter row, keyed by metric name and day.
type Analytics struct {
	ID    uint      `gorm:"primaryKey"`
	Key   string    `gorm:"not null;index"`
	Date  time.Time `gorm:"not null"`
	Value float64   `gorm:"not null;default:0"`
}
