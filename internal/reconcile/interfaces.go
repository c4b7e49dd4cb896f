package reconcile

import (
	"context"
	"time"

	"github.com/rcortado/merienda/internal/lunchmoney"
	"github.com/rcortado/merienda/internal/storage"
)

// Source fetches transactions from the budgeting API on behalf of one chat.
type Source interface {
	Transactions(ctx context.Context, start, end time.Time, pending bool) ([]lunchmoney.Transaction, error)
	Transaction(ctx context.Context, id int64) (*lunchmoney.Transaction, error)
	MarkReviewed(ctx context.Context, id int64) error
}

// Sources constructs or looks up the Source for a chat. Implemented by a
// bounded client cache at the process root.
type Sources interface {
	ForChat(chatID int64) (Source, error)
}

// Sink delivers transaction notifications to the chat. Send returns the
// id of the created message; replyTo of 0 means no threading.
type Sink interface {
	Send(ctx context.Context, chatID int64, tx *lunchmoney.Transaction, replyTo int) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, tx *lunchmoney.Transaction) error
}

// BlockedClassifier reports whether a Sink error means the recipient
// blocked the bot. Kept separate from Sink so fakes can opt out.
type BlockedClassifier func(error) bool

// Store is the bookkeeping the engine needs from the persistence layer.
// *storage.Database satisfies it.
type Store interface {
	WasSent(chatID, txID int64) (bool, error)
	MarkSent(t *storage.Transaction) error
	SentPending(chatID int64) ([]storage.Transaction, error)
	RelinkPlaidID(chatID int64, oldPlaidID string, newTxID int64, newPlaidID *string) (bool, error)
	MarkPosted(chatID, txID int64) error
	MarkReviewedByTx(chatID, txID int64) error
	TxForMessage(chatID int64, messageID int) (int64, error)
	MessageForTx(chatID, txID int64) (int, error)
	CurrentSettings(chatID int64) (*storage.Settings, error)
	MarkBlocked(chatID int64) error
}

// SchedulerStore is the slice of the persistence layer the scheduler uses.
type SchedulerStore interface {
	RegisteredChats() ([]int64, error)
	CurrentSettings(chatID int64) (*storage.Settings, error)
	UpdateLastPollAt(chatID int64, t time.Time) error
	MarkRevoked(chatID int64) error
}
