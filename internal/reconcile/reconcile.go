package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcortado/merienda/internal/lunchmoney"
	"github.com/rcortado/merienda/internal/storage"
)

// DefaultLookback is how far back each poll fetches transactions.
const DefaultLookback = 15 * 24 * time.Hour

// Engine turns a fresh transaction snapshot into store mutations and
// chat notifications. It is idempotent with respect to transactions it
// already processed: a transaction recorded in the store is never
// notified a second time, and identity transitions converge across
// repeated polls.
type Engine struct {
	store   Store
	sources Sources
	sink    Sink
	blocked BlockedClassifier

	lookback time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewEngine(store Store, sources Sources, sink Sink, blocked BlockedClassifier, log zerolog.Logger) *Engine {
	if blocked == nil {
		blocked = func(error) bool { return false }
	}
	return &Engine{
		store:    store,
		sources:  sources,
		sink:     sink,
		blocked:  blocked,
		lookback: DefaultLookback,
		now:      time.Now,
		log:      log,
	}
}

// SetLookback overrides the polling window.
func (e *Engine) SetLookback(d time.Duration) {
	if d > 0 {
		e.lookback = d
	}
}

// Reconcile polls one chat. With pollPending false it notifies new
// posted transactions; with pollPending true it notifies new pending
// transactions and additionally relinks and auto-reviews the ones that
// posted since the last poll. The fetched transactions are returned so
// callers can tell the user when nothing was found.
func (e *Engine) Reconcile(ctx context.Context, chatID int64, pollPending bool) ([]lunchmoney.Transaction, error) {
	settings, err := e.store.CurrentSettings(chatID)
	if err != nil {
		return nil, err
	}

	src, err := e.sources.ForChat(chatID)
	if err != nil {
		return nil, err
	}

	end := midnight(e.now())
	start := end.Add(-e.lookback)

	txs, err := src.Transactions(ctx, start, end, pollPending)
	if err != nil {
		return nil, fmt.Errorf("fetching transactions for chat %d: %w", chatID, err)
	}
	e.log.Info().Int64("chat_id", chatID).Bool("pending", pollPending).
		Int("count", len(txs)).Msg("fetched transactions")

	// Oldest first. The sort is stable so transactions sharing an
	// effective timestamp keep their fetch order.
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].EffectiveTime().Before(txs[j].EffectiveTime())
	})

	touched := make(map[int]struct{})
	if pollPending {
		posted, err := src.Transactions(ctx, start, end, false)
		if err != nil {
			return nil, fmt.Errorf("fetching posted transactions for chat %d: %w", chatID, err)
		}

		relinked := e.relinkPostedIDs(chatID, posted)
		for _, r := range relinked {
			touched[r.messageID] = struct{}{}
		}
		if settings.AutoMarkReviewed {
			for _, id := range e.autoReviewPosted(ctx, chatID, src, posted, relinked) {
				touched[id] = struct{}{}
			}
		}
	}

	for i := range txs {
		tx := &txs[i]

		if !pollPending && settings.AutoMarkReviewed {
			if err := src.MarkReviewed(ctx, tx.ID); err != nil {
				return nil, fmt.Errorf("marking transaction %d reviewed: %w", tx.ID, err)
			}
			tx.Status = lunchmoney.StatusCleared
		}

		sent, err := e.store.WasSent(chatID, tx.ID)
		if err != nil {
			return nil, err
		}
		if sent {
			continue
		}

		replyTo := e.relatedMessageID(chatID, tx, txs)

		msgID, err := e.sink.Send(ctx, chatID, tx, replyTo)
		if err != nil {
			if e.blocked(err) {
				// The user blocked the bot. Skip the store write so the
				// transaction stays eligible if the chat ever comes back,
				// and take the chat out of the rotation.
				e.log.Warn().Int64("chat_id", chatID).Msg("recipient blocked the bot")
				if markErr := e.store.MarkBlocked(chatID); markErr != nil {
					return nil, markErr
				}
				return txs, nil
			}
			return nil, fmt.Errorf("sending transaction %d: %w", tx.ID, err)
		}

		rec := &storage.Transaction{
			MessageID:     msgID,
			TxID:          tx.ID,
			ChatID:        chatID,
			RecurringType: tx.RecurringType,
			Pending:       pollPending,
		}
		if plaidID := tx.PlaidID(); plaidID != "" {
			rec.PlaidID = &plaidID
		}
		if tx.Status == lunchmoney.StatusCleared {
			now := e.now()
			rec.ReviewedAt = &now
		}
		if err := e.store.MarkSent(rec); err != nil {
			return nil, err
		}
	}

	if pollPending {
		e.refreshMessages(ctx, chatID, src, touched)
	}

	return txs, nil
}

// relink records one identity transition: the notification message and
// the posted transaction id it now belongs to.
type relink struct {
	messageID int
	txID      int64
}

// relinkPostedIDs handles the provider reassigning a transaction's id
// when it clears. Each store row still marked pending is matched against
// the posted snapshot by Plaid correlation id: a posted transaction
// whose pending_transaction_id equals the row's recorded plaid id is the
// same real-world transaction under a new id, so the row's tx id and
// plaid id are rewritten in place and its pending flag drops. Returns
// the rewritten linkages so the notifications can be re-rendered and
// the auto-review pass can pick them up.
func (e *Engine) relinkPostedIDs(chatID int64, posted []lunchmoney.Transaction) []relink {
	sentPending, err := e.store.SentPending(chatID)
	if err != nil {
		e.log.Error().Err(err).Int64("chat_id", chatID).Msg("listing pending rows failed")
		return nil
	}
	if len(sentPending) == 0 {
		return nil
	}

	postedByPendingID := make(map[string]*lunchmoney.Transaction)
	for i := range posted {
		pendingID := posted[i].PendingPlaidID()
		if pendingID == "" {
			continue
		}
		if _, dup := postedByPendingID[pendingID]; dup {
			// Should not happen; first match in provider order wins.
			e.log.Warn().Str("pending_plaid_id", pendingID).
				Msg("multiple posted transactions claim the same pending id")
			continue
		}
		postedByPendingID[pendingID] = &posted[i]
	}

	var updated []relink
	for _, rec := range sentPending {
		if rec.PlaidID == nil {
			continue
		}
		postedTx, ok := postedByPendingID[*rec.PlaidID]
		if !ok {
			continue
		}

		var newPlaidID *string
		if id := postedTx.PlaidID(); id != "" {
			newPlaidID = &id
		}

		ok, err := e.store.RelinkPlaidID(chatID, *rec.PlaidID, postedTx.ID, newPlaidID)
		if err != nil {
			e.log.Error().Err(err).Str("plaid_id", *rec.PlaidID).Msg("relink failed")
			continue
		}
		if ok {
			e.log.Info().Int64("chat_id", chatID).
				Int64("old_tx_id", rec.TxID).Int64("new_tx_id", postedTx.ID).
				Msg("relinked pending transaction to posted id")
			updated = append(updated, relink{messageID: rec.MessageID, txID: postedTx.ID})
		}
	}
	return updated
}

// autoReviewPosted marks previously sent pending transactions as
// reviewed once they appear in the posted snapshot, matching by direct
// id or via the linkage the relink pass just established.
func (e *Engine) autoReviewPosted(ctx context.Context, chatID int64, src Source, posted []lunchmoney.Transaction, relinked []relink) []int {
	postedByID := make(map[int64]*lunchmoney.Transaction)
	for i := range posted {
		if posted[i].Status == lunchmoney.StatusUncleared {
			postedByID[posted[i].ID] = &posted[i]
		}
	}

	candidates := relinked
	sentPending, err := e.store.SentPending(chatID)
	if err != nil {
		e.log.Error().Err(err).Int64("chat_id", chatID).Msg("listing pending rows failed")
	}
	for _, rec := range sentPending {
		candidates = append(candidates, relink{messageID: rec.MessageID, txID: rec.TxID})
	}

	var updated []int
	seen := make(map[int64]struct{})
	for _, cand := range candidates {
		if _, dup := seen[cand.txID]; dup {
			continue
		}
		seen[cand.txID] = struct{}{}

		postedTx, ok := postedByID[cand.txID]
		if !ok {
			continue
		}

		if err := src.MarkReviewed(ctx, postedTx.ID); err != nil {
			e.log.Error().Err(err).Int64("tx_id", postedTx.ID).Msg("auto-review failed")
			continue
		}
		if err := e.store.MarkPosted(chatID, postedTx.ID); err != nil {
			e.log.Error().Err(err).Int64("tx_id", postedTx.ID).Msg("flipping pending flag failed")
			continue
		}
		if err := e.store.MarkReviewedByTx(chatID, postedTx.ID); err != nil {
			e.log.Error().Err(err).Int64("tx_id", postedTx.ID).Msg("recording review failed")
			continue
		}
		updated = append(updated, cand.messageID)
	}
	return updated
}

// refreshMessages re-renders every touched notification with the
// current state of its transaction. Messages are always edited in
// place; a logical transaction never gets a second message.
func (e *Engine) refreshMessages(ctx context.Context, chatID int64, src Source, messageIDs map[int]struct{}) {
	for msgID := range messageIDs {
		txID, err := e.store.TxForMessage(chatID, msgID)
		if err != nil {
			e.log.Warn().Err(err).Int("message_id", msgID).Msg("no transaction for message")
			continue
		}
		tx, err := src.Transaction(ctx, txID)
		if err != nil {
			e.log.Error().Err(err).Int64("tx_id", txID).Msg("refetching transaction failed")
			continue
		}
		if err := e.sink.Edit(ctx, chatID, msgID, tx); err != nil {
			e.log.Error().Err(err).Int("message_id", msgID).Msg("editing message failed")
		}
	}
}

// relatedMessageID finds the message of a transaction that looks like
// the counterpart of tx (opposite-sign amount, same date or payee) so
// the new notification can be threaded under it. Best-effort only.
func (e *Engine) relatedMessageID(chatID int64, tx *lunchmoney.Transaction, txs []lunchmoney.Transaction) int {
	for i := range txs {
		other := &txs[i]
		if other.ID == tx.ID {
			continue
		}
		if !other.Amount.Equal(tx.Amount.Neg()) {
			continue
		}
		if other.Date != tx.Date && other.Payee != tx.Payee {
			continue
		}
		msgID, err := e.store.MessageForTx(chatID, other.ID)
		if err == nil {
			return msgID
		}
	}
	return 0
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
