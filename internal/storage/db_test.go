package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	return db
}

func TestSaveTokenAndSettings(t *testing.T) {
	db := testDB(t)

	if _, err := db.CurrentSettings(100); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("want ErrNotRegistered for unknown chat, got %v", err)
	}

	if err := db.SaveToken(100, "tok-1"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	s, err := db.CurrentSettings(100)
	if err != nil {
		t.Fatalf("CurrentSettings: %v", err)
	}
	if s.Token != "tok-1" {
		t.Fatalf("token = %q", s.Token)
	}
	if s.PollIntervalSecs != 3600 || !s.ShowDateTime || !s.Tagging || s.Timezone != "UTC" {
		t.Fatalf("unexpected defaults: %+v", s)
	}

	// Saving again replaces the token without duplicating the row.
	if err := db.SaveToken(100, "tok-2"); err != nil {
		t.Fatalf("SaveToken update: %v", err)
	}
	chats, err := db.RegisteredChats()
	if err != nil {
		t.Fatalf("RegisteredChats: %v", err)
	}
	if len(chats) != 1 || chats[0] != 100 {
		t.Fatalf("chats = %v", chats)
	}
	if tok, _ := db.Token(100); tok != "tok-2" {
		t.Fatalf("token = %q, want tok-2", tok)
	}
}

func TestSentinelTokens(t *testing.T) {
	db := testDB(t)
	for chat, mark := range map[int64]func(int64) error{
		1: db.MarkRevoked,
		2: db.MarkBlocked,
	} {
		if err := db.SaveToken(chat, "tok"); err != nil {
			t.Fatal(err)
		}
		if err := mark(chat); err != nil {
			t.Fatal(err)
		}
	}

	if tok, _ := db.Token(1); tok != TokenRevoked {
		t.Fatalf("revoked chat token = %q", tok)
	}
	if tok, _ := db.Token(2); tok != TokenBlocked {
		t.Fatalf("blocked chat token = %q", tok)
	}

	// Sentinel chats are not counted as active users.
	count, err := db.UserCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("user count = %d, want 0", count)
	}
}

func TestWasSentAndMarkSent(t *testing.T) {
	db := testDB(t)

	sent, err := db.WasSent(100, 42)
	if err != nil || sent {
		t.Fatalf("WasSent before recording = %v, %v", sent, err)
	}

	plaidID := "pl-1"
	if err := db.MarkSent(&Transaction{
		MessageID: 7,
		TxID:      42,
		ChatID:    100,
		PlaidID:   &plaidID,
		Pending:   true,
	}); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	sent, err = db.WasSent(100, 42)
	if err != nil || !sent {
		t.Fatalf("WasSent after recording = %v, %v", sent, err)
	}
	// Other chats are unaffected.
	if sent, _ := db.WasSent(200, 42); sent {
		t.Fatal("transaction leaked into another chat")
	}

	txID, err := db.TxForMessage(100, 7)
	if err != nil || txID != 42 {
		t.Fatalf("TxForMessage = %d, %v", txID, err)
	}
	msgID, err := db.MessageForTx(100, 42)
	if err != nil || msgID != 7 {
		t.Fatalf("MessageForTx = %d, %v", msgID, err)
	}
}

func TestRelinkPlaidID(t *testing.T) {
	db := testDB(t)

	oldID := "pl-pending"
	if err := db.MarkSent(&Transaction{
		MessageID: 7,
		TxID:      42,
		ChatID:    100,
		PlaidID:   &oldID,
		Pending:   true,
	}); err != nil {
		t.Fatal(err)
	}

	newID := "pl-posted"
	ok, err := db.RelinkPlaidID(100, oldID, 900, &newID)
	if err != nil {
		t.Fatalf("RelinkPlaidID: %v", err)
	}
	if !ok {
		t.Fatal("relink matched no row")
	}

	// The row keeps its message but now answers to the new id, and is no
	// longer pending.
	txID, err := db.TxForMessage(100, 7)
	if err != nil || txID != 900 {
		t.Fatalf("TxForMessage after relink = %d, %v", txID, err)
	}
	if sent, _ := db.WasSent(100, 42); sent {
		t.Fatal("old id still recognized after relink")
	}
	if sent, _ := db.WasSent(100, 900); !sent {
		t.Fatal("new id not recognized after relink")
	}
	rows, err := db.SentPending(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("row still pending after relink: %+v", rows)
	}

	// A second relink with the same old id matches nothing.
	ok, err = db.RelinkPlaidID(100, oldID, 901, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("stale relink reported a match")
	}
}

func TestPendingAndReviewLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.MarkSent(&Transaction{MessageID: 1, TxID: 10, ChatID: 100, Pending: true}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkSent(&Transaction{MessageID: 2, TxID: 11, ChatID: 100, Pending: false}); err != nil {
		t.Fatal(err)
	}

	rows, err := db.SentPending(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].TxID != 10 {
		t.Fatalf("SentPending = %+v", rows)
	}

	if err := db.MarkPosted(100, 10); err != nil {
		t.Fatal(err)
	}
	if rows, _ := db.SentPending(100); len(rows) != 0 {
		t.Fatalf("row still pending after MarkPosted: %+v", rows)
	}

	if err := db.MarkReviewedByTx(100, 10); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkReviewedByMessage(100, 2); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkUnreviewedByMessage(100, 2); err != nil {
		t.Fatal(err)
	}
}

func TestSettingsUpdates(t *testing.T) {
	db := testDB(t)
	if err := db.SaveToken(100, "tok"); err != nil {
		t.Fatal(err)
	}

	if err := db.UpdatePollInterval(100, 300); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateAutoMarkReviewed(100, true); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdatePollPending(100, true); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateShowDateTime(100, false); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateTagging(100, false); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateTimezone(100, "Europe/Madrid"); err != nil {
		t.Fatal(err)
	}
	when := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	if err := db.UpdateLastPollAt(100, when); err != nil {
		t.Fatal(err)
	}

	s, err := db.CurrentSettings(100)
	if err != nil {
		t.Fatal(err)
	}
	if s.PollIntervalSecs != 300 || !s.AutoMarkReviewed || !s.PollPending {
		t.Fatalf("settings not applied: %+v", s)
	}
	if s.ShowDateTime || s.Tagging || s.Timezone != "Europe/Madrid" {
		t.Fatalf("display settings not applied: %+v", s)
	}
	if s.LastPollAt == nil || !s.LastPollAt.Equal(when) {
		t.Fatalf("last poll = %v, want %v", s.LastPollAt, when)
	}
}

func TestLogoutRemovesEverything(t *testing.T) {
	db := testDB(t)
	if err := db.SaveToken(100, "tok"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkSent(&Transaction{MessageID: 1, TxID: 10, ChatID: 100}); err != nil {
		t.Fatal(err)
	}

	if err := db.Logout(100); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := db.CurrentSettings(100); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("settings survived logout: %v", err)
	}
	if sent, _ := db.WasSent(100, 10); sent {
		t.Fatal("sent record survived logout")
	}
}

func TestMetrics(t *testing.T) {
	db := testDB(t)

	if err := db.IncMetric("sent_transaction_messages", 1); err != nil {
		t.Fatal(err)
	}
	if err := db.IncMetric("sent_transaction_messages", 2); err != nil {
		t.Fatal(err)
	}
	if err := db.IncMetric("other_metric", 5); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	total, err := db.Metric("sent_transaction_messages", now.AddDate(0, 0, -1), now)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("metric total = %v, want 3", total)
	}
}
