package lunchmoney

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTransactionsParsingAndFiltering(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("bad auth header: %q", auth)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing X-Request-Id header")
		}
		w.Write([]byte(`{"transactions": [
			{"id": 1, "date": "2024-05-08", "payee": "Cafe", "amount": "12.50",
			 "status": "uncleared", "is_pending": false,
			 "plaid_metadata": {"transaction_id": "pl-1", "authorized_datetime": "2024-05-08T09:15:00Z"}},
			{"id": 2, "date": "2024-05-09", "payee": "Grocer", "amount": "30.00",
			 "status": "uncleared", "is_pending": true,
			 "plaid_metadata": {"transaction_id": "pl-2", "pending_transaction_id": ""}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL)
	start := time.Date(2024, 4, 25, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	posted, err := c.Transactions(context.Background(), start, end, false)
	if err != nil {
		t.Fatalf("posted fetch failed: %v", err)
	}
	if gotQuery["status"] != StatusUncleared {
		t.Errorf("posted fetch query = %v, want status=%s", gotQuery, StatusUncleared)
	}
	if gotQuery["start_date"] != "2024-04-25" || gotQuery["end_date"] != "2024-05-10" {
		t.Errorf("date window query = %v", gotQuery)
	}
	if len(posted) != 1 || posted[0].ID != 1 {
		t.Fatalf("want only the posted transaction, got %+v", posted)
	}
	if posted[0].Amount.String() != "12.5" {
		t.Errorf("amount = %s, want 12.5", posted[0].Amount)
	}
	if posted[0].PlaidID() != "pl-1" {
		t.Errorf("plaid id = %q", posted[0].PlaidID())
	}

	pending, err := c.Transactions(context.Background(), start, end, true)
	if err != nil {
		t.Fatalf("pending fetch failed: %v", err)
	}
	if gotQuery["pending"] != "true" {
		t.Errorf("pending fetch query = %v, want pending=true", gotQuery)
	}
	if len(pending) != 1 || pending[0].ID != 2 {
		t.Fatalf("want only the pending transaction, got %+v", pending)
	}
}

func TestMarkReviewedSendsClearedStatus(t *testing.T) {
	var gotBody struct {
		Transaction struct {
			Status *string `json:"status"`
		} `json:"transaction"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.URL.Path != "/transactions/42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL)
	if err := c.MarkReviewed(context.Background(), 42); err != nil {
		t.Fatalf("MarkReviewed failed: %v", err)
	}
	if gotBody.Transaction.Status == nil || *gotBody.Transaction.Status != StatusCleared {
		t.Fatalf("status = %v, want %s", gotBody.Transaction.Status, StatusCleared)
	}
}

func TestIsRevoked(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unauthorized", &APIError{StatusCode: 401, Message: "nope"}, true},
		{"token message", &APIError{StatusCode: 404, Message: "Access token does not exist."}, true},
		{"server error", &APIError{StatusCode: 500, Message: "oops"}, false},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRevoked(tt.err); got != tt.want {
				t.Fatalf("IsRevoked(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string error", `{"error": "Access token does not exist."}`, "Access token does not exist."},
		{"error list", `{"error": ["bad start_date", "bad end_date"]}`, "bad start_date; bad end_date"},
		{"name message", `{"name": "Error", "message": "budget not found"}`, "budget not found"},
		{"opaque body", `service unavailable`, "service unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("secret", srv.URL)
			err := c.Validate(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("want APIError, got %v", err)
			}
			if apiErr.Message != tt.want {
				t.Fatalf("message = %q, want %q", apiErr.Message, tt.want)
			}
		})
	}
}

func TestEffectiveTime(t *testing.T) {
	withAuth := Transaction{
		Date:  "2024-05-09",
		Plaid: &PlaidMetadata{AuthorizedDatetime: "2024-05-08T21:30:00Z"},
	}
	if got := withAuth.EffectiveTime(); got != time.Date(2024, 5, 8, 21, 30, 0, 0, time.UTC) {
		t.Fatalf("authorized time ignored: %v", got)
	}

	dateOnly := Transaction{Date: "2024-05-09"}
	if got := dateOnly.EffectiveTime(); got != time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("date fallback = %v", got)
	}

	badAuth := Transaction{
		Date:  "2024-05-09",
		Plaid: &PlaidMetadata{AuthorizedDatetime: "not a timestamp"},
	}
	if got := badAuth.EffectiveTime(); got != time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("unparseable authorized time must fall back to the date, got %v", got)
	}
}
