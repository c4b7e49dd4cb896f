package lunchmoney

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the production Lunch Money API endpoint.
const DefaultBaseURL = "https://dev.lunchmoney.app/v1"

// APIError is a non-2xx response from the Lunch Money API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lunch money API error (%d): %s", e.StatusCode, e.Message)
}

// IsRevoked reports whether err indicates the user revoked the bot's
// API token. The API answers these requests with an "Access token does
// not exist" message.
func IsRevoked(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusUnauthorized {
		return true
	}
	return strings.Contains(apiErr.Message, "Access token does not exist")
}

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func NewClient(token string, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Transactions fetches the transactions in [start, end]. With pending
// true it returns only pending transactions; otherwise only posted,
// unreviewed ones.
func (c *Client) Transactions(ctx context.Context, start, end time.Time, pending bool) ([]Transaction, error) {
	q := url.Values{}
	q.Set("start_date", start.Format("2006-01-02"))
	q.Set("end_date", end.Format("2006-01-02"))
	if pending {
		q.Set("pending", "true")
	} else {
		q.Set("status", StatusUncleared)
	}

	var resp struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, "/transactions?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	// The pending filter is inclusive on the API side; narrow it here so
	// each mode sees exactly one lifecycle state.
	out := resp.Transactions[:0]
	for _, t := range resp.Transactions {
		if t.IsPending == pending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Client) Transaction(ctx context.Context, id int64) (*Transaction, error) {
	var t Transaction
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/transactions/%d", id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id int64, upd *TransactionUpdate) error {
	body := struct {
		Transaction *TransactionUpdate `json:"transaction"`
	}{upd}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/transactions/%d", id), body, nil)
}

// MarkReviewed sets a transaction's status to cleared.
func (c *Client) MarkReviewed(ctx context.Context, id int64) error {
	status := StatusCleared
	return c.UpdateTransaction(ctx, id, &TransactionUpdate{Status: &status})
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var resp struct {
		Categories []Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/categories?format=nested", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

// Validate checks that the token is accepted by the API.
func (c *Client) Validate(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/me", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// The API reports errors as {"error": "..."}, {"error": ["..."]} or
// {"name": ..., "message": ...} depending on the endpoint.
func errorMessage(data []byte) string {
	var withError struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(data, &withError) == nil && len(withError.Error) > 0 {
		var s string
		if json.Unmarshal(withError.Error, &s) == nil {
			return s
		}
		var list []string
		if json.Unmarshal(withError.Error, &list) == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
	}
	var withMessage struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &withMessage) == nil && withMessage.Message != "" {
		return withMessage.Message
	}
	return strings.TrimSpace(string(data))
}
