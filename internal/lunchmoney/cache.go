package lunchmoney

import (
	"fmt"
	"sync"
	"time"
)

// TokenReader supplies the API token registered for a chat.
type TokenReader interface {
	Token(chatID int64) (string, error)
}

// ClientCache hands out one Client per chat, constructed lazily from the
// chat's stored token. Entries expire after a TTL and the cache is
// size-bounded, evicting the least recently used entry when full.
type ClientCache struct {
	mu      sync.Mutex
	entries map[int64]*cacheEntry

	tokens  TokenReader
	baseURL string
	ttl     time.Duration
	max     int

	now func() time.Time // stubbed in tests
}

type cacheEntry struct {
	client   *Client
	token    string
	lastUsed time.Time
}

func NewClientCache(tokens TokenReader, baseURL string, ttl time.Duration, maxEntries int) *ClientCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &ClientCache{
		entries: make(map[int64]*cacheEntry),
		tokens:  tokens,
		baseURL: baseURL,
		ttl:     ttl,
		max:     maxEntries,
		now:     time.Now,
	}
}

// ForChat returns the cached client for a chat, building one if needed.
// A token change invalidates the cached entry.
func (c *ClientCache) ForChat(chatID int64) (*Client, error) {
	token, err := c.tokens.Token(chatID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("no token registered for chat %d", chatID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[chatID]; ok {
		if e.token == token && now.Sub(e.lastUsed) < c.ttl {
			e.lastUsed = now
			return e.client, nil
		}
		delete(c.entries, chatID)
	}

	if len(c.entries) >= c.max {
		c.evictLocked(now)
	}

	client := NewClient(token, c.baseURL)
	c.entries[chatID] = &cacheEntry{client: client, token: token, lastUsed: now}
	return client, nil
}

// BaseURL returns the API endpoint clients are built against.
func (c *ClientCache) BaseURL() string { return c.baseURL }

// Invalidate drops a chat's cached client, e.g. after logout.
func (c *ClientCache) Invalidate(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, chatID)
}

// Len reports the number of live entries.
func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ClientCache) evictLocked(now time.Time) {
	// Expired entries first, then the least recently used one.
	var (
		oldest   int64
		oldestAt time.Time
		found    bool
	)
	for id, e := range c.entries {
		if now.Sub(e.lastUsed) >= c.ttl {
			delete(c.entries, id)
			continue
		}
		if !found || e.lastUsed.Before(oldestAt) {
			oldest, oldestAt, found = id, e.lastUsed, true
		}
	}
	if len(c.entries) >= c.max && found {
		delete(c.entries, oldest)
	}
}
