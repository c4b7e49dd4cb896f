// Package web exposes a small status endpoint next to the bot.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcortado/merienda/internal/storage"
)

type Server struct {
	db        *storage.Database
	addr      string
	startTime time.Time
	log       zerolog.Logger

	mu        sync.RWMutex
	botOnline bool
	lastError string
}

func NewServer(addr string, db *storage.Database, log zerolog.Logger) *Server {
	return &Server{
		db:        db,
		addr:      addr,
		startTime: time.Now(),
		log:       log,
	}
}

// SetBotStatus records whether the Telegram session is up.
func (s *Server) SetBotStatus(online bool, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botOnline = online
	s.lastError = lastError
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	online := s.botOnline
	s.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !online {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":        status,
		"uptime":        time.Since(s.startTime).String(),
		"bot_connected": online,
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	users, err := s.db.UserCount()
	if err != nil {
		s.log.Error().Err(err).Msg("counting users failed")
	}
	sent, err := s.db.SentMessageCount()
	if err != nil {
		s.log.Error().Err(err).Msg("counting messages failed")
	}
	monthStart := time.Now().AddDate(0, 0, -30)
	recent, err := s.db.Metric("sent_transaction_messages", monthStart, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("reading metric failed")
	}

	s.mu.RLock()
	lastError := s.lastError
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"users":                  users,
		"sent_messages":          sent,
		"sent_messages_last_30d": recent,
		"db_size_bytes":          s.db.Size(),
		"last_error":             lastError,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
