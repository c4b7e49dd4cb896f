package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcortado/merienda/internal/lunchmoney"
	"github.com/rcortado/merienda/internal/storage"
)

// Reconciler is what the scheduler drives; satisfied by *Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, chatID int64, pollPending bool) ([]lunchmoney.Transaction, error)
}

// Scheduler polls every registered chat on its configured interval.
// Chats are processed sequentially within a tick; one chat's failure
// never prevents the others from being polled.
type Scheduler struct {
	store  SchedulerStore
	engine Reconciler
	tick   time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewScheduler(store SchedulerStore, engine Reconciler, tick time.Duration, log zerolog.Logger) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		store:  store,
		engine: engine,
		tick:   tick,
		now:    time.Now,
		log:    log,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduler pass.
func (s *Scheduler) Tick(ctx context.Context) {
	chatIDs, err := s.store.RegisteredChats()
	if err != nil {
		s.log.Error().Err(err).Msg("listing registered chats failed")
		return
	}

	for _, chatID := range chatIDs {
		settings, err := s.store.CurrentSettings(chatID)
		if err != nil {
			s.log.Error().Err(err).Int64("chat_id", chatID).Msg("no settings for registered chat")
			continue
		}

		if settings.Token == storage.TokenRevoked || settings.Token == storage.TokenBlocked {
			continue
		}

		if !s.due(settings) {
			continue
		}

		now := s.now()
		if _, err := s.engine.Reconcile(ctx, chatID, settings.PollPending); err != nil {
			if lunchmoney.IsRevoked(err) {
				s.log.Warn().Int64("chat_id", chatID).Msg("API token revoked, skipping chat from now on")
				if err := s.store.MarkRevoked(chatID); err != nil {
					s.log.Error().Err(err).Int64("chat_id", chatID).Msg("recording revoked token failed")
				}
			} else {
				s.log.Error().Err(err).Int64("chat_id", chatID).Msg("poll failed")
			}
		}

		// Updated even on failure so a broken chat is not retried faster
		// than its configured interval.
		if err := s.store.UpdateLastPollAt(chatID, now); err != nil {
			s.log.Error().Err(err).Int64("chat_id", chatID).Msg("updating last poll time failed")
		}
	}
}

func (s *Scheduler) due(settings *storage.Settings) bool {
	if settings.LastPollAt == nil {
		return true
	}
	next := settings.LastPollAt.Add(time.Duration(settings.PollIntervalSecs) * time.Second)
	return !s.now().Before(next)
}
