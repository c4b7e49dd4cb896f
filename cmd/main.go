package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rcortado/merienda/internal/ai"
	"github.com/rcortado/merienda/internal/config"
	"github.com/rcortado/merienda/internal/logger"
	"github.com/rcortado/merienda/internal/lunchmoney"
	"github.com/rcortado/merienda/internal/reconcile"
	"github.com/rcortado/merienda/internal/storage"
	"github.com/rcortado/merienda/internal/telegram"
	"github.com/rcortado/merienda/internal/web"
)

// sourceCache adapts the Lunch Money client cache to the engine's
// Sources interface.
type sourceCache struct {
	cache *lunchmoney.ClientCache
}

func (s sourceCache) ForChat(chatID int64) (reconcile.Source, error) {
	return s.cache.ForChat(chatID)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New()

	db, err := storage.NewDatabase(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize the database")
	}

	clients := lunchmoney.NewClientCache(db, cfg.LunchMoneyBaseURL, time.Hour, 256)

	bot, err := telegram.NewBot(cfg.TelegramBotToken, db, clients, logger.For(log, "telegram"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize the Telegram bot")
	}

	engine := reconcile.NewEngine(db, sourceCache{clients}, bot, telegram.IsBlocked, logger.For(log, "reconcile"))
	engine.SetLookback(cfg.PollLookback)
	bot.SetEngine(engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.GeminiAPIKey != "" {
		categorizer, err := ai.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Warn().Err(err).Msg("AI categorization disabled")
		} else {
			bot.SetCategorizer(categorizer)
		}
	}

	scheduler := reconcile.NewScheduler(db, engine, cfg.SchedulerTick, logger.For(log, "scheduler"))

	server := web.NewServer(cfg.WebAddr, db, logger.For(log, "web"))
	go func() {
		if err := server.Run(ctx); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("web server stopped")
		}
	}()

	go func() {
		if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	if err := bot.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start bot")
	}
	server.SetBotStatus(true, "")

	<-ctx.Done()

	server.SetBotStatus(false, "shutting down")
	bot.Stop()
	log.Info().Msg("bot stopped")
}
