package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	TelegramBotToken string
	DBPath           string
	WebAddr          string

	// Base URL of the Lunch Money API. Overridable for tests.
	LunchMoneyBaseURL string

	// Optional. AI categorization is disabled when empty.
	GeminiAPIKey string

	// How far back each poll looks for transactions.
	PollLookback time.Duration

	// How often the scheduler wakes up to check per-chat intervals.
	SchedulerTick time.Duration
}

func Load() (*Config, error) {
	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	cfg := &Config{
		TelegramBotToken:  botToken,
		DBPath:            getEnv("DB_PATH", "merienda.db"),
		WebAddr:           getEnv("WEB_ADDR", ":8080"),
		LunchMoneyBaseURL: getEnv("LUNCH_MONEY_BASE_URL", "https://dev.lunchmoney.app/v1"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		PollLookback:      15 * 24 * time.Hour,
		SchedulerTick:     time.Minute,
	}

	if v := os.Getenv("POLL_LOOKBACK_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("invalid POLL_LOOKBACK_DAYS: %q", v)
		}
		cfg.PollLookback = time.Duration(days) * 24 * time.Hour
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
