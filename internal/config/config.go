package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string

	// Timezone fixes the local-midnight day boundary for queue numbers and
	// daily stats. Office hours are local, not UTC.
	Timezone string

	SessionTTL       time.Duration
	IssueRetries     int
	PendingListLimit int

	AnnouncePollInterval time.Duration
	AnnounceBatchSize    int

	SettingsCacheTTL time.Duration

	ChatProvider string
	GeminiAPIKey string
	GeminiModel  string

	RateLimitPerMinute        int
	RateLimitBurst            int
	SessionRateLimitPerMinute int
	SessionRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	timezone := os.Getenv("QUEUE_TIMEZONE")
	if timezone == "" {
		timezone = "Asia/Jakarta"
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return Config{
		Port:                      port,
		DatabaseURL:               os.Getenv("DB_DSN"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		Timezone:                  timezone,
		SessionTTL:                readDurationSeconds("ADMIN_SESSION_TTL_SECONDS", 12*3600),
		IssueRetries:              readInt("QUEUE_ISSUE_RETRIES", 3),
		PendingListLimit:          readInt("PENDING_LIST_LIMIT", 10),
		AnnouncePollInterval:      readDurationSeconds("ANNOUNCE_POLL_INTERVAL_SECONDS", 2),
		AnnounceBatchSize:         readInt("ANNOUNCE_BATCH_SIZE", 50),
		SettingsCacheTTL:          readDurationSeconds("SETTINGS_CACHE_TTL_SECONDS", 300),
		ChatProvider:              os.Getenv("CHAT_PROVIDER"),
		GeminiAPIKey:              os.Getenv("GEMINI_API_KEY"),
		GeminiModel:               model,
		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		SessionRateLimitPerMinute: readInt("SESSION_RATE_LIMIT_PER_MIN", 600),
		SessionRateLimitBurst:     readInt("SESSION_RATE_LIMIT_BURST", 120),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
