package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotenv reads a .env file from the working directory if present.
// Missing files are fine; variables already set in the environment win.
func LoadDotenv() {
	_ = godotenv.Load()
}

// FromEnv overlays CHATQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setInt64 := func(name string, dst *int64) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}

	setString("CHATQ_HTTP_ADDR", &cfg.HTTPAddr)
	if v := os.Getenv("CHATQ_BACKEND"); v != "" {
		cfg.Backend = Backend(v)
	}
	setString("CHATQ_DATA_DIR", &cfg.DataDir)
	setString("CHATQ_REDIS_ADDR", &cfg.Redis.Addr)
	setString("CHATQ_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("CHATQ_REDIS_DB", &cfg.Redis.DB)

	setInt("CHATQ_MAX_QUEUE_SIZE", &cfg.Queue.MaxQueueSize)
	setInt64("CHATQ_LEASE_TIMEOUT_MS", &cfg.Queue.LeaseTimeoutMs)
	setInt64("CHATQ_POLL_INTERVAL_MS", &cfg.Queue.PollIntervalMs)
	setInt("CHATQ_MAX_RETRIES", &cfg.Queue.MaxRetries)
	setInt64("CHATQ_DEAD_LETTER_RETENTION_MS", &cfg.Queue.DeadLetterRetentionMs)
	setInt64("CHATQ_SWEEP_INTERVAL_MS", &cfg.Queue.SweepIntervalMs)
	setInt64("CHATQ_DEDUP_WINDOW_MS", &cfg.Queue.DedupWindowMs)
	setInt64("CHATQ_SEQUENCE_CACHE_TTL_MS", &cfg.Queue.SequenceCacheTTLMs)

	setInt("CHATQ_WORKERS", &cfg.Workers)
	setInt("CHATQ_WEBHOOK_RATE_LIMIT", &cfg.WebhookRateLimit)
	setString("CHATQ_LOG_LEVEL", &cfg.LogLevel)
	setString("CHATQ_LOG_FORMAT", &cfg.LogFormat)
}
