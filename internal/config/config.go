package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Backend selects the storage implementation.
type Backend string

const (
	BackendPebble Backend = "pebble"
	BackendRedis  Backend = "redis"
)

// Config is the top-level configuration loaded from file/env/flags.
type Config struct {
	HTTPAddr string  `json:"httpAddr"`
	Backend  Backend `json:"backend"`
	DataDir  string  `json:"dataDir"` // pebble backend

	Redis RedisConfig `json:"redis"`
	Queue QueueConfig `json:"queue"`

	Workers          int    `json:"workers"`
	WebhookRateLimit int    `json:"webhookRateLimit"` // per IP per minute
	LogLevel         string `json:"logLevel"`
	LogFormat        string `json:"logFormat"`
}

// RedisConfig addresses the production backend.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// QueueConfig carries the delivery-queue tuning knobs. Durations are
// serialized as milliseconds.
type QueueConfig struct {
	MaxQueueSize          int   `json:"maxQueueSize"`
	LeaseTimeoutMs        int64 `json:"leaseTimeoutMs"`
	PollIntervalMs        int64 `json:"pollIntervalMs"`
	MaxRetries            int   `json:"maxRetries"`
	DeadLetterRetentionMs int64 `json:"deadLetterRetentionMs"`
	SweepIntervalMs       int64 `json:"sweepIntervalMs"`
	DedupWindowMs         int64 `json:"dedupWindowMs"`
	SequenceCacheTTLMs    int64 `json:"sequenceCacheTtlMs"`
}

// Default returns built-in defaults: a single-node pebble deployment.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Backend:  BackendPebble,
		DataDir:  DefaultDataDir(),
		Redis:    RedisConfig{Addr: "127.0.0.1:6379"},
		Queue: QueueConfig{
			MaxQueueSize:          1000,
			LeaseTimeoutMs:        30_000,
			PollIntervalMs:        250,
			MaxRetries:            3,
			DeadLetterRetentionMs: (24 * time.Hour).Milliseconds(),
			SweepIntervalMs:       5_000,
			DedupWindowMs:         60_000,
			SequenceCacheTTLMs:    (6 * time.Hour).Milliseconds(),
		},
		Workers:          4,
		WebhookRateLimit: 300,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// Load reads configuration from a JSON file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the queue cannot run with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendPebble, BackendRedis:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Backend == BackendPebble && c.DataDir == "" {
		return fmt.Errorf("config: pebble backend requires dataDir")
	}
	if c.Backend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis backend requires redis.addr")
	}
	if c.Queue.MaxQueueSize < 0 || c.Queue.MaxRetries < 0 {
		return fmt.Errorf("config: queue limits must be non-negative")
	}
	return nil
}

// LeaseTimeout converts the wire value to a duration.
func (q QueueConfig) LeaseTimeout() time.Duration {
	return time.Duration(q.LeaseTimeoutMs) * time.Millisecond
}

// PollInterval converts the wire value to a duration.
func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

// DeadLetterRetention converts the wire value to a duration.
func (q QueueConfig) DeadLetterRetention() time.Duration {
	return time.Duration(q.DeadLetterRetentionMs) * time.Millisecond
}

// SweepInterval converts the wire value to a duration.
func (q QueueConfig) SweepInterval() time.Duration {
	return time.Duration(q.SweepIntervalMs) * time.Millisecond
}

// DedupWindow converts the wire value to a duration.
func (q QueueConfig) DedupWindow() time.Duration {
	return time.Duration(q.DedupWindowMs) * time.Millisecond
}

// SequenceCacheTTL converts the wire value to a duration.
func (q QueueConfig) SequenceCacheTTL() time.Duration {
	return time.Duration(q.SequenceCacheTTLMs) * time.Millisecond
}
