// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config holding every default.
// - Load layers defaults, an optional YAML file and DAILYBOARD_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"errors"
	"runtime"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Supported backends for the ranking store.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Backend selects where leaderboards live: redis or memory.
	Backend string `koanf:"backend"`

	// RedisURL is the opaque connection string, e.g. redis://:pass@host:6379/0.
	RedisURL string `koanf:"redis_url"`

	// RedisMaxInflight bounds commands running on the shared connection at once.
	RedisMaxInflight int `koanf:"redis_max_inflight"`

	// RedisCommandTimeoutMS caps a single backing store command.
	RedisCommandTimeoutMS int `koanf:"redis_command_timeout_ms"`

	// RedisKeyPrefix namespaces leaderboard keys.
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	// Timezone names the zone whose midnight resets the leaderboards.
	Timezone string `koanf:"timezone"`

	// EventQueueSize bounds the in-memory event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the event id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboards/{board}?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// EventTimeoutMS bounds how long a worker spends applying one event.
	EventTimeoutMS int `koanf:"event_timeout_ms"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		Backend:               BackendRedis,
		RedisURL:              "redis://127.0.0.1:6379/0",
		RedisMaxInflight:      1,
		RedisCommandTimeoutMS: 2000,
		RedisKeyPrefix:        "leaderboard:",
		Timezone:              "Local",
		EventQueueSize:        100_000,
		WorkerCount:           runtime.NumCPU() * 4,
		DedupeSize:            500_000,
		MaxLeaderboardLimit:   100,
		EventTimeoutMS:        5000,
	}
}
