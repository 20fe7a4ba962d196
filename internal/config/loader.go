package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/dailyboard/internal/domain/daily"
)

const (
	envPrefix     = "DAILYBOARD_"
	envConfigFile = "DAILYBOARD_CONFIG"
	maxTopLimit   = 100
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if DAILYBOARD_CONFIG is set
//  3. env (prefix DAILYBOARD_)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// DAILYBOARD_QUEUE_SIZE -> queue_size; keys stay flat so underscores survive.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Backend != BackendRedis && c.Backend != BackendMemory:
		return fmt.Errorf("%w: backend must be %q or %q, got %q", ErrInvalidConfig, BackendRedis, BackendMemory, c.Backend)
	case c.Backend == BackendRedis && strings.TrimSpace(c.RedisURL) == "":
		return fmt.Errorf("%w: redis_url must not be empty for the redis backend", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1 || c.MaxLeaderboardLimit > maxTopLimit:
		return fmt.Errorf("%w: max_leaderboard_limit must be within 1..%d", ErrInvalidConfig, maxTopLimit)
	}
	if _, err := daily.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
