package repository

import (
	"time"

	"github.com/okian/dailyboard/internal/domain/daily"
	"github.com/okian/dailyboard/pkg/logger"
)

const (
	defaultKeyPrefix     = "leaderboard:"
	defaultSweepInterval = time.Minute
)

type settings struct {
	prefix        string
	policy        daily.Policy
	logger        logger.Logger
	sweepInterval time.Duration
}

func newSettings(opts []Option) settings {
	s := settings{
		prefix:        defaultKeyPrefix,
		policy:        daily.NewPolicy(nil, nil),
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
	return s
}

// Option configures a store.
type Option func(*settings)

// WithPolicy sets the clock and timezone used to compute the midnight reset.
func WithPolicy(p daily.Policy) Option {
	return func(s *settings) {
		s.policy = p
	}
}

// WithKeyPrefix namespaces leaderboard keys in the backing store.
func WithKeyPrefix(prefix string) Option {
	return func(s *settings) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSweepInterval sets how often the in-memory store drops expired boards.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *settings) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}
