// Package redisconn owns the single shared connection to the backing
// key-value store and serializes access to it.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"github.com/okian/dailyboard/pkg/logger"
	"github.com/okian/dailyboard/pkg/metrics"
)

const (
	defaultMaxInflight    = 1
	defaultCommandTimeout = 2 * time.Second
	dialPingTimeout       = 5 * time.Second
)

// Manager is a guarded handle over one multiplexed client. At most
// maxInflight command sequences hold the handle at a time; waiting callers
// give up when their context ends.
type Manager struct {
	client  *redis.Client
	guard   *semaphore.Weighted
	timeout time.Duration
	logger  logger.Logger
	closed  atomic.Bool

	maxInflight int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxInflight bounds concurrent commands on the handle. 1 means mutual exclusion.
func WithMaxInflight(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxInflight = int64(n)
		}
	}
}

// WithCommandTimeout caps each command. Zero keeps only the caller's deadline.
func WithCommandTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Open parses a connection string (redis:// or rediss://), connects and pings.
func Open(ctx context.Context, url string, opts ...Option) (*Manager, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// Let command deadlines bound socket reads and writes.
	ropts.ContextTimeoutEnabled = true
	m := New(redis.NewClient(ropts), opts...)

	pingCtx, cancel := context.WithTimeout(ctx, dialPingTimeout)
	defer cancel()
	if err := m.Ping(pingCtx); err != nil {
		_ = m.client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", ropts.Addr, err)
	}
	m.logger.Info(ctx, "connected to backing store", logger.String("addr", ropts.Addr), logger.Int("db", ropts.DB))
	return m, nil
}

// New wraps an existing client. The Manager takes ownership of it.
func New(client *redis.Client, opts ...Option) *Manager {
	m := &Manager{
		client:      client,
		timeout:     defaultCommandTimeout,
		maxInflight: defaultMaxInflight,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("redisconn")
	}
	m.guard = semaphore.NewWeighted(m.maxInflight)
	return m
}

// Do runs fn against the shared handle under the guard. command labels
// metrics and error messages. Errors come back classified (see Classify).
func (m *Manager) Do(ctx context.Context, command string, fn func(ctx context.Context, c redis.Cmdable) error) error {
	if m.closed.Load() {
		return m.fail(command, fmt.Errorf("%w: %w", ErrConnection, redis.ErrClosed))
	}
	// Acquire may succeed on an already-done context when the guard is free.
	if err := ctx.Err(); err != nil {
		return m.fail(command, Classify(err))
	}
	if err := m.guard.Acquire(ctx, 1); err != nil {
		return m.fail(command, Classify(err))
	}
	metrics.AddConnectionInflight(1)
	defer func() {
		metrics.AddConnectionInflight(-1)
		m.guard.Release(1)
	}()

	cctx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(cctx, m.client)
	metrics.RecordStoreCommand(command, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		return m.fail(command, Classify(err))
	}
	return nil
}

func (m *Manager) fail(command string, err error) error {
	if errors.Is(err, redis.Nil) {
		return err
	}
	metrics.RecordStoreError(command, Kind(err))
	return fmt.Errorf("%s: %w", command, err)
}

// Ping checks the store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.Do(ctx, "ping", func(ctx context.Context, c redis.Cmdable) error {
		return c.Ping(ctx).Err()
	})
}

// Close releases the underlying client. Further calls fail with ErrConnection.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.client.Close()
}

// MaxInflight reports the guard size.
func (m *Manager) MaxInflight() int64 { return m.maxInflight }
