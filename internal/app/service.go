// Package service wires the ranking store, scorecards and the asynchronous
// event pipeline into the dependencies the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/dailyboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/dailyboard/internal/adapters/mq/worker"
	"github.com/okian/dailyboard/internal/adapters/repository"
	"github.com/okian/dailyboard/internal/domain/dedupe"
	"github.com/okian/dailyboard/internal/domain/model"
	"github.com/okian/dailyboard/pkg/logger"
	"github.com/okian/dailyboard/pkg/metrics"
)

const defaultTopLimit = 10

// Service implements the API dependencies for the daily leaderboards.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	scorecards repository.Scorecards
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool

	workerCount  int
	queueSize    int
	dedupeSize   int
	eventTimeout time.Duration
	backend      string

	started bool
	// stopRun cancels the context workers run on. Stop calls it only after
	// the queue was drained or the drain timed out.
	stopRun context.CancelFunc
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the ranking store. The service closes it on Stop.
func WithStore(store repository.Store, backend string) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.backend = backend
		}
	}
}

// WithScorecards sets the scorecard storage.
func WithScorecards(cards repository.Scorecards) Option {
	return func(s *Service) {
		if cards != nil {
			s.scorecards = cards
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many event IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithEventTimeout bounds how long a worker may spend applying one event.
func WithEventTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.eventTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Without WithStore an in-memory store is created
// on Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU() * 4,
		queueSize:    100000,
		dedupeSize:   500000,
		eventTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the event pipeline and starts the workers. The pipeline
// outlives ctx: only Stop ends it, after accepted events were applied.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	runCtx, stopRun := context.WithCancel(context.WithoutCancel(ctx))
	s.stopRun = stopRun

	if s.store == nil {
		s.store = repository.NewTreapStore(runCtx)
		s.backend = "memory"
	}
	if s.scorecards == nil {
		s.scorecards = repository.NewMemoryScorecards()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.store,
		workerpool.WithEventTimeout(s.eventTimeout),
	)
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.String("backend", s.backend),
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
	)
	return nil
}

// Stop drains queued events, then closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	// Aborts whatever is still in flight when the drain timed out.
	s.stopRun()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
	return errors.Join(errs...)
}

// SubmitEvent validates, deduplicates and queues e. duplicate is true when
// the event ID was already accepted; nothing is queued in that case.
func (s *Service) SubmitEvent(ctx context.Context, e model.ScoreEvent) (duplicate bool, err error) {
	if err := e.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", repository.ErrInvalidArgument, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrNotStarted
	}

	if s.deduper.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event", logger.String("event_id", e.EventID))
		return true, nil
	}
	metrics.UpdateDedupeSize(s.deduper.Size())

	if err := s.eventQueue.Enqueue(ctx, e); err != nil {
		// Forget the id so the client's retry is not swallowed as a duplicate.
		s.deduper.Unrecord(ctx, e.EventID)
		if errors.Is(err, eventqueue.ErrFull) {
			return false, ErrBackpressure
		}
		return false, fmt.Errorf("enqueue event %s: %w", e.EventID, err)
	}
	metrics.RecordEventAccepted()
	return false, nil
}

func (s *Service) ranking() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

func (s *Service) cards() (repository.Scorecards, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.scorecards, nil
}

// AddScore applies delta synchronously.
func (s *Service) AddScore(ctx context.Context, board, member string, delta float64) (float64, error) {
	store, err := s.ranking()
	if err != nil {
		return 0, err
	}
	return store.AddScore(ctx, board, member, delta)
}

// RemoveMember drops member from board.
func (s *Service) RemoveMember(ctx context.Context, board, member string) (int64, error) {
	store, err := s.ranking()
	if err != nil {
		return 0, err
	}
	return store.RemoveMember(ctx, board, member)
}

// GetTop returns the best entries of board. limit 0 selects the default.
func (s *Service) GetTop(ctx context.Context, board string, limit int) ([]repository.Entry, error) {
	store, err := s.ranking()
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = defaultTopLimit
	}
	return store.GetTop(ctx, board, limit)
}

// Rank returns member's position on board.
func (s *Service) Rank(ctx context.Context, board, member string) (repository.Entry, error) {
	store, err := s.ranking()
	if err != nil {
		return repository.Entry{}, err
	}
	return store.Rank(ctx, board, member)
}

// Expiry returns when board resets.
func (s *Service) Expiry(ctx context.Context, board string) (time.Time, error) {
	store, err := s.ranking()
	if err != nil {
		return time.Time{}, err
	}
	return store.Expiry(ctx, board)
}

// DeleteBoard drops board.
func (s *Service) DeleteBoard(ctx context.Context, board string) (bool, error) {
	store, err := s.ranking()
	if err != nil {
		return false, err
	}
	return store.DeleteBoard(ctx, board)
}

// SaveScorecard stores card, replacing the player's previous one.
func (s *Service) SaveScorecard(ctx context.Context, card repository.Scorecard) error {
	cards, err := s.cards()
	if err != nil {
		return err
	}
	return cards.SaveScorecard(ctx, card)
}

// GetScorecard returns the player's last scorecard.
func (s *Service) GetScorecard(ctx context.Context, player string) (repository.Scorecard, error) {
	cards, err := s.cards()
	if err != nil {
		return repository.Scorecard{}, err
	}
	return cards.GetScorecard(ctx, player)
}

// DeleteScorecard removes the player's scorecard.
func (s *Service) DeleteScorecard(ctx context.Context, player string) (int64, error) {
	cards, err := s.cards()
	if err != nil {
		return 0, err
	}
	return cards.DeleteScorecard(ctx, player)
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"backend":     s.backend,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		stats["eventsApplied"] = s.workerPool.Applied()
		stats["eventsFailed"] = s.workerPool.Failed()

		metrics.UpdateDedupeSize(s.deduper.Size())
	}
	return stats
}
