// Package worker applies queued score events to the ranking store.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/dailyboard/internal/adapters/mq/queue"
	"github.com/okian/dailyboard/pkg/logger"
	"github.com/okian/dailyboard/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4
	defaultEventTimeout     = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = queue.Event

// Updater increments a member's score. Implemented by the ranking store.
type Updater interface {
	AddScore(ctx context.Context, key, member string, delta float64) (float64, error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains
	// after being closed.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	updater Updater
	name    string
	timeout time.Duration
	hook    func(e Event, score float64, err error)

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, updater Updater, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		updater:  updater,
		name:     "worker",
		timeout:  defaultEventTimeout,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, e); err != nil {
				w.logger.Error(ctx, "error processing event", logger.Error(err))
			}
		}
	}
}

func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) processEvent(ctx context.Context, e Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ectx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	score, err := w.updater.AddScore(ectx, e.Board, e.Member, e.Delta)
	if w.hook != nil {
		w.hook(e, score, err)
	}
	if err != nil {
		metrics.RecordWorkerError()
		return fmt.Errorf("apply event %s to %q: %w", e.EventID, e.Board, err)
	}
	metrics.RecordEventApplied()
	w.logger.Debug(ctx, "event applied",
		logger.String("event_id", e.EventID),
		logger.String("board", e.Board),
		logger.String("member", e.Member),
		logger.Float64("score", score),
	)
	return nil
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	applied atomic.Int64
	failed  atomic.Int64

	logger logger.Logger
}

// NewPool creates workerCount workers. workerCount < 1 selects NumCPU*4.
func NewPool(workerCount int, q Queue, updater Updater, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	count := WithResultHook(func(_ Event, _ float64, err error) {
		if err != nil {
			p.failed.Add(1)
			return
		}
		p.applied.Add(1)
	})
	for i := range workerCount {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i)), count}, opts...)
		p.workers[i] = NewInMemoryWorker(q, updater, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Applied returns how many events were applied successfully.
func (p *Pool) Applied() int64 { return p.applied.Load() }

// Failed returns how many events the store rejected.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
