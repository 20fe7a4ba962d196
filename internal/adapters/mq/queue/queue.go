// Package queue buffers accepted score events between the HTTP handlers and
// the workers that apply them.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/dailyboard/internal/domain/model"
	"github.com/okian/dailyboard/pkg/metrics"
)

const defaultQueueCapacity = 100000

// Event is the payload flowing through the queue.
type Event = model.ScoreEvent

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds e without blocking. It fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, e Event) error

	// Dequeue returns the channel workers read from. It is closed after Close
	// once every queued event has been received.
	Dequeue(ctx context.Context) <-chan Event

	Len(ctx context.Context) int
	Capacity() int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueue(0, q.capacity)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return fmt.Errorf("enqueue %s: %w", e.EventID, err)
	}

	select {
	case q.events <- e:
		metrics.UpdateQueue(len(q.events), q.capacity)
		return nil
	default:
		metrics.RecordQueueRejected("full")
		return ErrFull
	}
}

func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Event {
	return q.events
}

func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.events)
	metrics.UpdateQueue(size, q.capacity)
	return size
}

func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting events. Already queued events stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
