package worker

import (
	"time"

	"github.com/okian/dailyboard/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithEventTimeout bounds how long one event may take to apply.
func WithEventTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithResultHook is called after every event with the outcome of AddScore.
func WithResultHook(fn func(e Event, score float64, err error)) Option {
	return func(w *InMemoryWorker) {
		w.hook = fn
	}
}
