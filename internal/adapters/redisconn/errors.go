package redisconn

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Sentinel kinds for backing store failures.
var (
	// ErrConnection: the store is unreachable, timed out, or the connection
	// was reset or closed. Transient.
	ErrConnection = errors.New("backing store connection error")
	// ErrCancelled: the caller's context was cancelled.
	ErrCancelled = errors.New("operation cancelled")
	// ErrBackend: the store answered with an error reply.
	ErrBackend = errors.New("backing store error reply")
)

// Classify maps a raw client error onto one of the sentinel kinds, keeping
// the original error in the chain. redis.Nil and nil pass through untouched.
func Classify(err error) error {
	switch {
	case err == nil, errors.Is(err, redis.Nil):
		return err
	case errors.Is(err, ErrConnection), errors.Is(err, ErrCancelled), errors.Is(err, ErrBackend):
		return err
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	var reply redis.Error
	if errors.As(err, &reply) {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// Kind names the class of err for metrics labels.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrBackend):
		return "backend"
	case errors.Is(err, ErrConnection):
		return "connection"
	default:
		return "unknown"
	}
}
