package queue

import "errors"

// Reasons an event is refused by Enqueue.
var (
	ErrFull   = errors.New("queue full")
	ErrClosed = errors.New("queue closed")
)
