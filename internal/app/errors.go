package service

import "errors"

var (
	// ErrNotStarted is returned by event submission before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrBackpressure means the event queue is full; the client may retry.
	ErrBackpressure = errors.New("event queue full")
)
