// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidEvent marks an event that can never be applied.
var ErrInvalidEvent = errors.New("invalid event")

// ScoreEvent asks for Delta to be added to Member's score on Board.
type ScoreEvent struct {
	EventID string    // unique id for idempotency
	Board   string    // leaderboard key
	Member  string    // member identifier
	Delta   float64   // signed score increment
	TS      time.Time // client timestamp, informational only
}

// Validate checks the fields a store would reject.
func (e ScoreEvent) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	case e.Board == "":
		return fmt.Errorf("%w: board is required", ErrInvalidEvent)
	case e.Member == "":
		return fmt.Errorf("%w: member is required", ErrInvalidEvent)
	case math.IsNaN(e.Delta) || math.IsInf(e.Delta, 0):
		return fmt.Errorf("%w: delta must be finite", ErrInvalidEvent)
	}
	return nil
}
