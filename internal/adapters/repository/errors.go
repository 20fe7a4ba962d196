package repository

import (
	"errors"

	"github.com/okian/dailyboard/internal/adapters/redisconn"
)

// Sentinel kinds for leaderboard errors. The connection kinds are shared with
// redisconn so errors.Is works on whatever the backend returns.
var (
	// ErrInvalidArgument marks a caller bug: empty key or member, non-finite
	// delta, or a non-positive limit. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned by point lookups (Rank, Expiry, GetScorecard).
	// Absent keys are not an error for RemoveMember and GetTop.
	ErrNotFound = errors.New("not found")

	ErrConnection = redisconn.ErrConnection
	ErrCancelled  = redisconn.ErrCancelled
	ErrBackend    = redisconn.ErrBackend
)
