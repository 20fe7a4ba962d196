// Package repository implements the daily-reset ranking store.
//
// Ordering everywhere is score DESC, then member DESC by byte order. The
// member tie-break is what a Redis sorted set yields for a reverse range, and
// the in-memory store reproduces it so both backends answer identically.
package repository

import (
	"context"
	"fmt"
	"math"
	"time"
)

// MaxTopLimit caps GetTop regardless of the requested limit.
const MaxTopLimit = 100

// Entry is one leaderboard row. Rank is the 1-based position computed at
// query time; it is never stored.
type Entry struct {
	Rank   int     `json:"rank"`
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// Store is a set of independent leaderboards keyed by name. Each key resets
// at the next local midnight after its last AddScore.
type Store interface {
	// AddScore increments member's score by delta (inserting it at delta when
	// absent), then moves the key's expiry to the next local midnight.
	// Returns the member's new score.
	AddScore(ctx context.Context, key, member string, delta float64) (float64, error)

	// RemoveMember deletes member from key. Removing an absent member returns
	// 0 and no error. Expiry is left untouched.
	RemoveMember(ctx context.Context, key, member string) (int64, error)

	// GetTop returns up to min(limit, MaxTopLimit) entries, best first.
	// An absent or expired key yields an empty slice.
	GetTop(ctx context.Context, key string, limit int) ([]Entry, error)

	// Rank returns member's position and score. ErrNotFound when absent.
	Rank(ctx context.Context, key, member string) (Entry, error)

	// Count returns the number of members in key.
	Count(ctx context.Context, key string) (int64, error)

	// Expiry returns the instant key resets at. ErrNotFound when absent.
	Expiry(ctx context.Context, key string) (time.Time, error)

	// DeleteBoard drops key with all its entries.
	DeleteBoard(ctx context.Context, key string) (bool, error)

	Close() error
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty leaderboard key", ErrInvalidArgument)
	}
	return nil
}

func validateMember(key, member string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if member == "" {
		return fmt.Errorf("%w: empty member", ErrInvalidArgument)
	}
	return nil
}

func validateDelta(delta float64) error {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return fmt.Errorf("%w: score delta must be finite, got %v", ErrInvalidArgument, delta)
	}
	return nil
}

func clampLimit(limit int) (int, error) {
	if limit < 1 {
		return 0, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, limit)
	}
	if limit > MaxTopLimit {
		return MaxTopLimit, nil
	}
	return limit, nil
}
