package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/dailyboard/internal/adapters/redisconn"
	"github.com/okian/dailyboard/pkg/logger"
	"github.com/okian/dailyboard/pkg/metrics"
)

// RedisStore keeps each leaderboard in a sorted set and lets the store's
// own key expiry implement the midnight reset.
//
// AddScore issues ZINCRBY and EXPIREAT as two separate commands. Two
// concurrent writers to one key may interleave so that the final expiry comes
// from the earlier clock read; both values are the same midnight unless the
// writes straddle it.
type RedisStore struct {
	conn *redisconn.Manager
	settings
}

// NewRedisStore builds a store over a shared connection.
func NewRedisStore(conn *redisconn.Manager, opts ...Option) *RedisStore {
	return &RedisStore{conn: conn, settings: newSettings(opts)}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

// AddScore implements Store.AddScore. When the score write succeeds but the
// expiry refresh fails, the new score is returned together with the error.
func (s *RedisStore) AddScore(ctx context.Context, key, member string, delta float64) (float64, error) {
	if err := validateMember(key, member); err != nil {
		return 0, err
	}
	if err := validateDelta(delta); err != nil {
		return 0, err
	}
	k := s.key(key)

	var score float64
	err := s.conn.Do(ctx, "zincrby", func(ctx context.Context, c redis.Cmdable) error {
		v, err := c.ZIncrBy(ctx, k, delta, member).Result()
		score = v
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("add score to %q: %w", key, err)
	}
	metrics.RecordScoreUpdate()

	expiry := s.policy.Expiry()
	err = s.conn.Do(ctx, "expireat", func(ctx context.Context, c redis.Cmdable) error {
		return c.ExpireAt(ctx, k, expiry).Err()
	})
	if err != nil {
		metrics.RecordExpiryRefreshFailure()
		s.logger.Warn(ctx, "score written without expiry refresh",
			logger.String("board", key),
			logger.String("member", member),
			logger.Error(err),
		)
		return score, fmt.Errorf("refresh expiry of %q: %w", key, err)
	}
	metrics.RecordExpiryRefresh()
	return score, nil
}

// RemoveMember implements Store.RemoveMember.
func (s *RedisStore) RemoveMember(ctx context.Context, key, member string) (int64, error) {
	if err := validateMember(key, member); err != nil {
		return 0, err
	}
	var n int64
	err := s.conn.Do(ctx, "zrem", func(ctx context.Context, c redis.Cmdable) error {
		v, err := c.ZRem(ctx, s.key(key), member).Result()
		n = v
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("remove %q from %q: %w", member, key, err)
	}
	metrics.RecordMembersRemoved(n)
	return n, nil
}

// GetTop implements Store.GetTop.
func (s *RedisStore) GetTop(ctx context.Context, key string, limit int) ([]Entry, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	metrics.RecordTopQuery()

	var rows []redis.Z
	err = s.conn.Do(ctx, "zrevrange", func(ctx context.Context, c redis.Cmdable) error {
		v, err := c.ZRevRangeWithScores(ctx, s.key(key), 0, int64(limit-1)).Result()
		rows = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("top %d of %q: %w", limit, key, err)
	}

	out := make([]Entry, 0, len(rows))
	for i, z := range rows {
		out = append(out, Entry{Rank: i + 1, Member: fmt.Sprint(z.Member), Score: z.Score})
	}
	return out, nil
}

// Rank implements Store.Rank.
func (s *RedisStore) Rank(ctx context.Context, key, member string) (Entry, error) {
	if err := validateMember(key, member); err != nil {
		return Entry{}, err
	}
	k := s.key(key)

	var rankCmd *redis.IntCmd
	var scoreCmd *redis.FloatCmd
	err := s.conn.Do(ctx, "zrevrank", func(ctx context.Context, c redis.Cmdable) error {
		_, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
			rankCmd = p.ZRevRank(ctx, k, member)
			scoreCmd = p.ZScore(ctx, k, member)
			return nil
		})
		return err
	})
	if errors.Is(err, redis.Nil) {
		return Entry{}, fmt.Errorf("%q in %q: %w", member, key, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("rank %q in %q: %w", member, key, err)
	}
	return Entry{Rank: int(rankCmd.Val()) + 1, Member: member, Score: scoreCmd.Val()}, nil
}

// Count implements Store.Count.
func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var n int64
	err := s.conn.Do(ctx, "zcard", func(ctx context.Context, c redis.Cmdable) error {
		v, err := c.ZCard(ctx, s.key(key)).Result()
		n = v
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", key, err)
	}
	return n, nil
}

// Expiry implements Store.Expiry. The instant is rebuilt from the remaining
// TTL and rounded to the second, which midnights always fall on. A key left
// without an expiry (its refresh failed) reports the zero time.
func (s *RedisStore) Expiry(ctx context.Context, key string) (time.Time, error) {
	if err := validateKey(key); err != nil {
		return time.Time{}, err
	}
	var ttl time.Duration
	err := s.conn.Do(ctx, "pttl", func(ctx context.Context, c redis.Cmdable) error {
		v, err := c.PTTL(ctx, s.key(key)).Result()
		ttl = v
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("expiry of %q: %w", key, err)
	}
	switch {
	case ttl == -2 || ttl == -2*time.Millisecond:
		return time.Time{}, fmt.Errorf("leaderboard %q: %w", key, ErrNotFound)
	case ttl < 0:
		return time.Time{}, nil
	}
	return s.policy.Now().Add(ttl).Round(time.Second).In(s.policy.Location()), nil
}

// DeleteBoard implements Store.DeleteBoard.
func (s *RedisStore) DeleteBoard(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	var n int64
	err := s.conn.Do(ctx, "del", func(ctx context.Context, c redis.Cmdable) error {
		v, err := c.Del(ctx, s.key(key)).Result()
		n = v
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	return n > 0, nil
}

// Close releases the shared connection.
func (s *RedisStore) Close() error {
	return s.conn.Close()
}
