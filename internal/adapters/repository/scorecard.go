package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/okian/dailyboard/internal/adapters/redisconn"
)

const scorecardPrefix = "player:score:"

// Scorecard is the last game summary saved for a player.
type Scorecard struct {
	PlayerName string `json:"player_name"`
	Kills      uint32 `json:"kills"`
	Gold       uint32 `json:"gold"`
	GameTime   uint32 `json:"game_time"`
}

// Scorecards stores one Scorecard per player. Scorecards do not expire.
type Scorecards interface {
	// SaveScorecard writes card, replacing any previous card of the player.
	SaveScorecard(ctx context.Context, card Scorecard) error
	// GetScorecard returns ErrNotFound when the player has none.
	GetScorecard(ctx context.Context, player string) (Scorecard, error)
	// DeleteScorecard returns the number of cards removed (0 or 1).
	DeleteScorecard(ctx context.Context, player string) (int64, error)
}

func validatePlayer(player string) error {
	if player == "" {
		return fmt.Errorf("%w: empty player name", ErrInvalidArgument)
	}
	return nil
}

// RedisScorecards keeps scorecards as JSON strings under player:score:<name>.
type RedisScorecards struct {
	conn *redisconn.Manager
}

// NewRedisScorecards builds scorecard storage over a shared connection.
func NewRedisScorecards(conn *redisconn.Manager) *RedisScorecards {
	return &RedisScorecards{conn: conn}
}

func (r *RedisScorecards) SaveScorecard(ctx context.Context, card Scorecard) error {
	if err := validatePlayer(card.PlayerName); err != nil {
		return err
	}
	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("encode scorecard: %w", err)
	}
	err = r.conn.Do(ctx, "set", func(ctx context.Context, c redis.Cmdable) error {
		return c.Set(ctx, scorecardPrefix+card.PlayerName, payload, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("save scorecard of %q: %w", card.PlayerName, err)
	}
	return nil
}

func (r *RedisScorecards) GetScorecard(ctx context.Context, player string) (Scorecard, error) {
	if err := validatePlayer(player); err != nil {
		return Scorecard{}, err
	}
	var payload []byte
	err := r.conn.Do(ctx, "get", func(ctx context.Context, c redis.Cmdable) error {
		v, err := c.Get(ctx, scorecardPrefix+player).Bytes()
		payload = v
		return err
	})
	if errors.Is(err, redis.Nil) {
		return Scorecard{}, fmt.Errorf("scorecard of %q: %w", player, ErrNotFound)
	}
	if err != nil {
		return Scorecard{}, fmt.Errorf("get scorecard of %q: %w", player, err)
	}
	var card Scorecard
	if err := json.Unmarshal(payload, &card); err != nil {
		return Scorecard{}, fmt.Errorf("decode scorecard of %q: %w", player, err)
	}
	return card, nil
}

func (r *RedisScorecards) DeleteScorecard(ctx context.Context, player string) (int64, error) {
	if err := validatePlayer(player); err != nil {
		return 0, err
	}
	var n int64
	err := r.conn.Do(ctx, "del", func(ctx context.Context, c redis.Cmdable) error {
		v, err := c.Del(ctx, scorecardPrefix+player).Result()
		n = v
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete scorecard of %q: %w", player, err)
	}
	return n, nil
}

// MemoryScorecards is the in-process Scorecards used with the memory backend.
type MemoryScorecards struct {
	mu    sync.RWMutex
	cards map[string]Scorecard
}

// NewMemoryScorecards returns empty scorecard storage.
func NewMemoryScorecards() *MemoryScorecards {
	return &MemoryScorecards{cards: make(map[string]Scorecard)}
}

func (m *MemoryScorecards) SaveScorecard(ctx context.Context, card Scorecard) error {
	if err := validatePlayer(card.PlayerName); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.cards[card.PlayerName] = card
	m.mu.Unlock()
	return nil
}

func (m *MemoryScorecards) GetScorecard(ctx context.Context, player string) (Scorecard, error) {
	if err := validatePlayer(player); err != nil {
		return Scorecard{}, err
	}
	if err := ctxErr(ctx); err != nil {
		return Scorecard{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	card, ok := m.cards[player]
	if !ok {
		return Scorecard{}, fmt.Errorf("scorecard of %q: %w", player, ErrNotFound)
	}
	return card, nil
}

func (m *MemoryScorecards) DeleteScorecard(ctx context.Context, player string) (int64, error) {
	if err := validatePlayer(player); err != nil {
		return 0, err
	}
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[player]; !ok {
		return 0, nil
	}
	delete(m.cards, player)
	return 1, nil
}
