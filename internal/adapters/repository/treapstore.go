package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/dailyboard/internal/adapters/redisconn"
	"github.com/okian/dailyboard/pkg/logger"
	"github.com/okian/dailyboard/pkg/metrics"
)

// In-memory Store: one order-statistic treap per leaderboard key.
//
// The BST comparator puts better entries first ("less" means ranks
// earlier), so an in-order walk reads the leaderboard from the top. Subtree
// sizes give Rank in O(log n).

type node struct {
	member string
	score  float64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aScore, aMember) ranks before (bScore, bMember).
func less(aScore float64, aMember string, bScore float64, bMember string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aMember > bMember
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, member string, score float64) *node {
	if n == nil {
		return &node{member: member, score: score, prio: rand.Uint64(), size: 1}
	}
	if less(score, member, n.score, n.member) {
		n.left = insert(n.left, member, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, member, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, member string, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && member == n.member:
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, member, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, member, score)
		}
	case less(score, member, n.score, n.member):
		n.left = deleteNode(n.left, member, score)
	default:
		n.right = deleteNode(n.right, member, score)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{Rank: len(*out) + 1, Member: n.member, Score: n.score})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// position counts the entries ranked before (score, member).
func position(n *node, member string, score float64) int {
	pos := 0
	for n != nil {
		switch {
		case score == n.score && member == n.member:
			return pos + nsize(n.left)
		case less(score, member, n.score, n.member):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return pos
}

// board is one Active leaderboard. A key with no board is Absent.
type board struct {
	root      *node
	scores    map[string]float64
	expiresAt time.Time
}

// TreapStore is an in-process Store. Keys move Absent -> Active on the first
// AddScore and back to Absent when their midnight passes, when emptied, or
// on DeleteBoard. Expired boards are invisible to reads immediately and
// freed by a background sweeper.
type TreapStore struct {
	mu     sync.RWMutex
	boards map[string]*board
	settings

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTreapStore constructs the store and starts its sweeper, which runs
// until ctx ends or Close is called.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		boards:   make(map[string]*board),
		settings: newSettings(opts),
		stopChan: make(chan struct{}),
	}
	s.startSweeper(ctx)
	return s
}

func (s *TreapStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep drops every board whose midnight has passed and returns how many
// were dropped.
func (s *TreapStore) Sweep(ctx context.Context) int {
	s.mu.Lock()
	dropped := 0
	for key, b := range s.boards {
		if s.policy.Expired(b.expiresAt) {
			delete(s.boards, key)
			dropped++
		}
	}
	live := len(s.boards)
	s.mu.Unlock()

	metrics.UpdateTrackedBoards(live)
	if dropped > 0 {
		metrics.RecordBoardsExpired(dropped)
		s.logger.Info(ctx, "daily leaderboards reset", logger.Int("dropped", dropped), logger.Int("live", live))
	}
	return dropped
}

// Close stops the sweeper.
func (s *TreapStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return redisconn.Classify(err)
	}
	return nil
}

// live returns the Active board for key or nil. Caller holds s.mu.
func (s *TreapStore) live(key string) *board {
	b, ok := s.boards[key]
	if !ok || s.policy.Expired(b.expiresAt) {
		return nil
	}
	return b
}

// AddScore implements Store.AddScore.
func (s *TreapStore) AddScore(ctx context.Context, key, member string, delta float64) (float64, error) {
	if err := validateMember(key, member); err != nil {
		return 0, err
	}
	if err := validateDelta(delta); err != nil {
		return 0, err
	}
	if err := ctxErr(ctx); err != nil {
		return 0, fmt.Errorf("add score to %q: %w", key, err)
	}
	start := time.Now()

	s.mu.Lock()
	b := s.live(key)
	if b == nil {
		b = &board{scores: make(map[string]float64)}
		s.boards[key] = b
	}
	score := delta
	if old, ok := b.scores[member]; ok {
		b.root = deleteNode(b.root, member, old)
		score = old + delta
	}
	b.scores[member] = score
	b.root = insert(b.root, member, score)
	b.expiresAt = s.policy.Expiry()
	s.mu.Unlock()

	metrics.RecordStoreCommand("zincrby", float64(time.Since(start).Microseconds())/1000)
	metrics.RecordScoreUpdate()
	metrics.RecordExpiryRefresh()
	return score, nil
}

// RemoveMember implements Store.RemoveMember.
func (s *TreapStore) RemoveMember(ctx context.Context, key, member string) (int64, error) {
	if err := validateMember(key, member); err != nil {
		return 0, err
	}
	if err := ctxErr(ctx); err != nil {
		return 0, fmt.Errorf("remove %q from %q: %w", member, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.live(key)
	if b == nil {
		return 0, nil
	}
	old, ok := b.scores[member]
	if !ok {
		return 0, nil
	}
	b.root = deleteNode(b.root, member, old)
	delete(b.scores, member)
	if len(b.scores) == 0 {
		delete(s.boards, key)
	}
	metrics.RecordMembersRemoved(1)
	return 1, nil
}

// GetTop implements Store.GetTop.
func (s *TreapStore) GetTop(ctx context.Context, key string, limit int) ([]Entry, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	if err := ctxErr(ctx); err != nil {
		return nil, fmt.Errorf("top %d of %q: %w", limit, key, err)
	}
	metrics.RecordTopQuery()

	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.live(key)
	if b == nil {
		return []Entry{}, nil
	}
	out := make([]Entry, 0, min(limit, len(b.scores)))
	collectTopN(b.root, limit, &out)
	return out, nil
}

// Rank implements Store.Rank.
func (s *TreapStore) Rank(ctx context.Context, key, member string) (Entry, error) {
	if err := validateMember(key, member); err != nil {
		return Entry{}, err
	}
	if err := ctxErr(ctx); err != nil {
		return Entry{}, fmt.Errorf("rank %q in %q: %w", member, key, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.live(key)
	if b == nil {
		return Entry{}, fmt.Errorf("%q in %q: %w", member, key, ErrNotFound)
	}
	score, ok := b.scores[member]
	if !ok {
		return Entry{}, fmt.Errorf("%q in %q: %w", member, key, ErrNotFound)
	}
	return Entry{Rank: position(b.root, member, score) + 1, Member: member, Score: score}, nil
}

// Count implements Store.Count.
func (s *TreapStore) Count(ctx context.Context, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if err := ctxErr(ctx); err != nil {
		return 0, fmt.Errorf("count %q: %w", key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b := s.live(key); b != nil {
		return int64(len(b.scores)), nil
	}
	return 0, nil
}

// Expiry implements Store.Expiry.
func (s *TreapStore) Expiry(ctx context.Context, key string) (time.Time, error) {
	if err := validateKey(key); err != nil {
		return time.Time{}, err
	}
	if err := ctxErr(ctx); err != nil {
		return time.Time{}, fmt.Errorf("expiry of %q: %w", key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.live(key)
	if b == nil {
		return time.Time{}, fmt.Errorf("leaderboard %q: %w", key, ErrNotFound)
	}
	return b.expiresAt, nil
}

// DeleteBoard implements Store.DeleteBoard.
func (s *TreapStore) DeleteBoard(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if err := ctxErr(ctx); err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := s.live(key) != nil
	delete(s.boards, key)
	return existed, nil
}
