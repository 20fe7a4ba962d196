package repository_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dailyboard/internal/adapters/redisconn"
	"github.com/okian/dailyboard/internal/adapters/repository"
	"github.com/okian/dailyboard/internal/domain/daily"
	"github.com/okian/dailyboard/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var (
	start    = time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)
	midnight = time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC)
)

// harness is one store plus a way to move its notion of time forward.
type harness struct {
	store   repository.Store
	clock   *daily.FakeClock
	advance func(time.Duration)
	mr      *miniredis.Miniredis
}

type backend struct {
	name string
	open func(t *testing.T) harness
}

func redisBackend(t *testing.T) harness {
	clock := daily.NewFakeClock(start)
	mr := miniredis.RunT(t)
	mr.SetTime(clock.Now())
	conn := redisconn.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	store := repository.NewRedisStore(conn, repository.WithPolicy(daily.NewPolicy(clock, time.UTC)))
	return harness{
		store: store,
		clock: clock,
		mr:    mr,
		advance: func(d time.Duration) {
			clock.Advance(d)
			mr.SetTime(clock.Now())
			mr.FastForward(d)
		},
	}
}

func memoryBackend(_ *testing.T) harness {
	clock := daily.NewFakeClock(start)
	store := repository.NewTreapStore(context.Background(),
		repository.WithPolicy(daily.NewPolicy(clock, time.UTC)),
		repository.WithSweepInterval(time.Hour),
	)
	return harness{store: store, clock: clock, advance: clock.Advance}
}

var backends = []backend{
	{name: "redis", open: redisBackend},
	{name: "memory", open: memoryBackend},
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends {
		Convey("Given the "+b.name+" store", t, func() {
			h := b.open(t)
			store := h.store
			ctx := context.Background()
			Reset(func() { _ = store.Close() })

			Convey("An unknown board is empty", func() {
				top, err := store.GetTop(ctx, "daily", 10)
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)

				n, err := store.Count(ctx, "daily")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)

				_, err = store.Rank(ctx, "daily", "alice")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

				_, err = store.Expiry(ctx, "daily")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Scores accumulate and rank descending", func() {
				s, err := store.AddScore(ctx, "daily", "alice", 5)
				So(err, ShouldBeNil)
				So(s, ShouldEqual, 5)
				s, err = store.AddScore(ctx, "daily", "bob", 9)
				So(err, ShouldBeNil)
				So(s, ShouldEqual, 9)
				s, err = store.AddScore(ctx, "daily", "alice", 2)
				So(err, ShouldBeNil)
				So(s, ShouldEqual, 7)

				top, err := store.GetTop(ctx, "daily", 10)
				So(err, ShouldBeNil)
				So(top, ShouldResemble, []repository.Entry{
					{Rank: 1, Member: "bob", Score: 9},
					{Rank: 2, Member: "alice", Score: 7},
				})

				Convey("And a negative delta lowers the score", func() {
					s, err := store.AddScore(ctx, "daily", "alice", -3)
					So(err, ShouldBeNil)
					So(s, ShouldEqual, 4)

					top, err := store.GetTop(ctx, "daily", 10)
					So(err, ShouldBeNil)
					So(top[0].Member, ShouldEqual, "bob")
					So(top[1], ShouldResemble, repository.Entry{Rank: 2, Member: "alice", Score: 4})
				})

				Convey("And a delta can overtake the leader", func() {
					_, err := store.AddScore(ctx, "daily", "alice", 10)
					So(err, ShouldBeNil)

					e, err := store.Rank(ctx, "daily", "alice")
					So(err, ShouldBeNil)
					So(e, ShouldResemble, repository.Entry{Rank: 1, Member: "alice", Score: 17})
					e, err = store.Rank(ctx, "daily", "bob")
					So(err, ShouldBeNil)
					So(e.Rank, ShouldEqual, 2)
				})

				Convey("And removing an absent member is a no-op", func() {
					n, err := store.RemoveMember(ctx, "daily", "carol")
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 0)

					count, err := store.Count(ctx, "daily")
					So(err, ShouldBeNil)
					So(count, ShouldEqual, 2)
				})

				Convey("And removing a member drops only that member", func() {
					n, err := store.RemoveMember(ctx, "daily", "bob")
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 1)

					top, err := store.GetTop(ctx, "daily", 10)
					So(err, ShouldBeNil)
					So(top, ShouldResemble, []repository.Entry{{Rank: 1, Member: "alice", Score: 7}})

					exp, err := store.Expiry(ctx, "daily")
					So(err, ShouldBeNil)
					So(exp.Equal(midnight), ShouldBeTrue)

					Convey("And removing the last member empties the board", func() {
						n, err := store.RemoveMember(ctx, "daily", "alice")
						So(err, ShouldBeNil)
						So(n, ShouldEqual, 1)

						top, err := store.GetTop(ctx, "daily", 10)
						So(err, ShouldBeNil)
						So(top, ShouldBeEmpty)
						_, err = store.Expiry(ctx, "daily")
						So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
					})
				})

				Convey("And other boards are independent", func() {
					top, err := store.GetTop(ctx, "weekly", 10)
					So(err, ShouldBeNil)
					So(top, ShouldBeEmpty)
				})

				Convey("And deleting the board drops everything", func() {
					ok, err := store.DeleteBoard(ctx, "daily")
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)

					ok, err = store.DeleteBoard(ctx, "daily")
					So(err, ShouldBeNil)
					So(ok, ShouldBeFalse)

					n, err := store.Count(ctx, "daily")
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 0)
				})
			})

			Convey("Equal scores order by member descending and stay stable", func() {
				for _, m := range []string{"a", "c", "b"} {
					_, err := store.AddScore(ctx, "daily", m, 5)
					So(err, ShouldBeNil)
				}
				first, err := store.GetTop(ctx, "daily", 10)
				So(err, ShouldBeNil)
				So(first, ShouldResemble, []repository.Entry{
					{Rank: 1, Member: "c", Score: 5},
					{Rank: 2, Member: "b", Score: 5},
					{Rank: 3, Member: "a", Score: 5},
				})
				second, err := store.GetTop(ctx, "daily", 10)
				So(err, ShouldBeNil)
				So(second, ShouldResemble, first)

				e, err := store.Rank(ctx, "daily", "b")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 2)
			})

			Convey("GetTop returns at most min(limit, 100) entries", func() {
				for i := 0; i < 120; i++ {
					_, err := store.AddScore(ctx, "daily", fmt.Sprintf("m%03d", i), float64(i))
					So(err, ShouldBeNil)
				}

				top, err := store.GetTop(ctx, "daily", 500)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, repository.MaxTopLimit)
				So(top[0], ShouldResemble, repository.Entry{Rank: 1, Member: "m119", Score: 119})
				So(top[99].Rank, ShouldEqual, 100)
				for i := 1; i < len(top); i++ {
					So(top[i-1].Score, ShouldBeGreaterThanOrEqualTo, top[i].Score)
				}

				top, err = store.GetTop(ctx, "daily", 3)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)

				n, err := store.Count(ctx, "daily")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 120)
			})

			Convey("The board resets at the next local midnight", func() {
				_, err := store.AddScore(ctx, "daily", "alice", 5)
				So(err, ShouldBeNil)

				exp, err := store.Expiry(ctx, "daily")
				So(err, ShouldBeNil)
				So(exp.Equal(midnight), ShouldBeTrue)

				h.advance(midnight.Sub(start) - time.Minute)
				top, err := store.GetTop(ctx, "daily", 10)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)

				h.advance(time.Minute)
				top, err = store.GetTop(ctx, "daily", 10)
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)
				_, err = store.Rank(ctx, "daily", "alice")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

				Convey("And the next write starts a fresh day", func() {
					s, err := store.AddScore(ctx, "daily", "alice", 2)
					So(err, ShouldBeNil)
					So(s, ShouldEqual, 2)

					exp, err := store.Expiry(ctx, "daily")
					So(err, ShouldBeNil)
					So(exp.Equal(midnight.AddDate(0, 0, 1)), ShouldBeTrue)
				})
			})

			Convey("Invalid arguments are rejected", func() {
				_, err := store.AddScore(ctx, "", "alice", 1)
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
				_, err = store.AddScore(ctx, "daily", "", 1)
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
				_, err = store.AddScore(ctx, "daily", "alice", math.NaN())
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
				_, err = store.AddScore(ctx, "daily", "alice", math.Inf(1))
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
				_, err = store.GetTop(ctx, "daily", 0)
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
				_, err = store.RemoveMember(ctx, "daily", "")
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
			})

			Convey("A cancelled context is reported as cancelled", func() {
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := store.AddScore(cctx, "daily", "alice", 1)
				So(errors.Is(err, repository.ErrCancelled), ShouldBeTrue)
				_, err = store.GetTop(cctx, "daily", 10)
				So(errors.Is(err, repository.ErrCancelled), ShouldBeTrue)
			})

			Convey("Concurrent increments are not lost", func() {
				var wg sync.WaitGroup
				for i := 0; i < 50; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, _ = store.AddScore(ctx, "daily", "alice", 1)
					}()
				}
				wg.Wait()

				e, err := store.Rank(ctx, "daily", "alice")
				So(err, ShouldBeNil)
				So(e.Score, ShouldEqual, 50)
			})
		})
	}
}

func TestRedisStore(t *testing.T) {
	Convey("Given the redis store", t, func() {
		h := redisBackend(t)
		store := h.store
		ctx := context.Background()
		Reset(func() { _ = store.Close() })

		Convey("Keys are namespaced and carry the midnight expiry", func() {
			_, err := store.AddScore(ctx, "daily", "alice", 5)
			So(err, ShouldBeNil)
			So(h.mr.Exists("leaderboard:daily"), ShouldBeTrue)
			So(h.mr.TTL("leaderboard:daily"), ShouldEqual, midnight.Sub(start))
		})

		Convey("A key without expiry reports the zero time until the next write", func() {
			_, err := h.mr.ZAdd("leaderboard:daily", 3, "alice")
			So(err, ShouldBeNil)

			exp, err := store.Expiry(ctx, "daily")
			So(err, ShouldBeNil)
			So(exp.IsZero(), ShouldBeTrue)

			s, err := store.AddScore(ctx, "daily", "alice", 1)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 4)
			exp, err = store.Expiry(ctx, "daily")
			So(err, ShouldBeNil)
			So(exp.Equal(midnight), ShouldBeTrue)
		})

		Convey("A wrong-typed key surfaces a backend error", func() {
			So(h.mr.Set("leaderboard:daily", "x"), ShouldBeNil)
			_, err := store.AddScore(ctx, "daily", "alice", 1)
			So(errors.Is(err, repository.ErrBackend), ShouldBeTrue)
		})

		Convey("An unreachable store surfaces a connection error", func() {
			h.mr.Close()
			_, err := store.AddScore(ctx, "daily", "alice", 1)
			So(errors.Is(err, repository.ErrConnection), ShouldBeTrue)
			_, err = store.GetTop(ctx, "daily", 10)
			So(errors.Is(err, repository.ErrConnection), ShouldBeTrue)
		})
	})
}

// afterHook runs after every command named cmd; if fail is set, that error
// replaces the outcome of every command named failCmd.
type afterHook struct {
	cmd     string
	after   func()
	failCmd string
	fail    error
}

func (h afterHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h afterHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if h.fail != nil && cmd.Name() == h.failCmd {
			return h.fail
		}
		err := next(ctx, cmd)
		if cmd.Name() == h.cmd && h.after != nil {
			h.after()
		}
		return err
	}
}

func (h afterHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisStoreInterruptedAddScore(t *testing.T) {
	Convey("Given a redis store whose expiry refresh is interrupted", t, func() {
		clock := daily.NewFakeClock(start)
		mr := miniredis.RunT(t)
		mr.SetTime(clock.Now())
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store := repository.NewRedisStore(redisconn.New(client),
			repository.WithPolicy(daily.NewPolicy(clock, time.UTC)))
		Reset(func() { _ = store.Close() })

		_, err := mr.ZAdd("leaderboard:daily", 5, "alice")
		So(err, ShouldBeNil)

		assertScoreKeptWithoutExpiry := func(score float64) {
			So(score, ShouldEqual, 8)
			got, err := mr.ZScore("leaderboard:daily", "alice")
			So(err, ShouldBeNil)
			So(got, ShouldEqual, 8)

			exp, err := store.Expiry(context.Background(), "daily")
			So(err, ShouldBeNil)
			So(exp.IsZero(), ShouldBeTrue)
		}

		Convey("When the caller is cancelled right after the score write", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			client.AddHook(afterHook{cmd: "zincrby", after: cancel})

			score, err := store.AddScore(ctx, "daily", "alice", 3)

			Convey("Then the new score comes back with a cancellation error", func() {
				So(errors.Is(err, repository.ErrCancelled), ShouldBeTrue)
				assertScoreKeptWithoutExpiry(score)
			})
		})

		Convey("When the expiry command times out", func() {
			client.AddHook(afterHook{failCmd: "expireat", fail: context.DeadlineExceeded})

			score, err := store.AddScore(context.Background(), "daily", "alice", 3)

			Convey("Then the new score comes back with a connection error", func() {
				So(errors.Is(err, repository.ErrConnection), ShouldBeTrue)
				assertScoreKeptWithoutExpiry(score)
			})
		})
	})
}

func TestTreapStoreSweep(t *testing.T) {
	Convey("Given the memory store with two boards", t, func() {
		clock := daily.NewFakeClock(start)
		store := repository.NewTreapStore(context.Background(),
			repository.WithPolicy(daily.NewPolicy(clock, time.UTC)),
			repository.WithSweepInterval(time.Hour),
		)
		Reset(func() { _ = store.Close() })
		ctx := context.Background()

		_, err := store.AddScore(ctx, "daily", "alice", 1)
		So(err, ShouldBeNil)
		_, err = store.AddScore(ctx, "weekly", "bob", 1)
		So(err, ShouldBeNil)

		Convey("Nothing is dropped before midnight", func() {
			So(store.Sweep(ctx), ShouldEqual, 0)
		})

		Convey("Both boards are dropped after midnight", func() {
			clock.Set(midnight)
			So(store.Sweep(ctx), ShouldEqual, 2)
			So(store.Sweep(ctx), ShouldEqual, 0)
		})

		Convey("Close is idempotent", func() {
			So(store.Close(), ShouldBeNil)
			So(store.Close(), ShouldBeNil)
		})
	})
}
