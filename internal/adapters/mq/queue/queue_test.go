package queue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dailyboard/internal/adapters/mq/queue"
)

func event(id string) queue.Event {
	return queue.Event{EventID: id, Board: "daily", Member: "alice", Delta: 1}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue of capacity 2", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		ctx := context.Background()

		So(q.Len(ctx), ShouldEqual, 0)
		So(q.Capacity(), ShouldEqual, 2)

		Convey("Events come out in order", func() {
			So(q.Enqueue(ctx, event("e1")), ShouldBeNil)
			So(q.Enqueue(ctx, event("e2")), ShouldBeNil)
			So(q.Len(ctx), ShouldEqual, 2)

			ch := q.Dequeue(ctx)
			So((<-ch).EventID, ShouldEqual, "e1")
			So((<-ch).EventID, ShouldEqual, "e2")
			So(q.Len(ctx), ShouldEqual, 0)
		})

		Convey("A full queue rejects without blocking", func() {
			So(q.Enqueue(ctx, event("e1")), ShouldBeNil)
			So(q.Enqueue(ctx, event("e2")), ShouldBeNil)
			So(errors.Is(q.Enqueue(ctx, event("e3")), queue.ErrFull), ShouldBeTrue)
		})

		Convey("A cancelled context is refused", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := q.Enqueue(cctx, event("e1"))
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 0)
		})

		Convey("Closing keeps queued events readable", func() {
			So(q.Enqueue(ctx, event("e1")), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
			So(errors.Is(q.Enqueue(ctx, event("e2")), queue.ErrClosed), ShouldBeTrue)

			var got []string
			for e := range q.Dequeue(ctx) {
				got = append(got, e.EventID)
			}
			So(got, ShouldResemble, []string{"e1"})
		})
	})

	Convey("Given the default capacity", t, func() {
		q := queue.NewInMemoryQueue()
		ctx := context.Background()
		for i := 0; i < 1000; i++ {
			So(q.Enqueue(ctx, event(fmt.Sprintf("e%d", i))), ShouldBeNil)
		}
		So(q.Len(ctx), ShouldEqual, 1000)
		So(q.Capacity(), ShouldEqual, 100000)
	})
}
