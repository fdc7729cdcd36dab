package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/domain/model"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	r := model.NewNormalizeRequest("vote", model.Story)
	if err := q.Enqueue(ctx, r); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	q.MarkDequeued()
	if got.ID != r.ID {
		t.Errorf("expected %s, got %s", r.ID, got.ID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	Convey("Given a queue with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))
		ctx := context.Background()

		So(q.Enqueue(ctx, model.NewNormalizeRequest("vote", model.Story)), ShouldBeNil)
		So(q.Enqueue(ctx, model.NewNormalizeRequest("vote", model.Fun)), ShouldBeNil)

		Convey("When a third request arrives", func() {
			err := q.Enqueue(ctx, model.NewNormalizeRequest("vote", model.Audio))

			Convey("Then it is rejected without blocking", func() {
				So(errors.Is(err, ErrFull), ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue fails and queued requests drain", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(errors.Is(q.Enqueue(ctx, model.NewNormalizeRequest("vote", model.Story)), ErrClosed), ShouldBeTrue)

				var drained int
				for range q.Dequeue(ctx) {
					drained++
				}
				So(drained, ShouldEqual, 2)
			})
		})

		Convey("When the caller context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			q2 := NewInMemoryQueue()

			Convey("Then enqueue reports the context error", func() {
				So(errors.Is(q2.Enqueue(cctx, model.NewNormalizeRequest("vote", model.Story)), context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestInMemoryQueue_ConcurrentEnqueueAndClose(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(64))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := q.Enqueue(ctx, model.NewNormalizeRequest("vote", model.Story))
				if err != nil && !errors.Is(err, ErrFull) && !errors.Is(err, ErrClosed) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}()
	}
	go func() { _ = q.Close() }()
	wg.Wait()
	_ = q.Close()

	count := 0
	for range q.Dequeue(ctx) {
		count++
	}
	if count > 64 {
		t.Fatalf("drained %d requests from a queue of capacity 64", count)
	}
}
