package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	dedupe "github.com/okian/arena/internal/domain/dedupe"
)

func TestInMemoryLedger(t *testing.T) {
	Convey("Given a new ledger", t, func() {
		ctx := context.Background()

		Convey("When creating a ledger with default options", func() {
			l := dedupe.NewInMemoryLedger()

			Convey("Then it should start empty", func() {
				So(l, ShouldNotBeNil)
				So(l.Size(), ShouldEqual, 0)
			})
		})

		Convey("When claiming ballots", func() {
			l := dedupe.NewInMemoryLedger()

			Convey("And the ballot is new", func() {
				first := l.Claim(ctx, "ballot-1")

				Convey("Then the claim succeeds and is recorded", func() {
					So(first, ShouldBeTrue)
					So(l.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the ballot was already claimed", func() {
				l.Claim(ctx, "ballot-1")
				first := l.Claim(ctx, "ballot-1")

				Convey("Then the replay is reported", func() {
					So(first, ShouldBeFalse)
					So(l.Size(), ShouldEqual, 1)
				})
			})

			Convey("And a claimed ballot is released", func() {
				l.Claim(ctx, "ballot-1")
				l.Release(ctx, "ballot-1")

				Convey("Then it can be claimed again", func() {
					So(l.Size(), ShouldEqual, 0)
					So(l.Claim(ctx, "ballot-1"), ShouldBeTrue)
				})
			})

			Convey("And an unknown ballot is released", func() {
				So(func() { l.Release(ctx, "never-seen") }, ShouldNotPanic)
				So(l.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the ledger is bounded", func() {
			l := dedupe.NewInMemoryLedger(dedupe.WithMaxSize(3))
			for i := 0; i < 4; i++ {
				l.Claim(ctx, fmt.Sprintf("ballot-%d", i))
			}

			Convey("Then the oldest claim is evicted", func() {
				So(l.Size(), ShouldEqual, 3)
				So(l.Claim(ctx, "ballot-0"), ShouldBeTrue)
				So(l.Claim(ctx, "ballot-3"), ShouldBeFalse)
			})
		})

		Convey("When the ledger is unbounded", func() {
			l := dedupe.NewInMemoryLedger(dedupe.WithMaxSize(0))
			for i := 0; i < 100; i++ {
				l.Claim(ctx, fmt.Sprintf("ballot-%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(l.Size(), ShouldEqual, 100)
				So(l.Claim(ctx, "ballot-0"), ShouldBeFalse)
			})
		})
	})
}

func TestLedgerConcurrentClaims(t *testing.T) {
	for _, size := range []int{0, 1000} {
		t.Run(fmt.Sprintf("max=%d", size), func(t *testing.T) {
			l := dedupe.NewInMemoryLedger(dedupe.WithMaxSize(size))
			var wins atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if l.Claim(context.Background(), "same-ballot") {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			if wins.Load() != 1 {
				t.Fatalf("expected exactly one winning claim, got %d", wins.Load())
			}
		})
	}
}
