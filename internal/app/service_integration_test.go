package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sync/errgroup"

	"github.com/okian/arena/internal/adapters/repository"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
)

func TestService_ConcurrentVotes(t *testing.T) {
	stores := map[string]func(t *testing.T, ctx context.Context) repository.Store{
		"memory": func(t *testing.T, ctx context.Context) repository.Store {
			s := repository.NewMemoryStore(ctx, repository.WithSeed(3))
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite": func(t *testing.T, ctx context.Context) repository.Store {
			dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
			s, err := repository.Open(ctx, repository.DriverSQLite, dsn)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}

	for name, open := range stores {
		Convey(fmt.Sprintf("Given a service over the %s store", name), t, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			svc := service.New(
				service.WithStore(open(t, ctx)),
				service.WithLogger(logger.Nop()),
				service.WithWorkerCount(2),
				service.WithQueueSize(8),
			)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			names := make([]string, 12)
			for i := range names {
				names[i] = fmt.Sprintf("title-%02d", i)
			}
			n, err := svc.Seed(ctx, names)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, len(names))

			Convey("When many ballots are cast concurrently", func() {
				const voters, perVoter = 8, 15
				g, gctx := errgroup.WithContext(ctx)
				for v := 0; v < voters; v++ {
					g.Go(func() error {
						for i := 0; i < perVoter; i++ {
							m, err := svc.Matchup(gctx, "")
							if err != nil {
								return err
							}
							winner := []string{"1", "2", "0"}[(v+i)%3]
							_, err = svc.Vote(gctx, service.VoteInput{
								BallotID:  m.BallotID,
								ItemA:     m.A.ID,
								ItemB:     m.B.ID,
								Dimension: m.Dimension.String(),
								Winner:    winner,
							})
							if err != nil {
								return err
							}
						}
						return nil
					})
				}
				So(g.Wait(), ShouldBeNil)

				Convey("Then every vote is counted for both participants", func() {
					view, err := svc.Standings(ctx, "total")
					So(err, ShouldBeNil)
					played := 0
					for _, r := range view.Rows {
						played += r.MatchesPlayed
					}
					So(played, ShouldEqual, 2*voters*perVoter)
				})

				Convey("And every dimension stays centred on the baseline", func() {
					_, err := svc.Normalize(ctx)
					So(err, ShouldBeNil)
					st, err := svc.GetStats(ctx)
					So(err, ShouldBeNil)
					for _, d := range model.Dimensions {
						So(st.Means[d], ShouldAlmostEqual, model.DefaultBaseline, 1.0)
					}
				})
			})
		})
	}
}
