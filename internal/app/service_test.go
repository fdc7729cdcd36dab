package service_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sync/errgroup"

	"github.com/okian/arena/internal/adapters/repository"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/matchmaking"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/normalize"
	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/pkg/logger"
)

var titles = []string{"Cowboy Bebop", "Mushishi", "Monster", "Ping Pong", "Haibane Renmei"}

func startService(t *testing.T, opts ...service.Option) (*service.Service, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	opts = append([]service.Option{
		service.WithLogger(logger.Nop()),
		service.WithWorkerCount(1),
		service.WithSeed(7),
	}, opts...)
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, ctx
}

func idsByName(t *testing.T, ctx context.Context, svc *service.Service) map[string]string {
	t.Helper()
	view, err := svc.Standings(ctx, "total")
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	ids := make(map[string]string, len(view.Rows))
	for _, r := range view.Rows {
		ids[r.Name] = r.ID
	}
	return ids
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()))
		ctx := context.Background()

		Convey("Then operations report it is not started", func() {
			_, err := svc.Matchup(ctx, "")
			So(err, ShouldEqual, service.ErrNotStarted)
			_, err = svc.Vote(ctx, service.VoteInput{ItemA: "a", ItemB: "b", Dimension: "fun", Winner: "1"})
			So(err, ShouldEqual, service.ErrNotStarted)
			_, err = svc.Standings(ctx, "")
			So(err, ShouldEqual, service.ErrNotStarted)
		})

		Convey("And its stats say so", func() {
			st, err := svc.GetStats(ctx)
			So(err, ShouldBeNil)
			So(st.Started, ShouldBeFalse)
		})

		Convey("And stopping it is a no-op", func() {
			So(func() { svc.Stop() }, ShouldNotPanic)
		})
	})

	Convey("Given invalid rating parameters", t, func() {
		p := rating.DefaultParams()
		p.KMin = p.KMax + 1
		svc := service.New(service.WithLogger(logger.Nop()), service.WithRatingParams(p))

		Convey("Then start fails", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, rating.ErrInvalidParams), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		svc, ctx := startService(t)

		Convey("Starting again is harmless", func() {
			So(svc.Start(ctx), ShouldBeNil)
		})

		Convey("Stop marks it stopped", func() {
			svc.Stop()
			st, err := svc.GetStats(ctx)
			So(err, ShouldBeNil)
			So(st.Started, ShouldBeFalse)
		})
	})
}

func TestService_Seed(t *testing.T) {
	Convey("Given an empty store", t, func() {
		svc, ctx := startService(t)

		Convey("Seeding creates baseline items with their import rank", func() {
			n, err := svc.Seed(ctx, append([]string{"  "}, titles...))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, len(titles))

			view, err := svc.Standings(ctx, "story")
			So(err, ShouldBeNil)
			So(view.Rows, ShouldHaveLength, len(titles))
			for _, r := range view.Rows {
				So(r.Rank, ShouldEqual, 1)
				So(r.Ratings[model.Story], ShouldEqual, model.DefaultBaseline)
			}

			Convey("And a second seed leaves the store untouched", func() {
				n, err := svc.Seed(ctx, []string{"Another"})
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				st, err := svc.GetStats(ctx)
				So(err, ShouldBeNil)
				So(st.Items, ShouldEqual, len(titles))
			})
		})
	})
}

func TestService_Vote(t *testing.T) {
	Convey("Given a seeded service", t, func() {
		svc, ctx := startService(t)
		_, err := svc.Seed(ctx, titles)
		So(err, ShouldBeNil)
		ids := idsByName(t, ctx, svc)
		a, b := ids["Monster"], ids["Mushishi"]

		Convey("When A wins a fresh matchup", func() {
			res, err := svc.Vote(ctx, service.VoteInput{
				BallotID: "ballot-1", ItemA: a, ItemB: b, Dimension: "story", Winner: "1",
			})
			So(err, ShouldBeNil)

			Convey("Then both ratings move by the full K share", func() {
				So(res.Duplicate, ShouldBeFalse)
				So(res.Dimension, ShouldEqual, model.Story)
				So(res.A.OldRating, ShouldEqual, 1200.0)
				So(res.A.NewRating, ShouldAlmostEqual, 1230.0, 1e-9)
				So(res.B.NewRating, ShouldAlmostEqual, 1170.0, 1e-9)
				So(res.A.Diff, ShouldAlmostEqual, -res.B.Diff, 1e-9)
			})

			Convey("And ranks are reported before and after", func() {
				So(res.A.OldRank, ShouldEqual, 1)
				So(res.A.NewRank, ShouldEqual, 1)
				So(res.B.OldRank, ShouldEqual, 1)
				So(res.B.NewRank, ShouldEqual, len(titles))
				So(res.Total, ShouldEqual, len(titles))
			})

			Convey("And the change is persisted with match counts", func() {
				pos, err := svc.RankOf(ctx, a, "story")
				So(err, ShouldBeNil)
				So(pos.Rank, ShouldEqual, 1)
				So(pos.Percentile, ShouldAlmostEqual, 20.0, 1e-9)

				view, err := svc.Standings(ctx, "story")
				So(err, ShouldBeNil)
				So(view.Rows[0].ID, ShouldEqual, a)
				So(view.Rows[0].MatchesPlayed, ShouldEqual, 1)
				So(view.Rows[len(view.Rows)-1].ID, ShouldEqual, b)
			})

			Convey("And replaying the ballot changes nothing", func() {
				again, err := svc.Vote(ctx, service.VoteInput{
					BallotID: "ballot-1", ItemA: a, ItemB: b, Dimension: "story", Winner: "1",
				})
				So(err, ShouldBeNil)
				So(again.Duplicate, ShouldBeTrue)

				view, err := svc.Standings(ctx, "story")
				So(err, ShouldBeNil)
				So(view.Rows[0].Ratings[model.Story], ShouldAlmostEqual, 1230.0, 1e-9)
				So(view.Rows[0].MatchesPlayed, ShouldEqual, 1)
			})
		})

		Convey("A draw between equals changes nothing but match counts", func() {
			res, err := svc.Vote(ctx, service.VoteInput{ItemA: a, ItemB: b, Dimension: "fun", Winner: "draw"})
			So(err, ShouldBeNil)
			So(res.A.Diff, ShouldAlmostEqual, 0.0, 1e-9)
			So(res.B.Diff, ShouldAlmostEqual, 0.0, 1e-9)
		})

		Convey("Invalid ballots are rejected", func() {
			_, err := svc.Vote(ctx, service.VoteInput{ItemA: a, ItemB: b, Dimension: "fun", Winner: "3"})
			So(errors.Is(err, rating.ErrInvalidOutcome), ShouldBeTrue)

			_, err = svc.Vote(ctx, service.VoteInput{ItemA: a, ItemB: b, Dimension: "plot", Winner: "1"})
			So(errors.Is(err, model.ErrUnknownDimension), ShouldBeTrue)

			_, err = svc.Vote(ctx, service.VoteInput{ItemA: a, ItemB: a, Dimension: "fun", Winner: "1"})
			So(errors.Is(err, service.ErrSameItem), ShouldBeTrue)
		})

		Convey("A vote on a missing item fails and frees its ballot", func() {
			_, err := svc.Vote(ctx, service.VoteInput{
				BallotID: "ballot-2", ItemA: a, ItemB: "missing", Dimension: "fun", Winner: "2",
			})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			res, err := svc.Vote(ctx, service.VoteInput{
				BallotID: "ballot-2", ItemA: a, ItemB: b, Dimension: "fun", Winner: "2",
			})
			So(err, ShouldBeNil)
			So(res.Duplicate, ShouldBeFalse)
			So(res.B.Diff, ShouldBeGreaterThan, 0)
		})

		Convey("A burst of votes keeps at most one pass queued", func() {
			for i := 0; i < 50; i++ {
				_, err := svc.Vote(ctx, service.VoteInput{ItemA: a, ItemB: b, Dimension: "story", Winner: "1"})
				So(err, ShouldBeNil)
				st, err := svc.GetStats(ctx)
				So(err, ShouldBeNil)
				So(st.QueueLength, ShouldBeLessThanOrEqualTo, 1)
			}
		})

		Convey("Votes eventually trigger normalization passes", func() {
			for i := 0; i < 5; i++ {
				_, err := svc.Vote(ctx, service.VoteInput{ItemA: a, ItemB: b, Dimension: "voice", Winner: "1"})
				So(err, ShouldBeNil)
			}
			deadline := time.Now().Add(2 * time.Second)
			var st service.Stats
			for time.Now().Before(deadline) {
				st, err = svc.GetStats(ctx)
				So(err, ShouldBeNil)
				if st.NormalizePasses > 0 {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			So(st.NormalizePasses, ShouldBeGreaterThan, 0)
			So(st.NormalizeFailures, ShouldEqual, 0)
			So(math.Abs(st.Means[model.Voice]-model.DefaultBaseline), ShouldBeLessThanOrEqualTo, normalize.DefaultThreshold)
		})
	})
}

func TestService_StopWhileServing(t *testing.T) {
	Convey("Given a running service that owns its store", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithLogger(logger.Nop()), service.WithWorkerCount(1), service.WithSeed(5))
		So(svc.Start(ctx), ShouldBeNil)
		_, err := svc.Seed(ctx, titles)
		So(err, ShouldBeNil)

		Convey("Calls racing Stop either succeed or report not started", func() {
			var g errgroup.Group
			for i := 0; i < 4; i++ {
				g.Go(func() error {
					for j := 0; j < 200; j++ {
						if _, err := svc.Matchup(ctx, ""); err != nil && !errors.Is(err, service.ErrNotStarted) {
							return err
						}
					}
					return nil
				})
			}
			svc.Stop()
			So(g.Wait(), ShouldBeNil)
		})

		Convey("A restart begins from a fresh store", func() {
			svc.Stop()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			st, err := svc.GetStats(ctx)
			So(err, ShouldBeNil)
			So(st.Items, ShouldEqual, 0)
		})
	})
}

func TestService_Matchup(t *testing.T) {
	Convey("Given a service with a single item", t, func() {
		svc, ctx := startService(t)
		_, err := svc.Seed(ctx, []string{"Lonely"})
		So(err, ShouldBeNil)
		id := idsByName(t, ctx, svc)["Lonely"]

		Convey("Then no matchup can be formed", func() {
			_, err := svc.Matchup(ctx, "")
			So(errors.Is(err, matchmaking.ErrNotEnoughData), ShouldBeTrue)
			_, err = svc.Matchup(ctx, id)
			So(errors.Is(err, matchmaking.ErrNotEnoughData), ShouldBeTrue)
		})
	})

	Convey("Given a seeded service", t, func() {
		svc, ctx := startService(t)
		_, err := svc.Seed(ctx, titles)
		So(err, ShouldBeNil)
		ids := idsByName(t, ctx, svc)

		Convey("A matchup holds two distinct items and a fresh ballot", func() {
			m, err := svc.Matchup(ctx, "")
			So(err, ShouldBeNil)
			So(m.A.ID, ShouldNotEqual, m.B.ID)
			So(m.BallotID, ShouldNotBeEmpty)
			So(m.Dimension.Valid(), ShouldBeTrue)
			So(m.A.Position.Total, ShouldEqual, len(titles))
			p := m.Probabilities
			So(p.WinA+p.Draw+p.WinB, ShouldAlmostEqual, 100.0, 0.2)

			next, err := svc.Matchup(ctx, "")
			So(err, ShouldBeNil)
			So(next.BallotID, ShouldNotEqual, m.BallotID)
		})

		Convey("A focused matchup keeps the focus item as A", func() {
			m, err := svc.Matchup(ctx, ids["Ping Pong"])
			So(err, ShouldBeNil)
			So(m.A.ID, ShouldEqual, ids["Ping Pong"])
			So(m.B.ID, ShouldNotEqual, m.A.ID)
		})

		Convey("A missing focus item is reported", func() {
			_, err := svc.Matchup(ctx, "nope")
			So(errors.Is(err, matchmaking.ErrFocusNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Normalize(t *testing.T) {
	Convey("Given a store whose fun mean drifted to 1215", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		for _, r := range []float64{1180, 1250, 1215} {
			it, err := model.NewItem("x", r)
			So(err, ShouldBeNil)
			So(store.Create(ctx, it), ShouldBeNil)
		}
		svc, ctx := startService(t, service.WithStore(store))

		Convey("A pass pulls it back to the baseline", func() {
			rep, err := svc.Normalize(ctx)
			So(err, ShouldBeNil)
			So(rep.Applied(), ShouldBeTrue)
			So(rep.Dimensions[model.Fun].Shift, ShouldAlmostEqual, -15.0, 1e-9)

			mean, _, err := store.Mean(ctx, model.Fun)
			So(err, ShouldBeNil)
			So(mean, ShouldAlmostEqual, 1200.0, 1e-9)
		})

		Convey("Stopping the service leaves an injected store open", func() {
			svc.Stop()
			n, err := store.TotalCount(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
		})
	})
}

func TestService_StandingsSort(t *testing.T) {
	Convey("Given a seeded service", t, func() {
		svc, ctx := startService(t)
		_, err := svc.Seed(ctx, titles)
		So(err, ShouldBeNil)

		Convey("Unknown sort keys are rejected", func() {
			_, err := svc.Standings(ctx, "popularity")
			So(errors.Is(err, model.ErrUnknownDimension), ShouldBeTrue)
		})

		Convey("Empty sort key means total with a histogram", func() {
			view, err := svc.Standings(ctx, "")
			So(err, ShouldBeNil)
			So(view.SortBy, ShouldEqual, "total")
			So(view.Histogram, ShouldNotBeEmpty)
		})
	})
}
