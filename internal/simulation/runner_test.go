package simulation_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/adapters/repository"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/normalize"
	"github.com/okian/arena/internal/simulation"
	"github.com/okian/arena/pkg/logger"
)

func init() {
	if err := logger.InitWith(io.Discard, logger.FormatText); err != nil {
		panic(err)
	}
}

func newArena(t *testing.T, ctx context.Context) *service.Service {
	t.Helper()
	store := repository.NewMemoryStore(ctx, repository.WithSeed(5))
	t.Cleanup(func() { _ = store.Close() })
	svc := service.New(
		service.WithStore(store),
		service.WithLogger(logger.Nop()),
		service.WithWorkerCount(2),
		service.WithSeed(5),
	)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestConfigValidate(t *testing.T) {
	Convey("Given simulation configs", t, func() {
		So(simulation.DefaultConfig().Validate(), ShouldBeNil)

		bad := []func(*simulation.Config){
			func(c *simulation.Config) { c.Items = 1 },
			func(c *simulation.Config) { c.Votes = -1 },
			func(c *simulation.Config) { c.Workers = 0 },
			func(c *simulation.Config) { c.Spread = 0 },
			func(c *simulation.Config) { c.Noise = -1 },
		}
		for _, mutate := range bad {
			cfg := simulation.DefaultConfig()
			mutate(&cfg)
			So(errors.Is(cfg.Validate(), simulation.ErrInvalidConfig), ShouldBeTrue)
		}
	})
}

func TestRun(t *testing.T) {
	Convey("Given an empty arena and mildly noisy voters", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		arena := newArena(t, ctx)

		cfg := simulation.Config{
			Items:   20,
			Votes:   3000,
			Workers: 4,
			Spread:  300,
			Noise:   40,
			Draw:    10,
			Seed:    42,
		}

		Convey("When the simulation runs", func() {
			rep, err := simulation.Run(ctx, arena, cfg)
			So(err, ShouldBeNil)

			Convey("Then every ballot is applied", func() {
				So(rep.Items, ShouldEqual, cfg.Items)
				So(rep.Votes, ShouldEqual, cfg.Votes)
				So(rep.Applied, ShouldEqual, cfg.Votes)
				So(rep.Failed, ShouldEqual, 0)
			})

			Convey("And the learned order follows the hidden one", func() {
				So(rep.MinSpearman(), ShouldBeGreaterThan, 0.6)
			})

			Convey("And each dimension stays centred", func() {
				So(rep.MaxMeanDrift(model.DefaultBaseline), ShouldBeLessThanOrEqualTo, normalize.DefaultThreshold)
			})
		})

		Convey("When the arena is not empty", func() {
			_, err := arena.Seed(ctx, []string{"already here"})
			So(err, ShouldBeNil)
			_, err = simulation.Run(ctx, arena, cfg)
			So(errors.Is(err, simulation.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
