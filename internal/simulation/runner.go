// Package simulation drives the rating service with synthetic voters whose
// judgement follows a hidden ground truth, and reports how well the learned
// ratings recover it.
package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/normalize"
	"github.com/okian/arena/pkg/logger"
)

// progressEvery controls how often verbose runs log progress.
const progressEvery = 1000

// Arena is the part of the service a simulation exercises.
type Arena interface {
	Seed(ctx context.Context, names []string) (int, error)
	Matchup(ctx context.Context, focusID string) (service.Matchup, error)
	Vote(ctx context.Context, in service.VoteInput) (service.VoteResult, error)
	Standings(ctx context.Context, sortBy string) (service.StandingsView, error)
	Normalize(ctx context.Context) (normalize.Report, error)
}

// DimensionReport summarizes recovery of one dimension.
type DimensionReport struct {
	Dimension model.Dimension `json:"dimension"`
	Spearman  float64         `json:"spearman"`
	Mean      float64         `json:"mean"`
}

// Report holds the outcome of a simulation.
type Report struct {
	Items      int                                   `json:"items"`
	Votes      int64                                 `json:"votes"`
	Applied    int64                                 `json:"applied"`
	Failed     int64                                 `json:"failed"`
	Duration   time.Duration                         `json:"duration"`
	Dimensions [model.DimensionCount]DimensionReport `json:"dimensions"`
}

// MinSpearman returns the weakest per-dimension correlation.
func (r Report) MinSpearman() float64 {
	lo := math.Inf(1)
	for _, d := range r.Dimensions {
		lo = math.Min(lo, d.Spearman)
	}
	return lo
}

// MaxMeanDrift returns the largest distance of a dimension mean from baseline.
func (r Report) MaxMeanDrift(baseline float64) float64 {
	var hi float64
	for _, d := range r.Dimensions {
		hi = math.Max(hi, math.Abs(d.Mean-baseline))
	}
	return hi
}

// Run seeds an empty arena, casts cfg.Votes ballots from cfg.Workers
// concurrent voters and measures the resulting standings against the truth.
func Run(ctx context.Context, arena Arena, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	log := logger.Get().Named("simulation")
	start := time.Now()

	log.Info(ctx, "starting convergence simulation",
		logger.Int("items", cfg.Items),
		logger.Int("votes", cfg.Votes),
		logger.Int("workers", cfg.Workers),
		logger.Float64("spread", cfg.Spread),
		logger.Float64("noise", cfg.Noise))

	ids, err := seed(ctx, arena, cfg.Items)
	if err != nil {
		return Report{}, fmt.Errorf("seed arena: %w", err)
	}
	hidden := newTruth(ids, cfg.Spread, rand.New(rand.NewSource(cfg.Seed))) //nolint:gosec // reproducible runs

	rep := Report{Items: len(ids)}
	if err := castVotes(ctx, arena, cfg, hidden, &rep, log); err != nil {
		return rep, fmt.Errorf("cast votes: %w", err)
	}

	if _, err := arena.Normalize(ctx); err != nil {
		log.Warn(ctx, "final normalization pass failed", logger.Error(err))
	}
	if err := measure(ctx, arena, hidden, &rep); err != nil {
		return rep, fmt.Errorf("measure standings: %w", err)
	}
	rep.Duration = time.Since(start)

	displayFinalStats(ctx, log, rep)
	return rep, nil
}

func seed(ctx context.Context, arena Arena, n int) ([]string, error) {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("item-%04d", i+1)
	}
	created, err := arena.Seed(ctx, names)
	if err != nil {
		return nil, err
	}
	if created != n {
		return nil, fmt.Errorf("%w: arena must be empty, seeded %d of %d", ErrInvalidConfig, created, n)
	}
	view, err := arena.Standings(ctx, "")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(view.Rows))
	for _, r := range view.Rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func castVotes(ctx context.Context, arena Arena, cfg Config, hidden truth, rep *Report, log logger.Logger) error {
	var cast, applied, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		quota := cfg.Votes / cfg.Workers
		if w < cfg.Votes%cfg.Workers {
			quota++
		}
		v := &voter{
			truth: hidden,
			noise: cfg.Noise,
			draw:  cfg.Draw,
			rng:   rand.New(rand.NewSource(cfg.Seed + int64(w) + 1)), //nolint:gosec // reproducible voters
		}
		g.Go(func() error {
			for i := 0; i < quota; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				m, err := arena.Matchup(gctx, "")
				if err != nil {
					return err
				}
				_, err = arena.Vote(gctx, service.VoteInput{
					BallotID:  m.BallotID,
					ItemA:     m.A.ID,
					ItemB:     m.B.ID,
					Dimension: m.Dimension.String(),
					Winner:    v.decide(m.A.ID, m.B.ID, m.Dimension),
				})
				n := cast.Add(1)
				if err != nil {
					failed.Add(1)
					log.Debug(gctx, "vote failed", logger.Error(err))
				} else {
					applied.Add(1)
				}
				if cfg.Verbose && n%progressEvery == 0 {
					log.Info(gctx, "progress",
						logger.Int("cast", int(n)),
						logger.Int("of", cfg.Votes),
						logger.Int("failed", int(failed.Load())))
				}
			}
			return nil
		})
	}
	err := g.Wait()

	rep.Votes = cast.Load()
	rep.Applied = applied.Load()
	rep.Failed = failed.Load()
	return err
}

func measure(ctx context.Context, arena Arena, hidden truth, rep *Report) error {
	for _, d := range model.Dimensions {
		view, err := arena.Standings(ctx, d.String())
		if err != nil {
			return err
		}
		est := make([]float64, 0, len(view.Rows))
		tru := make([]float64, 0, len(view.Rows))
		var sum float64
		for _, r := range view.Rows {
			q, ok := hidden[r.ID]
			if !ok {
				continue
			}
			est = append(est, r.Ratings[d])
			tru = append(tru, q[d])
			sum += r.Ratings[d]
		}
		rep.Dimensions[d] = DimensionReport{Dimension: d, Spearman: spearman(tru, est)}
		if len(est) > 0 {
			rep.Dimensions[d].Mean = sum / float64(len(est))
		}
	}
	return nil
}

// displayFinalStats logs the simulation summary.
func displayFinalStats(ctx context.Context, log logger.Logger, rep Report) {
	var votesPerSecond float64
	if rep.Duration > 0 {
		votesPerSecond = float64(rep.Votes) / rep.Duration.Seconds()
	}
	for _, d := range rep.Dimensions {
		log.Info(ctx, "dimension recovery",
			logger.String("dimension", d.Dimension.String()),
			logger.Float64("spearman", d.Spearman),
			logger.Float64("mean", d.Mean))
	}
	log.Info(ctx, "final statistics",
		logger.Int("items", rep.Items),
		logger.Int("votes", int(rep.Votes)),
		logger.Int("applied", int(rep.Applied)),
		logger.Int("failed", int(rep.Failed)),
		logger.Duration("duration", rep.Duration),
		logger.Float64("votesPerSecond", votesPerSecond),
		logger.Float64("minSpearman", rep.MinSpearman()))
}
