// Package matchmaking chooses the two items shown in a comparison.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Default selector configuration constants.
const (
	DefaultSmartRate  = 0.8
	DefaultScoreRange = 300.0
)

// Selection modes reported with each pair.
const (
	ModeProximity      = "proximity"
	ModeRandom         = "random"
	ModeFocusProximity = "focus_proximity"
	ModeFocusRandom    = "focus_random"
)

// Population is the read view of the store used for pairing.
type Population interface {
	GetByID(ctx context.Context, id string) (model.Item, error)
	RandomSample(ctx context.Context, n int) ([]model.Item, error)
	RandomInRange(ctx context.Context, d model.Dimension, excludeID string, min, max float64) (model.Item, bool, error)
	RandomExcluding(ctx context.Context, excludeID string) (model.Item, bool, error)
}

// Pair is a selected matchup. Dimension is drawn after the items are fixed.
type Pair struct {
	A         model.Item
	B         model.Item
	Dimension model.Dimension
	Mode      string
}

// Selector picks pairs mixing proximity and uniform random matching.
type Selector struct {
	pop        Population
	smartRate  float64
	scoreRange float64
	proxy      model.Dimension
	log        logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Selector.
type Option func(*Selector)

// WithSmartRate sets the probability of attempting a proximity match.
// Values outside [0,1] are ignored.
func WithSmartRate(rate float64) Option {
	return func(s *Selector) {
		if rate >= 0 && rate <= 1 {
			s.smartRate = rate
		}
	}
}

// WithScoreRange sets the half width of the proximity window.
func WithScoreRange(r float64) Option {
	return func(s *Selector) {
		if r > 0 {
			s.scoreRange = r
		}
	}
}

// WithProxyDimension sets the dimension compared for proximity.
func WithProxyDimension(d model.Dimension) Option {
	return func(s *Selector) {
		if d.Valid() {
			s.proxy = d
		}
	}
}

// WithRand makes selection reproducible.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithLogger sets the selector logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSelector builds a Selector over pop.
func NewSelector(pop Population, opts ...Option) *Selector {
	s := &Selector{
		pop:        pop,
		smartRate:  DefaultSmartRate,
		scoreRange: DefaultScoreRange,
		proxy:      model.Fun,
		log:        logger.Nop(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // matchmaking randomness
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Selector) roll() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

// PickDimension draws a dimension uniformly at random.
func (s *Selector) PickDimension() model.Dimension {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return model.Dimensions[s.rng.Intn(model.DimensionCount)]
}

// SelectPair returns two distinct items. With an empty focusID the first
// item is drawn uniformly; otherwise it is the focus item.
func (s *Selector) SelectPair(ctx context.Context, focusID string) (Pair, error) {
	p, err := s.selectPair(ctx, focusID)
	if err != nil {
		metrics.RecordMatchmakingFailure()
		return Pair{}, err
	}
	metrics.RecordMatchmakingPick(p.Mode)
	return p, nil
}

func (s *Selector) selectPair(ctx context.Context, focusID string) (Pair, error) {
	focus := focusID != ""

	var a model.Item
	if focus {
		it, err := s.pop.GetByID(ctx, focusID)
		if errors.Is(err, repository.ErrNotFound) {
			return Pair{}, fmt.Errorf("%w: %w: %s", ErrNotEnoughData, ErrFocusNotFound, focusID)
		}
		if err != nil {
			return Pair{}, fmt.Errorf("load focus item: %w", err)
		}
		a = it
	} else {
		sample, err := s.pop.RandomSample(ctx, 1)
		if err != nil {
			return Pair{}, fmt.Errorf("sample first item: %w", err)
		}
		if len(sample) == 0 {
			return Pair{}, ErrNotEnoughData
		}
		a = sample[0]
	}

	b, proximity, err := s.opponent(ctx, a)
	if err != nil {
		return Pair{}, err
	}

	mode := ModeRandom
	switch {
	case focus && proximity:
		mode = ModeFocusProximity
	case focus:
		mode = ModeFocusRandom
	case proximity:
		mode = ModeProximity
	}
	return Pair{A: a, B: b, Dimension: s.PickDimension(), Mode: mode}, nil
}

// opponent picks B for a: a proximity window with probability smartRate,
// falling back to uniform choice when the window is empty or not drawn.
func (s *Selector) opponent(ctx context.Context, a model.Item) (model.Item, bool, error) {
	if s.roll() < s.smartRate {
		center := a.Rating(s.proxy)
		b, ok, err := s.pop.RandomInRange(ctx, s.proxy, a.ID, center-s.scoreRange, center+s.scoreRange)
		if err != nil {
			return model.Item{}, false, fmt.Errorf("proximity pick: %w", err)
		}
		if ok {
			return b, true, nil
		}
		s.log.Debug(ctx, "proximity window empty, falling back to random",
			logger.String("item_id", a.ID),
			logger.Float64("center", center),
			logger.Float64("range", s.scoreRange),
		)
	}

	b, ok, err := s.pop.RandomExcluding(ctx, a.ID)
	if err != nil {
		return model.Item{}, false, fmt.Errorf("random pick: %w", err)
	}
	if !ok {
		return model.Item{}, false, ErrNotEnoughData
	}
	return b, false, nil
}
