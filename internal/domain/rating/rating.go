// Package rating implements the Elo update rule with a decaying K-factor
// and the win/draw/loss estimator shown next to a matchup.
//
// Everything here is pure and safe for concurrent use.
package rating

import (
	"fmt"
	"math"
)

// Default engine parameters.
const (
	DefaultKMin      = 24.0
	DefaultKMax      = 60.0
	DefaultDecay     = 25.0
	DefaultDrawMax   = 0.3
	DefaultDrawScale = 200.0

	eloScale = 400.0
	percent  = 100.0
)

// Params configures an Engine.
type Params struct {
	KMin      float64 // K-factor for veterans
	KMax      float64 // K-factor at zero matches
	Decay     float64 // matches over which K relaxes toward KMin
	DrawMax   float64 // draw probability at zero rating gap
	DrawScale float64 // rating gap controlling how fast draws vanish
}

// DefaultParams returns the reference configuration.
func DefaultParams() Params {
	return Params{
		KMin:      DefaultKMin,
		KMax:      DefaultKMax,
		Decay:     DefaultDecay,
		DrawMax:   DefaultDrawMax,
		DrawScale: DefaultDrawScale,
	}
}

// Validate checks the parameter invariants.
func (p Params) Validate() error {
	switch {
	case !(p.KMin > 0):
		return fmt.Errorf("%w: k_min must be > 0", ErrInvalidParams)
	case !(p.KMax > p.KMin):
		return fmt.Errorf("%w: k_max must be > k_min", ErrInvalidParams)
	case !(p.Decay > 0):
		return fmt.Errorf("%w: decay must be > 0", ErrInvalidParams)
	case p.DrawMax < 0 || p.DrawMax > 1:
		return fmt.Errorf("%w: draw_max must be within [0,1]", ErrInvalidParams)
	case !(p.DrawScale > 0):
		return fmt.Errorf("%w: draw_scale must be > 0", ErrInvalidParams)
	}
	return nil
}

// Engine computes rating updates and outcome probabilities.
type Engine struct {
	p Params
}

// NewEngine validates p and returns an Engine.
func NewEngine(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{p: p}, nil
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.p }

// Expected returns A's expected score against B.
func Expected(ratingA, ratingB float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingB-ratingA)/eloScale))
}

// KFactor returns the K-factor for an item with the given match count.
// It equals KMax at zero matches and decays toward KMin.
func (e *Engine) KFactor(matches int) float64 {
	if matches < 0 {
		matches = 0
	}
	return e.p.KMin + (e.p.KMax-e.p.KMin)*math.Exp(-float64(matches)/e.p.Decay)
}

// Update returns both new ratings for outcome o. Each side moves by its
// own K-factor. No clamping is applied.
func (e *Engine) Update(ratingA, ratingB float64, o Outcome, matchesA, matchesB int) (float64, float64, error) {
	if !o.Valid() {
		return 0, 0, fmt.Errorf("%w: %g", ErrInvalidOutcome, float64(o))
	}
	ea := Expected(ratingA, ratingB)
	eb := 1 - ea

	newA := ratingA + e.KFactor(matchesA)*(float64(o)-ea)
	newB := ratingB + e.KFactor(matchesB)*(float64(o.Inverse())-eb)
	return newA, newB, nil
}

// Probabilities are display percentages that sum to 100.
type Probabilities struct {
	WinA float64 `json:"win_a"`
	Draw float64 `json:"draw"`
	WinB float64 `json:"win_b"`
}

// Probabilities splits A's expected score into win, draw and loss chances.
// The draw chance is a Gaussian of the rating gap. Values are unrounded.
func (e *Engine) Probabilities(ratingA, ratingB float64) Probabilities {
	ea := Expected(ratingA, ratingB)
	gap := math.Abs(ratingA-ratingB) / e.p.DrawScale
	draw := e.p.DrawMax * math.Exp(-gap*gap)

	winA := math.Max(0, ea-0.5*draw)
	winB := math.Max(0, (1-ea)-0.5*draw)

	total := winA + draw + winB
	if total <= 0 {
		return Probabilities{WinA: 0, Draw: percent, WinB: 0}
	}
	return Probabilities{
		WinA: winA / total * percent,
		Draw: draw / total * percent,
		WinB: winB / total * percent,
	}
}

// Rounded returns p rounded to one decimal place for display.
func (p Probabilities) Rounded() Probabilities {
	r := func(x float64) float64 { return math.Round(x*10) / 10 }
	return Probabilities{WinA: r(p.WinA), Draw: r(p.Draw), WinB: r(p.WinB)}
}
