// Package scoring computes the weighted total score shown on the ranking
// page. The total is derived for display and sorting only and never feeds
// back into rating updates.
package scoring

import (
	"github.com/okian/arena/internal/domain/model"
)

// Default dimension weights. Story and fun count most, audio and voice least.
var defaultWeights = [model.DimensionCount]float64{
	model.Story:     1.2,
	model.Visual:    1.0,
	model.Audio:     0.8,
	model.Voice:     0.8,
	model.Character: 1.0,
	model.Fun:       1.2,
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeightsFromConfig overrides dimension weights from a name-keyed map.
// Unknown names and non-positive weights are ignored.
func WithWeightsFromConfig(weights map[string]float64) Option {
	return func(s *Scorer) {
		for name, w := range weights {
			d, err := model.ParseDimension(name)
			if err != nil || w <= 0 {
				continue
			}
			s.weights[d] = w
		}
	}
}

// WithDivisor sets the value the weighted sum is divided by.
func WithDivisor(div float64) Option {
	return func(s *Scorer) {
		if div > 0 {
			s.divisor = div
		}
	}
}

// Scorer computes weighted totals.
type Scorer struct {
	weights [model.DimensionCount]float64
	divisor float64
}

// NewScorer creates a Scorer with the default weights.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		weights: defaultWeights,
		divisor: model.DimensionCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Total returns the weighted total of ratings.
func (s *Scorer) Total(ratings [model.DimensionCount]float64) float64 {
	var sum float64
	for _, d := range model.Dimensions {
		sum += ratings[d] * s.weights[d]
	}
	return sum / s.divisor
}

// Weight returns the weight of d.
func (s *Scorer) Weight(d model.Dimension) float64 {
	return s.weights[d]
}
