// Package ranking computes ordinal ranks and percentiles for a dimension
// against the current population, and builds sorted standings.
package ranking

import (
	"context"
	"fmt"

	"github.com/okian/arena/internal/domain/model"
)

const percent = 100.0

// Counter is the read view the calculator needs. Implementations must
// answer from committed state.
type Counter interface {
	// CountWhereGreater returns how many items rate strictly above threshold in d.
	CountWhereGreater(ctx context.Context, d model.Dimension, threshold float64) (int, error)
	// TotalCount returns the population size.
	TotalCount(ctx context.Context) (int, error)
}

// Position is an item's place in one dimension.
type Position struct {
	Rank       int     `json:"rank"`
	Total      int     `json:"total"`
	Percentile float64 `json:"percentile"`
}

// Calculator evaluates ranks against a Counter.
type Calculator struct {
	counter Counter
}

// NewCalculator creates a Calculator.
func NewCalculator(c Counter) *Calculator {
	return &Calculator{counter: c}
}

// RankOf returns the competition rank of score in d: one plus the number of
// items strictly above it. Ties share a rank.
func (c *Calculator) RankOf(ctx context.Context, d model.Dimension, score float64) (Position, error) {
	if !d.Valid() {
		return Position{}, fmt.Errorf("rank of %s: %w", d, model.ErrUnknownDimension)
	}
	above, err := c.counter.CountWhereGreater(ctx, d, score)
	if err != nil {
		return Position{}, fmt.Errorf("count above %g in %s: %w", score, d, err)
	}
	total, err := c.counter.TotalCount(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("count population: %w", err)
	}
	pos := Position{Rank: above + 1, Total: total}
	if total > 0 {
		pos.Percentile = float64(pos.Rank) / float64(total) * percent
	}
	return pos, nil
}
