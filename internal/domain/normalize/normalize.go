// Package normalize re-centers each rating dimension on the baseline.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// DefaultThreshold is the drift at or below which a dimension is left alone.
const DefaultThreshold = 1.0

// Outcome statuses recorded per dimension.
const (
	StatusApplied = "applied"
	StatusSkipped = "skipped"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
)

// Population is the read and bulk-write view the normalizer needs.
type Population interface {
	Mean(ctx context.Context, d model.Dimension) (mean float64, n int, err error)
	BulkShift(ctx context.Context, d model.Dimension, delta float64) (bool, error)
}

// DimensionResult describes what a pass did to one dimension.
type DimensionResult struct {
	Dimension model.Dimension `json:"dimension"`
	Mean      float64         `json:"mean"`
	Drift     float64         `json:"drift"`
	Shift     float64         `json:"shift"`
	Status    string          `json:"status"`
}

// Report summarises one normalization pass.
type Report struct {
	Dimensions [model.DimensionCount]DimensionResult `json:"dimensions"`
	Took       time.Duration                         `json:"took"`
}

// Applied reports whether any dimension was shifted.
func (r Report) Applied() bool {
	for _, d := range r.Dimensions {
		if d.Status == StatusApplied {
			return true
		}
	}
	return false
}

// Normalizer performs mean-reversion passes.
type Normalizer struct {
	pop       Population
	baseline  float64
	threshold float64
	log       logger.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithBaseline sets the target mean. It must match the rating new items start at.
func WithBaseline(b float64) Option {
	return func(n *Normalizer) {
		if !math.IsNaN(b) && !math.IsInf(b, 0) {
			n.baseline = b
		}
	}
}

// WithThreshold sets the drift tolerance.
func WithThreshold(t float64) Option {
	return func(n *Normalizer) {
		if t >= 0 {
			n.threshold = t
		}
	}
}

// WithLogger sets the normalizer logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.log = l
		}
	}
}

// New builds a Normalizer over pop.
func New(pop Population, opts ...Option) *Normalizer {
	n := &Normalizer{
		pop:       pop,
		baseline:  model.DefaultBaseline,
		threshold: DefaultThreshold,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize runs one pass over every dimension. The mean is read and the
// correction written in two steps without a lock between them; votes that
// land in between are preserved because the shift is relative. A failure on
// one dimension does not stop the others; all failures are joined.
func (n *Normalizer) Normalize(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report
	var errs []error

	for _, d := range model.Dimensions {
		res, err := n.normalizeDimension(ctx, d)
		report.Dimensions[d] = res
		metrics.RecordNormalizeRun(d.String(), res.Status)
		if err != nil {
			errs = append(errs, err)
			n.log.Warn(ctx, "normalize dimension failed",
				logger.String("dimension", d.String()),
				logger.Error(err),
			)
			continue
		}
		if res.Status == StatusApplied {
			n.log.Debug(ctx, "dimension re-centered",
				logger.String("dimension", d.String()),
				logger.Float64("drift", res.Drift),
			)
		}
	}

	report.Took = time.Since(start)
	metrics.RecordNormalizeLatency(float64(report.Took.Microseconds()) / 1000.0)
	return report, errors.Join(errs...)
}

func (n *Normalizer) normalizeDimension(ctx context.Context, d model.Dimension) (DimensionResult, error) {
	res := DimensionResult{Dimension: d}

	mean, count, err := n.pop.Mean(ctx, d)
	if err != nil {
		res.Status = StatusFailed
		return res, fmt.Errorf("mean of %s: %w", d, err)
	}
	if count == 0 {
		res.Status = StatusEmpty
		return res, nil
	}

	res.Mean = mean
	res.Drift = mean - n.baseline
	metrics.UpdateNormalizeDrift(d.String(), res.Drift)
	if math.Abs(res.Drift) <= n.threshold {
		res.Status = StatusSkipped
		return res, nil
	}

	if _, err := n.pop.BulkShift(ctx, d, -res.Drift); err != nil {
		res.Status = StatusFailed
		return res, fmt.Errorf("shift %s by %g: %w", d, -res.Drift, err)
	}
	res.Shift = -res.Drift
	res.Status = StatusApplied
	return res, nil
}
