package service

import (
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects the item store. The caller keeps ownership and closes it.
// Without it Start creates an in-memory store owned by the service.
func WithStore(s repository.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.store = s
		}
	}
}

// WithRatingParams sets the rating engine parameters.
func WithRatingParams(p rating.Params) Option {
	return func(s *Service) {
		s.params = p
	}
}

// WithMatchmaking sets the smart match rate and proximity half width.
func WithMatchmaking(smartRate, scoreRange float64) Option {
	return func(s *Service) {
		s.smartRate = smartRate
		s.scoreRange = scoreRange
	}
}

// WithProxyDimension sets the dimension used for proximity matching.
func WithProxyDimension(d model.Dimension) Option {
	return func(s *Service) {
		if d.Valid() {
			s.proxy = d
		}
	}
}

// WithBaseline sets the starting rating and the normalization target.
func WithBaseline(b float64) Option {
	return func(s *Service) {
		s.baseline = b
	}
}

// WithNormalizeThreshold sets the drift tolerance of the normalizer.
func WithNormalizeThreshold(t float64) Option {
	return func(s *Service) {
		if t >= 0 {
			s.threshold = t
		}
	}
}

// WithDimensionWeights sets the weights used for the total score.
func WithDimensionWeights(w map[string]float64) Option {
	return func(s *Service) {
		s.weights = w
	}
}

// WithWorkerCount sets the number of normalization workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the normalization queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithBallotCacheSize sets how many ballot IDs are remembered.
func WithBallotCacheSize(size int) Option {
	return func(s *Service) {
		s.ballotCacheSize = size
	}
}

// WithSeed makes pairing and dimension draws reproducible.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = &seed
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
