package repository

import (
	"math/rand"
	"time"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithSeed makes random selection reproducible.
func WithSeed(seed int64) Option {
	return func(s *MemoryStore) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // matchmaking randomness, not security sensitive
	}
}
