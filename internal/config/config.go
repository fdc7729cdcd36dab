// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers file and env on top.
// - Validate reports every rule violation wrapped in ErrInvalidConfig.
package config

import (
	"fmt"
	"math"
	"runtime"
	"strings"

	"github.com/okian/arena/internal/domain/model"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver picks the item store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	// StoreDSN is the driver specific connection string.
	StoreDSN string `koanf:"store_dsn"`

	// NormalizeQueueSize bounds the in-memory normalization request queue.
	NormalizeQueueSize int `koanf:"normalize_queue_size"`
	// NormalizeWorkers sets the number of normalization workers.
	NormalizeWorkers int `koanf:"normalize_workers"`

	// BallotCacheSize sets the size of the ballot de-duplication cache.
	BallotCacheSize int `koanf:"ballot_cache_size"`

	// Rating engine parameters.
	KMin      float64 `koanf:"k_min"`
	KMax      float64 `koanf:"k_max"`
	KDecay    float64 `koanf:"k_decay"`
	DrawMax   float64 `koanf:"draw_max"`
	DrawScale float64 `koanf:"draw_scale"`

	// SmartMatchRate is the probability of a proximity pairing.
	SmartMatchRate float64 `koanf:"smart_match_rate"`
	// MatchScoreRange is the half width of the proximity window.
	MatchScoreRange float64 `koanf:"match_score_range"`
	// MatchProxy names the dimension used as the overall strength proxy.
	MatchProxy string `koanf:"match_proxy"`

	// RatingBaseline is the target population mean and the starting rating.
	RatingBaseline float64 `koanf:"rating_baseline"`
	// NormalizeThreshold is the drift at or below which no shift is applied.
	NormalizeThreshold float64 `koanf:"normalize_threshold"`

	// DimensionWeights maps dimension names to their weight in the total score.
	DimensionWeights map[string]float64 `koanf:"dimension_weights"`

	// SeedItems are created at startup when the store is empty.
	SeedItems []string `koanf:"seed_items"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		StoreDriver:        DriverMemory,
		NormalizeQueueSize: 1024,
		NormalizeWorkers:   max(1, runtime.NumCPU()/2),
		BallotCacheSize:    100_000,
		KMin:               24,
		KMax:               60,
		KDecay:             25,
		DrawMax:            0.3,
		DrawScale:          200,
		SmartMatchRate:     0.8,
		MatchScoreRange:    300,
		MatchProxy:         "fun",
		RatingBaseline:     1200,
		NormalizeThreshold: 1.0,
		DimensionWeights: map[string]float64{
			"story":     1.2,
			"visual":    1.0,
			"audio":     0.8,
			"voice":     0.8,
			"character": 1.0,
			"fun":       1.2,
		},
	}
}

// Validate checks the configuration rules.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		add("addr must not be empty")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		add("unknown log_format %q", c.LogFormat)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.StoreDSN) == "" {
			add("store_dsn is required for driver %q", c.StoreDriver)
		}
	default:
		add("unknown store_driver %q", c.StoreDriver)
	}
	if c.NormalizeQueueSize <= 0 {
		add("normalize_queue_size must be positive")
	}
	if c.NormalizeWorkers <= 0 {
		add("normalize_workers must be positive")
	}
	if c.BallotCacheSize < 0 {
		add("ballot_cache_size must not be negative")
	}
	if !(c.KMin > 0) || !(c.KMax > c.KMin) {
		add("require k_max > k_min > 0, got k_min=%g k_max=%g", c.KMin, c.KMax)
	}
	if !(c.KDecay > 0) {
		add("k_decay must be positive")
	}
	if !(c.SmartMatchRate >= 0 && c.SmartMatchRate <= 1) {
		add("smart_match_rate must be within [0,1]")
	}
	if !(c.MatchScoreRange > 0) {
		add("match_score_range must be positive")
	}
	if _, err := model.ParseDimension(c.MatchProxy); err != nil {
		add("match_proxy: %v", err)
	}
	if !(c.DrawMax >= 0 && c.DrawMax <= 1) {
		add("draw_max must be within [0,1]")
	}
	if !(c.DrawScale > 0) {
		add("draw_scale must be positive")
	}
	if math.IsNaN(c.RatingBaseline) || math.IsInf(c.RatingBaseline, 0) {
		add("rating_baseline must be finite")
	}
	if !(c.NormalizeThreshold >= 0) {
		add("normalize_threshold must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
