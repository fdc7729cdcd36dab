package simulation

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrInvalidConfig marks a simulation configuration that cannot run.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds configuration for a convergence simulation.
type Config struct {
	Items   int     // Number of items in the population
	Votes   int     // Number of ballots to cast
	Workers int     // Number of concurrent voters
	Spread  float64 // Standard deviation of hidden true quality, in rating points
	Noise   float64 // Standard deviation of a voter's perception error
	Draw    float64 // Perceived gap below which a voter calls a draw
	Seed    int64   // Seed for truth generation and voter noise
	Verbose bool    // Log progress while voting
}

// DefaultConfig returns a configuration that converges in a few seconds.
func DefaultConfig() Config {
	return Config{
		Items:   100,
		Votes:   20_000,
		Workers: runtime.NumCPU(),
		Spread:  200,
		Noise:   60,
		Draw:    15,
		Seed:    1,
	}
}

// Validate reports the first unusable field.
func (c Config) Validate() error {
	switch {
	case c.Items < 2:
		return fmt.Errorf("%w: items must be at least 2, got %d", ErrInvalidConfig, c.Items)
	case c.Votes < 0:
		return fmt.Errorf("%w: votes must not be negative, got %d", ErrInvalidConfig, c.Votes)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.Spread <= 0:
		return fmt.Errorf("%w: spread must be positive", ErrInvalidConfig)
	case c.Noise < 0 || c.Draw < 0:
		return fmt.Errorf("%w: noise and draw band must not be negative", ErrInvalidConfig)
	}
	return nil
}
