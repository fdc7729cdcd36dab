package rating

import (
	"fmt"
	"strings"
)

// Outcome is the result of a comparison from A's point of view.
type Outcome float64

// Accepted outcomes.
const (
	Loss Outcome = 0.0
	Draw Outcome = 0.5
	Win  Outcome = 1.0
)

// Valid reports whether o is one of Win, Draw or Loss.
func (o Outcome) Valid() bool {
	return o == Win || o == Draw || o == Loss
}

// Inverse returns the outcome from B's point of view.
func (o Outcome) Inverse() Outcome {
	return 1 - o
}

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Draw:
		return "draw"
	case Loss:
		return "loss"
	}
	return fmt.Sprintf("outcome(%g)", float64(o))
}

// ParseWinner converts the ballot convention into an outcome for A:
// "1" means A won, "2" means B won, "draw" or "0" is a draw.
func ParseWinner(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "a":
		return Win, nil
	case "2", "b":
		return Loss, nil
	case "0", "draw":
		return Draw, nil
	}
	return 0, fmt.Errorf("%w: winner %q", ErrInvalidOutcome, s)
}
