package rating

import "errors"

// Sentinel kinds for rating errors.
var (
	ErrInvalidOutcome = errors.New("invalid outcome")
	ErrInvalidParams  = errors.New("invalid rating parameters")
)
