package matchmaking

import "errors"

// Sentinel kinds for matchmaking errors.
var (
	// ErrNotEnoughData means no valid pair exists: fewer than two items, or
	// the focus item has no possible opponent.
	ErrNotEnoughData = errors.New("not enough items to form a pair")
	// ErrFocusNotFound means the pinned focus item does not exist. It is
	// always returned together with ErrNotEnoughData.
	ErrFocusNotFound = errors.New("focus item not found")
)
