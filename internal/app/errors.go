package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrSameItem   = errors.New("an item cannot be compared with itself")
)
