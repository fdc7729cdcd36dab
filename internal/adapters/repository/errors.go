package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("item not found")
	ErrConflict      = errors.New("commit conflict")
	ErrDuplicateID   = errors.New("duplicate item id")
	ErrInvalidChange = errors.New("invalid rating change")
	ErrUnknownDriver = errors.New("unknown store driver")
)
