package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrUnknownDimension = errors.New("unknown dimension")
	ErrEmptyName        = errors.New("item name must not be empty")
)
