package model

import (
	"fmt"
	"strings"
)

// Dimension identifies one of the independently rated quality axes.
type Dimension int

// The closed set of rating dimensions. Order is stable and used as an index.
const (
	Story Dimension = iota
	Visual
	Audio
	Voice
	Character
	Fun
)

// DimensionCount is the number of rating dimensions.
const DimensionCount = 6

// Dimensions lists every dimension in index order.
var Dimensions = [DimensionCount]Dimension{Story, Visual, Audio, Voice, Character, Fun}

var dimensionNames = [DimensionCount]string{"story", "visual", "audio", "voice", "character", "fun"}

// dimensionColumns maps a dimension to its storage column.
var dimensionColumns = [DimensionCount]string{
	"rating_story",
	"rating_visual",
	"rating_audio",
	"rating_voice",
	"rating_character",
	"rating_fun",
}

// Valid reports whether d is one of the known dimensions.
func (d Dimension) Valid() bool {
	return d >= 0 && int(d) < DimensionCount
}

func (d Dimension) String() string {
	if !d.Valid() {
		return fmt.Sprintf("dimension(%d)", int(d))
	}
	return dimensionNames[d]
}

// Column returns the storage column holding this dimension's rating.
func (d Dimension) Column() string {
	if !d.Valid() {
		return ""
	}
	return dimensionColumns[d]
}

// ParseDimension resolves a dimension by name. Legacy aliases from the
// original data set ("ost", "char") are accepted.
func ParseDimension(s string) (Dimension, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "story":
		return Story, nil
	case "visual":
		return Visual, nil
	case "audio", "ost":
		return Audio, nil
	case "voice":
		return Voice, nil
	case "character", "char":
		return Character, nil
	case "fun":
		return Fun, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDimension, s)
}

// MarshalText encodes the dimension by name.
func (d Dimension) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDimension, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText decodes a dimension name.
func (d *Dimension) UnmarshalText(b []byte) error {
	v, err := ParseDimension(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
