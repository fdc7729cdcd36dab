// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseline is the rating every dimension starts at.
const DefaultBaseline = 1200.0

// Item is a rated entity.
type Item struct {
	ID            string
	Name          string
	Ratings       [DimensionCount]float64
	MatchesPlayed int
	// OriginalRank is written once at import and never read by the engine.
	OriginalRank *int
}

// NewItem creates an item with a fresh identifier, every dimension at
// baseline and no matches played.
func NewItem(name string, baseline float64) (Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Item{}, ErrEmptyName
	}
	it := Item{ID: uuid.NewString(), Name: name}
	for _, d := range Dimensions {
		it.Ratings[d] = baseline
	}
	return it, nil
}

// Rating returns the item's rating in d.
func (it *Item) Rating(d Dimension) float64 {
	return it.Ratings[d]
}

// SetRating replaces the item's rating in d.
func (it *Item) SetRating(d Dimension, v float64) {
	it.Ratings[d] = v
}

// RatingChange is a relative adjustment of one item's rating in one
// dimension produced by a vote.
type RatingChange struct {
	ItemID    string
	Dimension Dimension
	Delta     float64
}

// NormalizeRequest asks the background normalizer for one correction pass.
type NormalizeRequest struct {
	ID          string    // unique request id, used for log correlation
	Trigger     string    // what caused the request, e.g. "vote"
	Dimension   Dimension // dimension touched by the triggering vote
	RequestedAt time.Time
}

// NewNormalizeRequest builds a request stamped with a fresh id.
func NewNormalizeRequest(trigger string, d Dimension) NormalizeRequest {
	return NormalizeRequest{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		Dimension:   d,
		RequestedAt: time.Now(),
	}
}
