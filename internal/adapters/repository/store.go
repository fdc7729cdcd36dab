// Package repository defines the item store interface and its implementations.
package repository

import (
	"context"

	"github.com/okian/arena/internal/domain/model"
)

// Store provides read/write access to the item population.
//
// Reads reflect committed state. Commit and BulkShift are relative updates,
// so neither clobbers a concurrent write of the other.
type Store interface {
	// GetByID returns the item or ErrNotFound.
	GetByID(ctx context.Context, id string) (model.Item, error)
	// RandomSample returns up to n distinct items chosen uniformly at random.
	RandomSample(ctx context.Context, n int) ([]model.Item, error)
	// RandomInRange returns a random item other than excludeID whose rating in d
	// lies within [min, max]. ok is false when no such item exists.
	RandomInRange(ctx context.Context, d model.Dimension, excludeID string, min, max float64) (item model.Item, ok bool, err error)
	// RandomExcluding returns a random item other than excludeID.
	RandomExcluding(ctx context.Context, excludeID string) (item model.Item, ok bool, err error)

	// CountWhereGreater counts items rating strictly above threshold in d.
	CountWhereGreater(ctx context.Context, d model.Dimension, threshold float64) (int, error)
	// TotalCount returns the population size.
	TotalCount(ctx context.Context) (int, error)
	// Mean returns the population mean in d and the population size.
	Mean(ctx context.Context, d model.Dimension) (mean float64, n int, err error)

	// BulkShift adds delta to every item's rating in d as a single relative
	// update. It reports whether any row was touched.
	BulkShift(ctx context.Context, d model.Dimension, delta float64) (bool, error)
	// Commit atomically applies rating changes and increments the match counter
	// of every distinct participant by exactly one. If any participant is
	// missing nothing is applied and ErrConflict is returned.
	Commit(ctx context.Context, changes ...model.RatingChange) error

	// Create inserts a new item.
	Create(ctx context.Context, item model.Item) error
	// Delete removes an item. Missing items yield ErrNotFound.
	Delete(ctx context.Context, id string) error
	// List returns every item in no particular order.
	List(ctx context.Context) ([]model.Item, error)
}

// participants returns the distinct item ids referenced by changes, in order.
func participants(changes []model.RatingChange) []string {
	ids := make([]string, 0, len(changes))
	seen := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		if _, ok := seen[c.ItemID]; ok {
			continue
		}
		seen[c.ItemID] = struct{}{}
		ids = append(ids, c.ItemID)
	}
	return ids
}
