package ranking

import (
	"math"
	"sort"
	"strings"

	"github.com/okian/arena/internal/domain/model"
)

// SortTotal sorts standings by the weighted total.
const SortTotal = "total"

// DefaultBucketWidth is the histogram bucket width in rating points.
const DefaultBucketWidth = 50.0

// Totaler computes the weighted total of an item's ratings.
type Totaler interface {
	Total(ratings [model.DimensionCount]float64) float64
}

// SortKey selects the column standings are ordered by.
type SortKey struct {
	total     bool
	dimension model.Dimension
}

// ParseSortKey accepts "total" (or empty) and any dimension name.
func ParseSortKey(s string) (SortKey, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == SortTotal {
		return SortKey{total: true}, nil
	}
	d, err := model.ParseDimension(s)
	if err != nil {
		return SortKey{}, err
	}
	return SortKey{dimension: d}, nil
}

func (k SortKey) String() string {
	if k.total {
		return SortTotal
	}
	return k.dimension.String()
}

// Standing is one row of the ranking table.
type Standing struct {
	Rank          int                         `json:"rank"`
	ID            string                      `json:"id"`
	Name          string                      `json:"name"`
	Total         float64                     `json:"total"`
	Ratings       map[model.Dimension]float64 `json:"ratings"`
	MatchesPlayed int                         `json:"matches"`
	key           float64
}

// Standings orders items by key, highest first, with competition ranks.
// Ties are broken by name then id so the order is deterministic.
func Standings(items []model.Item, key SortKey, t Totaler) []Standing {
	out := make([]Standing, 0, len(items))
	for i := range items {
		it := &items[i]
		row := Standing{
			ID:            it.ID,
			Name:          it.Name,
			Total:         t.Total(it.Ratings),
			Ratings:       make(map[model.Dimension]float64, model.DimensionCount),
			MatchesPlayed: it.MatchesPlayed,
		}
		for _, d := range model.Dimensions {
			row.Ratings[d] = it.Rating(d)
		}
		row.key = row.Total
		if !key.total {
			row.key = it.Rating(key.dimension)
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].key != out[j].key {
			return out[i].key > out[j].key
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	assignCompetitionRanks(out)
	return out
}

// Keys returns the sort key value of each standing, in order.
func Keys(rows []Standing) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = rows[i].key
	}
	return out
}

// assignCompetitionRanks gives tied rows the same rank and lets the next
// distinct value skip past the whole tied group (1, 2, 2, 4).
func assignCompetitionRanks(rows []Standing) {
	for i := range rows {
		if i > 0 && rows[i].key == rows[i-1].key {
			rows[i].Rank = rows[i-1].Rank
			continue
		}
		rows[i].Rank = i + 1
	}
}

// Bucket is one histogram bar covering [Lower, Lower+width).
type Bucket struct {
	Lower float64 `json:"lower"`
	Count int     `json:"count"`
}

// Histogram buckets values into fixed-width bars spanning their range.
func Histogram(values []float64, width float64) []Bucket {
	if len(values) == 0 || width <= 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	start := math.Floor(lo/width) * width
	n := int(math.Floor(hi/width)-math.Floor(lo/width)) + 1

	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Lower = start + float64(i)*width
	}
	for _, v := range values {
		idx := int(math.Floor(v/width) - math.Floor(lo/width))
		buckets[idx].Count++
	}
	return buckets
}
