package simulation

import (
	"math/rand"

	"github.com/okian/arena/internal/domain/model"
)

// truth holds the hidden quality of every item.
type truth map[string][model.DimensionCount]float64

func newTruth(ids []string, spread float64, rng *rand.Rand) truth {
	t := make(truth, len(ids))
	for _, id := range ids {
		var q [model.DimensionCount]float64
		for _, d := range model.Dimensions {
			q[d] = rng.NormFloat64() * spread
		}
		t[id] = q
	}
	return t
}

// voter judges pairs by perceiving true quality through Gaussian noise.
// A voter is owned by one goroutine.
type voter struct {
	truth truth
	noise float64
	draw  float64
	rng   *rand.Rand
}

// decide returns the ballot winner field: "1", "2" or "draw".
func (v *voter) decide(a, b string, d model.Dimension) string {
	qa := v.truth[a][d] + v.rng.NormFloat64()*v.noise
	qb := v.truth[b][d] + v.rng.NormFloat64()*v.noise
	switch gap := qa - qb; {
	case gap > v.draw:
		return "1"
	case gap < -v.draw:
		return "2"
	default:
		return "draw"
	}
}
