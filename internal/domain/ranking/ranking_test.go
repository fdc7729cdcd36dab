package ranking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ranking"
	"github.com/okian/arena/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

// sliceCounter answers counts from a fixed set of ratings in one dimension.
type sliceCounter struct {
	values []float64
	err    error
}

func (c *sliceCounter) CountWhereGreater(_ context.Context, _ model.Dimension, threshold float64) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n := 0
	for _, v := range c.values {
		if v > threshold {
			n++
		}
	}
	return n, nil
}

func (c *sliceCounter) TotalCount(context.Context) (int, error) {
	return len(c.values), c.err
}

func TestCalculator_RankOf(t *testing.T) {
	ctx := context.Background()

	Convey("Given five items from 1000 to 1400", t, func() {
		calc := ranking.NewCalculator(&sliceCounter{values: []float64{1000, 1100, 1200, 1300, 1400}})

		Convey("When ranking 1200", func() {
			pos, err := calc.RankOf(ctx, model.Story, 1200)

			Convey("Then it is third of five at the 60th percentile", func() {
				So(err, ShouldBeNil)
				So(pos.Rank, ShouldEqual, 3)
				So(pos.Total, ShouldEqual, 5)
				So(pos.Percentile, ShouldAlmostEqual, 60.0, 1e-9)
			})
		})

		Convey("When ranking the highest score", func() {
			pos, err := calc.RankOf(ctx, model.Story, 1400)

			Convey("Then it is first", func() {
				So(err, ShouldBeNil)
				So(pos.Rank, ShouldEqual, 1)
			})
		})
	})

	Convey("Given tied scores", t, func() {
		calc := ranking.NewCalculator(&sliceCounter{values: []float64{1300, 1250, 1250, 1100}})

		Convey("Then ties share a rank and the next value skips past them", func() {
			p1, _ := calc.RankOf(ctx, model.Fun, 1250)
			p2, _ := calc.RankOf(ctx, model.Fun, 1100)
			So(p1.Rank, ShouldEqual, 2)
			So(p2.Rank, ShouldEqual, 4)
		})
	})

	Convey("Given an empty population", t, func() {
		calc := ranking.NewCalculator(&sliceCounter{})
		pos, err := calc.RankOf(ctx, model.Voice, 1200)

		Convey("Then rank is 1 with no percentile", func() {
			So(err, ShouldBeNil)
			So(pos.Rank, ShouldEqual, 1)
			So(pos.Total, ShouldEqual, 0)
			So(pos.Percentile, ShouldEqual, 0)
		})
	})

	Convey("Given a failing store", t, func() {
		boom := errors.New("boom")
		calc := ranking.NewCalculator(&sliceCounter{err: boom})
		_, err := calc.RankOf(ctx, model.Voice, 1200)

		Convey("Then the error is wrapped", func() {
			So(errors.Is(err, boom), ShouldBeTrue)
		})
	})

	Convey("Given an invalid dimension", t, func() {
		calc := ranking.NewCalculator(&sliceCounter{})
		_, err := calc.RankOf(ctx, model.Dimension(9), 1200)

		Convey("Then it is rejected", func() {
			So(errors.Is(err, model.ErrUnknownDimension), ShouldBeTrue)
		})
	})
}

func item(id, name string, story, fun float64) model.Item {
	it, _ := model.NewItem(name, 1200)
	it.ID = id
	it.SetRating(model.Story, story)
	it.SetRating(model.Fun, fun)
	return it
}

func TestStandings(t *testing.T) {
	Convey("Given a handful of items", t, func() {
		items := []model.Item{
			item("a", "Alpha", 1100, 1300),
			item("b", "Bravo", 1300, 1100),
			item("c", "Charlie", 1300, 1200),
			item("d", "Delta", 1000, 1000),
		}
		scorer := scoring.NewScorer()

		Convey("When sorting by story", func() {
			key, err := ranking.ParseSortKey("story")
			So(err, ShouldBeNil)
			rows := ranking.Standings(items, key, scorer)

			Convey("Then ties share a rank and ordering is by name", func() {
				So(rows[0].Name, ShouldEqual, "Bravo")
				So(rows[1].Name, ShouldEqual, "Charlie")
				So(rows[0].Rank, ShouldEqual, 1)
				So(rows[1].Rank, ShouldEqual, 1)
				So(rows[2].Rank, ShouldEqual, 3)
				So(rows[3].Rank, ShouldEqual, 4)
				So(ranking.Keys(rows), ShouldResemble, []float64{1300, 1300, 1100, 1000})
			})
		})

		Convey("When sorting by total", func() {
			key, err := ranking.ParseSortKey("")
			So(err, ShouldBeNil)
			So(key.String(), ShouldEqual, ranking.SortTotal)
			rows := ranking.Standings(items, key, scorer)

			Convey("Then the weighted total decides", func() {
				So(rows[0].Name, ShouldEqual, "Charlie")
				So(rows[len(rows)-1].Name, ShouldEqual, "Delta")
				So(rows[0].Total, ShouldBeGreaterThan, rows[1].Total)
			})
		})

		Convey("When sorting by an unknown key", func() {
			_, err := ranking.ParseSortKey("popularity")

			Convey("Then it fails", func() {
				So(errors.Is(err, model.ErrUnknownDimension), ShouldBeTrue)
			})
		})
	})
}

func TestHistogram(t *testing.T) {
	Convey("Given scores spread over several buckets", t, func() {
		buckets := ranking.Histogram([]float64{1149.9, 1150, 1199.99, 1200, 1312}, ranking.DefaultBucketWidth)

		Convey("Then buckets start at the floor of the minimum and cover the maximum", func() {
			So(len(buckets), ShouldEqual, 5)
			So(buckets[0], ShouldResemble, ranking.Bucket{Lower: 1100, Count: 1})
			So(buckets[1], ShouldResemble, ranking.Bucket{Lower: 1150, Count: 2})
			So(buckets[2], ShouldResemble, ranking.Bucket{Lower: 1200, Count: 1})
			So(buckets[3], ShouldResemble, ranking.Bucket{Lower: 1250, Count: 0})
			So(buckets[4], ShouldResemble, ranking.Bucket{Lower: 1300, Count: 1})
		})
	})

	Convey("Given no scores", t, func() {
		So(ranking.Histogram(nil, 50), ShouldBeNil)
	})
}
