package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/arena/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDimension(t *testing.T) {
	Convey("Given the dimension set", t, func() {
		Convey("Then every dimension round-trips through its name", func() {
			for _, d := range model.Dimensions {
				parsed, err := model.ParseDimension(d.String())
				So(err, ShouldBeNil)
				So(parsed, ShouldEqual, d)
			}
		})

		Convey("Then columns are distinct and prefixed", func() {
			seen := map[string]bool{}
			for _, d := range model.Dimensions {
				So(d.Column(), ShouldStartWith, "rating_")
				So(seen[d.Column()], ShouldBeFalse)
				seen[d.Column()] = true
			}
		})

		Convey("When parsing legacy aliases", func() {
			ost, err1 := model.ParseDimension("OST")
			char, err2 := model.ParseDimension(" char ")

			Convey("Then they resolve to audio and character", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(ost, ShouldEqual, model.Audio)
				So(char, ShouldEqual, model.Character)
			})
		})

		Convey("When parsing an unknown name", func() {
			_, err := model.ParseDimension("rating_story")

			Convey("Then it fails with ErrUnknownDimension", func() {
				So(errors.Is(err, model.ErrUnknownDimension), ShouldBeTrue)
			})
		})

		Convey("When an out-of-range dimension is used", func() {
			d := model.Dimension(42)

			Convey("Then it is invalid and has no column", func() {
				So(d.Valid(), ShouldBeFalse)
				So(d.Column(), ShouldEqual, "")
			})
		})

		Convey("When encoding as JSON", func() {
			b, err := json.Marshal(struct {
				D model.Dimension `json:"d"`
			}{D: model.Voice})

			Convey("Then the name is used", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, `{"d":"voice"}`)
			})
		})
	})
}

func TestNewItem(t *testing.T) {
	Convey("Given a new item", t, func() {
		it, err := model.NewItem("  Cowboy Bebop ", model.DefaultBaseline)

		Convey("Then it starts at baseline with no matches", func() {
			So(err, ShouldBeNil)
			So(it.ID, ShouldNotBeEmpty)
			So(it.Name, ShouldEqual, "Cowboy Bebop")
			So(it.MatchesPlayed, ShouldEqual, 0)
			So(it.OriginalRank, ShouldBeNil)
			for _, d := range model.Dimensions {
				So(it.Rating(d), ShouldEqual, model.DefaultBaseline)
			}
		})

		Convey("Then identifiers are unique", func() {
			other, _ := model.NewItem("Cowboy Bebop", model.DefaultBaseline)
			So(other.ID, ShouldNotEqual, it.ID)
		})

		Convey("When a rating is set", func() {
			it.SetRating(model.Fun, 1337)

			Convey("Then only that dimension changes", func() {
				So(it.Rating(model.Fun), ShouldEqual, 1337)
				So(it.Rating(model.Story), ShouldEqual, model.DefaultBaseline)
			})
		})
	})

	Convey("Given a blank name", t, func() {
		_, err := model.NewItem("   ", model.DefaultBaseline)

		Convey("Then creation is refused", func() {
			So(err, ShouldEqual, model.ErrEmptyName)
		})
	})
}
