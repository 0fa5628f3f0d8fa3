package ranking_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/ranking"
	"github.com/okian/yap/internal/domain/registry"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSource struct {
	yaps []model.Yap
	aggs []model.ProfileAggregate
	err  error
}

func (f *fakeSource) TopYaps(_ context.Context, limit int) ([]model.Yap, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := append([]model.Yap{}, f.yaps...)
	sort.Slice(out, func(i, j int) bool { return out[i].YapScore > out[j].YapScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSource) ProfileAggregates(context.Context) ([]model.ProfileAggregate, error) {
	return f.aggs, f.err
}

func snapshotWith(t *testing.T) *registry.Registry {
	r := registry.New(nil)
	_, err := r.Apply(registry.Graph{
		Seeds:    []registry.Seed{{ProfileID: "alice", Weight: 100}},
		Profiles: []model.Profile{{ID: "alice", Handle: "alice"}, {ID: "bob", Handle: "bob"}, {ID: "carol", Handle: "carol"}},
		Follows:  []registry.Edge{{From: "alice", To: "bob"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestLeaderboard(t *testing.T) {
	Convey("Given 300 stored yaps", t, func() {
		src := &fakeSource{}
		for i := 0; i < 300; i++ {
			src.yaps = append(src.yaps, model.Yap{ID: fmt.Sprintf("y%03d", i), YapScore: float64(i % 150)})
		}
		agg := ranking.New(src, nil)

		Convey("When asking for more than the cap", func() {
			entries, err := agg.Leaderboard(context.Background(), 1000)

			Convey("Then at most 200 entries come back, best first, with shared ranks", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 200)
				So(entries[0].YapScore, ShouldEqual, 149)
				So(entries[0].Rank, ShouldEqual, 1)
				So(entries[1].Rank, ShouldEqual, 1)
				So(entries[2].Rank, ShouldEqual, 2)
			})
		})

		Convey("When asking for five", func() {
			entries, err := agg.Leaderboard(context.Background(), 5)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 5)
		})

		Convey("When the limit is not positive", func() {
			_, err := agg.Leaderboard(context.Background(), 0)
			So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
			So(errors.Is(err, ranking.ErrInvalidLimit), ShouldBeTrue)
		})
	})

	Convey("Given a failing store", t, func() {
		agg := ranking.New(&fakeSource{err: errors.New("db closed")}, nil)
		_, err := agg.Leaderboard(context.Background(), 10)
		So(errors.Is(err, apperr.ErrComputation), ShouldBeTrue)
	})
}

func TestProfileRanking(t *testing.T) {
	Convey("Given aggregates for profiles with and without trust", t, func() {
		src := &fakeSource{aggs: []model.ProfileAggregate{
			{ProfileID: "carol", YapCount: 2, TotalYapScore: 100},
			{ProfileID: "bob", YapCount: 4, TotalYapScore: 100},
			{ProfileID: "alice", YapCount: 1, TotalYapScore: 300},
			{ProfileID: "dave", YapCount: 1, TotalYapScore: 100},
			{ProfileID: "erin", YapCount: 0},
		}}
		agg := ranking.New(src, snapshotWith(t))

		rows, err := agg.ProfileRanking(context.Background(), 10)

		Convey("Then order is total desc, rank score desc, id asc", func() {
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 4)
			ids := []string{rows[0].ProfileID, rows[1].ProfileID, rows[2].ProfileID, rows[3].ProfileID}
			So(ids, ShouldResemble, []string{"alice", "bob", "carol", "dave"})
		})

		Convey("Then rows with equal total and rank score share a rank", func() {
			So(rows[0].Rank, ShouldEqual, 1)
			So(rows[1].Rank, ShouldEqual, 2)
			So(rows[2].Rank, ShouldEqual, 3)
			So(rows[3].Rank, ShouldEqual, 3)
		})

		Convey("Then registry fields and averages are joined in", func() {
			So(rows[0].RankScore, ShouldEqual, 100)
			So(*rows[0].TrustDepth, ShouldEqual, 0)
			So(rows[1].RankScore, ShouldEqual, 50)
			So(rows[1].AverageYapScore, ShouldEqual, 25)
			So(rows[3].TrustDepth, ShouldBeNil)
		})

		Convey("When looking up a single profile", func() {
			row, err := agg.Profile(context.Background(), "bob")
			So(err, ShouldBeNil)
			So(row.Rank, ShouldEqual, 2)

			_, err = agg.Profile(context.Background(), "erin")
			So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given 600 profiles", t, func() {
		src := &fakeSource{}
		for i := 0; i < 600; i++ {
			src.aggs = append(src.aggs, model.ProfileAggregate{ProfileID: fmt.Sprintf("p%03d", i), YapCount: 1, TotalYapScore: float64(i)})
		}
		agg := ranking.New(src, nil)

		rows, err := agg.ProfileRanking(context.Background(), 10000)
		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 500)

		_, err = agg.ProfileRanking(context.Background(), -1)
		So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
	})
}
