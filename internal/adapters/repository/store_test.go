package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/yap/internal/domain/model"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

type storeFactory func(t *testing.T, opts ...Option) Store

func newMemory(t *testing.T, opts ...Option) Store {
	s := NewMemoryStore(context.Background(), opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSQLite(t *testing.T, opts ...Option) Store {
	s, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "yap.db"), opts...)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fixedClock returns successive instants one second apart.
func fixedClock() func() time.Time {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func sampleYap(url, profile string, score float64) model.Yap {
	return model.Yap{
		VideoURL:                url,
		AwemeID:                 "7234567890",
		ProfileID:               profile,
		YapScore:                score,
		TotalComments:           10,
		KnownCommentersCount:    2,
		TopCommenterRank:        90,
		WeightedEngagementScore: score / 2,
		QualifiesAsYap:          score >= 50,
		Interactions: []model.YapInteraction{
			{InteractorProfileID: "p1", InteractorHandle: "leomessi", CommentText: strPtr("golazo"), CommentLikes: 12, RankScore: 90, InteractionWeight: 100},
			{InteractorProfileID: "p2", CommentLikes: 0, RankScore: 45, InteractionWeight: 45},
		},
	}
}

func TestStores(t *testing.T) {
	for name, factory := range map[string]storeFactory{"memory": newMemory, "sqlite": newSQLite} {
		runStoreContract(t, name, factory)
	}
}

func runStoreContract(t *testing.T, name string, newStore storeFactory) {
	ctx := context.Background()

	Convey(name+": saving and reading yaps", t, func() {
		s := newStore(t, WithClock(fixedClock()))

		saved, created, err := s.SaveYap(ctx, sampleYap("tiktok.com/@a/video/1", "author", 120))
		So(err, ShouldBeNil)
		So(created, ShouldBeTrue)
		So(saved.ID, ShouldNotBeEmpty)
		So(saved.CreatedAt.IsZero(), ShouldBeFalse)
		for _, in := range saved.Interactions {
			So(in.YapID, ShouldEqual, saved.ID)
		}

		Convey("Get returns interactions ordered by rank", func() {
			got, err := s.GetYap(ctx, saved.ID)
			So(err, ShouldBeNil)
			So(got.VideoURL, ShouldEqual, "tiktok.com/@a/video/1")
			So(got.YapScore, ShouldEqual, 120.0)
			So(got.QualifiesAsYap, ShouldBeTrue)
			So(got.Interactions, ShouldHaveLength, 2)
			So(got.Interactions[0].InteractorProfileID, ShouldEqual, "p1")
			So(*got.Interactions[0].CommentText, ShouldEqual, "golazo")
			So(got.Interactions[1].CommentText, ShouldBeNil)

			byURL, err := s.GetYapByURL(ctx, "tiktok.com/@a/video/1")
			So(err, ShouldBeNil)
			So(byURL.ID, ShouldEqual, saved.ID)
		})

		Convey("saving the same URL again replaces it in place", func() {
			y := sampleYap("tiktok.com/@a/video/1", "author", 30)
			y.Interactions = y.Interactions[1:]
			again, created, err := s.SaveYap(ctx, y)
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(again.ID, ShouldEqual, saved.ID)
			So(again.CreatedAt.Equal(saved.CreatedAt), ShouldBeTrue)

			got, err := s.GetYap(ctx, saved.ID)
			So(err, ShouldBeNil)
			So(got.YapScore, ShouldEqual, 30.0)
			So(got.Interactions, ShouldHaveLength, 1)

			n, err := s.Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			Convey("and a rescore that no longer qualifies leaves the leaderboard", func() {
				top, err := s.TopYaps(ctx, 10)
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)
			})
		})

		Convey("Delete removes it", func() {
			So(s.DeleteYap(ctx, saved.ID), ShouldBeNil)
			_, err := s.GetYap(ctx, saved.ID)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			So(errors.Is(s.DeleteYap(ctx, saved.ID), ErrNotFound), ShouldBeTrue)
			_, err = s.GetYapByURL(ctx, "tiktok.com/@a/video/1")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})
	})

	Convey(name+": invalid yaps are rejected", t, func() {
		s := newStore(t)
		_, _, err := s.SaveYap(ctx, model.Yap{})
		So(errors.Is(err, ErrInvalidYap), ShouldBeTrue)

		y := sampleYap("tiktok.com/@a/video/2", "a", 10)
		y.KnownCommentersCount = 11
		_, _, err = s.SaveYap(ctx, y)
		So(errors.Is(err, ErrInvalidYap), ShouldBeTrue)

		_, err = s.GetYap(ctx, "missing")
		So(errors.Is(err, ErrNotFound), ShouldBeTrue)
	})

	Convey(name+": top yaps and aggregates", t, func() {
		s := newStore(t)
		scores := []float64{5, 50, 20, 50, 80}
		for i, sc := range scores {
			profile := "alice"
			if i%2 == 1 {
				profile = "bob"
			}
			y := sampleYap(fmt.Sprintf("tiktok.com/@x/video/%d", i), profile, sc)
			y.ID = fmt.Sprintf("y%d", i)
			_, _, err := s.SaveYap(ctx, y)
			So(err, ShouldBeNil)
		}

		top, err := s.TopYaps(ctx, 3)
		So(err, ShouldBeNil)
		So(top, ShouldHaveLength, 3)
		So(top[0].ID, ShouldEqual, "y4")
		So(top[1].ID, ShouldEqual, "y1")
		So(top[2].ID, ShouldEqual, "y3")
		So(top[0].Interactions, ShouldBeEmpty)

		_, err = s.TopYaps(ctx, 0)
		So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)

		Convey("non-qualifying scores stay off the leaderboard and out of aggregates", func() {
			all, err := s.TopYaps(ctx, 10)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 3)
			for _, y := range all {
				So(y.QualifiesAsYap, ShouldBeTrue)
			}
			n, err := s.Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 5)
		})

		aggs, err := s.ProfileAggregates(ctx)
		So(err, ShouldBeNil)
		So(aggs, ShouldHaveLength, 2)
		So(aggs[0].ProfileID, ShouldEqual, "alice")
		So(aggs[0].YapCount, ShouldEqual, 1)
		So(aggs[0].TotalYapScore, ShouldEqual, 80.0)
		So(aggs[1].ProfileID, ShouldEqual, "bob")
		So(aggs[1].TotalYapScore, ShouldEqual, 100.0)
	})

	Convey(name+": listing pages newest first", t, func() {
		s := newStore(t, WithClock(fixedClock()))
		for i := range 5 {
			profile := "alice"
			if i >= 3 {
				profile = "bob"
			}
			y := sampleYap(fmt.Sprintf("tiktok.com/@x/video/%d", i), profile, float64(i))
			y.ID = fmt.Sprintf("y%d", i)
			_, _, err := s.SaveYap(ctx, y)
			So(err, ShouldBeNil)
		}

		page, err := s.ListYaps(ctx, ListFilter{Limit: 2})
		So(err, ShouldBeNil)
		So(page, ShouldHaveLength, 2)
		So(page[0].ID, ShouldEqual, "y4")
		So(page[1].ID, ShouldEqual, "y3")

		page, err = s.ListYaps(ctx, ListFilter{Limit: 2, Offset: 4})
		So(err, ShouldBeNil)
		So(page, ShouldHaveLength, 1)
		So(page[0].ID, ShouldEqual, "y0")

		page, err = s.ListYaps(ctx, ListFilter{ProfileID: "bob", Limit: 10})
		So(err, ShouldBeNil)
		So(page, ShouldHaveLength, 2)

		page, err = s.ListYaps(ctx, ListFilter{Limit: 10, Offset: 100})
		So(err, ShouldBeNil)
		So(page, ShouldBeEmpty)

		_, err = s.ListYaps(ctx, ListFilter{Limit: MaxListLimit + 1})
		So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
		_, err = s.ListYaps(ctx, ListFilter{Limit: 1, Offset: -1})
		So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
	})

	Convey(name+": profile search", t, func() {
		s := newStore(t)
		err := s.UpsertProfiles(ctx, []model.Profile{
			{ID: "1", Handle: "leomessi", Nickname: "Leo Messi", IsSeedAccount: true, TrustDepth: intPtr(0), RankScore: 90},
			{ID: "2", Handle: "messi_fan", Nickname: "Fan", TrustDepth: intPtr(1), RankScore: 45},
			{ID: "3", Handle: "someone", Nickname: "MESSIah"},
			{ID: "4", Handle: "other", Nickname: "Other"},
		})
		So(err, ShouldBeNil)

		found, err := s.SearchProfiles(ctx, "@Messi", 10)
		So(err, ShouldBeNil)
		So(found, ShouldHaveLength, 3)
		So(found[0].ID, ShouldEqual, "1")
		So(found[0].IsSeedAccount, ShouldBeTrue)
		So(*found[0].TrustDepth, ShouldEqual, 0)
		So(found[1].ID, ShouldEqual, "2")
		So(found[2].ID, ShouldEqual, "3")
		So(found[2].TrustDepth, ShouldBeNil)

		found, err = s.SearchProfiles(ctx, "messi", 1)
		So(err, ShouldBeNil)
		So(found, ShouldHaveLength, 1)

		_, err = s.SearchProfiles(ctx, "messi", 0)
		So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
	})
}

func TestOpenSQL(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := OpenSQL(context.Background(), "oracle", "x")
		So(errors.Is(err, ErrUnknownDriver), ShouldBeTrue)
	})

	Convey("Given an existing sqlite file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "reopen.db")
		s, err := OpenSQL(ctx, DriverSQLite, path)
		So(err, ShouldBeNil)
		_, _, err = s.SaveYap(ctx, sampleYap("tiktok.com/@a/video/9", "a", 1))
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("migrations are idempotent and data survives", func() {
			s2, err := OpenSQL(ctx, DriverSQLite, path)
			So(err, ShouldBeNil)
			defer s2.Close()
			n, err := s2.Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(s2.Driver(), ShouldEqual, DriverSQLite)
			So(s2.DB(), ShouldNotBeNil)
		})
	})
}
