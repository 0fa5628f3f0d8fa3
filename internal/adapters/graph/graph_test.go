package graph

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/yap/internal/adapters/repository"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/registry"
)

const sampleYAML = `
seeds:
  - handle: LeoMessi
    profile_id: "1"
    weight: 90
profiles:
  - id: "1"
    handle: leomessi
    nickname: Leo Messi
    follower_count: 500000000
  - id: "2"
    handle: fan
follows:
  - from: "1"
    to: "2"
`

func TestFileSource(t *testing.T) {
	ctx := context.Background()

	Convey("Given a YAML graph file", t, func() {
		path := filepath.Join(t.TempDir(), "graph.yaml")
		So(os.WriteFile(path, []byte(sampleYAML), 0o600), ShouldBeNil)
		src, err := NewFileSource(path)
		So(err, ShouldBeNil)

		g, err := src.Load(ctx)
		So(err, ShouldBeNil)
		So(g.Seeds, ShouldResemble, []registry.Seed{{ProfileID: "1", Handle: "LeoMessi", Weight: 90}})
		So(g.Profiles, ShouldHaveLength, 2)
		So(g.Profiles[0].FollowerCount, ShouldEqual, 500000000)
		So(g.Profiles[0].Nickname, ShouldEqual, "Leo Messi")
		So(g.Follows, ShouldResemble, []registry.Edge{{From: "1", To: "2"}})

		Convey("it builds a snapshot", func() {
			snap, err := registry.Build(g, 1, registry.BuildConfig{MaxDepth: 3})
			So(err, ShouldBeNil)
			p, ok := snap.Lookup("2")
			So(ok, ShouldBeTrue)
			So(p.RankScore, ShouldEqual, 45.0)
		})

		Convey("Encode round-trips through Decode", func() {
			var buf bytes.Buffer
			So(Encode(&buf, g), ShouldBeNil)
			again, err := Decode(&buf)
			So(err, ShouldBeNil)
			So(again, ShouldResemble, g)
		})
	})

	Convey("Edge cases", t, func() {
		_, err := NewFileSource("")
		So(errors.Is(err, ErrNoPath), ShouldBeTrue)

		src, _ := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml"))
		_, err = src.Load(ctx)
		So(err, ShouldNotBeNil)

		g, err := Decode(strings.NewReader(""))
		So(err, ShouldBeNil)
		So(g.Seeds, ShouldBeEmpty)

		_, err = Decode(strings.NewReader("seeds: [oops"))
		So(err, ShouldNotBeNil)
	})
}

func TestSQLSource(t *testing.T) {
	ctx := context.Background()

	Convey("Given a graph saved into sqlite", t, func() {
		store, err := repository.OpenSQL(ctx, repository.DriverSQLite, filepath.Join(t.TempDir(), "g.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		src := NewSQLSource(store.DB())
		g, err := Decode(strings.NewReader(sampleYAML))
		So(err, ShouldBeNil)
		So(src.Save(ctx, g), ShouldBeNil)
		So(src.Save(ctx, g), ShouldBeNil)

		loaded, err := src.Load(ctx)
		So(err, ShouldBeNil)
		So(loaded.Seeds, ShouldHaveLength, 1)
		So(loaded.Seeds[0].Weight, ShouldEqual, 90.0)
		So(loaded.Profiles, ShouldHaveLength, 2)
		So(loaded.Follows, ShouldResemble, []registry.Edge{{From: "1", To: "2"}})

		Convey("stored yap profiles share the table", func() {
			depth := 1
			So(store.UpsertProfiles(ctx, []model.Profile{{ID: "3", Handle: "late", TrustDepth: &depth, RankScore: 10}}), ShouldBeNil)
			loaded, err := src.Load(ctx)
			So(err, ShouldBeNil)
			So(loaded.Profiles, ShouldHaveLength, 3)
		})

		Convey("seeds need a profile id", func() {
			err := src.Save(ctx, registry.Graph{Seeds: []registry.Seed{{Handle: "x", Weight: 1}}})
			So(errors.Is(err, ErrBadRecord), ShouldBeTrue)
		})
	})
}

func TestNeo4jRecords(t *testing.T) {
	Convey("Records convert to graph values", t, func() {
		sd, err := seedFromRecord(&neo4j.Record{Keys: []string{"id", "handle", "weight"}, Values: []any{"1", "leomessi", int64(90)}})
		So(err, ShouldBeNil)
		So(sd, ShouldResemble, registry.Seed{ProfileID: "1", Handle: "leomessi", Weight: 90})

		p, err := profileFromRecord(&neo4j.Record{
			Keys:   []string{"id", "handle", "nickname", "follower_count"},
			Values: []any{"2", "fan", "Fan", int64(12)},
		})
		So(err, ShouldBeNil)
		So(p.FollowerCount, ShouldEqual, 12)

		e, err := edgeFromRecord(&neo4j.Record{Keys: []string{"from", "to"}, Values: []any{"1", "2"}})
		So(err, ShouldBeNil)
		So(e, ShouldResemble, registry.Edge{From: "1", To: "2"})

		_, err = seedFromRecord(&neo4j.Record{Keys: []string{"id"}, Values: []any{"1"}})
		So(errors.Is(err, ErrBadRecord), ShouldBeTrue)
		_, err = edgeFromRecord(&neo4j.Record{Keys: []string{"from", "to"}, Values: []any{"1", 3.5}})
		So(errors.Is(err, ErrBadRecord), ShouldBeTrue)
	})

	Convey("Closing a nil source is a no-op", t, func() {
		var s *Neo4jSource
		So(s.Close(context.Background()), ShouldBeNil)
	})
}
