package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/yap/internal/config"
)

const seedsYAML = `
seeds:
  - handle: leomessi
    profile_id: "1"
    weight: 90
profiles:
  - id: "1"
    handle: leomessi
  - id: "2"
    handle: fan
follows:
  - from: "1"
    to: "2"
`

// fakeUpstream serves one video whose only commenter is profile "2".
func fakeUpstream(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/item/detail/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"statusCode":0,"itemInfo":{"itemStruct":{"id":"7234",
			"author":{"id":"1","uniqueId":"leomessi"},"stats":{"commentCount":1}}}}`)
	})
	mux.HandleFunc("/api/comment/list/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status_code":0,"comments":[{"cid":"c1","text":"golazo","digg_count":3,
			"user":{"uid":"2","unique_id":"fan"}}],"cursor":1,"has_more":0,"total":1}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testEnv points configuration at a temp seeds file, the fake upstream and
// the given db driver.
func testEnv(t *testing.T, driver string) string {
	dir := t.TempDir()
	seeds := filepath.Join(dir, "seeds.yaml")
	if err := os.WriteFile(seeds, []byte(seedsYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgFile = ""
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv("YAP_DB_DRIVER", driver)
	t.Setenv("YAP_DB_DSN", filepath.Join(dir, "yap.db"))
	t.Setenv("YAP_SEEDS_FILE", seeds)
	t.Setenv("YAP_FETCH_BASE_URL", fakeUpstream(t).URL)
	t.Setenv("YAP_FETCH_DELAY_MS", "0")
	t.Setenv("YAP_WORKER_COUNT", "1")
	t.Setenv("YAP_REGISTRY_REFRESH_INTERVAL_S", "0")
	t.Setenv("YAP_LOG_LEVEL", "error")
	return seeds
}

func execute(args ...string) (string, error) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	root.SetContext(context.Background())
	err := root.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := rootCmd()
		names := map[string]bool{}
		for _, c := range root.Commands() {
			names[c.Name()] = true
		}
		convey.So(names, convey.ShouldContainKey, "serve")
		convey.So(names, convey.ShouldContainKey, "calculate")
		convey.So(names, convey.ShouldContainKey, "batch")
		convey.So(names, convey.ShouldContainKey, "leaderboard")
		convey.So(names, convey.ShouldContainKey, "registry")
		convey.So(names, convey.ShouldContainKey, "smoke")

		_, err := execute("calculate")
		convey.So(err, convey.ShouldNotBeNil)
	})

	convey.Convey("Given a memory store and a seeds file", t, func() {
		testEnv(t, config.DBMemory)

		convey.Convey("registry prints the snapshot", func() {
			out, err := execute("registry")
			convey.So(err, convey.ShouldBeNil)
			var info map[string]any
			convey.So(json.Unmarshal([]byte(out), &info), convey.ShouldBeNil)
			convey.So(info["seeds"], convey.ShouldEqual, 1.0)
			convey.So(info["profiles"], convey.ShouldEqual, 2.0)
		})

		convey.Convey("calculate scores the video", func() {
			out, err := execute("calculate", "https://www.tiktok.com/@leomessi/video/7234")
			convey.So(err, convey.ShouldBeNil)
			var score map[string]any
			convey.So(json.Unmarshal([]byte(out), &score), convey.ShouldBeNil)
			convey.So(score["video_id"], convey.ShouldEqual, "7234")
			convey.So(score["known_commenters_count"], convey.ShouldEqual, 1.0)
		})

		convey.Convey("calculate rejects foreign URLs", func() {
			_, err := execute("calculate", "https://example.com/video/1")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("registry export writes YAML", func() {
			out, err := execute("registry", "export")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "leomessi")
		})

		convey.Convey("registry import refuses the memory store", func() {
			_, err := execute("registry", "import", "seeds.yaml")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given a sqlite store", t, func() {
		seeds := testEnv(t, config.DBSQLite)

		convey.Convey("batch stores yaps that the leaderboard then lists", func() {
			out, err := execute("batch", "https://www.tiktok.com/@leomessi/video/7234")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, `"yap_id"`)

			out, err = execute("leaderboard", "--limit", "5")
			convey.So(err, convey.ShouldBeNil)
			var top []map[string]any
			convey.So(json.Unmarshal([]byte(out), &top), convey.ShouldBeNil)
			convey.So(top, convey.ShouldHaveLength, 1)
		})

		convey.Convey("an imported graph serves as the sql source", func() {
			_, err := execute("registry", "import", seeds)
			convey.So(err, convey.ShouldBeNil)

			t.Setenv("YAP_GRAPH_SOURCE", config.GraphSQL)
			out, err := execute("registry")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, `"seeds": 1`)
		})
	})
}

func TestHandler(t *testing.T) {
	convey.Convey("Given the wired HTTP handler", t, func() {
		testEnv(t, config.DBMemory)
		ctx := context.Background()
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		rt, err := build(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer rt.Close(ctx)

		srv := httptest.NewServer(newHandler(ctx, rt.svc))
		defer srv.Close()

		for _, path := range []string{"/healthz", "/stats", "/registry", "/openapi.yaml", "/api-docs"} {
			resp, err := http.Get(srv.URL + path)
			convey.So(err, convey.ShouldBeNil)
			resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		}

		body := strings.NewReader(`{"video_url":"https://www.tiktok.com/@leomessi/video/7234"}`)
		resp, err := http.Post(srv.URL+"/yaps/process", "application/json", body)
		convey.So(err, convey.ShouldBeNil)
		resp.Body.Close()
		convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusCreated)

		convey.Convey("the smoke command verifies it end to end", func() {
			out, err := execute("smoke", "--url", srv.URL, "--wait", "10s", "--workers", "2",
				"https://www.tiktok.com/@leomessi/video/7235")
			convey.So(err, convey.ShouldBeNil)
			var stats map[string]any
			convey.So(json.Unmarshal([]byte(out), &stats), convey.ShouldBeNil)
			convey.So(stats["Queued"], convey.ShouldEqual, 1.0)
			convey.So(stats["LeaderboardEntries"], convey.ShouldEqual, 2.0)
		})
	})

	convey.Convey("System metrics update without panicking", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
