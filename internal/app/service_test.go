package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/yap/internal/adapters/repository"
	service "github.com/okian/yap/internal/app"
	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/cache"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/registry"
	"github.com/okian/yap/internal/domain/types"
	"github.com/okian/yap/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeFetcher serves every video with the same two known commenters.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	gate  chan struct{}
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeFetcher) ResolveVideoID(context.Context, string) (string, error) {
	return "", apperr.NotFound("fake.resolve", "no short links here")
}

func (f *fakeFetcher) FetchComments(ctx context.Context, videoID string) (model.VideoComments, error) {
	f.mu.Lock()
	f.calls[videoID]++
	err := f.fail[videoID]
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.VideoComments{}, ctx.Err()
		}
	}
	if err != nil {
		return model.VideoComments{}, err
	}
	return model.VideoComments{
		VideoID:           videoID,
		AuthorProfileID:   "author-" + videoID,
		AuthorHandle:      "creator",
		TotalCommentCount: 10,
		Comments: []model.Comment{
			{CommenterProfileID: "p-messi", CommenterHandle: "leomessi", Text: "golazo", LikeCount: 120},
			{CommenterProfileID: "p-1", CommenterHandle: "friend", Text: "wow", LikeCount: 3},
			{CommenterProfileID: "stranger", Text: "first"},
		},
	}, nil
}

func (f *fakeFetcher) count(videoID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[videoID]
}

var trustGraph = registry.SourceFunc(func(context.Context) (registry.Graph, error) {
	return registry.Graph{
		Seeds: []registry.Seed{{ProfileID: "p-messi", Weight: 90}},
		Profiles: []model.Profile{
			{ID: "p-messi", Handle: "leomessi", Nickname: "Leo Messi"},
			{ID: "p-1", Handle: "friend", Nickname: "Friend"},
		},
		Follows: []registry.Edge{{From: "p-messi", To: "p-1"}},
	}, nil
})

func videoURL(id int) string {
	return fmt.Sprintf("https://www.tiktok.com/@creator/video/%d", 7000000000000000000+id)
}

func videoID(id int) string { return fmt.Sprint(7000000000000000000 + id) }

func newService(t *testing.T, f *fakeFetcher, opts ...service.Option) *service.Service {
	store := repository.NewMemoryStore(context.Background())
	svc := service.New(store, f, trustGraph, append([]service.Option{service.WithWorkerCount(2), service.WithQueueSize(4)}, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newService(t, newFetcher())
		So(svc.Started(), ShouldBeTrue)

		Convey("Then the first snapshot is loaded and mirrored to the store", func() {
			info := svc.RegistryInfo()
			So(info.Version, ShouldEqual, 1)
			So(info.Seeds, ShouldEqual, 1)
			found, err := svc.Search(context.Background(), "@LeoMessi", 10)
			So(err, ShouldBeNil)
			So(found, ShouldHaveLength, 1)
			So(found[0].IsSeedAccount, ShouldBeTrue)
		})

		Convey("Then stats describe the pipeline", func() {
			stats := svc.GetStats(context.Background())
			So(stats["started"], ShouldEqual, true)
			So(stats["workers"], ShouldEqual, 2)
			So(stats["queue_capacity"], ShouldEqual, 4)
			So(stats["total_yaps"], ShouldEqual, 0)
		})

		Convey("When stopped the service reports it", func() {
			svc.Stop()
			So(svc.Started(), ShouldBeFalse)
			So(svc.GetStats(context.Background())["started"], ShouldEqual, false)
		})
	})
}

func TestService_Calculate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service", t, func() {
		f := newFetcher()
		svc := newService(t, f)

		Convey("Calculate scores through the cache and persists nothing", func() {
			s1, err := svc.Calculate(ctx, videoURL(1))
			So(err, ShouldBeNil)
			So(s1.KnownCommentersCount, ShouldEqual, 2)
			So(s1.QualifiesAsYap, ShouldBeTrue)
			So(s1.KnownInteractors[0].ProfileID, ShouldEqual, "p-messi")

			_, err = svc.Calculate(ctx, videoURL(1))
			So(err, ShouldBeNil)
			So(f.count(videoID(1)), ShouldEqual, 1)
			So(svc.CacheStats().Hits, ShouldEqual, 1)

			ys, err := svc.List(ctx, repository.ListFilter{Limit: 10})
			So(err, ShouldBeNil)
			So(ys, ShouldBeEmpty)
		})

		Convey("A foreign URL is a validation error with no fetch", func() {
			_, err := svc.Calculate(ctx, "https://example.com/video/1")
			So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
			So(f.count("1"), ShouldEqual, 0)
		})

		Convey("Concurrent callers share one fetch", func() {
			f.gate = make(chan struct{})
			var wg sync.WaitGroup
			var ok atomic.Int32
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := svc.Calculate(ctx, videoURL(2)); err == nil {
						ok.Add(1)
					}
				}()
			}
			time.Sleep(50 * time.Millisecond)
			close(f.gate)
			wg.Wait()
			So(ok.Load(), ShouldEqual, 8)
			So(f.count(videoID(2)), ShouldEqual, 1)
		})

		Convey("With the cache toggled off every call fetches", func() {
			stats := svc.ToggleCache(ctx, false)
			So(stats.Enabled, ShouldBeFalse)
			_, _ = svc.Calculate(ctx, videoURL(3))
			_, _ = svc.Calculate(ctx, videoURL(3))
			So(f.count(videoID(3)), ShouldEqual, 2)
		})

		Convey("Clearing one entry forces the next call to fetch", func() {
			_, _ = svc.Calculate(ctx, videoURL(4))
			removed, err := svc.ClearCacheOne(ctx, videoURL(4))
			So(err, ShouldBeNil)
			So(removed, ShouldBeTrue)
			_, _ = svc.Calculate(ctx, videoURL(4))
			So(f.count(videoID(4)), ShouldEqual, 2)

			So(svc.ClearCache(ctx), ShouldEqual, 1)
			So(svc.CacheStats().Size, ShouldEqual, 0)

			_, err = svc.ClearCacheOne(ctx, "nope")
			So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestService_Persistence(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service", t, func() {
		f := newFetcher()
		svc := newService(t, f)

		Convey("Process stores a yap owned by the author", func() {
			res, err := svc.Process(ctx, videoURL(1), "")
			So(err, ShouldBeNil)
			So(res.Created, ShouldBeTrue)
			So(res.Yap.ProfileID, ShouldEqual, "author-"+videoID(1))
			So(res.Yap.Interactions, ShouldHaveLength, 2)

			got, err := svc.Get(ctx, res.Yap.ID)
			So(err, ShouldBeNil)
			So(got.YapScore, ShouldEqual, res.Score.YapScore)
			So(*got.Interactions[0].CommentText, ShouldEqual, "golazo")

			Convey("Processing again updates in place", func() {
				again, err := svc.Process(ctx, videoURL(1), "override")
				So(err, ShouldBeNil)
				So(again.Created, ShouldBeFalse)
				So(again.Yap.ID, ShouldEqual, res.Yap.ID)
				So(again.Yap.ProfileID, ShouldEqual, "override")
			})

			Convey("Recalculate fetches again and keeps the id", func() {
				re, err := svc.Recalculate(ctx, res.Yap.ID)
				So(err, ShouldBeNil)
				So(re.Yap.ID, ShouldEqual, res.Yap.ID)
				So(f.count(videoID(1)), ShouldEqual, 2)
			})

			Convey("Rankings see the profile", func() {
				board, err := svc.Leaderboard(ctx, 10)
				So(err, ShouldBeNil)
				So(board, ShouldHaveLength, 1)
				So(board[0].YapID, ShouldEqual, res.Yap.ID)

				rows, err := svc.ProfileRanking(ctx, 10)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				row, err := svc.ProfileRank(ctx, res.Yap.ProfileID)
				So(err, ShouldBeNil)
				So(row.Rank, ShouldEqual, 1)
				So(row.YapCount, ShouldEqual, 1)
			})

			Convey("Delete removes it", func() {
				So(svc.Delete(ctx, res.Yap.ID), ShouldBeNil)
				_, err := svc.Get(ctx, res.Yap.ID)
				So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
				So(errors.Is(svc.Delete(ctx, res.Yap.ID), apperr.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("Fetch failures keep their kind and store nothing", func() {
			f.fail[videoID(9)] = apperr.Wrap("fake", apperr.ErrTransient, apperr.ErrRateLimited)
			_, err := svc.Process(ctx, videoURL(9), "")
			So(errors.Is(err, apperr.ErrTransient), ShouldBeTrue)
			So(errors.Is(err, apperr.ErrRateLimited), ShouldBeTrue)
			n := svc.GetStats(ctx)["total_yaps"]
			So(n, ShouldEqual, 0)
		})

		Convey("Invalid list limits are validation errors", func() {
			_, err := svc.List(ctx, repository.ListFilter{Limit: 1000})
			So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
			_, err = svc.Search(ctx, " @ ", 10)
			So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestService_Batch(t *testing.T) {
	ctx := context.Background()

	Convey("Given a batch with failures and an invalid URL", t, func() {
		f := newFetcher()
		svc := newService(t, f)
		f.fail[videoID(3)] = apperr.NotFound("fake", "gone")
		urls := []string{videoURL(1), videoURL(2), videoURL(3), "not a url", videoURL(1)}

		items, err := svc.Batch(ctx, urls, "", 2)
		So(err, ShouldBeNil)
		So(items, ShouldHaveLength, 5)
		So(items[0].YapID, ShouldNotBeEmpty)
		So(items[0].Score, ShouldNotBeNil)
		So(items[4].YapID, ShouldEqual, items[0].YapID)
		So(items[2].Error.Code, ShouldEqual, "not_found")
		So(items[2].Error.Retryable, ShouldBeFalse)
		So(items[3].Error.Code, ShouldEqual, "validation_error")
		So(f.count(videoID(1)), ShouldEqual, 1)

		ys, err := svc.List(ctx, repository.ListFilter{Limit: 10})
		So(err, ShouldBeNil)
		So(ys, ShouldHaveLength, 2)

		Convey("Bad shared parameters fail the whole call", func() {
			_, err := svc.Batch(ctx, urls, "", 11)
			So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
			_, err = svc.Batch(ctx, nil, "", 0)
			So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestService_AutoProcess(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running worker pool", t, func() {
		f := newFetcher()
		svc := newService(t, f)

		items, err := svc.AutoProcess(ctx, []string{videoURL(1), videoURL(2), "bad"}, "owner")
		So(err, ShouldBeNil)
		So(items[0].Status, ShouldEqual, types.QueueStatusQueued)
		So(items[0].JobID, ShouldNotBeEmpty)
		So(items[2].Status, ShouldEqual, types.QueueStatusInvalid)

		deadline := time.Now().Add(5 * time.Second)
		var ys []model.Yap
		for time.Now().Before(deadline) {
			ys, _ = svc.List(ctx, repository.ListFilter{ProfileID: "owner", Limit: 10})
			if len(ys) == 2 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		So(ys, ShouldHaveLength, 2)

		_, err = svc.AutoProcess(ctx, nil, "")
		So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
	})

	Convey("Given a full queue and blocked workers", t, func() {
		f := newFetcher()
		f.gate = make(chan struct{})
		svc := newService(t, f, service.WithWorkerCount(1), service.WithQueueSize(1))
		defer close(f.gate)

		urls := make([]string, 0, 4)
		for i := range 4 {
			urls = append(urls, videoURL(100+i))
		}
		// Park the only worker on the first job so the queue stays full.
		_, err := svc.AutoProcess(ctx, urls[:1], "")
		So(err, ShouldBeNil)
		deadline := time.Now().Add(5 * time.Second)
		for svc.GetStats(ctx)["active_workers"] != 1 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		items, err := svc.AutoProcess(ctx, urls[1:], "")
		So(err, ShouldBeNil)
		So(items[0].Status, ShouldEqual, types.QueueStatusQueued)
		So(items[1].Status, ShouldEqual, types.QueueStatusRejected)
		So(items[1].Error.Retryable, ShouldBeTrue)

		Convey("A request that queues nothing is a transient error", func() {
			_, err := svc.AutoProcess(ctx, []string{videoURL(200)}, "")
			So(errors.Is(err, apperr.ErrTransient), ShouldBeTrue)
		})

		Convey("A pending video is reported as a duplicate", func() {
			items, err := svc.AutoProcess(ctx, urls[:1], "")
			So(err, ShouldBeNil)
			So(items[0].Status, ShouldEqual, types.QueueStatusDuplicate)
		})
	})
}

func TestService_RefreshRegistry(t *testing.T) {
	Convey("Given a graph source that starts failing", t, func() {
		var broken atomic.Bool
		src := registry.SourceFunc(func(ctx context.Context) (registry.Graph, error) {
			if broken.Load() {
				return registry.Graph{}, errors.New("graph store down")
			}
			return trustGraph(ctx)
		})
		svc := service.New(repository.NewMemoryStore(context.Background()), newFetcher(), src,
			service.WithCacheOptions(cache.WithShardCount(2)))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		info, err := svc.RefreshRegistry(context.Background())
		So(err, ShouldBeNil)
		So(info.Version, ShouldEqual, 2)

		broken.Store(true)
		info, err = svc.RefreshRegistry(context.Background())
		So(errors.Is(err, apperr.ErrTransient), ShouldBeTrue)
		So(info.Version, ShouldEqual, 2)
		So(svc.Snapshot().IsKnown("p-1"), ShouldBeTrue)
		_, ok := svc.Lookup("p-messi")
		So(ok, ShouldBeTrue)
	})
}
