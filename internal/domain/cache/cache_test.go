package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/cache"
	"github.com/okian/yap/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const key = "tiktok.com/@creator/video/1"

// countingCompute returns a compute func that counts calls and waits on gate
// (when non-nil) before returning.
func countingCompute(calls *atomic.Int32, gate <-chan struct{}, err error) cache.ComputeFunc {
	return func(ctx context.Context) (model.Score, error) {
		calls.Add(1)
		if gate != nil {
			<-gate
		}
		if err != nil {
			return model.Score{}, err
		}
		return model.Score{VideoURL: key, YapScore: 42}, nil
	}
}

func TestSingleFlight(t *testing.T) {
	Convey("Given an enabled cache", t, func() {
		c := cache.New()
		ctx := context.Background()

		Convey("When N callers ask for the same key concurrently", func() {
			var calls atomic.Int32
			gate := make(chan struct{})
			compute := countingCompute(&calls, gate, nil)

			const n = 25
			var wg sync.WaitGroup
			results := make([]model.Score, n)
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = c.GetOrCompute(ctx, key, compute)
				}(i)
			}
			// Let every goroutine attach before the computation finishes.
			time.Sleep(50 * time.Millisecond)
			close(gate)
			wg.Wait()

			Convey("Then the computation runs exactly once and everyone shares it", func() {
				So(calls.Load(), ShouldEqual, 1)
				for i := 0; i < n; i++ {
					So(errs[i], ShouldBeNil)
					So(results[i].YapScore, ShouldEqual, 42)
				}
				s := c.Stats()
				So(s.Misses, ShouldEqual, n)
				So(s.Coalesced, ShouldEqual, n-1)
				So(s.Size, ShouldEqual, 1)
				So(s.InFlight, ShouldEqual, 0)
			})

			Convey("And a later call is a hit without computing", func() {
				v, err := c.GetOrCompute(ctx, key, compute)
				So(err, ShouldBeNil)
				So(v.YapScore, ShouldEqual, 42)
				So(calls.Load(), ShouldEqual, 1)
				So(c.Stats().Hits, ShouldEqual, 1)

				e, ok := c.Peek(key)
				So(ok, ShouldBeTrue)
				So(e.Hits, ShouldEqual, 1)
				So(e.CreatedAt.IsZero(), ShouldBeFalse)
			})
		})
	})
}

func TestFailuresAreNotCached(t *testing.T) {
	Convey("Given a computation that fails", t, func() {
		c := cache.New()
		ctx := context.Background()
		var calls atomic.Int32
		boom := apperr.New("test", apperr.ErrTransient, "upstream 503")
		gate := make(chan struct{})
		failing := countingCompute(&calls, gate, boom)

		Convey("When two callers share the failing computation", func() {
			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = c.GetOrCompute(ctx, key, failing)
				}(i)
			}
			time.Sleep(30 * time.Millisecond)
			close(gate)
			wg.Wait()

			Convey("Then both see the error and nothing is stored", func() {
				So(errors.Is(errs[0], apperr.ErrTransient), ShouldBeTrue)
				So(errors.Is(errs[1], apperr.ErrTransient), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 1)
				So(c.Len(), ShouldEqual, 0)
			})

			Convey("And the next call recomputes", func() {
				var again atomic.Int32
				v, err := c.GetOrCompute(ctx, key, countingCompute(&again, nil, nil))
				So(err, ShouldBeNil)
				So(v.YapScore, ShouldEqual, 42)
				So(again.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the computation panics", func() {
			_, err := c.GetOrCompute(ctx, key, func(context.Context) (model.Score, error) {
				panic("nil map")
			})
			So(errors.Is(err, apperr.ErrComputation), ShouldBeTrue)
			So(c.Len(), ShouldEqual, 0)
		})
	})
}

func TestDisabled(t *testing.T) {
	Convey("Given a cache that is toggled off", t, func() {
		c := cache.New()
		ctx := context.Background()
		var calls atomic.Int32
		compute := countingCompute(&calls, nil, nil)

		_, _ = c.GetOrCompute(ctx, key, compute)
		So(c.Len(), ShouldEqual, 1)
		c.SetEnabled(ctx, false)

		Convey("Then stored values are dropped and every call computes", func() {
			So(c.Len(), ShouldEqual, 0)
			_, err := c.GetOrCompute(ctx, key, compute)
			So(err, ShouldBeNil)
			_, err = c.GetOrCompute(ctx, key, compute)
			So(err, ShouldBeNil)
			So(calls.Load(), ShouldEqual, 3)
			So(c.Len(), ShouldEqual, 0)
			So(c.Stats().Enabled, ShouldBeFalse)
		})

		Convey("Then enabling again memoizes", func() {
			c.SetEnabled(ctx, true)
			_, _ = c.GetOrCompute(ctx, key, compute)
			_, _ = c.GetOrCompute(ctx, key, compute)
			So(calls.Load(), ShouldEqual, 2)
		})
	})
}

func TestStatsAndClear(t *testing.T) {
	Convey("Given a cache with some traffic", t, func() {
		c := cache.New(cache.WithShardCount(4))
		ctx := context.Background()
		var calls atomic.Int32
		compute := countingCompute(&calls, nil, nil)

		So(c.Stats().HitRate, ShouldEqual, 0)

		_, _ = c.GetOrCompute(ctx, "a", compute)
		_, _ = c.GetOrCompute(ctx, "b", compute)
		_, _ = c.GetOrCompute(ctx, "a", compute)
		_, _ = c.GetOrCompute(ctx, "a", compute)

		Convey("Then hit rate is hits/(hits+misses)", func() {
			s := c.Stats()
			So(s.Hits, ShouldEqual, 2)
			So(s.Misses, ShouldEqual, 2)
			So(s.HitRate, ShouldEqual, 0.5)
			So(s.Size, ShouldEqual, 2)
		})

		Convey("When clearing one key", func() {
			So(c.ClearOne(ctx, "a"), ShouldBeTrue)
			So(c.ClearOne(ctx, "missing"), ShouldBeFalse)
			So(c.Len(), ShouldEqual, 1)
		})

		Convey("When clearing everything", func() {
			So(c.ClearAll(ctx), ShouldEqual, 2)

			Convey("Then size is zero, counters survive and the next call misses", func() {
				s := c.Stats()
				So(s.Size, ShouldEqual, 0)
				So(s.Hits, ShouldEqual, 2)
				_, _ = c.GetOrCompute(ctx, "a", compute)
				So(c.Stats().Misses, ShouldEqual, 3)
				So(calls.Load(), ShouldEqual, 3)
			})
		})
	})

	Convey("Given an empty key", t, func() {
		_, err := cache.New().GetOrCompute(context.Background(), "", func(context.Context) (model.Score, error) {
			return model.Score{}, nil
		})
		So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
	})
}

type memMirror struct {
	mu      sync.Mutex
	data    map[string]model.Score
	failGet bool
}

func (m *memMirror) Get(_ context.Context, k string) (model.Score, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return model.Score{}, false, errors.New("redis down")
	}
	v, ok := m.data[k]
	return v, ok, nil
}

func (m *memMirror) Set(_ context.Context, k string, v model.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k] = v
	return nil
}

func (m *memMirror) Delete(_ context.Context, k string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, k)
	return nil
}

func (m *memMirror) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = map[string]model.Score{}
	return nil
}

func TestMirror(t *testing.T) {
	Convey("Given two caches sharing a mirror", t, func() {
		mirror := &memMirror{data: map[string]model.Score{}}
		first := cache.New(cache.WithMirror(mirror))
		second := cache.New(cache.WithMirror(mirror))
		ctx := context.Background()
		var calls atomic.Int32
		compute := countingCompute(&calls, nil, nil)

		_, err := first.GetOrCompute(ctx, key, compute)
		So(err, ShouldBeNil)

		Convey("Then the second cache is filled from the mirror", func() {
			v, err := second.GetOrCompute(ctx, key, compute)
			So(err, ShouldBeNil)
			So(v.YapScore, ShouldEqual, 42)
			So(calls.Load(), ShouldEqual, 1)
		})

		Convey("Then a failing mirror only degrades to computing", func() {
			mirror.failGet = true
			third := cache.New(cache.WithMirror(mirror))
			_, err := third.GetOrCompute(ctx, key, compute)
			So(err, ShouldBeNil)
			So(calls.Load(), ShouldEqual, 2)
		})

		Convey("Then clearing removes mirror entries too", func() {
			first.ClearAll(ctx)
			_, err := second.GetOrCompute(ctx, key, compute)
			So(err, ShouldBeNil)
			So(calls.Load(), ShouldEqual, 2)
		})
	})
}

func (m *memMirror) has(k string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[k]
	return ok
}

// trackingCompute records the peak number of concurrent runs. It signals
// started once running and blocks until gate closes or ctx ends.
func trackingCompute(calls, active, peak *atomic.Int32, started chan<- struct{}, gate <-chan struct{}) cache.ComputeFunc {
	return func(ctx context.Context) (model.Score, error) {
		calls.Add(1)
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-gate:
			return model.Score{VideoURL: key, YapScore: 42}, nil
		case <-ctx.Done():
			return model.Score{}, ctx.Err()
		}
	}
}

func TestClearDuringFlight(t *testing.T) {
	clears := map[string]func(context.Context, *cache.Cache){
		"ClearOne": func(ctx context.Context, c *cache.Cache) { c.ClearOne(ctx, key) },
		"ClearAll": func(ctx context.Context, c *cache.Cache) { c.ClearAll(ctx) },
	}
	for name, evict := range clears {
		Convey("Given a computation in flight when "+name+" runs", t, func() {
			mirror := &memMirror{data: map[string]model.Score{}}
			c := cache.New(cache.WithMirror(mirror))
			ctx := context.Background()
			var calls, active, peak atomic.Int32
			started := make(chan struct{}, 1)
			gate := make(chan struct{})
			compute := trackingCompute(&calls, &active, &peak, started, gate)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			results := make([]model.Score, 2)
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[0], errs[0] = c.GetOrCompute(ctx, key, compute)
			}()
			<-started
			evict(ctx, c)

			wg.Add(1)
			go func() {
				defer wg.Done()
				results[1], errs[1] = c.GetOrCompute(ctx, key, compute)
			}()
			time.Sleep(30 * time.Millisecond)
			close(gate)
			wg.Wait()

			Convey("Then a later caller attaches instead of starting a second run", func() {
				So(peak.Load(), ShouldEqual, 1)
				So(calls.Load(), ShouldEqual, 1)
				So(errs[0], ShouldBeNil)
				So(errs[1], ShouldBeNil)
				So(results[1].YapScore, ShouldEqual, 42)
				So(c.Stats().Coalesced, ShouldEqual, 1)
			})

			Convey("And the cleared result is neither stored nor mirrored", func() {
				So(c.Len(), ShouldEqual, 0)
				So(mirror.has(key), ShouldBeFalse)

				v, err := c.GetOrCompute(ctx, key, countingCompute(new(atomic.Int32), nil, nil))
				So(err, ShouldBeNil)
				So(v.YapScore, ShouldEqual, 42)
				So(calls.Load(), ShouldEqual, 1)
				So(c.Len(), ShouldEqual, 1)
			})
		})
	}
}

func TestLeaderCancellation(t *testing.T) {
	Convey("Given a waiter attached to a leader whose context is cancelled", t, func() {
		c := cache.New()
		var calls, active, peak atomic.Int32
		started := make(chan struct{}, 1)
		gate := make(chan struct{})
		compute := trackingCompute(&calls, &active, &peak, started, gate)

		leaderCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		leaderDone := make(chan struct{})
		go func() {
			defer close(leaderDone)
			_, _ = c.GetOrCompute(leaderCtx, key, compute)
		}()
		<-started

		var waitErr error
		var waitVal model.Score
		waiterDone := make(chan struct{})
		go func() {
			defer close(waiterDone)
			waitVal, waitErr = c.GetOrCompute(context.Background(), key, compute)
		}()
		time.Sleep(30 * time.Millisecond)
		cancel()
		time.Sleep(30 * time.Millisecond)
		close(gate)
		<-waiterDone
		<-leaderDone

		Convey("Then the waiter still gets the shared value", func() {
			So(waitErr, ShouldBeNil)
			So(waitVal.YapScore, ShouldEqual, 42)
			So(calls.Load(), ShouldEqual, 1)
			So(c.Len(), ShouldEqual, 1)
		})
	})
}
