package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/yap/internal/adapters/mq/queue"
	"github.com/okian/yap/internal/adapters/mq/worker"
	"github.com/okian/yap/internal/domain/apperr"
)

type recorder struct {
	mu   sync.Mutex
	seen map[string]int
	fail map[string]error
}

func newRecorder() *recorder {
	return &recorder{seen: make(map[string]int), fail: make(map[string]error)}
}

func (r *recorder) ProcessJob(ctx context.Context, j queue.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[j.VideoURL]++
	if err, ok := r.fail[j.VideoURL]; ok {
		return err
	}
	if j.VideoURL == "panic" {
		panic("boom")
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.seen {
		n += c
	}
	return n
}

func TestPool(t *testing.T) {
	Convey("Given a pool of 3 workers over a queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(50))
		rec := newRecorder()
		rec.fail["tiktok.com/@a/video/3"] = apperr.NotFound("test", "gone")
		pool := worker.NewPool(3, q, rec)
		So(pool.Size(), ShouldEqual, 3)
		pool.Start(ctx)

		Convey("every queued job is processed once, failures included", func() {
			for i := range 20 {
				_, err := q.Enqueue(ctx, queue.Job{VideoURL: fmt.Sprintf("tiktok.com/@a/video/%d", i)})
				So(err, ShouldBeNil)
			}
			So(pool.Shutdown(ctx), ShouldBeNil)
			So(rec.count(), ShouldEqual, 20)
			So(q.Pending(ctx, "tiktok.com/@a/video/3"), ShouldBeFalse)
			So(pool.Active(), ShouldEqual, 0)
		})

		Convey("a panicking job does not stop the worker", func() {
			_, err := q.Enqueue(ctx, queue.Job{VideoURL: "panic"})
			So(err, ShouldBeNil)
			_, err = q.Enqueue(ctx, queue.Job{VideoURL: "tiktok.com/@a/video/1"})
			So(err, ShouldBeNil)
			So(pool.Shutdown(ctx), ShouldBeNil)
			So(rec.count(), ShouldEqual, 2)
			So(q.Pending(ctx, "panic"), ShouldBeFalse)
		})
	})

	Convey("Given a worker whose job outlives its timeout", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		var gotErr atomic.Value
		slow := worker.ProcessorFunc(func(ctx context.Context, j queue.Job) error {
			<-ctx.Done()
			gotErr.Store(ctx.Err())
			return ctx.Err()
		})
		pool := worker.NewPool(1, q, slow, worker.WithJobTimeout(20*time.Millisecond))
		pool.Start(ctx)

		_, err := q.Enqueue(ctx, queue.Job{VideoURL: "tiktok.com/@a/video/1"})
		So(err, ShouldBeNil)
		So(pool.Shutdown(ctx), ShouldBeNil)
		So(errors.Is(gotErr.Load().(error), context.DeadlineExceeded), ShouldBeTrue)
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		w := worker.NewInMemoryWorker(q, newRecorder(), worker.WithName("solo"))
		go w.Run(ctx)
		cancel()

		stopped := false
		select {
		case <-w.Done():
			stopped = true
		case <-time.After(time.Second):
		}
		So(stopped, ShouldBeTrue)
	})
}
