package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/yap/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("A new key is recorded once", func() {
			So(d.SeenAndRecord(ctx, "tiktok.com/@a/video/1"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "tiktok.com/@a/video/1"), ShouldBeTrue)
			So(d.Contains(ctx, "tiktok.com/@a/video/1"), ShouldBeTrue)
			So(d.Size(), ShouldEqual, 1)
		})

		Convey("Unrecord allows the key again", func() {
			d.SeenAndRecord(ctx, "k")
			d.Unrecord(ctx, "k")
			So(d.Contains(ctx, "k"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 0)
			So(d.SeenAndRecord(ctx, "k"), ShouldBeFalse)
		})

		Convey("Unrecording a missing key is a no-op", func() {
			d.Unrecord(ctx, "nope")
			So(d.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded deduper at capacity", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, k := range []string{"k1", "k2", "k3"} {
			So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
		}

		Convey("Recording one more evicts the oldest", func() {
			So(d.SeenAndRecord(ctx, "k4"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 3)
			So(d.Contains(ctx, "k1"), ShouldBeFalse)
			So(d.Contains(ctx, "k2"), ShouldBeTrue)
			So(d.Contains(ctx, "k4"), ShouldBeTrue)
		})

		Convey("Unrecording in the middle keeps the order of the rest", func() {
			d.Unrecord(ctx, "k2")
			d.SeenAndRecord(ctx, "k4")
			d.SeenAndRecord(ctx, "k5")
			So(d.Contains(ctx, "k1"), ShouldBeFalse)
			So(d.Contains(ctx, "k3"), ShouldBeTrue)
			So(d.Size(), ShouldEqual, 3)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := range 1000 {
			d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
		}
		So(d.Size(), ShouldEqual, 1000)
	})

	Convey("Given concurrent callers on the same key", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var fresh atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "same") {
					fresh.Add(1)
				}
			}()
		}
		wg.Wait()
		So(fresh.Load(), ShouldEqual, 1)
	})
}
