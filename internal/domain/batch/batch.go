// Package batch scores many video URLs under a concurrency cap.
package batch

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/videourl"
	"github.com/okian/yap/pkg/logger"
	"github.com/okian/yap/pkg/metrics"
)

// Limits on a single batch.
const (
	MaxURLs            = 50
	MaxConcurrency     = 10
	DefaultConcurrency = 3
)

// Func scores one canonical URL.
type Func func(ctx context.Context, normalizedURL string) (model.Score, error)

// Result is the outcome for one input URL. Exactly one of Score or Err is
// meaningful.
type Result struct {
	Input string
	Key   string
	Score model.Score
	Err   error
}

// OK reports whether the item succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Controller fans batches out with bounded concurrency.
type Controller struct {
	defaultConcurrency int
	inFlight           atomic.Int64
	log                logger.Logger
}

// New creates a controller.
func New(opts ...Option) *Controller {
	c := &Controller{defaultConcurrency: DefaultConcurrency, log: logger.Named("batch")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks the shared parameters of a batch call and returns the
// effective concurrency.
func (c *Controller) Validate(n, maxConcurrent int) (int, error) {
	const op = "batch.validate"
	switch {
	case n == 0:
		return 0, apperr.Wrap(op, apperr.ErrValidation, ErrNoURLs)
	case n > MaxURLs:
		return 0, apperr.Wrap(op, apperr.ErrValidation, fmt.Errorf("%w: %d > %d", ErrTooManyURLs, n, MaxURLs))
	case maxConcurrent == 0:
		return c.defaultConcurrency, nil
	case maxConcurrent < 1 || maxConcurrent > MaxConcurrency:
		return 0, apperr.Wrap(op, apperr.ErrValidation,
			fmt.Errorf("%w: %d not in 1..%d", ErrInvalidConcurrency, maxConcurrent, MaxConcurrency))
	default:
		return maxConcurrent, nil
	}
}

// Run scores urls with at most maxConcurrent calls to fn in flight.
// Results keep input order. An invalid URL gets a validation error in its
// slot without taking a concurrency slot; duplicate URLs share one call.
// Item failures never stop their siblings; only bad shared parameters make
// Run itself fail.
func (c *Controller) Run(ctx context.Context, urls []string, maxConcurrent int, fn Func) ([]Result, error) {
	limit, err := c.Validate(len(urls), maxConcurrent)
	if err != nil {
		metrics.RecordBatchRequest("rejected")
		return nil, err
	}
	if fn == nil {
		metrics.RecordBatchRequest("rejected")
		return nil, apperr.Wrap("batch.run", apperr.ErrComputation, ErrNoFunc)
	}
	metrics.RecordBatchRequest("accepted")

	results := make([]Result, len(urls))
	slots := make(map[string][]int)
	var order []string
	for i, raw := range urls {
		results[i].Input = raw
		key, err := videourl.Normalize(raw)
		if err != nil {
			results[i].Err = err
			metrics.RecordBatchItem("invalid")
			continue
		}
		results[i].Key = key
		if _, seen := slots[key]; !seen {
			order = append(order, key)
		}
		slots[key] = append(slots[key], i)
	}

	type outcome struct {
		score model.Score
		err   error
	}
	outcomes := make([]outcome, len(order))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, key := range order {
		g.Go(func() error {
			metrics.UpdateBatchInFlight(int(c.inFlight.Add(1)))
			defer func() { metrics.UpdateBatchInFlight(int(c.inFlight.Add(-1))) }()
			s, err := c.call(ctx, fn, key)
			outcomes[i] = outcome{score: s, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, key := range order {
		o := outcomes[i]
		for _, idx := range slots[key] {
			results[idx].Score, results[idx].Err = o.score, o.err
		}
		if o.err != nil {
			failed++
			metrics.RecordBatchItem("failed")
		} else {
			metrics.RecordBatchItem("ok")
		}
	}
	c.log.Info(ctx, "batch finished",
		logger.Int("urls", len(urls)),
		logger.Int("distinct", len(order)),
		logger.Int("failed", failed),
		logger.Int("concurrency", limit),
	)
	return results, nil
}

func (c *Controller) call(ctx context.Context, fn Func, key string) (s model.Score, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Wrap("batch.item", apperr.ErrComputation, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return model.Score{}, apperr.Wrap("batch.item", apperr.ErrTransient, err)
	}
	return fn(ctx, key)
}
