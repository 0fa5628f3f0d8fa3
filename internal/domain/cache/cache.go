// Package cache memoizes computed scores by canonical video URL.
//
// At most one computation per key runs at a time. Callers that arrive while
// it runs attach to it and receive the same result or error. Successful
// results are stored until cleared; failures are handed to the attached
// callers once and then forgotten, so the next call recomputes.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/types"
	"github.com/okian/yap/pkg/logger"
	"github.com/okian/yap/pkg/metrics"
)

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) (model.Score, error)

// Mirror is an optional shared tier behind the in-process shards. Errors
// from it are logged and otherwise ignored.
type Mirror interface {
	Get(ctx context.Context, key string) (model.Score, bool, error)
	Set(ctx context.Context, key string, v model.Score) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

type entry struct {
	done      chan struct{}
	value     model.Score
	err       error
	createdAt time.Time
	hits      atomic.Int64
	// discard is set under the shard lock when the entry is cleared while
	// its computation runs; the result then goes only to attached callers.
	discard bool
}

func (e *entry) ready() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// shard guards its map with a 1-slot channel instead of a mutex so that
// acquisition can give up after a timeout.
type shard struct {
	lock    chan struct{}
	entries map[string]*entry
}

func (s *shard) tryLock(ctx context.Context, timeout time.Duration) bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.lock <- struct{}{}:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// evict drops a stored value or marks an in-flight one for discard. The
// caller holds the lock.
func (s *shard) evict(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if !e.ready() {
		e.discard = true
		return false
	}
	delete(s.entries, key)
	return true
}

func (s *shard) mustLock() { s.lock <- struct{}{} }
func (s *shard) unlock()   { <-s.lock }

// Cache is a sharded single-flight score cache.
type Cache struct {
	shardCount  int
	lockTimeout time.Duration
	shards      []*shard
	enabled     atomic.Bool
	mirror      Mirror
	log         logger.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	coalesced atomic.Int64
	degraded  atomic.Int64
	inFlight  atomic.Int64
}

// New creates an enabled cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		shardCount:  defaultShardCount,
		lockTimeout: defaultLockTimeout,
		log:         logger.Named("cache"),
	}
	c.enabled.Store(true)
	for _, opt := range opts {
		opt(c)
	}
	c.shards = make([]*shard, c.shardCount)
	for i := range c.shards {
		c.shards[i] = &shard{lock: make(chan struct{}, 1), entries: make(map[string]*entry)}
	}
	return c
}

func (c *Cache) shardFor(key string) *shard {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

// GetOrCompute returns the stored value for key or runs compute once for all
// concurrent callers of the same key.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (model.Score, error) {
	const op = "cache.get_or_compute"
	if key == "" {
		return model.Score{}, apperr.Wrap(op, apperr.ErrValidation, ErrEmptyKey)
	}
	if compute == nil {
		return model.Score{}, apperr.Wrap(op, apperr.ErrComputation, ErrNoCompute)
	}

	if !c.enabled.Load() {
		c.miss()
		return c.run(ctx, compute)
	}

	sh := c.shardFor(key)
	if !sh.tryLock(ctx, c.lockTimeout) {
		if err := ctx.Err(); err != nil {
			return model.Score{}, apperr.Wrap(op, apperr.ErrTransient, err)
		}
		c.degraded.Add(1)
		metrics.RecordCacheDegraded()
		c.log.Warn(ctx, "shard lock timeout, computing uncached", logger.String("key", key))
		c.miss()
		return c.run(ctx, compute)
	}

	if e, ok := sh.entries[key]; ok {
		sh.unlock()
		if e.ready() {
			e.hits.Add(1)
			c.hits.Add(1)
			metrics.RecordCacheHit()
			return e.value, nil
		}
		c.miss()
		c.coalesced.Add(1)
		metrics.RecordCacheCoalesced()
		select {
		case <-e.done:
			return e.value, e.err
		case <-ctx.Done():
			return model.Score{}, apperr.Wrap(op, apperr.ErrTransient, ctx.Err())
		}
	}

	e := &entry{done: make(chan struct{})}
	sh.entries[key] = e
	sh.unlock()
	c.miss()
	return c.lead(ctx, sh, key, e, compute)
}

// lead runs the computation for an entry it just registered and publishes
// the outcome to waiters. The computation is detached from the leader's
// cancellation since other callers may be attached to it.
func (c *Cache) lead(ctx context.Context, sh *shard, key string, e *entry, compute ComputeFunc) (model.Score, error) {
	metrics.UpdateCacheInFlight(int(c.inFlight.Add(1)))
	defer func() { metrics.UpdateCacheInFlight(int(c.inFlight.Add(-1))) }()

	cctx := context.WithoutCancel(ctx)
	v, fromMirror := c.mirrorGet(cctx, key)
	var err error
	if !fromMirror {
		v, err = c.run(cctx, compute)
	}

	sh.mustLock()
	discard := e.discard
	if (err != nil || discard || !c.enabled.Load()) && sh.entries[key] == e {
		delete(sh.entries, key)
	}
	e.value, e.err, e.createdAt = v, err, time.Now()
	close(e.done)
	sh.unlock()

	if err != nil {
		return model.Score{}, err
	}
	if !fromMirror && !discard {
		c.mirrorSet(cctx, key, v)
	}
	c.publishSize()
	return v, nil
}

// run calls compute and turns a panic into a computation error.
func (c *Cache) run(ctx context.Context, compute ComputeFunc) (v model.Score, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Wrap("cache.compute", apperr.ErrComputation, fmt.Errorf("%w: %v", ErrPanic, r))
			v = model.Score{}
		}
	}()
	return compute(ctx)
}

func (c *Cache) miss() {
	c.misses.Add(1)
	metrics.RecordCacheMiss()
}

func (c *Cache) mirrorGet(ctx context.Context, key string) (model.Score, bool) {
	if c.mirror == nil {
		return model.Score{}, false
	}
	mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()
	v, ok, err := c.mirror.Get(mctx, key)
	if err != nil {
		metrics.RecordCacheMirrorError()
		c.log.Warn(ctx, "cache mirror read failed", logger.String("key", key), logger.Error(err))
		return model.Score{}, false
	}
	return v, ok
}

func (c *Cache) mirrorSet(ctx context.Context, key string, v model.Score) {
	if c.mirror == nil {
		return
	}
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()
	if err := c.mirror.Set(mctx, key, v); err != nil {
		metrics.RecordCacheMirrorError()
		c.log.Warn(ctx, "cache mirror write failed", logger.String("key", key), logger.Error(err))
	}
}

// ClearOne removes key. It reports whether a stored value was removed.
// An in-flight computation for key keeps serving callers that attach to it
// but its result is not stored.
func (c *Cache) ClearOne(ctx context.Context, key string) bool {
	sh := c.shardFor(key)
	sh.mustLock()
	removed := sh.evict(key)
	sh.unlock()

	if c.mirror != nil {
		if err := c.mirror.Delete(ctx, key); err != nil {
			metrics.RecordCacheMirrorError()
			c.log.Warn(ctx, "cache mirror delete failed", logger.String("key", key), logger.Error(err))
		}
	}
	c.publishSize()
	return removed
}

// ClearAll drops every entry and returns how many stored values were
// removed. Counters are kept.
func (c *Cache) ClearAll(ctx context.Context) int {
	removed := 0
	for _, sh := range c.shards {
		sh.mustLock()
		for k := range sh.entries {
			if sh.evict(k) {
				removed++
			}
		}
		sh.unlock()
	}
	if c.mirror != nil {
		if err := c.mirror.Clear(ctx); err != nil {
			metrics.RecordCacheMirrorError()
			c.log.Warn(ctx, "cache mirror clear failed", logger.Error(err))
		}
	}
	c.publishSize()
	c.log.Info(ctx, "cache cleared", logger.Int("removed", removed))
	return removed
}

// SetEnabled turns memoization on or off. Disabling drops stored values.
func (c *Cache) SetEnabled(ctx context.Context, enabled bool) {
	prev := c.enabled.Swap(enabled)
	if prev && !enabled {
		for _, sh := range c.shards {
			sh.mustLock()
			for k, e := range sh.entries {
				if e.ready() {
					delete(sh.entries, k)
				}
			}
			sh.unlock()
		}
		c.publishSize()
	}
	if prev != enabled {
		c.log.Info(ctx, "cache toggled", logger.Bool("enabled", enabled))
	}
}

// Entry is a stored value with its bookkeeping.
type Entry struct {
	Key       string
	Value     model.Score
	CreatedAt time.Time
	Hits      int64
}

// Peek returns the stored entry for key without counting a hit.
func (c *Cache) Peek(key string) (Entry, bool) {
	sh := c.shardFor(key)
	sh.mustLock()
	e, ok := sh.entries[key]
	sh.unlock()
	if !ok || !e.ready() {
		return Entry{}, false
	}
	return Entry{Key: key, Value: e.value, CreatedAt: e.createdAt, Hits: e.hits.Load()}, true
}

// Enabled reports whether memoization is on.
func (c *Cache) Enabled() bool { return c.enabled.Load() }

// Len counts stored values, excluding in-flight computations.
func (c *Cache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mustLock()
		for _, e := range sh.entries {
			if e.ready() {
				n++
			}
		}
		sh.unlock()
	}
	return n
}

func (c *Cache) publishSize() { metrics.UpdateCacheSize(c.Len()) }

// Stats reports counters and the hit rate hits/(hits+misses).
func (c *Cache) Stats() types.CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := types.CacheStats{
		Enabled:   c.enabled.Load(),
		Size:      c.Len(),
		InFlight:  int(c.inFlight.Load()),
		Hits:      hits,
		Misses:    misses,
		Coalesced: c.coalesced.Load(),
		Degraded:  c.degraded.Load(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
