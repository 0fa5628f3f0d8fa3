// Package registry maintains the versioned trust snapshot of known profiles.
//
// A Registry publishes an immutable Snapshot through an atomic pointer.
// Refresh loads a Graph from its Source, builds a new Snapshot off to the
// side and swaps it in; readers always see either the old or the new one.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/types"
	"github.com/okian/yap/pkg/logger"
	"github.com/okian/yap/pkg/metrics"
)

// Source loads the raw trust graph.
type Source interface {
	Load(ctx context.Context) (Graph, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Graph, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context) (Graph, error) { return f(ctx) }

// Registry serves lookups against the current snapshot.
type Registry struct {
	source Source
	cfg    BuildConfig
	log    logger.Logger

	onPublish func(ctx context.Context, s *Snapshot)

	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	// refreshing serializes rebuilds; lookups never take it.
	refreshing sync.Mutex
}

// New creates a registry holding an empty snapshot. Call Refresh to load.
func New(src Source, opts ...Option) *Registry {
	r := &Registry{
		source: src,
		cfg:    BuildConfig{MaxDepth: DefaultMaxDepth, Policy: MaxPolicy{}, Decay: InverseDepth},
		log:    logger.Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	empty := Empty()
	empty.maxDepth, empty.policy, empty.decay = r.cfg.MaxDepth, r.cfg.Policy.Name(), r.cfg.Decay.Name
	r.current.Store(empty)
	return r
}

// Refresh rebuilds the snapshot from the source and publishes it. On error
// the previous snapshot stays in place.
func (r *Registry) Refresh(ctx context.Context) (*Snapshot, error) {
	const op = "registry.refresh"
	if r.source == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoSource)
	}
	r.refreshing.Lock()
	defer r.refreshing.Unlock()

	start := time.Now()
	g, err := r.source.Load(ctx)
	if err != nil {
		metrics.RecordRegistryRefreshError()
		return nil, fmt.Errorf("%s: load graph: %w", op, err)
	}
	snap, err := r.apply(g)
	if err != nil {
		metrics.RecordRegistryRefreshError()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordRegistryRebuildDuration(float64(time.Since(start).Milliseconds()))
	r.log.Info(ctx, "registry snapshot published",
		logger.Int64("version", int64(snap.Version())),
		logger.Int("profiles", snap.Len()),
		logger.Int("reachable", snap.reachable),
		logger.Duration("took", time.Since(start)),
	)
	if r.onPublish != nil {
		r.onPublish(ctx, snap)
	}
	return snap, nil
}

// Apply builds a snapshot from g and publishes it, bypassing the source.
func (r *Registry) Apply(g Graph) (*Snapshot, error) {
	r.refreshing.Lock()
	defer r.refreshing.Unlock()
	return r.apply(g)
}

func (r *Registry) apply(g Graph) (*Snapshot, error) {
	snap, err := Build(g, r.version.Load()+1, r.cfg)
	if err != nil {
		return nil, err
	}
	r.version.Store(snap.version)
	r.current.Store(snap)
	metrics.UpdateRegistrySnapshot(snap.version, snap.Len(), snap.reachable, snap.seeds, snap.builtAt.Unix())
	return snap, nil
}

// Run refreshes every interval until ctx is done. Failures are logged and
// the loop keeps going with the last good snapshot.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				r.log.Warn(ctx, "registry refresh failed", logger.Error(err))
			}
		}
	}
}

// Current returns the published snapshot. Never nil.
func (r *Registry) Current() *Snapshot { return r.current.Load() }

// Lookup finds a profile in the current snapshot.
func (r *Registry) Lookup(id string) (model.Profile, bool) { return r.Current().Lookup(id) }

// LookupHandle finds a profile by handle in the current snapshot.
func (r *Registry) LookupHandle(handle string) (model.Profile, bool) {
	return r.Current().LookupHandle(handle)
}

// IsKnown reports whether id is reachable in the current snapshot.
func (r *Registry) IsKnown(id string) bool { return r.Current().IsKnown(id) }

// Stats describes the current snapshot.
func (r *Registry) Stats() types.RegistryInfo { return r.Current().Info() }
