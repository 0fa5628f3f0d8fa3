// Package service wires the scoring engine to storage and the async
// pipeline. It implements the dependencies required by the HTTP API and
// the CLI.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/yap/internal/adapters/mq/queue"
	"github.com/okian/yap/internal/adapters/mq/worker"
	"github.com/okian/yap/internal/adapters/repository"
	"github.com/okian/yap/internal/domain/batch"
	"github.com/okian/yap/internal/domain/cache"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/ranking"
	"github.com/okian/yap/internal/domain/registry"
	"github.com/okian/yap/internal/domain/scoring"
	"github.com/okian/yap/pkg/logger"
	"github.com/okian/yap/pkg/metrics"
)

const (
	defaultQueueSize  = 1000
	defaultJobTimeout = 2 * time.Minute
	stopTimeout       = 30 * time.Second
)

// Service implements the API dependencies for the yap engine.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	registry *registry.Registry
	calc     *scoring.Calculator
	cache    *cache.Cache
	batch    *batch.Controller
	ranking  *ranking.Aggregator
	queue    *queue.InMemoryQueue
	pool     *worker.Pool

	workerCount     int
	queueSize       int
	jobTimeout      time.Duration
	refreshInterval time.Duration

	scoringOpts  []scoring.Option
	cacheOpts    []cache.Option
	registryOpts []registry.Option
	batchOpts    []batch.Option
	rankingOpts  []ranking.Option

	started bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup

	logger logger.Logger
}

// New builds a service over a yap store, a comment fetcher and a trust
// graph source. Synchronous operations work right away; Start launches the
// auto-process workers and periodic registry refresh.
func New(store repository.Store, fetcher scoring.Fetcher, graph registry.Source, opts ...Option) *Service {
	s := &Service{
		store:       store,
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		jobTimeout:  defaultJobTimeout,
		logger:      logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = registry.New(graph, append(s.registryOpts, registry.WithOnPublish(s.persistSnapshot))...)
	s.calc = scoring.NewCalculator(fetcher, s.registry, s.scoringOpts...)
	s.cache = cache.New(s.cacheOpts...)
	s.batch = batch.New(s.batchOpts...)
	s.ranking = ranking.New(store, s.registry, s.rankingOpts...)
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s, worker.WithJobTimeout(s.jobTimeout))
	return s
}

// Start loads the first registry snapshot and launches background work.
// A failed first load is logged; the service keeps running on an empty
// snapshot until a refresh succeeds.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.queue.IsClosed() {
		return fmt.Errorf("start: %w", queue.ErrClosed)
	}

	s.logger.Info(ctx, "starting yap service...")
	if _, err := s.registry.Refresh(ctx); err != nil {
		s.logger.Warn(ctx, "initial registry load failed", logger.Error(err))
	}

	// Background work must outlive the caller's request-scoped ctx.
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(bg)
	if s.refreshInterval > 0 {
		s.loops.Add(1)
		go func() {
			defer s.loops.Done()
			s.registry.Run(bg, s.refreshInterval)
		}()
	}

	s.started = true
	s.logger.Info(ctx, "yap service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queue.Capacity()),
		logger.Duration("refresh_interval", s.refreshInterval),
	)
	return nil
}

// Stop drains queued jobs and releases the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()
	s.logger.Info(ctx, "stopping yap service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if s.started {
		if err := s.pool.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	} else {
		_ = s.queue.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.loops.Wait()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "close store", logger.Error(err))
		}
	}
	s.started = false
	s.logger.Info(ctx, "yap service stopped")
}

// Started reports whether Start has run and Stop has not.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// persistSnapshot mirrors every profile of a freshly published snapshot
// into the store so search sees handles and trust data.
func (s *Service) persistSnapshot(ctx context.Context, snap *registry.Snapshot) {
	profiles := snap.Profiles()
	if len(profiles) == 0 || s.store == nil {
		return
	}
	if err := s.store.UpsertProfiles(ctx, profiles); err != nil {
		metrics.RecordErrorByComponent("service", "persist_profiles")
		s.logger.Warn(ctx, "persist snapshot profiles failed", logger.Error(err))
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := map[string]any{
		"started":        started,
		"workers":        s.pool.Size(),
		"active_workers": s.pool.Active(),
		"queue_length":   s.queue.Len(ctx),
		"queue_capacity": s.queue.Capacity(),
		"cache":          s.cache.Stats(),
		"registry":       s.registry.Stats(),
	}
	if n, err := s.store.Count(ctx); err == nil {
		stats["total_yaps"] = n
	}
	if values, err := metrics.Values(); err == nil {
		stats["metrics"] = values
	}
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	return stats
}

// Snapshot exposes the registry's current snapshot.
func (s *Service) Snapshot() *registry.Snapshot { return s.registry.Current() }

// Lookup returns a known profile by id.
func (s *Service) Lookup(id string) (model.Profile, bool) { return s.registry.Lookup(id) }
