package service

import (
	"time"

	"github.com/okian/yap/internal/domain/batch"
	"github.com/okian/yap/internal/domain/cache"
	"github.com/okian/yap/internal/domain/ranking"
	"github.com/okian/yap/internal/domain/registry"
	"github.com/okian/yap/internal/domain/scoring"
	"github.com/okian/yap/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of auto-process workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the auto-process queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithJobTimeout bounds one auto-process job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithRefreshInterval sets the periodic registry refresh. Zero disables it.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.refreshInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScoringOptions configures the score calculator.
func WithScoringOptions(opts ...scoring.Option) Option {
	return func(s *Service) { s.scoringOpts = append(s.scoringOpts, opts...) }
}

// WithCacheOptions configures the score cache.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(s *Service) { s.cacheOpts = append(s.cacheOpts, opts...) }
}

// WithRegistryOptions configures the trust registry.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(s *Service) { s.registryOpts = append(s.registryOpts, opts...) }
}

// WithBatchOptions configures the batch controller.
func WithBatchOptions(opts ...batch.Option) Option {
	return func(s *Service) { s.batchOpts = append(s.batchOpts, opts...) }
}

// WithRankingOptions configures the ranking aggregator.
func WithRankingOptions(opts ...ranking.Option) Option {
	return func(s *Service) { s.rankingOpts = append(s.rankingOpts, opts...) }
}
