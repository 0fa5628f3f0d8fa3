package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/yap/internal/adapters/graph"
	"github.com/okian/yap/internal/adapters/rediscache"
	"github.com/okian/yap/internal/adapters/repository"
	"github.com/okian/yap/internal/adapters/tiktok"
	service "github.com/okian/yap/internal/app"
	"github.com/okian/yap/internal/config"
	"github.com/okian/yap/internal/domain/batch"
	"github.com/okian/yap/internal/domain/cache"
	"github.com/okian/yap/internal/domain/ranking"
	"github.com/okian/yap/internal/domain/registry"
	"github.com/okian/yap/internal/domain/scoring"
	"github.com/okian/yap/pkg/logger"
)

// stack holds the wired service and whatever must be released after it.
type stack struct {
	svc     *service.Service
	closers []func(context.Context) error
}

// Close stops the service, which closes the store, then releases the
// remaining resources in reverse order.
func (r *stack) Close(ctx context.Context) error {
	if r.svc != nil {
		r.svc.Stop()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DBMemory:
		return repository.NewMemoryStore(ctx), nil
	case config.DBSQLite:
		return repository.OpenSQL(ctx, repository.DriverSQLite, cfg.DBDSN)
	case config.DBPostgres:
		return repository.OpenSQL(ctx, repository.DriverPostgres, cfg.DBDSN)
	default:
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownDriver, cfg.DBDriver)
	}
}

// openGraph returns the trust graph source. The closer may be nil.
func openGraph(ctx context.Context, cfg *config.Config, store repository.Store) (registry.Source, func(context.Context) error, error) {
	switch cfg.GraphSource {
	case config.GraphFile:
		src, err := graph.NewFileSource(cfg.SeedsFile)
		return src, nil, err
	case config.GraphSQL:
		sqlStore, ok := store.(*repository.SQLStore)
		if !ok {
			return nil, nil, fmt.Errorf("graph_source %s needs a sql store", cfg.GraphSource)
		}
		return graph.NewSQLSource(sqlStore.DB()), nil, nil
	case config.GraphNeo4j:
		src, err := graph.NewNeo4jSource(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown graph_source %q", cfg.GraphSource)
	}
}

// newFetcher builds the comment client, attaching a browser signer when
// configured. The closer may be nil.
func newFetcher(cfg *config.Config) (*tiktok.Client, func(context.Context) error, error) {
	opts := []tiktok.Option{
		tiktok.WithBaseURL(cfg.FetchBaseURL),
		tiktok.WithUserAgent(cfg.FetchUserAgent),
		tiktok.WithDelay(cfg.FetchDelay()),
		tiktok.WithMaxPages(cfg.FetchMaxPages),
		tiktok.WithProxy(cfg.FetchProxy),
	}
	var closer func(context.Context) error
	if cfg.FetchBrowserSigner {
		signer, err := tiktok.NewBrowserSigner(cfg.FetchBaseURL, cfg.FetchProxy)
		if err != nil {
			return nil, nil, fmt.Errorf("browser signer: %w", err)
		}
		opts = append(opts, tiktok.WithSignFunc(signer.Sign))
		closer = func(context.Context) error { return signer.Close() }
	}
	client, err := tiktok.New(opts...)
	if err != nil {
		if closer != nil {
			_ = closer(context.Background())
		}
		return nil, nil, err
	}
	return client, closer, nil
}

// serviceOptions maps configuration onto service options. Names were
// checked by Validate.
func serviceOptions(cfg *config.Config, mirror cache.Mirror) []service.Option {
	scorePolicy, _ := scoring.PolicyByName(cfg.ScorePolicy)
	rankPolicy, _ := registry.PolicyByName(cfg.RankPolicy)
	decay, _ := registry.DecayByName(cfg.RegistryDecay)

	cacheOpts := []cache.Option{
		cache.WithShardCount(cfg.ShardCount),
		cache.WithLockTimeout(cfg.CacheLockTimeout()),
		cache.WithEnabled(cfg.CacheEnabled),
	}
	if mirror != nil {
		cacheOpts = append(cacheOpts, cache.WithMirror(mirror))
	}

	return []service.Option{
		service.WithLogger(logger.Get()),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithRefreshInterval(cfg.RegistryRefreshInterval()),
		service.WithScoringOptions(
			scoring.WithPolicy(scorePolicy),
			scoring.WithThresholds(cfg.MinKnownCommenters, cfg.MinWeightedScore),
			scoring.WithFetchTimeout(cfg.FetchTimeout()),
		),
		service.WithCacheOptions(cacheOpts...),
		service.WithRegistryOptions(
			registry.WithMaxDepth(cfg.RegistryMaxDepth),
			registry.WithPolicy(rankPolicy),
			registry.WithDecay(decay),
		),
		service.WithBatchOptions(batch.WithDefaultConcurrency(cfg.DefaultBatchConcurrency)),
		service.WithRankingOptions(
			ranking.WithLeaderboardCap(cfg.MaxLeaderboardLimit),
			ranking.WithRankingCap(cfg.MaxRankingLimit),
		),
	}
}

// build wires every adapter and starts the service.
func build(ctx context.Context, cfg *config.Config) (*stack, error) {
	rt := &stack{}
	fail := func(err error) (*stack, error) {
		_ = rt.Close(context.Background())
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// The service owns the store once created; until then close it here.
	rt.closers = append(rt.closers, func(context.Context) error {
		if rt.svc == nil {
			return store.Close()
		}
		return nil
	})

	src, closeGraph, err := openGraph(ctx, cfg, store)
	if err != nil {
		return fail(fmt.Errorf("open graph source: %w", err))
	}
	if closeGraph != nil {
		rt.closers = append(rt.closers, closeGraph)
	}

	fetcher, closeFetcher, err := newFetcher(cfg)
	if err != nil {
		return fail(fmt.Errorf("create fetcher: %w", err))
	}
	if closeFetcher != nil {
		rt.closers = append(rt.closers, closeFetcher)
	}

	var mirror cache.Mirror
	if cfg.CacheEnabled && cfg.RedisURL != "" {
		if m := rediscache.New(ctx, cfg.RedisURL); m.Enabled() {
			mirror = m
			rt.closers = append(rt.closers, func(context.Context) error { return m.Close() })
		}
	}

	rt.svc = service.New(store, fetcher, src, serviceOptions(cfg, mirror)...)
	if err := rt.svc.Start(ctx); err != nil {
		return fail(fmt.Errorf("start service: %w", err))
	}
	return rt, nil
}
