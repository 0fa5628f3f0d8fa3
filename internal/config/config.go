// Package config defines service configuration and its loading.
//
// Values layer as defaults (New), then an optional YAML file named by
// YAP_CONFIG, then YAP_-prefixed environment variables. Load validates the
// result.
package config

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/okian/yap/internal/domain/registry"
	"github.com/okian/yap/internal/domain/scoring"
	"github.com/okian/yap/pkg/logger"
)

// Supported backends.
const (
	DBMemory   = "memory"
	DBSQLite   = "sqlite"
	DBPostgres = "postgres"

	GraphFile  = "file"
	GraphSQL   = "sql"
	GraphNeo4j = "neo4j"
)

// Hard upper bounds enforced by Validate.
const (
	LeaderboardCeiling = 200
	RankingCeiling     = 500
	ConcurrencyCeiling = 10
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// WorkerCount and QueueSize size the auto-process pipeline.
	WorkerCount int `koanf:"worker_count"`
	QueueSize   int `koanf:"queue_size"`

	ShardCount         int    `koanf:"shard_count"`
	CacheEnabled       bool   `koanf:"cache_enabled"`
	CacheLockTimeoutMS int    `koanf:"cache_lock_timeout_ms"`
	RedisURL           string `koanf:"redis_url"`

	// DBDriver is memory, sqlite or postgres.
	DBDriver string `koanf:"db_driver"`
	DBDSN    string `koanf:"db_dsn"`

	// GraphSource is file, sql or neo4j.
	GraphSource   string `koanf:"graph_source"`
	SeedsFile     string `koanf:"seeds_file"`
	Neo4jURI      string `koanf:"neo4j_uri"`
	Neo4jUser     string `koanf:"neo4j_user"`
	Neo4jPassword string `koanf:"neo4j_password"`
	Neo4jDatabase string `koanf:"neo4j_database"`

	RegistryMaxDepth         int    `koanf:"registry_max_depth"`
	RegistryRefreshIntervalS int    `koanf:"registry_refresh_interval_s"`
	RankPolicy               string `koanf:"rank_policy"`
	RegistryDecay            string `koanf:"registry_decay"`

	FetchBaseURL       string `koanf:"fetch_base_url"`
	FetchTimeoutMS     int    `koanf:"fetch_timeout_ms"`
	FetchDelayMS       int    `koanf:"fetch_delay_ms"`
	FetchMaxPages      int    `koanf:"fetch_max_pages"`
	FetchProxy         string `koanf:"fetch_proxy"`
	FetchUserAgent     string `koanf:"fetch_user_agent"`
	FetchBrowserSigner bool   `koanf:"fetch_browser_signer"`

	// ScorePolicy names the scoring formula: coverage or raw.
	ScorePolicy        string  `koanf:"score_policy"`
	MinKnownCommenters int     `koanf:"min_known_commenters"`
	MinWeightedScore   float64 `koanf:"min_weighted_score"`

	MaxLeaderboardLimit     int `koanf:"max_leaderboard_limit"`
	MaxRankingLimit         int `koanf:"max_ranking_limit"`
	DefaultBatchConcurrency int `koanf:"default_batch_concurrency"`
}

// New creates a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		WorkerCount:              runtime.NumCPU(),
		QueueSize:                1000,
		ShardCount:               16,
		CacheEnabled:             true,
		CacheLockTimeoutMS:       2000,
		DBDriver:                 DBSQLite,
		DBDSN:                    "yap.db",
		GraphSource:              GraphFile,
		SeedsFile:                "seeds.yaml",
		Neo4jDatabase:            "neo4j",
		RegistryMaxDepth:         registry.DefaultMaxDepth,
		RegistryRefreshIntervalS: 300,
		RankPolicy:               registry.MaxPolicy{}.Name(),
		RegistryDecay:            registry.InverseDepth.Name,
		FetchTimeoutMS:           20000,
		FetchDelayMS:             1000,
		FetchMaxPages:            10,
		ScorePolicy:              scoring.DefaultPolicy.Name,
		MinKnownCommenters:       scoring.DefaultMinKnownCommenters,
		MinWeightedScore:         scoring.DefaultMinWeightedScore,
		MaxLeaderboardLimit:      LeaderboardCeiling,
		MaxRankingLimit:          RankingCeiling,
		DefaultBatchConcurrency:  3,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.WorkerCount < 1:
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	case c.QueueSize < 1:
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	case c.ShardCount < 1:
		return invalid("shard_count must be positive, got %d", c.ShardCount)
	case c.CacheLockTimeoutMS < 0:
		return invalid("cache_lock_timeout_ms must not be negative")
	case !slices.Contains([]string{DBMemory, DBSQLite, DBPostgres}, c.DBDriver):
		return invalid("unknown db_driver %q", c.DBDriver)
	case c.DBDriver != DBMemory && c.DBDSN == "":
		return invalid("db_dsn is required for %s", c.DBDriver)
	case !slices.Contains([]string{GraphFile, GraphSQL, GraphNeo4j}, c.GraphSource):
		return invalid("unknown graph_source %q", c.GraphSource)
	case c.GraphSource == GraphFile && c.SeedsFile == "":
		return invalid("seeds_file is required for the file graph source")
	case c.GraphSource == GraphSQL && c.DBDriver == DBMemory:
		return invalid("graph_source sql needs a sql db_driver")
	case c.GraphSource == GraphNeo4j && c.Neo4jURI == "":
		return invalid("neo4j_uri is required for the neo4j graph source")
	case c.RegistryRefreshIntervalS < 0:
		return invalid("registry_refresh_interval_s must not be negative")
	case c.FetchTimeoutMS < 1:
		return invalid("fetch_timeout_ms must be positive")
	case c.FetchDelayMS < 0:
		return invalid("fetch_delay_ms must not be negative")
	case c.FetchMaxPages < 1:
		return invalid("fetch_max_pages must be positive")
	case c.MinKnownCommenters < 0 || c.MinWeightedScore < 0:
		return invalid("qualification thresholds must not be negative")
	case c.MaxLeaderboardLimit < 1 || c.MaxLeaderboardLimit > LeaderboardCeiling:
		return invalid("max_leaderboard_limit must be in 1..%d", LeaderboardCeiling)
	case c.MaxRankingLimit < 1 || c.MaxRankingLimit > RankingCeiling:
		return invalid("max_ranking_limit must be in 1..%d", RankingCeiling)
	case c.DefaultBatchConcurrency < 1 || c.DefaultBatchConcurrency > ConcurrencyCeiling:
		return invalid("default_batch_concurrency must be in 1..%d", ConcurrencyCeiling)
	}
	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		return invalid("%v", err)
	}
	if _, err := registry.PolicyByName(c.RankPolicy); err != nil {
		return invalid("%v", err)
	}
	if _, err := registry.DecayByName(c.RegistryDecay); err != nil {
		return invalid("%v", err)
	}
	if _, err := scoring.PolicyByName(c.ScorePolicy); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// CacheLockTimeout is CacheLockTimeoutMS as a duration.
func (c *Config) CacheLockTimeout() time.Duration {
	return time.Duration(c.CacheLockTimeoutMS) * time.Millisecond
}

// FetchTimeout is FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// FetchDelay is FetchDelayMS as a duration.
func (c *Config) FetchDelay() time.Duration {
	return time.Duration(c.FetchDelayMS) * time.Millisecond
}

// RegistryRefreshInterval is zero when periodic refresh is off.
func (c *Config) RegistryRefreshInterval() time.Duration {
	return time.Duration(c.RegistryRefreshIntervalS) * time.Second
}
