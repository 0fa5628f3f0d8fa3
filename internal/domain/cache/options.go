package cache

import (
	"time"

	"github.com/okian/yap/pkg/logger"
)

const (
	defaultShardCount  = 16
	defaultLockTimeout = 2 * time.Second
	mirrorTimeout      = 500 * time.Millisecond
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithShardCount sets the number of independently locked shards.
func WithShardCount(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.shardCount = n
		}
	}
}

// WithLockTimeout bounds how long a caller waits for a shard lock before
// computing without the cache.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// WithEnabled sets the initial enabled state.
func WithEnabled(enabled bool) Option {
	return func(c *Cache) {
		c.enabled.Store(enabled)
	}
}

// WithMirror adds a shared second tier.
func WithMirror(m Mirror) Option {
	return func(c *Cache) {
		c.mirror = m
	}
}

// WithLogger overrides the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}
