package repository

import "time"

type config struct {
	metricsInterval time.Duration
	maxOpenConns    int
	now             func() time.Time
	newID           func() string
}

// Option configures a store.
type Option func(*config)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(c *config) {
		if interval > 0 {
			c.metricsInterval = interval
		}
	}
}

// WithMaxOpenConns bounds the SQL connection pool.
func WithMaxOpenConns(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides yap id generation.
func WithIDGenerator(gen func() string) Option {
	return func(c *config) {
		if gen != nil {
			c.newID = gen
		}
	}
}
