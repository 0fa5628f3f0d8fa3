package scoring

import (
	"time"

	"github.com/okian/yap/pkg/logger"
)

// Default fetch timeout applied to each fetcher call.
const defaultFetchTimeout = 20 * time.Second

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithPolicy replaces the score formula. Nil funcs keep the defaults.
func WithPolicy(p Policy) Option {
	return func(c *Calculator) {
		if p.Damping != nil {
			c.policy.Damping = p.Damping
		}
		if p.Normalize != nil {
			c.policy.Normalize = p.Normalize
		}
		if p.Name != "" {
			c.policy.Name = p.Name
		}
		c.policy.MinKnownCommenters = p.MinKnownCommenters
		c.policy.MinWeightedScore = p.MinWeightedScore
	}
}

// WithThresholds sets the qualification thresholds.
func WithThresholds(minKnown int, minWeighted float64) Option {
	return func(c *Calculator) {
		if minKnown >= 0 {
			c.policy.MinKnownCommenters = minKnown
		}
		if minWeighted >= 0 {
			c.policy.MinWeightedScore = minWeighted
		}
	}
}

// WithFetchTimeout bounds each fetcher call.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Calculator) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger overrides the calculator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Calculator) {
		if l != nil {
			c.log = l
		}
	}
}
