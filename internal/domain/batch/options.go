package batch

import "github.com/okian/yap/pkg/logger"

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithDefaultConcurrency is used when a caller passes 0.
func WithDefaultConcurrency(n int) Option {
	return func(c *Controller) {
		if n >= 1 && n <= MaxConcurrency {
			c.defaultConcurrency = n
		}
	}
}

// WithLogger overrides the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}
