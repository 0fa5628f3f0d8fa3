package registry

import (
	"context"

	"github.com/okian/yap/pkg/logger"
)

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithMaxDepth bounds trust propagation. Negative values are ignored.
func WithMaxDepth(depth int) Option {
	return func(r *Registry) {
		if depth >= 0 {
			r.cfg.MaxDepth = depth
		}
	}
}

// WithPolicy sets how per-seed contributions combine.
func WithPolicy(p Policy) Option {
	return func(r *Registry) {
		if p != nil {
			r.cfg.Policy = p
		}
	}
}

// WithDecay sets the distance decay.
func WithDecay(d Decay) Option {
	return func(r *Registry) {
		if d.Fn != nil {
			r.cfg.Decay = d
		}
	}
}

// WithLogger overrides the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithOnPublish registers fn to run after Refresh publishes a snapshot.
// It runs on the refreshing goroutine and must not call Refresh.
func WithOnPublish(fn func(ctx context.Context, s *Snapshot)) Option {
	return func(r *Registry) {
		r.onPublish = fn
	}
}
