// Package rediscache mirrors computed scores into Redis so several
// processes can share them. Without a reachable server every operation is a
// no-op and the in-process cache works alone.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/pkg/logger"
)

const (
	keyPrefix   = "yap:score:"
	pingTimeout = 3 * time.Second
	scanBatch   = 200
)

// Mirror implements cache.Mirror.
type Mirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithTTL expires mirrored scores. Zero keeps them until cleared.
func WithTTL(d time.Duration) Option {
	return func(m *Mirror) {
		if d >= 0 {
			m.ttl = d
		}
	}
}

// New connects to redisURL. An empty, invalid or unreachable URL yields a
// disabled mirror and a log line, never an error.
func New(ctx context.Context, redisURL string, opts ...Option) *Mirror {
	m := &Mirror{}
	for _, opt := range opts {
		opt(m)
	}
	log := logger.Named("rediscache")
	if redisURL == "" {
		log.Info(ctx, "redis: no URL configured, mirror disabled")
		return m
	}
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn(ctx, "redis: invalid URL, mirror disabled", logger.Error(err))
		return m
	}
	rdb := redis.NewClient(ropts)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		log.Warn(ctx, "redis: connection failed, mirror disabled", logger.Error(err))
		return m
	}
	log.Info(ctx, "redis: connected, mirror enabled")
	m.rdb = rdb
	return m
}

// Enabled reports whether a server is attached.
func (m *Mirror) Enabled() bool { return m != nil && m.rdb != nil }

// Client returns the underlying client for health checks. May be nil.
func (m *Mirror) Client() *redis.Client { return m.rdb }

// Ping checks the server. A disabled mirror reports nil.
func (m *Mirror) Ping(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	return m.rdb.Ping(ctx).Err()
}

func key(k string) string { return keyPrefix + k }

// Get implements cache.Mirror.
func (m *Mirror) Get(ctx context.Context, k string) (model.Score, bool, error) {
	if !m.Enabled() {
		return model.Score{}, false, nil
	}
	data, err := m.rdb.Get(ctx, key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Score{}, false, nil
	}
	if err != nil {
		return model.Score{}, false, fmt.Errorf("redis get %s: %w", k, err)
	}
	var s model.Score
	if err := json.Unmarshal(data, &s); err != nil {
		return model.Score{}, false, fmt.Errorf("decode mirrored score %s: %w", k, err)
	}
	return s, true, nil
}

// Set implements cache.Mirror.
func (m *Mirror) Set(ctx context.Context, k string, s model.Score) error {
	if !m.Enabled() {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode score %s: %w", k, err)
	}
	return m.rdb.Set(ctx, key(k), b, m.ttl).Err()
}

// Delete implements cache.Mirror.
func (m *Mirror) Delete(ctx context.Context, k string) error {
	if !m.Enabled() {
		return nil
	}
	return m.rdb.Del(ctx, key(k)).Err()
}

// Clear implements cache.Mirror. It only removes keys under the score
// prefix.
func (m *Mirror) Clear(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	iter := m.rdb.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := m.rdb.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis clear: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := m.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis clear: %w", err)
		}
	}
	return nil
}

// Close releases the connection.
func (m *Mirror) Close() error {
	if !m.Enabled() {
		return nil
	}
	return m.rdb.Close()
}
