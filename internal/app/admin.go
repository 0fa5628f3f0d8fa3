package service

import (
	"context"

	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/types"
	"github.com/okian/yap/internal/domain/videourl"
)

// Leaderboard returns the top yaps.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]types.Entry, error) {
	return s.ranking.Leaderboard(ctx, limit)
}

// ProfileRanking returns profiles ordered by accumulated yap score.
func (s *Service) ProfileRanking(ctx context.Context, limit int) ([]model.ProfileRanking, error) {
	return s.ranking.ProfileRanking(ctx, limit)
}

// ProfileRank returns one profile's ranking row.
func (s *Service) ProfileRank(ctx context.Context, id string) (model.ProfileRanking, error) {
	return s.ranking.Profile(ctx, id)
}

// CacheStats reports cache counters.
func (s *Service) CacheStats() types.CacheStats { return s.cache.Stats() }

// ClearCache drops every cached score and returns how many were removed.
func (s *Service) ClearCache(ctx context.Context) int { return s.cache.ClearAll(ctx) }

// ClearCacheOne drops the cached score for one video URL.
func (s *Service) ClearCacheOne(ctx context.Context, rawURL string) (bool, error) {
	key, err := videourl.Normalize(rawURL)
	if err != nil {
		return false, err
	}
	return s.cache.ClearOne(ctx, key), nil
}

// ToggleCache turns memoization on or off.
func (s *Service) ToggleCache(ctx context.Context, enabled bool) types.CacheStats {
	s.cache.SetEnabled(ctx, enabled)
	return s.cache.Stats()
}

// RegistryInfo describes the active trust snapshot.
func (s *Service) RegistryInfo() types.RegistryInfo { return s.registry.Stats() }

// RefreshRegistry rebuilds the trust snapshot now. On failure the previous
// snapshot keeps serving.
func (s *Service) RefreshRegistry(ctx context.Context) (types.RegistryInfo, error) {
	const op = "service.refresh_registry"
	snap, err := s.registry.Refresh(ctx)
	if err != nil {
		return s.registry.Stats(), apperr.Wrap(op, apperr.ErrTransient, err)
	}
	return snap.Info(), nil
}
