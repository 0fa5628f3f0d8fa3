// Package repository persists yaps, their interactions and known profiles.
package repository

import (
	"context"

	"github.com/okian/yap/internal/domain/model"
)

// MaxListLimit caps ListYaps pages.
const MaxListLimit = 200

// ListFilter selects a page of yaps, newest first.
type ListFilter struct {
	ProfileID string
	Limit     int
	Offset    int
}

// Store provides read/write access to persisted yaps.
type Store interface {
	// SaveYap inserts y, or replaces the yap already stored for the same
	// canonical URL. The ID and CreatedAt of an existing yap are kept and the
	// interaction set is replaced as a whole. Returns the stored yap and
	// whether it was newly created.
	SaveYap(ctx context.Context, y model.Yap) (model.Yap, bool, error)
	// GetYap returns a yap with its interactions, or ErrNotFound.
	GetYap(ctx context.Context, id string) (model.Yap, error)
	// GetYapByURL looks a yap up by canonical video URL, or ErrNotFound.
	GetYapByURL(ctx context.Context, videoURL string) (model.Yap, error)
	// ListYaps pages through yaps, newest first, without interactions.
	ListYaps(ctx context.Context, f ListFilter) ([]model.Yap, error)
	// DeleteYap removes a yap and its interactions, or returns ErrNotFound.
	DeleteYap(ctx context.Context, id string) error

	// TopYaps returns up to limit qualifying yaps by yap score desc, id asc.
	TopYaps(ctx context.Context, limit int) ([]model.Yap, error)
	// ProfileAggregates rolls qualifying yaps up per author profile.
	ProfileAggregates(ctx context.Context) ([]model.ProfileAggregate, error)

	// UpsertProfiles inserts or updates profiles by id.
	UpsertProfiles(ctx context.Context, profiles []model.Profile) error
	// SearchProfiles matches handle or nickname, case-insensitively.
	SearchProfiles(ctx context.Context, query string, limit int) ([]model.Profile, error)

	// Count returns the number of stored yaps.
	Count(ctx context.Context) (int, error)
	Close() error
}
