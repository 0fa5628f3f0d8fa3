package graph

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/okian/yap/internal/domain/registry"
)

// SQLSource reads seed_accounts, profiles and follows. The tables are
// created by the repository migrations.
type SQLSource struct {
	db *sqlx.DB
}

// NewSQLSource wraps an open database.
func NewSQLSource(db *sqlx.DB) *SQLSource { return &SQLSource{db: db} }

// Load implements registry.Source.
func (s *SQLSource) Load(ctx context.Context) (registry.Graph, error) {
	var g registry.Graph
	if err := s.db.SelectContext(ctx, &g.Seeds, `SELECT profile_id, handle, weight FROM seed_accounts`); err != nil {
		return registry.Graph{}, fmt.Errorf("load seeds: %w", err)
	}
	if err := s.db.SelectContext(ctx, &g.Profiles,
		`SELECT id, handle, nickname, follower_count FROM profiles`); err != nil {
		return registry.Graph{}, fmt.Errorf("load profiles: %w", err)
	}
	if err := s.db.SelectContext(ctx, &g.Follows, `SELECT follower_id, followee_id FROM follows`); err != nil {
		return registry.Graph{}, fmt.Errorf("load follows: %w", err)
	}
	return g, nil
}

// Save imports g, upserting seeds and profiles and adding follow edges.
// Seeds must carry a profile id.
func (s *SQLSource) Save(ctx context.Context, g registry.Graph) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range g.Profiles {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO profiles (id, handle, nickname, follower_count)
			VALUES (:id, :handle, :nickname, :follower_count)
			ON CONFLICT (id) DO UPDATE SET
				handle = excluded.handle,
				nickname = excluded.nickname,
				follower_count = excluded.follower_count`, p); err != nil {
			return fmt.Errorf("save profile %s: %w", p.ID, err)
		}
	}
	for _, sd := range g.Seeds {
		if sd.ProfileID == "" {
			return fmt.Errorf("%w: seed %q has no profile id", ErrBadRecord, sd.Handle)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO profiles (id, handle) VALUES (:profile_id, :handle)
			ON CONFLICT (id) DO NOTHING`, sd); err != nil {
			return fmt.Errorf("save seed profile %s: %w", sd.ProfileID, err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO seed_accounts (profile_id, handle, weight)
			VALUES (:profile_id, :handle, :weight)
			ON CONFLICT (profile_id) DO UPDATE SET handle = excluded.handle, weight = excluded.weight`, sd); err != nil {
			return fmt.Errorf("save seed %s: %w", sd.ProfileID, err)
		}
	}
	for _, e := range g.Follows {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO follows (follower_id, followee_id) VALUES (:follower_id, :followee_id)
			ON CONFLICT (follower_id, followee_id) DO NOTHING`, e); err != nil {
			return fmt.Errorf("save follow %s->%s: %w", e.From, e.To, err)
		}
	}
	return tx.Commit()
}
