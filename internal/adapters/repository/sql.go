package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

const yapColumns = `id, video_url, aweme_id, profile_id, yap_score, total_comments,
	known_commenters_count, top_commenter_rank, weighted_engagement_score,
	qualifies_as_yap, created_at, scraped_at`

const profileColumns = `id, handle, nickname, follower_count, is_seed_account, trust_depth, rank_score`

// SQLStore implements Store on sqlx over SQLite or PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	cfg    config
}

// OpenSQL connects, pings and migrates. For sqlite the dsn is a file path
// (or ":memory:"); busy-timeout and WAL pragmas are added when the dsn has
// no query string.
func OpenSQL(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqlitePragmas
		}
		db, err = sqlx.Open("sqlite", dsn)
	case DriverPostgres:
		db, err = sqlx.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	s, err := NewSQLStore(ctx, db, driver, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and runs migrations.
func NewSQLStore(ctx context.Context, db *sqlx.DB, driver string, opts ...Option) (*SQLStore, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	schema := sqliteSchema
	switch driver {
	case DriverSQLite:
		// One writer keeps SQLite from returning SQLITE_BUSY and makes
		// ":memory:" a single database.
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		schema = postgresSchema
		db.SetMaxOpenConns(cfg.maxOpenConns)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return &SQLStore{db: db, driver: driver, cfg: cfg}, nil
}

// DB exposes the handle so other adapters can share the connection.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

// Driver returns the configured driver name.
func (s *SQLStore) Driver() string { return s.driver }

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
}

// SaveYap implements Store.
func (s *SQLStore) SaveYap(ctx context.Context, y model.Yap) (model.Yap, bool, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds())) }()
	if err := validateYap(y); err != nil {
		return model.Yap{}, false, err
	}
	y.YapScore = sanitize(y.YapScore)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Yap{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err = tx.GetContext(ctx, &existing, tx.Rebind(`SELECT id, created_at FROM yaps WHERE video_url = ?`), y.VideoURL)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return model.Yap{}, false, fmt.Errorf("lookup yap %s: %w", y.VideoURL, err)
	}

	now := s.cfg.now().UTC()
	if y.ScrapedAt.IsZero() {
		y.ScrapedAt = now
	}
	y.ScrapedAt = y.ScrapedAt.UTC()
	if created {
		if y.ID == "" {
			y.ID = s.cfg.newID()
		}
		if y.CreatedAt.IsZero() {
			y.CreatedAt = now
		}
		y.CreatedAt = y.CreatedAt.UTC()
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO yaps (`+yapColumns+`)
			VALUES (:id, :video_url, :aweme_id, :profile_id, :yap_score, :total_comments,
				:known_commenters_count, :top_commenter_rank, :weighted_engagement_score,
				:qualifies_as_yap, :created_at, :scraped_at)`, y)
	} else {
		y.ID, y.CreatedAt = existing.ID, existing.CreatedAt
		_, err = tx.NamedExecContext(ctx, `
			UPDATE yaps SET aweme_id = :aweme_id, profile_id = :profile_id, yap_score = :yap_score,
				total_comments = :total_comments, known_commenters_count = :known_commenters_count,
				top_commenter_rank = :top_commenter_rank, weighted_engagement_score = :weighted_engagement_score,
				qualifies_as_yap = :qualifies_as_yap, scraped_at = :scraped_at
			WHERE id = :id`, y)
	}
	if err != nil {
		return model.Yap{}, false, fmt.Errorf("save yap %s: %w", y.VideoURL, err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM yap_interactions WHERE yap_id = ?`), y.ID); err != nil {
		return model.Yap{}, false, fmt.Errorf("clear interactions %s: %w", y.ID, err)
	}
	y.Interactions = append([]model.YapInteraction(nil), y.Interactions...)
	for i := range y.Interactions {
		y.Interactions[i].YapID = y.ID
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO yap_interactions (yap_id, interactor_profile_id, interactor_handle, comment_text,
				comment_likes, rank_score, interaction_weight)
			VALUES (:yap_id, :interactor_profile_id, :interactor_handle, :comment_text,
				:comment_likes, :rank_score, :interaction_weight)`, y.Interactions[i]); err != nil {
			return model.Yap{}, false, fmt.Errorf("save interaction %s/%s: %w", y.ID, y.Interactions[i].InteractorProfileID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Yap{}, false, fmt.Errorf("commit: %w", err)
	}
	return y, created, nil
}

func (s *SQLStore) getYap(ctx context.Context, where string, arg any) (model.Yap, error) {
	defer observeQuery(time.Now())
	var y model.Yap
	err := s.db.GetContext(ctx, &y, s.db.Rebind(`SELECT `+yapColumns+` FROM yaps WHERE `+where+` = ?`), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Yap{}, fmt.Errorf("%w: %v", ErrNotFound, arg)
	}
	if err != nil {
		return model.Yap{}, fmt.Errorf("get yap %v: %w", arg, err)
	}
	err = s.db.SelectContext(ctx, &y.Interactions, s.db.Rebind(`
		SELECT yap_id, interactor_profile_id, interactor_handle, comment_text, comment_likes, rank_score, interaction_weight
		FROM yap_interactions WHERE yap_id = ?
		ORDER BY rank_score DESC, comment_likes DESC, interactor_profile_id ASC`), y.ID)
	if err != nil {
		return model.Yap{}, fmt.Errorf("get interactions %s: %w", y.ID, err)
	}
	return y, nil
}

// GetYap implements Store.
func (s *SQLStore) GetYap(ctx context.Context, id string) (model.Yap, error) {
	return s.getYap(ctx, "id", id)
}

// GetYapByURL implements Store.
func (s *SQLStore) GetYapByURL(ctx context.Context, videoURL string) (model.Yap, error) {
	return s.getYap(ctx, "video_url", videoURL)
}

// ListYaps implements Store.
func (s *SQLStore) ListYaps(ctx context.Context, f ListFilter) ([]model.Yap, error) {
	if f.Limit < 1 || f.Limit > MaxListLimit || f.Offset < 0 {
		return nil, fmt.Errorf("%w: limit %d offset %d", ErrInvalidLimit, f.Limit, f.Offset)
	}
	defer observeQuery(time.Now())

	query := `SELECT ` + yapColumns + ` FROM yaps`
	var args []any
	if f.ProfileID != "" {
		query += ` WHERE profile_id = ?`
		args = append(args, f.ProfileID)
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	out := []model.Yap{}
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list yaps: %w", err)
	}
	return out, nil
}

// DeleteYap implements Store.
func (s *SQLStore) DeleteYap(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM yap_interactions WHERE yap_id = ?`), id); err != nil {
		return fmt.Errorf("delete interactions %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM yaps WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete yap %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// TopYaps implements Store.
func (s *SQLStore) TopYaps(ctx context.Context, limit int) ([]model.Yap, error) {
	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	defer observeQuery(time.Now())
	out := []model.Yap{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT `+yapColumns+` FROM yaps
		WHERE qualifies_as_yap ORDER BY yap_score DESC, id ASC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("top yaps: %w", err)
	}
	return out, nil
}

// ProfileAggregates implements Store.
func (s *SQLStore) ProfileAggregates(ctx context.Context) ([]model.ProfileAggregate, error) {
	defer observeQuery(time.Now())
	out := []model.ProfileAggregate{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT profile_id, COUNT(*) AS yap_count, COALESCE(SUM(yap_score), 0) AS total_yap_score
		FROM yaps WHERE profile_id <> '' AND qualifies_as_yap
		GROUP BY profile_id ORDER BY profile_id`)
	if err != nil {
		return nil, fmt.Errorf("profile aggregates: %w", err)
	}
	return out, nil
}

// UpsertProfiles implements Store. Empty handle or nickname never
// overwrite stored ones.
func (s *SQLStore) UpsertProfiles(ctx context.Context, profiles []model.Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO profiles (`+profileColumns+`)
			VALUES (:id, :handle, :nickname, :follower_count, :is_seed_account, :trust_depth, :rank_score)
			ON CONFLICT (id) DO UPDATE SET
				handle = COALESCE(NULLIF(excluded.handle, ''), profiles.handle),
				nickname = COALESCE(NULLIF(excluded.nickname, ''), profiles.nickname),
				follower_count = excluded.follower_count,
				is_seed_account = excluded.is_seed_account,
				trust_depth = excluded.trust_depth,
				rank_score = excluded.rank_score`, p)
		if err != nil {
			return fmt.Errorf("upsert profile %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// SearchProfiles implements Store.
func (s *SQLStore) SearchProfiles(ctx context.Context, query string, limit int) ([]model.Profile, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	defer observeQuery(time.Now())
	q := "%" + strings.ToLower(strings.TrimPrefix(strings.TrimSpace(query), "@")) + "%"
	out := []model.Profile{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT `+profileColumns+` FROM profiles
		WHERE LOWER(handle) LIKE ? OR LOWER(nickname) LIKE ?
		ORDER BY rank_score DESC, id ASC LIMIT ?`), q, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	return out, nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM yaps`); err != nil {
		return 0, fmt.Errorf("count yaps: %w", err)
	}
	metrics.UpdateTotalYaps(n)
	return n, nil
}
