package repository

// Schemas differ only in column types; statements are separated by ';' and
// executed one at a time.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    id              TEXT PRIMARY KEY,
    handle          TEXT NOT NULL DEFAULT '',
    nickname        TEXT NOT NULL DEFAULT '',
    follower_count  INTEGER NOT NULL DEFAULT 0,
    is_seed_account BOOLEAN NOT NULL DEFAULT 0,
    trust_depth     INTEGER,
    rank_score      REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_profiles_handle ON profiles(handle);

CREATE TABLE IF NOT EXISTS seed_accounts (
    profile_id TEXT PRIMARY KEY,
    handle     TEXT NOT NULL DEFAULT '',
    weight     REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS follows (
    follower_id TEXT NOT NULL,
    followee_id TEXT NOT NULL,
    PRIMARY KEY (follower_id, followee_id)
);

CREATE TABLE IF NOT EXISTS yaps (
    id                        TEXT PRIMARY KEY,
    video_url                 TEXT NOT NULL UNIQUE,
    aweme_id                  TEXT NOT NULL DEFAULT '',
    profile_id                TEXT NOT NULL DEFAULT '',
    yap_score                 REAL NOT NULL DEFAULT 0,
    total_comments            INTEGER NOT NULL DEFAULT 0,
    known_commenters_count    INTEGER NOT NULL DEFAULT 0,
    top_commenter_rank        REAL NOT NULL DEFAULT 0,
    weighted_engagement_score REAL NOT NULL DEFAULT 0,
    qualifies_as_yap          BOOLEAN NOT NULL DEFAULT 0,
    created_at                DATETIME NOT NULL,
    scraped_at                DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_yaps_score ON yaps(yap_score);
CREATE INDEX IF NOT EXISTS idx_yaps_profile ON yaps(profile_id);
CREATE INDEX IF NOT EXISTS idx_yaps_created ON yaps(created_at);

CREATE TABLE IF NOT EXISTS yap_interactions (
    yap_id                TEXT NOT NULL,
    interactor_profile_id TEXT NOT NULL,
    interactor_handle     TEXT NOT NULL DEFAULT '',
    comment_text          TEXT,
    comment_likes         INTEGER NOT NULL DEFAULT 0,
    rank_score            REAL NOT NULL DEFAULT 0,
    interaction_weight    REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (yap_id, interactor_profile_id)
)`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    id              TEXT PRIMARY KEY,
    handle          TEXT NOT NULL DEFAULT '',
    nickname        TEXT NOT NULL DEFAULT '',
    follower_count  BIGINT NOT NULL DEFAULT 0,
    is_seed_account BOOLEAN NOT NULL DEFAULT FALSE,
    trust_depth     INTEGER,
    rank_score      DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_profiles_handle ON profiles(handle);

CREATE TABLE IF NOT EXISTS seed_accounts (
    profile_id TEXT PRIMARY KEY,
    handle     TEXT NOT NULL DEFAULT '',
    weight     DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS follows (
    follower_id TEXT NOT NULL,
    followee_id TEXT NOT NULL,
    PRIMARY KEY (follower_id, followee_id)
);

CREATE TABLE IF NOT EXISTS yaps (
    id                        TEXT PRIMARY KEY,
    video_url                 TEXT NOT NULL UNIQUE,
    aweme_id                  TEXT NOT NULL DEFAULT '',
    profile_id                TEXT NOT NULL DEFAULT '',
    yap_score                 DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_comments            INTEGER NOT NULL DEFAULT 0,
    known_commenters_count    INTEGER NOT NULL DEFAULT 0,
    top_commenter_rank        DOUBLE PRECISION NOT NULL DEFAULT 0,
    weighted_engagement_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    qualifies_as_yap          BOOLEAN NOT NULL DEFAULT FALSE,
    created_at                TIMESTAMPTZ NOT NULL,
    scraped_at                TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_yaps_score ON yaps(yap_score DESC);
CREATE INDEX IF NOT EXISTS idx_yaps_profile ON yaps(profile_id);
CREATE INDEX IF NOT EXISTS idx_yaps_created ON yaps(created_at);

CREATE TABLE IF NOT EXISTS yap_interactions (
    yap_id                TEXT NOT NULL REFERENCES yaps(id) ON DELETE CASCADE,
    interactor_profile_id TEXT NOT NULL,
    interactor_handle     TEXT NOT NULL DEFAULT '',
    comment_text          TEXT,
    comment_likes         BIGINT NOT NULL DEFAULT 0,
    rank_score            DOUBLE PRECISION NOT NULL DEFAULT 0,
    interaction_weight    DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (yap_id, interactor_profile_id)
)`
