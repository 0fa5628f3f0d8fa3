// Package types contains read shapes returned to API clients.
package types

import "github.com/okian/yap/internal/domain/model"

// Entry represents a yap leaderboard row.
type Entry struct {
	Rank                 int     `json:"rank"`
	YapID                string  `json:"yap_id"`
	VideoURL             string  `json:"video_url"`
	ProfileID            string  `json:"profile_id"`
	YapScore             float64 `json:"yap_score"`
	KnownCommentersCount int     `json:"known_commenters_count"`
	TopCommenterRank     float64 `json:"top_commenter_rank"`
}

// BatchItem is one slot of a batch response, in input order.
type BatchItem struct {
	VideoURL string       `json:"video_url"`
	Score    *model.Score `json:"score,omitempty"`
	YapID    string       `json:"yap_id,omitempty"`
	Error    *ItemError   `json:"error,omitempty"`
}

// ItemError describes a per-item failure.
type ItemError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// CacheStats is the administrative view of the score cache.
type CacheStats struct {
	Enabled   bool    `json:"enabled"`
	Size      int     `json:"size"`
	InFlight  int     `json:"in_flight"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Coalesced int64   `json:"coalesced"`
	Degraded  int64   `json:"degraded"`
	HitRate   float64 `json:"hit_rate"`
}

// RegistryInfo describes the active trust snapshot.
type RegistryInfo struct {
	Version   uint64 `json:"version"`
	BuiltAt   string `json:"built_at"`
	Seeds     int    `json:"seeds"`
	Profiles  int    `json:"profiles"`
	Reachable int    `json:"reachable"`
	MaxDepth  int    `json:"max_depth"`
	Policy    string `json:"policy"`
	Decay     string `json:"decay"`
}

// ProcessResult is the outcome of scoring and persisting one video.
type ProcessResult struct {
	Yap     model.Yap   `json:"yap"`
	Score   model.Score `json:"score"`
	Created bool        `json:"created"`
}

// Auto-process item states.
const (
	QueueStatusQueued    = "queued"
	QueueStatusDuplicate = "duplicate"
	QueueStatusInvalid   = "invalid"
	QueueStatusRejected  = "rejected"
)

// QueuedItem reports what happened to one auto-process URL.
type QueuedItem struct {
	VideoURL string     `json:"video_url"`
	JobID    string     `json:"job_id,omitempty"`
	Status   string     `json:"status"`
	Error    *ItemError `json:"error,omitempty"`
}
