// Package model contains domain models passed between layers.
package model

import "time"

// Profile is a platform account as seen by the trust network.
// RankScore is positive only when TrustDepth is set; seeds sit at depth 0.
type Profile struct {
	ID            string   `json:"id" db:"id"`
	Handle        string   `json:"handle" db:"handle"`
	Nickname      string   `json:"nickname" db:"nickname"`
	FollowerCount int64    `json:"follower_count" db:"follower_count"`
	IsSeedAccount bool     `json:"is_seed_account" db:"is_seed_account"`
	TrustDepth    *int     `json:"trust_depth,omitempty" db:"trust_depth"`
	RankScore     float64  `json:"rank_score" db:"rank_score"`
	SeedWeight    *float64 `json:"seed_weight,omitempty" db:"-"`
}

// Reachable reports whether the profile is connected to any seed.
func (p Profile) Reachable() bool { return p.TrustDepth != nil }

// Yap is a scored video.
type Yap struct {
	ID                      string    `json:"id" db:"id"`
	VideoURL                string    `json:"video_url" db:"video_url"`
	AwemeID                 string    `json:"aweme_id" db:"aweme_id"`
	ProfileID               string    `json:"profile_id" db:"profile_id"`
	YapScore                float64   `json:"yap_score" db:"yap_score"`
	TotalComments           int       `json:"total_comments" db:"total_comments"`
	KnownCommentersCount    int       `json:"known_commenters_count" db:"known_commenters_count"`
	TopCommenterRank        float64   `json:"top_commenter_rank" db:"top_commenter_rank"`
	WeightedEngagementScore float64   `json:"weighted_engagement_score" db:"weighted_engagement_score"`
	QualifiesAsYap          bool      `json:"qualifies_as_yap" db:"qualifies_as_yap"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
	ScrapedAt               time.Time `json:"scraped_at" db:"scraped_at"`

	Interactions []YapInteraction `json:"interactions,omitempty" db:"-"`
}

// YapInteraction is one known commenter's contribution to a Yap.
type YapInteraction struct {
	YapID               string  `json:"yap_id" db:"yap_id"`
	InteractorProfileID string  `json:"interactor_profile_id" db:"interactor_profile_id"`
	InteractorHandle    string  `json:"interactor_handle,omitempty" db:"interactor_handle"`
	CommentText         *string `json:"comment_text,omitempty" db:"comment_text"`
	CommentLikes        int64   `json:"comment_likes" db:"comment_likes"`
	RankScore           float64 `json:"rank_score" db:"rank_score"`
	InteractionWeight   float64 `json:"interaction_weight" db:"interaction_weight"`
}

// Comment is a single comment as returned by the comment fetcher.
type Comment struct {
	CommenterProfileID string
	CommenterHandle    string
	CommenterNickname  string
	Text               string
	LikeCount          int64
}

// VideoComments is the fetcher's view of a video and its comments.
type VideoComments struct {
	VideoID           string
	AuthorProfileID   string
	AuthorHandle      string
	AuthorNickname    string
	TotalCommentCount int
	Comments          []Comment
}

// Interactor is a known commenter found on a video.
type Interactor struct {
	ProfileID         string  `json:"profile_id"`
	Handle            string  `json:"handle,omitempty"`
	Nickname          string  `json:"nickname,omitempty"`
	TrustDepth        int     `json:"trust_depth"`
	RankScore         float64 `json:"rank_score"`
	CommentText       string  `json:"comment_text,omitempty"`
	CommentLikes      int64   `json:"comment_likes"`
	InteractionWeight float64 `json:"interaction_weight"`
}

// Score is the result of scoring one video.
type Score struct {
	VideoURL                string       `json:"video_url"`
	VideoID                 string       `json:"video_id"`
	AuthorProfileID         string       `json:"author_profile_id"`
	AuthorHandle            string       `json:"author_handle,omitempty"`
	TotalComments           int          `json:"total_comments"`
	KnownCommentersCount    int          `json:"known_commenters_count"`
	TopCommenterRank        float64      `json:"top_commenter_rank"`
	WeightedEngagementScore float64      `json:"weighted_engagement_score"`
	YapScore                float64      `json:"yap_score"`
	QualifiesAsYap          bool         `json:"qualifies_as_yap"`
	KnownInteractors        []Interactor `json:"known_interactors"`
	SnapshotVersion         uint64       `json:"snapshot_version"`
	ComputedAt              time.Time    `json:"computed_at"`
}

// ProfileRanking aggregates a profile's Yap history with its trust rank.
type ProfileRanking struct {
	Rank            int     `json:"rank"`
	ProfileID       string  `json:"profile_id"`
	Handle          string  `json:"handle,omitempty"`
	Nickname        string  `json:"nickname,omitempty"`
	TrustDepth      *int    `json:"trust_depth,omitempty"`
	RankScore       float64 `json:"rank_score"`
	YapCount        int     `json:"yap_count"`
	TotalYapScore   float64 `json:"total_yap_score"`
	AverageYapScore float64 `json:"average_yap_score"`
}

// ProfileAggregate is the raw per-profile roll-up read from storage.
type ProfileAggregate struct {
	ProfileID     string  `db:"profile_id"`
	YapCount      int     `db:"yap_count"`
	TotalYapScore float64 `db:"total_yap_score"`
}
