// Package smoke drives a running yap server end to end: it submits video
// URLs for background processing, waits for them to land, then checks
// that the leaderboard and profile ranking agree with each other.
package smoke

import "time"

// Config holds configuration for a smoke run.
type Config struct {
	BaseURL      string        // Base URL of the service
	URLs         []string      // Video URLs to submit
	ProfileID    string        // Optional owner for every yap
	TopN         int           // Leaderboard entries to fetch
	Workers      int           // Concurrent HTTP workers
	Timeout      time.Duration // Per-request timeout
	Wait         time.Duration // How long to wait for the queue to drain
	PollInterval time.Duration
}

// QueuedItem mirrors one auto-process outcome.
type QueuedItem struct {
	VideoURL string `json:"video_url"`
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
}

type autoProcessResponse struct {
	Queued int          `json:"queued"`
	Items  []QueuedItem `json:"items"`
}

// Entry is a leaderboard row.
type Entry struct {
	Rank      int     `json:"rank"`
	YapID     string  `json:"yap_id"`
	VideoURL  string  `json:"video_url"`
	ProfileID string  `json:"profile_id"`
	YapScore  float64 `json:"yap_score"`
}

// Ranking is a profile ranking row.
type Ranking struct {
	Rank          int     `json:"rank"`
	ProfileID     string  `json:"profile_id"`
	Handle        string  `json:"handle"`
	YapCount      int     `json:"yap_count"`
	TotalYapScore float64 `json:"total_yap_score"`
}

// Stats holds run statistics.
type Stats struct {
	URLsSubmitted      int
	Queued             int
	Duplicate          int
	Invalid            int
	Rejected           int
	YapsBefore         int
	YapsAfter          int
	LeaderboardEntries int
	RankingsRetrieved  int
	RankingsFailed     int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
