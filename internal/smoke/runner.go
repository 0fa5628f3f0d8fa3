package smoke

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/okian/yap/pkg/logger"
)

// rankingFetchLimit is the server's profile ranking cap.
const rankingFetchLimit = 500

func (c *Config) withDefaults() {
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Wait <= 0 {
		c.Wait = DefaultWait
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Run executes the complete smoke test.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	if len(cfg.URLs) == 0 {
		return nil, ErrNoURLs
	}
	cfg.withDefaults()
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting yap smoke test",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("urls", len(cfg.URLs)),
		logger.Int("workers", cfg.Workers),
		logger.Duration("wait", cfg.Wait))

	if err := c.getJSON(ctx, "/healthz", nil); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	before, err := storedYaps(ctx, c)
	if err != nil {
		return stats, err
	}
	stats.YapsBefore = before

	if err := submitURLs(ctx, c, &cfg, stats); err != nil {
		return stats, err
	}
	if err := waitForQueue(ctx, c, &cfg, before+stats.Queued); err != nil {
		return stats, err
	}
	if stats.YapsAfter, err = storedYaps(ctx, c); err != nil {
		return stats, err
	}

	entries, err := getLeaderboard(ctx, c, cfg.TopN, stats)
	if err != nil {
		return stats, err
	}
	list, err := getProfileRanking(ctx, c, rankingFetchLimit)
	if err != nil {
		return stats, err
	}
	single := retrieveRankings(ctx, c, &cfg, entries, stats)

	if err := verifyLeaderboard(entries); err != nil {
		return stats, err
	}
	if err := verifyRankings(list, single); err != nil {
		return stats, err
	}
	displayTop(ctx, entries, list)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var urlsPerSecond float64
	if stats.Duration > 0 {
		urlsPerSecond = float64(stats.URLsSubmitted) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("urls_submitted", stats.URLsSubmitted),
		logger.Int("queued", stats.Queued),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("invalid", stats.Invalid),
		logger.Int("rejected", stats.Rejected),
		logger.Int("yaps_before", stats.YapsBefore),
		logger.Int("yaps_after", stats.YapsAfter),
		logger.Int("leaderboard_entries", stats.LeaderboardEntries),
		logger.Int("rankings_retrieved", stats.RankingsRetrieved),
		logger.Int("rankings_failed", stats.RankingsFailed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("urls_per_second", urlsPerSecond))
}
