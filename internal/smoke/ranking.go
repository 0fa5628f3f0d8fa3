package smoke

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/okian/yap/pkg/logger"
)

func getLeaderboard(ctx context.Context, c *client, topN int, stats *Stats) ([]Entry, error) {
	var entries []Entry
	if err := c.getJSON(ctx, fmt.Sprintf("/yaps/leaderboard?limit=%d", topN), &entries); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	stats.LeaderboardEntries = len(entries)
	logger.Get().Info(ctx, "leaderboard retrieved", logger.Int("entries", len(entries)))
	return entries, nil
}

func getProfileRanking(ctx context.Context, c *client, limit int) ([]Ranking, error) {
	var rows []Ranking
	if err := c.getJSON(ctx, fmt.Sprintf("/profiles/ranking?limit=%d", limit), &rows); err != nil {
		return nil, fmt.Errorf("profile ranking: %w", err)
	}
	return rows, nil
}

// retrieveRankings fetches the ranking row of every profile that owns a
// leaderboard entry, concurrently. Missing rows are counted, not fatal.
func retrieveRankings(ctx context.Context, c *client, cfg *Config, entries []Entry, stats *Stats) map[string]Ranking {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.ProfileID != "" && !seen[e.ProfileID] {
			seen[e.ProfileID] = true
			ids = append(ids, e.ProfileID)
		}
	}
	logger.Get().Info(ctx, "retrieving profile rankings",
		logger.Int("profiles", len(ids)),
		logger.Int("workers", cfg.Workers))

	var (
		mu        sync.Mutex
		out       = make(map[string]Ranking, len(ids))
		retrieved atomic.Int64
		failed    atomic.Int64
	)
	idChan := make(chan string, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idChan {
				var row Ranking
				if err := c.getJSON(ctx, "/profiles/"+url.PathEscape(id)+"/ranking", &row); err != nil {
					failed.Add(1)
					logger.Get().Debug(ctx, "profile ranking failed", logger.String("profile_id", id), logger.Error(err))
					continue
				}
				mu.Lock()
				out[id] = row
				mu.Unlock()
				retrieved.Add(1)
			}
		}()
	}
	go func() {
		defer close(idChan)
		for _, id := range ids {
			select {
			case <-ctx.Done():
				return
			case idChan <- id:
			}
		}
	}()
	wg.Wait()

	stats.RankingsRetrieved = int(retrieved.Load())
	stats.RankingsFailed = int(failed.Load())
	return out
}
