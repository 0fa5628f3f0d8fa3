package smoke

import (
	"context"
	"fmt"

	"github.com/okian/yap/pkg/logger"
)

// denseRank returns the rank row i should carry given the previous row's
// rank. Tied rows share a rank and the next distinct row takes rank+1.
func denseRank(i, prevRank int, tied bool) int {
	switch {
	case i == 0:
		return 1
	case tied:
		return prevRank
	default:
		return prevRank + 1
	}
}

// verifyLeaderboard checks scores never increase and ranks are dense.
func verifyLeaderboard(entries []Entry) error {
	for i, e := range entries {
		if i > 0 && e.YapScore > entries[i-1].YapScore {
			return fmt.Errorf("%w: leaderboard entry %d scores above entry %d", ErrInconsistent, i, i-1)
		}
		prev := 0
		if i > 0 {
			prev = entries[i-1].Rank
		}
		if want := denseRank(i, prev, i > 0 && e.YapScore == entries[i-1].YapScore); e.Rank != want {
			return fmt.Errorf("%w: leaderboard entry %d has rank %d, want %d", ErrInconsistent, i, e.Rank, want)
		}
	}
	return nil
}

// verifyRankings checks the ranking list is ordered and that each
// per-profile row agrees with the list.
func verifyRankings(list []Ranking, single map[string]Ranking) error {
	if len(list) == 0 && len(single) > 0 {
		return ErrEmptyRankings
	}
	byID := make(map[string]Ranking, len(list))
	for i, r := range list {
		if i > 0 && r.TotalYapScore > list[i-1].TotalYapScore {
			return fmt.Errorf("%w: ranking row %d scores above row %d", ErrInconsistent, i, i-1)
		}
		// Ties in total can still be split by trust rank, so a rank
		// may repeat or advance by one, never skip.
		ok := r.Rank == 1
		if i > 0 {
			ok = r.Rank == list[i-1].Rank || r.Rank == list[i-1].Rank+1
		}
		if !ok {
			return fmt.Errorf("%w: ranking row %d has rank %d", ErrInconsistent, i, r.Rank)
		}
		byID[r.ProfileID] = r
	}
	for id, r := range single {
		listed, ok := byID[id]
		if !ok {
			continue
		}
		if listed.Rank != r.Rank || listed.TotalYapScore != r.TotalYapScore {
			return fmt.Errorf("%w: profile %s is rank %d in the list but %d alone", ErrInconsistent, id, listed.Rank, r.Rank)
		}
	}
	return nil
}

func displayTop(ctx context.Context, entries []Entry, list []Ranking) {
	log := logger.Get()
	for _, e := range entries[:min(10, len(entries))] {
		log.Info(ctx, "top yap",
			logger.Int("rank", e.Rank),
			logger.String("video_url", e.VideoURL),
			logger.Float64("yap_score", e.YapScore))
	}
	for _, r := range list[:min(10, len(list))] {
		log.Info(ctx, "top profile",
			logger.Int("rank", r.Rank),
			logger.String("handle", r.Handle),
			logger.Int("yaps", r.YapCount),
			logger.Float64("total_yap_score", r.TotalYapScore))
	}
}
