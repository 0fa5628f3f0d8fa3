// Package ranking builds the yap leaderboard and the per-profile ranking.
package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/registry"
	"github.com/okian/yap/internal/domain/types"
)

// Hard caps on result sizes.
const (
	MaxLeaderboard = 200
	MaxRanking     = 500
)

// Source reads persisted yaps.
type Source interface {
	// TopYaps returns up to limit yaps ordered by yap score desc.
	TopYaps(ctx context.Context, limit int) ([]model.Yap, error)
	// ProfileAggregates rolls yaps up per profile.
	ProfileAggregates(ctx context.Context) ([]model.ProfileAggregate, error)
}

// SnapshotProvider hands out the current trust snapshot.
type SnapshotProvider interface {
	Current() *registry.Snapshot
}

// Aggregator joins stored yaps with the trust snapshot.
type Aggregator struct {
	source         Source
	snapshots      SnapshotProvider
	leaderboardCap int
	rankingCap     int
}

// New creates an aggregator.
func New(src Source, snaps SnapshotProvider, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:         src,
		snapshots:      snaps,
		leaderboardCap: MaxLeaderboard,
		rankingCap:     MaxRanking,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func effective(op string, limit, hardCap int) (int, error) {
	if limit < 1 {
		return 0, apperr.Wrap(op, apperr.ErrValidation, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit))
	}
	return min(limit, hardCap), nil
}

// Leaderboard returns the top yaps, at most min(limit, cap).
// Equal yap scores share a rank.
func (a *Aggregator) Leaderboard(ctx context.Context, limit int) ([]types.Entry, error) {
	const op = "ranking.leaderboard"
	n, err := effective(op, limit, a.leaderboardCap)
	if err != nil {
		return nil, err
	}
	yaps, err := a.source.TopYaps(ctx, n)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.ErrComputation, err)
	}
	if len(yaps) > n {
		yaps = yaps[:n]
	}
	sort.SliceStable(yaps, func(i, j int) bool {
		if yaps[i].YapScore != yaps[j].YapScore {
			return yaps[i].YapScore > yaps[j].YapScore
		}
		return yaps[i].ID < yaps[j].ID
	})
	out := make([]types.Entry, len(yaps))
	for i, y := range yaps {
		out[i] = types.Entry{
			YapID:                y.ID,
			VideoURL:             y.VideoURL,
			ProfileID:            y.ProfileID,
			YapScore:             y.YapScore,
			KnownCommentersCount: y.KnownCommentersCount,
			TopCommenterRank:     y.TopCommenterRank,
		}
	}
	denseRanks(len(out), func(i int) bool { return out[i].YapScore == out[i-1].YapScore },
		func(i, r int) { out[i].Rank = r })
	return out, nil
}

// ProfileRanking returns profiles ordered by total yap score desc, then
// rank score desc, then id. At most min(limit, cap) rows.
func (a *Aggregator) ProfileRanking(ctx context.Context, limit int) ([]model.ProfileRanking, error) {
	const op = "ranking.profile_ranking"
	n, err := effective(op, limit, a.rankingCap)
	if err != nil {
		return nil, err
	}
	all, err := a.all(ctx, op)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// Profile returns one profile's ranking row, with its rank among all
// profiles.
func (a *Aggregator) Profile(ctx context.Context, id string) (model.ProfileRanking, error) {
	const op = "ranking.profile"
	all, err := a.all(ctx, op)
	if err != nil {
		return model.ProfileRanking{}, err
	}
	for _, r := range all {
		if r.ProfileID == id {
			return r, nil
		}
	}
	return model.ProfileRanking{}, apperr.Wrap(op, apperr.ErrNotFound, fmt.Errorf("%w: %s", ErrProfileNotFound, id))
}

func (a *Aggregator) all(ctx context.Context, op string) ([]model.ProfileRanking, error) {
	aggs, err := a.source.ProfileAggregates(ctx)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.ErrComputation, err)
	}
	snap := registry.Empty()
	if a.snapshots != nil {
		snap = a.snapshots.Current()
	}

	rows := make([]model.ProfileRanking, 0, len(aggs))
	for _, ag := range aggs {
		if ag.ProfileID == "" || ag.YapCount == 0 {
			continue
		}
		row := model.ProfileRanking{
			ProfileID:     ag.ProfileID,
			YapCount:      ag.YapCount,
			TotalYapScore: ag.TotalYapScore,
		}
		row.AverageYapScore = ag.TotalYapScore / float64(ag.YapCount)
		if p, ok := snap.Lookup(ag.ProfileID); ok {
			row.Handle, row.Nickname = p.Handle, p.Nickname
			row.TrustDepth, row.RankScore = p.TrustDepth, p.RankScore
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalYapScore != rows[j].TotalYapScore {
			return rows[i].TotalYapScore > rows[j].TotalYapScore
		}
		if rows[i].RankScore != rows[j].RankScore {
			return rows[i].RankScore > rows[j].RankScore
		}
		return rows[i].ProfileID < rows[j].ProfileID
	})
	denseRanks(len(rows), func(i int) bool {
		return rows[i].TotalYapScore == rows[i-1].TotalYapScore && rows[i].RankScore == rows[i-1].RankScore
	}, func(i, r int) { rows[i].Rank = r })
	return rows, nil
}

// denseRanks assigns 1,1,2,3,3,... over an already sorted sequence.
// tied(i) reports whether element i ties with element i-1.
func denseRanks(n int, tied func(i int) bool, set func(i, rank int)) {
	rank := 0
	for i := 0; i < n; i++ {
		if i == 0 || !tied(i) {
			rank++
		}
		set(i, rank)
	}
}
