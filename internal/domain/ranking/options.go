package ranking

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithLeaderboardCap lowers the leaderboard cap. It never exceeds MaxLeaderboard.
func WithLeaderboardCap(n int) Option {
	return func(a *Aggregator) {
		if n > 0 && n <= MaxLeaderboard {
			a.leaderboardCap = n
		}
	}
}

// WithRankingCap lowers the profile ranking cap. It never exceeds MaxRanking.
func WithRankingCap(n int) Option {
	return func(a *Aggregator) {
		if n > 0 && n <= MaxRanking {
			a.rankingCap = n
		}
	}
}
