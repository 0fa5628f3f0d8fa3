package api

import (
	"net/http"
)

// handleLeaderboard handles GET /yaps/leaderboard?limit=N. Limits above the
// cap are clamped by the aggregator.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n, err := queryLimit(r, defaultLeaderboardLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.deps.Leaderboard(r.Context(), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleProfileRanking handles GET /profiles/ranking?limit=N.
func (s *Server) handleProfileRanking(w http.ResponseWriter, r *http.Request) {
	n, err := queryLimit(r, defaultRankingLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.deps.ProfileRanking(r.Context(), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleProfileRank handles GET /profiles/{id}/ranking.
func (s *Server) handleProfileRank(w http.ResponseWriter, r *http.Request) {
	row, err := s.deps.ProfileRank(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleSearch handles GET /profiles/search?username=...&limit=N.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	n, err := queryLimit(r, defaultSearchLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	found, err := s.deps.Search(r.Context(), r.URL.Query().Get("username"), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}
