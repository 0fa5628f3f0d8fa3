package api

import (
	"fmt"
	"net/http"
)

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (t *toggleRequest) validate() error {
	if t.Enabled == nil {
		return fmt.Errorf("%w: enabled", ErrMissingField)
	}
	return nil
}

type clearResponse struct {
	Removed int `json:"removed"`
}

type clearOneResponse struct {
	VideoURL string `json:"video_url"`
	Removed  bool   `json:"removed"`
}

// handleCacheStats handles GET /cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.CacheStats())
}

// handleCacheClear handles POST /cache/clear.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, clearResponse{Removed: s.deps.ClearCache(r.Context())})
}

// handleCacheClearOne handles POST /cache/clear-one.
func (s *Server) handleCacheClearOne(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	removed, err := s.deps.ClearCacheOne(r.Context(), req.VideoURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clearOneResponse{VideoURL: req.VideoURL, Removed: removed})
}

// handleCacheToggle handles POST /cache/toggle.
func (s *Server) handleCacheToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.ToggleCache(r.Context(), *req.Enabled))
}

// handleRegistry handles GET /registry.
func (s *Server) handleRegistry(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.RegistryInfo())
}

// handleRegistryRefresh handles POST /registry/refresh.
func (s *Server) handleRegistryRefresh(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.RefreshRegistry(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
