// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/yap/internal/adapters/repository"
	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/types"
	"github.com/okian/yap/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Default page sizes when a request omits limit.
const (
	defaultLeaderboardLimit = 50
	defaultRankingLimit     = 100
	defaultListLimit        = 50
	defaultSearchLimit      = 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	Calculate(ctx context.Context, rawURL string) (model.Score, error)
	Process(ctx context.Context, rawURL, profileID string) (types.ProcessResult, error)
	AutoProcess(ctx context.Context, rawURLs []string, profileID string) ([]types.QueuedItem, error)
	Batch(ctx context.Context, rawURLs []string, profileID string, maxConcurrent int) ([]types.BatchItem, error)

	Get(ctx context.Context, id string) (model.Yap, error)
	List(ctx context.Context, f repository.ListFilter) ([]model.Yap, error)
	Recalculate(ctx context.Context, id string) (types.ProcessResult, error)
	Delete(ctx context.Context, id string) error

	Leaderboard(ctx context.Context, limit int) ([]types.Entry, error)
	ProfileRanking(ctx context.Context, limit int) ([]model.ProfileRanking, error)
	ProfileRank(ctx context.Context, id string) (model.ProfileRanking, error)
	Search(ctx context.Context, username string, limit int) ([]model.Profile, error)

	CacheStats() types.CacheStats
	ClearCache(ctx context.Context) int
	ClearCacheOne(ctx context.Context, rawURL string) (bool, error)
	ToggleCache(ctx context.Context, enabled bool) types.CacheStats

	RegistryInfo() types.RegistryInfo
	RefreshRegistry(ctx context.Context) (types.RegistryInfo, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps Dependencies
	log  logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies) *Server {
	return &Server{deps: deps, log: logger.Named("api")}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	routes := []struct {
		pattern  string
		endpoint string
		h        http.HandlerFunc
	}{
		{"GET /healthz", "healthz", HandleHealth()},
		{"GET /stats", "stats", HandleStats(s.deps)},

		{"POST /yaps/calculate", "yaps_calculate", s.handleCalculate},
		{"POST /yaps/process", "yaps_process", s.handleProcess},
		{"POST /yaps/auto-process", "yaps_auto_process", s.handleAutoProcess},
		{"POST /yaps/batch", "yaps_batch", s.handleBatch},
		{"GET /yaps/leaderboard", "yaps_leaderboard", s.handleLeaderboard},
		{"GET /yaps", "yaps_list", s.handleList},
		{"GET /yaps/{id}", "yaps_get", s.handleGet},
		{"POST /yaps/{id}/recalculate", "yaps_recalculate", s.handleRecalculate},
		{"DELETE /yaps/{id}", "yaps_delete", s.handleDelete},

		{"GET /profiles/ranking", "profiles_ranking", s.handleProfileRanking},
		{"GET /profiles/search", "profiles_search", s.handleSearch},
		{"GET /profiles/{id}/ranking", "profile_ranking", s.handleProfileRank},

		{"GET /cache/stats", "cache_stats", s.handleCacheStats},
		{"POST /cache/clear", "cache_clear", s.handleCacheClear},
		{"POST /cache/clear-one", "cache_clear_one", s.handleCacheClearOne},
		{"POST /cache/toggle", "cache_toggle", s.handleCacheToggle},

		{"GET /registry", "registry", s.handleRegistry},
		{"POST /registry/refresh", "registry_refresh", s.handleRegistryRefresh},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, MetricsMiddleware(rt.h, rt.endpoint))
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and writes the error body. Server-side
// faults are logged; client errors are not.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// decode reads a JSON body into v and runs its validate method.
func decode[T interface{ validate() error }](w http.ResponseWriter, r *http.Request, v T) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: %w", ErrBadRequest, ErrBodyTooLarge)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := v.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
// positive rejects zero.
func queryInt(r *http.Request, name string, def int, positive bool, bad error) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (positive && n == 0) {
		return 0, apperr.Wrap("api.query", apperr.ErrValidation, fmt.Errorf("%w: %s=%q", bad, name, raw))
	}
	return n, nil
}

func queryLimit(r *http.Request, def int) (int, error) {
	return queryInt(r, "limit", def, true, ErrBadLimit)
}
