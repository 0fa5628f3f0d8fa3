package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/yap/internal/adapters/repository"
	"github.com/okian/yap/internal/domain/types"
)

type videoRequest struct {
	VideoURL string `json:"video_url"`
}

func (v *videoRequest) validate() error {
	if strings.TrimSpace(v.VideoURL) == "" {
		return fmt.Errorf("%w: video_url", ErrMissingField)
	}
	return nil
}

type processRequest struct {
	VideoURL  string `json:"video_url"`
	ProfileID string `json:"profile_id,omitempty"`
}

func (p *processRequest) validate() error {
	if strings.TrimSpace(p.VideoURL) == "" {
		return fmt.Errorf("%w: video_url", ErrMissingField)
	}
	return nil
}

type multiRequest struct {
	VideoURLs     []string `json:"video_urls"`
	ProfileID     string   `json:"profile_id,omitempty"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
}

// validate checks presence only; count and concurrency bounds belong to
// the service so the CLI gets the same rules.
func (m *multiRequest) validate() error {
	if len(m.VideoURLs) == 0 {
		return fmt.Errorf("%w: video_urls", ErrMissingField)
	}
	return nil
}

type autoProcessResponse struct {
	Queued int                `json:"queued"`
	Items  []types.QueuedItem `json:"items"`
}

type batchResponse struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Items     []types.BatchItem `json:"items"`
}

// handleCalculate handles POST /yaps/calculate.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	score, err := s.deps.Calculate(r.Context(), req.VideoURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// handleProcess handles POST /yaps/process.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Process(r.Context(), req.VideoURL, req.ProfileID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// handleAutoProcess handles POST /yaps/auto-process.
func (s *Server) handleAutoProcess(w http.ResponseWriter, r *http.Request) {
	var req multiRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.deps.AutoProcess(r.Context(), req.VideoURLs, req.ProfileID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := autoProcessResponse{Items: items}
	for _, it := range items {
		if it.Status == types.QueueStatusQueued {
			resp.Queued++
		}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleBatch handles POST /yaps/batch.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req multiRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.deps.Batch(r.Context(), req.VideoURLs, req.ProfileID, req.MaxConcurrent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := batchResponse{Items: items}
	for _, it := range items {
		if it.Error != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleList handles GET /yaps?profile_id&limit&offset.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultListLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0, false, ErrBadOffset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ys, err := s.deps.List(r.Context(), repository.ListFilter{
		ProfileID: strings.TrimSpace(r.URL.Query().Get("profile_id")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ys)
}

// handleGet handles GET /yaps/{id}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	y, err := s.deps.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, y)
}

// handleRecalculate handles POST /yaps/{id}/recalculate.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Recalculate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDelete handles DELETE /yaps/{id}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
