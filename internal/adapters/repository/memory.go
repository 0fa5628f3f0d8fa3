package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/pkg/metrics"
)

func defaultConfig() config {
	return config{
		metricsInterval: 5 * time.Second,
		maxOpenConns:    10,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// MemoryStore keeps everything in process, with a treap index by yap score
// over qualifying yaps for the leaderboard.
type MemoryStore struct {
	cfg config

	mu       sync.RWMutex
	root     *node
	yaps     map[string]model.Yap
	byURL    map[string]string
	profiles map[string]model.Profile

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates an empty store and starts its metrics updater,
// which stops with ctx or Close.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &MemoryStore{
		cfg:      cfg,
		yaps:     make(map[string]model.Yap),
		byURL:    make(map[string]string),
		profiles: make(map[string]model.Profile),
		stopChan: make(chan struct{}),
	}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.metricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.mu.RLock()
				n := len(s.yaps)
				s.mu.RUnlock()
				metrics.UpdateTotalYaps(n)
			}
		}
	}()
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func validateYap(y model.Yap) error {
	switch {
	case y.VideoURL == "":
		return fmt.Errorf("%w: empty video url", ErrInvalidYap)
	case y.KnownCommentersCount > y.TotalComments:
		return fmt.Errorf("%w: %d known commenters > %d comments", ErrInvalidYap, y.KnownCommentersCount, y.TotalComments)
	case y.YapScore < 0 || y.WeightedEngagementScore < 0:
		return fmt.Errorf("%w: negative score", ErrInvalidYap)
	}
	return nil
}

func cloneYap(y model.Yap) model.Yap {
	if y.Interactions != nil {
		y.Interactions = append([]model.YapInteraction(nil), y.Interactions...)
	}
	return y
}

// SaveYap implements Store.
func (s *MemoryStore) SaveYap(ctx context.Context, y model.Yap) (model.Yap, bool, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds())) }()
	if err := validateYap(y); err != nil {
		return model.Yap{}, false, err
	}
	y.YapScore = sanitize(y.YapScore)

	s.mu.Lock()
	defer s.mu.Unlock()

	created := true
	if id, ok := s.byURL[y.VideoURL]; ok {
		old := s.yaps[id]
		s.root = deleteNode(s.root, old.ID, old.YapScore)
		y.ID, y.CreatedAt = old.ID, old.CreatedAt
		created = false
	} else {
		if y.ID == "" {
			y.ID = s.cfg.newID()
		}
		if y.CreatedAt.IsZero() {
			y.CreatedAt = s.cfg.now().UTC()
		}
	}
	if y.ScrapedAt.IsZero() {
		y.ScrapedAt = s.cfg.now().UTC()
	}
	y = cloneYap(y)
	for i := range y.Interactions {
		y.Interactions[i].YapID = y.ID
	}

	s.yaps[y.ID] = y
	s.byURL[y.VideoURL] = y.ID
	if y.QualifiesAsYap {
		s.root = insert(s.root, y.ID, y.YapScore)
	}
	return cloneYap(y), created, nil
}

// GetYap implements Store.
func (s *MemoryStore) GetYap(ctx context.Context, id string) (model.Yap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, ok := s.yaps[id]
	if !ok {
		return model.Yap{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneYap(y), nil
}

// GetYapByURL implements Store.
func (s *MemoryStore) GetYapByURL(ctx context.Context, videoURL string) (model.Yap, error) {
	s.mu.RLock()
	id, ok := s.byURL[videoURL]
	s.mu.RUnlock()
	if !ok {
		return model.Yap{}, fmt.Errorf("%w: %s", ErrNotFound, videoURL)
	}
	return s.GetYap(ctx, id)
}

// ListYaps implements Store.
func (s *MemoryStore) ListYaps(ctx context.Context, f ListFilter) ([]model.Yap, error) {
	if f.Limit < 1 || f.Limit > MaxListLimit || f.Offset < 0 {
		return nil, fmt.Errorf("%w: limit %d offset %d", ErrInvalidLimit, f.Limit, f.Offset)
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds())) }()

	s.mu.RLock()
	out := make([]model.Yap, 0, len(s.yaps))
	for _, y := range s.yaps {
		if f.ProfileID != "" && y.ProfileID != f.ProfileID {
			continue
		}
		y.Interactions = nil
		out = append(out, y)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset >= len(out) {
		return []model.Yap{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DeleteYap implements Store.
func (s *MemoryStore) DeleteYap(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	y, ok := s.yaps[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.root = deleteNode(s.root, y.ID, y.YapScore)
	delete(s.yaps, id)
	delete(s.byURL, y.VideoURL)
	return nil
}

// TopYaps implements Store with an in-order walk of the treap.
func (s *MemoryStore) TopYaps(ctx context.Context, limit int) ([]model.Yap, error) {
	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds())) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, min(limit, len(s.yaps)))
	collectTop(s.root, limit, &ids)
	out := make([]model.Yap, 0, len(ids))
	for _, id := range ids {
		y := s.yaps[id]
		y.Interactions = nil
		out = append(out, y)
	}
	return out, nil
}

// ProfileAggregates implements Store.
func (s *MemoryStore) ProfileAggregates(ctx context.Context) ([]model.ProfileAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byProfile := make(map[string]*model.ProfileAggregate)
	for _, y := range s.yaps {
		if y.ProfileID == "" || !y.QualifiesAsYap {
			continue
		}
		a, ok := byProfile[y.ProfileID]
		if !ok {
			a = &model.ProfileAggregate{ProfileID: y.ProfileID}
			byProfile[y.ProfileID] = a
		}
		a.YapCount++
		a.TotalYapScore += y.YapScore
	}
	out := make([]model.ProfileAggregate, 0, len(byProfile))
	for _, a := range byProfile {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfileID < out[j].ProfileID })
	return out, nil
}

// UpsertProfiles implements Store.
func (s *MemoryStore) UpsertProfiles(ctx context.Context, profiles []model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		s.profiles[p.ID] = p
	}
	return nil
}

// SearchProfiles implements Store.
func (s *MemoryStore) SearchProfiles(ctx context.Context, query string, limit int) ([]model.Profile, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	q := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(query), "@"))
	s.mu.RLock()
	var out []model.Profile
	for _, p := range s.profiles {
		if strings.Contains(strings.ToLower(p.Handle), q) || strings.Contains(strings.ToLower(p.Nickname), q) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sortProfiles(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortProfiles(ps []model.Profile) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].RankScore != ps[j].RankScore {
			return ps[i].RankScore > ps[j].RankScore
		}
		return ps[i].ID < ps[j].ID
	})
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.yaps), nil
}
