package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/yap/internal/adapters/mq/queue"
	"github.com/okian/yap/internal/adapters/repository"
	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/batch"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/types"
	"github.com/okian/yap/internal/domain/videourl"
	"github.com/okian/yap/pkg/logger"
	"github.com/okian/yap/pkg/metrics"
)

// Calculate scores a video through the cache. Nothing is persisted.
func (s *Service) Calculate(ctx context.Context, rawURL string) (model.Score, error) {
	key, err := videourl.Normalize(rawURL)
	if err != nil {
		return model.Score{}, err
	}
	return s.score(ctx, key)
}

func (s *Service) score(ctx context.Context, key string) (model.Score, error) {
	return s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (model.Score, error) {
		return s.calc.Calculate(ctx, key)
	})
}

// Process scores a video and stores it as a yap. profileID overrides the
// owning profile; by default the video's author owns it.
func (s *Service) Process(ctx context.Context, rawURL, profileID string) (types.ProcessResult, error) {
	key, err := videourl.Normalize(rawURL)
	if err != nil {
		return types.ProcessResult{}, err
	}
	sc, err := s.score(ctx, key)
	if err != nil {
		return types.ProcessResult{}, err
	}
	return s.persist(ctx, sc, profileID)
}

func (s *Service) persist(ctx context.Context, sc model.Score, profileID string) (types.ProcessResult, error) {
	const op = "service.persist"
	y := yapFromScore(sc, profileID)
	saved, created, err := s.store.SaveYap(ctx, y)
	if err != nil {
		return types.ProcessResult{}, storeErr(op, err)
	}
	metrics.RecordYapPersisted()
	if err := s.store.UpsertProfiles(ctx, s.profilesFor(sc, saved.ProfileID)); err != nil {
		s.logger.Warn(ctx, "persist yap profiles failed", logger.String("yap_id", saved.ID), logger.Error(err))
	}
	s.logger.Debug(ctx, "yap persisted",
		logger.String("yap_id", saved.ID),
		logger.String("video_url", saved.VideoURL),
		logger.Bool("created", created),
	)
	return types.ProcessResult{Yap: saved, Score: sc, Created: created}, nil
}

// yapFromScore maps a computed score onto its stored shape.
func yapFromScore(sc model.Score, profileID string) model.Yap {
	if profileID == "" {
		profileID = sc.AuthorProfileID
	}
	y := model.Yap{
		VideoURL:                sc.VideoURL,
		AwemeID:                 sc.VideoID,
		ProfileID:               profileID,
		YapScore:                sc.YapScore,
		TotalComments:           sc.TotalComments,
		KnownCommentersCount:    sc.KnownCommentersCount,
		TopCommenterRank:        sc.TopCommenterRank,
		WeightedEngagementScore: sc.WeightedEngagementScore,
		QualifiesAsYap:          sc.QualifiesAsYap,
		ScrapedAt:               sc.ComputedAt,
		Interactions:            make([]model.YapInteraction, 0, len(sc.KnownInteractors)),
	}
	for _, in := range sc.KnownInteractors {
		yi := model.YapInteraction{
			InteractorProfileID: in.ProfileID,
			InteractorHandle:    in.Handle,
			CommentLikes:        in.CommentLikes,
			RankScore:           in.RankScore,
			InteractionWeight:   in.InteractionWeight,
		}
		if in.CommentText != "" {
			text := in.CommentText
			yi.CommentText = &text
		}
		y.Interactions = append(y.Interactions, yi)
	}
	return y
}

// profilesFor collects the owner and every known interactor, enriched from
// the current snapshot.
func (s *Service) profilesFor(sc model.Score, owner string) []model.Profile {
	snap := s.registry.Current()
	out := make([]model.Profile, 0, len(sc.KnownInteractors)+1)
	if owner != "" {
		p, ok := snap.Lookup(owner)
		if !ok {
			p = model.Profile{ID: owner}
		}
		if p.Handle == "" && owner == sc.AuthorProfileID {
			p.Handle = sc.AuthorHandle
		}
		out = append(out, p)
	}
	for _, in := range sc.KnownInteractors {
		if p, ok := snap.Lookup(in.ProfileID); ok {
			out = append(out, p)
		}
	}
	return out
}

// ProcessJob implements worker.Processor for auto-process jobs.
func (s *Service) ProcessJob(ctx context.Context, j queue.Job) error {
	res, err := s.Process(ctx, j.VideoURL, j.ProfileID)
	if err != nil {
		s.logger.Warn(ctx, "auto-process job failed",
			logger.String("job_id", j.ID),
			logger.String("video_url", j.VideoURL),
			logger.String("code", apperr.Code(err)),
			logger.Error(err),
		)
		return err
	}
	s.logger.Info(ctx, "auto-process job done",
		logger.String("job_id", j.ID),
		logger.String("yap_id", res.Yap.ID),
		logger.Float64("yap_score", res.Yap.YapScore),
		logger.Duration("waited", time.Since(j.EnqueuedAt)),
	)
	return nil
}

// AutoProcess queues videos for background processing and reports each
// URL's fate. It fails as a whole only when nothing could be queued
// because the queue is full or closed.
func (s *Service) AutoProcess(ctx context.Context, rawURLs []string, profileID string) ([]types.QueuedItem, error) {
	const op = "service.auto_process"
	if len(rawURLs) == 0 {
		return nil, apperr.Wrap(op, apperr.ErrValidation, ErrNoURLs)
	}
	if len(rawURLs) > batch.MaxURLs {
		return nil, apperr.Wrap(op, apperr.ErrValidation, fmt.Errorf("%w: %d > %d", batch.ErrTooManyURLs, len(rawURLs), batch.MaxURLs))
	}

	items := make([]types.QueuedItem, len(rawURLs))
	var backpressure error
	accepted := 0
	for i, raw := range rawURLs {
		items[i].VideoURL = raw
		key, err := videourl.Normalize(raw)
		if err != nil {
			items[i].Status, items[i].Error = types.QueueStatusInvalid, itemError(err)
			continue
		}
		items[i].VideoURL = key
		j, err := s.queue.Enqueue(ctx, queue.Job{VideoURL: key, ProfileID: profileID})
		switch {
		case err == nil:
			items[i].Status, items[i].JobID = types.QueueStatusQueued, j.ID
			accepted++
		case errors.Is(err, queue.ErrDuplicate):
			items[i].Status = types.QueueStatusDuplicate
			accepted++
		default:
			backpressure = err
			items[i].Status = types.QueueStatusRejected
			items[i].Error = itemError(apperr.Wrap(op, apperr.ErrTransient, err))
		}
	}
	if accepted == 0 && backpressure != nil {
		return items, apperr.Wrap(op, apperr.ErrTransient, backpressure)
	}
	return items, nil
}

// Batch scores and persists up to batch.MaxURLs videos with bounded
// concurrency. Results keep input order; item failures stay in their slot.
func (s *Service) Batch(ctx context.Context, rawURLs []string, profileID string, maxConcurrent int) ([]types.BatchItem, error) {
	var mu sync.Mutex
	yapIDs := make(map[string]string, len(rawURLs))

	results, err := s.batch.Run(ctx, rawURLs, maxConcurrent, func(ctx context.Context, key string) (model.Score, error) {
		sc, err := s.score(ctx, key)
		if err != nil {
			return model.Score{}, err
		}
		res, err := s.persist(ctx, sc, profileID)
		if err != nil {
			return model.Score{}, err
		}
		mu.Lock()
		yapIDs[key] = res.Yap.ID
		mu.Unlock()
		return sc, nil
	})
	if err != nil {
		return nil, err
	}

	items := make([]types.BatchItem, len(results))
	for i, r := range results {
		items[i].VideoURL = r.Input
		if !r.OK() {
			items[i].Error = itemError(r.Err)
			continue
		}
		sc := r.Score
		items[i].Score = &sc
		items[i].YapID = yapIDs[r.Key]
	}
	return items, nil
}

// Recalculate drops the cached score of a stored yap, scores it again and
// replaces the stored record in place.
func (s *Service) Recalculate(ctx context.Context, id string) (types.ProcessResult, error) {
	const op = "service.recalculate"
	y, err := s.store.GetYap(ctx, id)
	if err != nil {
		return types.ProcessResult{}, storeErr(op, err)
	}
	s.cache.ClearOne(ctx, y.VideoURL)
	sc, err := s.score(ctx, y.VideoURL)
	if err != nil {
		return types.ProcessResult{}, err
	}
	return s.persist(ctx, sc, y.ProfileID)
}

// Get returns one yap with its interactions.
func (s *Service) Get(ctx context.Context, id string) (model.Yap, error) {
	y, err := s.store.GetYap(ctx, id)
	if err != nil {
		return model.Yap{}, storeErr("service.get", err)
	}
	return y, nil
}

// List pages through stored yaps, newest first.
func (s *Service) List(ctx context.Context, f repository.ListFilter) ([]model.Yap, error) {
	ys, err := s.store.ListYaps(ctx, f)
	if err != nil {
		return nil, storeErr("service.list", err)
	}
	return ys, nil
}

// Delete removes a stored yap. Its cached score stays until cleared.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteYap(ctx, id); err != nil {
		return storeErr("service.delete", err)
	}
	metrics.RecordYapDeleted()
	s.logger.Info(ctx, "yap deleted", logger.String("yap_id", id))
	return nil
}

// Search matches known profiles by handle or nickname.
func (s *Service) Search(ctx context.Context, username string, limit int) ([]model.Profile, error) {
	const op = "service.search"
	q := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if q == "" {
		return nil, apperr.Wrap(op, apperr.ErrValidation, ErrEmptyQuery)
	}
	ps, err := s.store.SearchProfiles(ctx, q, limit)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return ps, nil
}

// storeErr attaches an apperr kind to a repository error.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Wrap(op, apperr.ErrNotFound, err)
	case errors.Is(err, repository.ErrInvalidLimit):
		return apperr.Wrap(op, apperr.ErrValidation, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(op, apperr.ErrTransient, err)
	default:
		return apperr.Wrap(op, apperr.ErrComputation, err)
	}
}

func itemError(err error) *types.ItemError {
	return &types.ItemError{
		Code:      apperr.Code(err),
		Message:   err.Error(),
		Retryable: apperr.Retryable(err),
	}
}
