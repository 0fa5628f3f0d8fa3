// Package scoring computes a video's yap score from its commenters' trust.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/registry"
	"github.com/okian/yap/internal/domain/videourl"
	"github.com/okian/yap/pkg/logger"
	"github.com/okian/yap/pkg/metrics"
)

// Fetcher retrieves a video's comments from the platform.
type Fetcher interface {
	// ResolveVideoID follows a short link to learn the numeric video id.
	ResolveVideoID(ctx context.Context, normalizedURL string) (string, error)
	// FetchComments returns the author and comments of a video.
	FetchComments(ctx context.Context, videoID string) (model.VideoComments, error)
}

// SnapshotProvider hands out the current trust snapshot.
type SnapshotProvider interface {
	Current() *registry.Snapshot
}

// Calculator computes Scores. It is safe for concurrent use.
type Calculator struct {
	fetcher      Fetcher
	snapshots    SnapshotProvider
	policy       Policy
	fetchTimeout time.Duration
	now          func() time.Time
	log          logger.Logger
}

// NewCalculator creates a calculator over a fetcher and a snapshot provider.
func NewCalculator(f Fetcher, snaps SnapshotProvider, opts ...Option) *Calculator {
	c := &Calculator{
		fetcher:      f,
		snapshots:    snaps,
		policy:       DefaultPolicy,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		log:          logger.Named("scoring"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the active formula.
func (c *Calculator) Policy() Policy { return c.policy }

// Calculate scores the video at rawURL. The URL is validated before any
// fetch. Returned errors always carry an apperr kind.
func (c *Calculator) Calculate(ctx context.Context, rawURL string) (score model.Score, err error) {
	const op = "scoring.calculate"
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Wrap(op, apperr.ErrComputation, fmt.Errorf("%w: %v", ErrPanic, r))
			score = model.Score{}
		}
		if err != nil {
			metrics.RecordScoringError(apperr.Code(err))
			return
		}
		metrics.RecordScoringLatency(float64(time.Since(start).Milliseconds()))
		if score.QualifiesAsYap {
			metrics.RecordYapQualified()
		}
	}()

	u, err := videourl.Parse(rawURL)
	if err != nil {
		return model.Score{}, err
	}
	if c.fetcher == nil {
		return model.Score{}, apperr.Wrap(op, apperr.ErrComputation, ErrNoFetcher)
	}

	// Pin one snapshot for the whole computation.
	snap := registry.Empty()
	if c.snapshots != nil {
		snap = c.snapshots.Current()
	}

	videoID := u.VideoID
	if videoID == "" {
		videoID, err = c.resolve(ctx, u.Normalized)
		if err != nil {
			return model.Score{}, err
		}
	}

	vc, err := c.fetch(ctx, videoID)
	if err != nil {
		return model.Score{}, err
	}

	score = c.score(snap, vc)
	score.VideoURL = u.Normalized
	if score.VideoID == "" {
		score.VideoID = videoID
	}
	c.log.Debug(ctx, "video scored",
		logger.String("video_url", score.VideoURL),
		logger.Int("known", score.KnownCommentersCount),
		logger.Int("total", score.TotalComments),
		logger.Float64("yap_score", score.YapScore),
	)
	return score, nil
}

func (c *Calculator) resolve(ctx context.Context, normalized string) (string, error) {
	const op = "scoring.resolve_video_id"
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	id, err := c.fetcher.ResolveVideoID(fctx, normalized)
	if err != nil {
		return "", classify(op, err)
	}
	if !isDigits(id) {
		return "", apperr.Wrap(op, apperr.ErrValidation, fmt.Errorf("%w: got %q", ErrNoVideoID, id))
	}
	return id, nil
}

func (c *Calculator) fetch(ctx context.Context, videoID string) (model.VideoComments, error) {
	const op = "scoring.fetch_comments"
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	vc, err := c.fetcher.FetchComments(fctx, videoID)
	metrics.RecordFetchLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		err = classify(op, err)
		metrics.RecordFetchError(apperr.Code(err))
		return model.VideoComments{}, err
	}
	return vc, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// classify attaches a kind to a fetcher error that lacks one.
func classify(op string, err error) error {
	if apperr.KindOf(err) != nil {
		return apperr.Wrap(op, nil, err)
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(op, apperr.ErrTransient, fmt.Errorf("%w: %w", ErrFetcherTimeout, err))
	case errors.Is(err, context.Canceled), errors.As(err, &netErr):
		return apperr.Wrap(op, apperr.ErrTransient, err)
	default:
		return apperr.Wrap(op, apperr.ErrComputation, err)
	}
}

// score is the pure part of Calculate.
func (c *Calculator) score(snap *registry.Snapshot, vc model.VideoComments) model.Score {
	best := make(map[string]model.Interactor)
	for _, cm := range vc.Comments {
		p, ok := lookupCommenter(snap, cm)
		if !ok {
			continue
		}
		weight := p.RankScore * c.policy.Damping(cm.LikeCount)
		prev, seen := best[p.ID]
		if seen && (cm.LikeCount < prev.CommentLikes ||
			(cm.LikeCount == prev.CommentLikes && weight <= prev.InteractionWeight)) {
			continue
		}
		handle := p.Handle
		if handle == "" {
			handle = cm.CommenterHandle
		}
		nickname := p.Nickname
		if nickname == "" {
			nickname = cm.CommenterNickname
		}
		best[p.ID] = model.Interactor{
			ProfileID:         p.ID,
			Handle:            handle,
			Nickname:          nickname,
			TrustDepth:        *p.TrustDepth,
			RankScore:         p.RankScore,
			CommentText:       cm.Text,
			CommentLikes:      cm.LikeCount,
			InteractionWeight: weight,
		}
	}

	interactors := make([]model.Interactor, 0, len(best))
	weighted, top := 0.0, 0.0
	for _, in := range best {
		interactors = append(interactors, in)
		weighted += in.InteractionWeight
		if in.RankScore > top {
			top = in.RankScore
		}
	}
	SortInteractors(interactors)

	total := vc.TotalCommentCount
	if len(vc.Comments) > total {
		total = len(vc.Comments)
	}
	known := len(interactors)

	yap := c.policy.Normalize(weighted, known, total)
	if yap < 0 {
		yap = 0
	}
	return model.Score{
		VideoID:                 vc.VideoID,
		AuthorProfileID:         vc.AuthorProfileID,
		AuthorHandle:            vc.AuthorHandle,
		TotalComments:           total,
		KnownCommentersCount:    known,
		TopCommenterRank:        top,
		WeightedEngagementScore: weighted,
		YapScore:                yap,
		QualifiesAsYap:          c.policy.Qualifies(known, weighted),
		KnownInteractors:        interactors,
		SnapshotVersion:         snap.Version(),
		ComputedAt:              c.now().UTC(),
	}
}

// lookupCommenter resolves a commenter by profile id, then by handle, and
// returns it only when it is reachable from a seed.
func lookupCommenter(snap *registry.Snapshot, cm model.Comment) (model.Profile, bool) {
	if cm.CommenterProfileID != "" {
		if p, ok := snap.Lookup(cm.CommenterProfileID); ok {
			return p, p.Reachable()
		}
	}
	if cm.CommenterHandle != "" {
		if p, ok := snap.LookupHandle(cm.CommenterHandle); ok {
			return p, p.Reachable()
		}
	}
	return model.Profile{}, false
}

// SortInteractors orders by rank desc, likes desc, profile id asc.
func SortInteractors(in []model.Interactor) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].RankScore != in[j].RankScore {
			return in[i].RankScore > in[j].RankScore
		}
		if in[i].CommentLikes != in[j].CommentLikes {
			return in[i].CommentLikes > in[j].CommentLikes
		}
		return in[i].ProfileID < in[j].ProfileID
	})
}
