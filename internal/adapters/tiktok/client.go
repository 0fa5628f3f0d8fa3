// Package tiktok fetches video comments over the platform's web JSON API.
//
// Plain HTTP is used for every request. A headless browser is only needed
// when the API demands signed URLs; see BrowserSigner.
package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/yap/internal/domain/apperr"
	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/videourl"
	"github.com/okian/yap/pkg/logger"
)

const maxBodyBytes = 8 << 20

// Client implements scoring.Fetcher.
type Client struct {
	http      *http.Client
	baseURL   string
	linkBase  string
	userAgent string
	proxy     string
	delay     time.Duration
	maxPages  int
	sign      func(rawURL string) (string, error)
	log       logger.Logger

	mu      sync.Mutex
	lastReq time.Time
}

// New creates a client. It fails only on a bad proxy address.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		delay:     defaultDelay,
		maxPages:  defaultMaxPages,
		log:       logger.Named("tiktok"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	if c.http == nil {
		tr, err := transportFor(c.proxy)
		if err != nil {
			return nil, err
		}
		jar, _ := cookiejar.New(nil)
		c.http = &http.Client{Jar: jar, Timeout: defaultTimeout, Transport: tr}
	}
	return c, nil
}

// ResolveVideoID follows a short link's redirects and reads the video id
// from the final URL.
func (c *Client) ResolveVideoID(ctx context.Context, normalizedURL string) (string, error) {
	const op = "tiktok.resolve_video_id"
	if err := c.throttle(ctx); err != nil {
		return "", wrap(op, err)
	}
	resp, err := c.do(ctx, c.linkURL(normalizedURL), "text/html,*/*")
	if err != nil {
		return "", wrap(op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	final := resp.Request.URL.String()
	if id, ok := videourl.ExtractVideoID(final); ok {
		return id, nil
	}
	return "", apperr.Wrap(op, apperr.ErrNotFound, fmt.Errorf("%w: %s", ErrNoVideoID, final))
}

func (c *Client) linkURL(normalized string) string {
	if c.linkBase == "" {
		return "https://" + normalized
	}
	path := "/"
	if i := strings.Index(normalized, "/"); i >= 0 {
		path = normalized[i:]
	}
	return strings.TrimRight(c.linkBase, "/") + path
}

// FetchComments reads the video's author and up to maxPages pages of
// comments.
func (c *Client) FetchComments(ctx context.Context, videoID string) (model.VideoComments, error) {
	const op = "tiktok.fetch_comments"

	item, err := c.itemDetail(ctx, videoID)
	if err != nil {
		return model.VideoComments{}, wrap(op, err)
	}
	vc := model.VideoComments{
		VideoID:           videoID,
		AuthorProfileID:   item.Author.ID,
		AuthorHandle:      item.Author.UniqueID,
		AuthorNickname:    item.Author.Nickname,
		TotalCommentCount: item.Stats.CommentCount,
	}

	cursor := 0
	for page := 0; page < c.maxPages; page++ {
		q := url.Values{}
		q.Set("aweme_id", videoID)
		q.Set("count", strconv.Itoa(defaultPageSize))
		q.Set("cursor", strconv.Itoa(cursor))
		var cl commentListResponse
		if err := c.getJSON(ctx, c.baseURL+"/api/comment/list/?"+q.Encode(), &cl); err != nil {
			return model.VideoComments{}, wrap(op, err)
		}
		if cl.StatusCode != statusOK {
			return model.VideoComments{}, wrap(op, fmt.Errorf("%w: comment list status %d %s", ErrUpstream, cl.StatusCode, cl.StatusMsg))
		}
		for _, rc := range cl.Comments {
			vc.Comments = append(vc.Comments, model.Comment{
				CommenterProfileID: rc.User.UID,
				CommenterHandle:    rc.User.UniqueID,
				CommenterNickname:  rc.User.Nickname,
				Text:               rc.Text,
				LikeCount:          rc.DiggCount,
			})
		}
		if cl.Total > vc.TotalCommentCount {
			vc.TotalCommentCount = cl.Total
		}
		if cl.HasMore == 0 || len(cl.Comments) == 0 {
			break
		}
		cursor = cl.Cursor
	}

	c.log.Debug(ctx, "comments fetched",
		logger.String("video_id", videoID),
		logger.Int("comments", len(vc.Comments)),
		logger.Int("total", vc.TotalCommentCount),
	)
	return vc, nil
}

func (c *Client) itemDetail(ctx context.Context, videoID string) (rawItem, error) {
	q := url.Values{}
	q.Set("itemId", videoID)
	var resp itemDetailResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/item/detail/?"+q.Encode(), &resp); err != nil {
		return rawItem{}, err
	}
	switch resp.StatusCode {
	case statusOK:
	case statusNotFound, statusRemoved:
		return rawItem{}, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	case statusPrivate:
		return rawItem{}, fmt.Errorf("%w: video %s", ErrPrivate, videoID)
	default:
		return rawItem{}, fmt.Errorf("%w: item status %d %s", ErrUpstream, resp.StatusCode, resp.StatusMsg)
	}
	if resp.ItemInfo.ItemStruct.ID == "" {
		return rawItem{}, fmt.Errorf("%w: empty item", ErrInvalidResponse)
	}
	return resp.ItemInfo.ItemStruct, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	if c.sign != nil {
		signed, err := c.sign(rawURL)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSigningFailed, err)
		}
		rawURL = signed
	}
	resp, err := c.do(ctx, rawURL, "application/json, text/plain, */*")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}

// do executes a GET with browser-like headers and maps status codes to
// sentinel errors.
func (c *Client) do(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.tiktok.com/")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}
}

// throttle enforces the minimum delay plus jitter between requests.
func (c *Client) throttle(ctx context.Context) error {
	if c.delay == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitter := time.Duration(rand.Int64N(int64(c.delay/2) + 1))
	wait := c.delay + jitter - time.Since(c.lastReq)
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastReq = time.Now()
	return nil
}

// wrap attaches an apperr kind.
func wrap(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrRateLimited):
		return apperr.Wrap(op, apperr.ErrTransient, fmt.Errorf("%w: %w", apperr.ErrRateLimited, err))
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPrivate):
		return apperr.Wrap(op, apperr.ErrNotFound, err)
	case errors.Is(err, ErrUpstream),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return apperr.Wrap(op, apperr.ErrTransient, err)
	default:
		return apperr.Wrap(op, apperr.ErrComputation, err)
	}
}
