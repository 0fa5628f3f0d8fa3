package smoke

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/yap/pkg/logger"
)

const maxResponseBytes = 4 << 20

// client wraps http.Client with JSON helpers.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// getJSON decodes a 200 response into out. out may be nil.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out, http.StatusOK)
}

func (c *client) postJSON(ctx context.Context, path string, body, out any, want ...int) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, want...)
}

func (c *client) do(req *http.Request, out any, want ...int) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body := io.LimitReader(resp.Body, maxResponseBytes)

	ok := false
	for _, code := range want {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		msg, _ := io.ReadAll(body)
		return fmt.Errorf("%w: %s %s: %d %s", ErrStatus, req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, body)
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// ReadURLs reads one video URL per line, skipping blanks and # comments.
func ReadURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	return urls, nil
}

func chunk(urls []string, size int) [][]string {
	var out [][]string
	for len(urls) > size {
		out = append(out, urls[:size])
		urls = urls[size:]
	}
	if len(urls) > 0 {
		out = append(out, urls)
	}
	return out
}

// submitURLs posts the URLs to /yaps/auto-process in chunks, concurrently.
// A chunk refused outright counts all its URLs as rejected.
func submitURLs(ctx context.Context, c *client, cfg *Config, stats *Stats) error {
	chunks := chunk(cfg.URLs, maxURLsPerRequest)
	logger.Get().Info(ctx, "submitting video URLs",
		logger.Int("urls", len(cfg.URLs)),
		logger.Int("requests", len(chunks)),
		logger.Int("workers", cfg.Workers))

	var queued, duplicate, invalid, rejected atomic.Int64

	chunkChan := make(chan []string, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for urls := range chunkChan {
				var resp autoProcessResponse
				body := map[string]any{"video_urls": urls}
				if cfg.ProfileID != "" {
					body["profile_id"] = cfg.ProfileID
				}
				if err := c.postJSON(ctx, "/yaps/auto-process", body, &resp, http.StatusAccepted); err != nil {
					rejected.Add(int64(len(urls)))
					logger.Get().Warn(ctx, "auto-process request failed", logger.Error(err))
					continue
				}
				for _, it := range resp.Items {
					switch it.Status {
					case statusQueued:
						queued.Add(1)
					case statusDuplicate:
						duplicate.Add(1)
					case statusInvalid:
						invalid.Add(1)
					case statusRejected:
						rejected.Add(1)
					}
				}
			}
		}()
	}

	go func() {
		defer close(chunkChan)
		for _, urls := range chunks {
			select {
			case <-ctx.Done():
				return
			case chunkChan <- urls:
			}
		}
	}()
	wg.Wait()

	stats.URLsSubmitted = len(cfg.URLs)
	stats.Queued = int(queued.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Invalid = int(invalid.Load())
	stats.Rejected = int(rejected.Load())

	logger.Get().Info(ctx, "submission completed",
		logger.Int("queued", stats.Queued),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("invalid", stats.Invalid),
		logger.Int("rejected", stats.Rejected))
	return ctx.Err()
}

// storedYaps reads total_yaps from /stats.
func storedYaps(ctx context.Context, c *client) (int, error) {
	var st struct {
		TotalYaps int `json:"total_yaps"`
	}
	if err := c.getJSON(ctx, "/stats", &st); err != nil {
		return 0, err
	}
	return st.TotalYaps, nil
}

// waitForQueue polls /stats until the queue is idle and at least target
// yaps are stored. Failed jobs never store a yap, so an idle queue at the
// deadline ends the wait without error.
func waitForQueue(ctx context.Context, c *client, cfg *Config, target int) error {
	deadline := time.Now().Add(cfg.Wait)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		var st struct {
			TotalYaps     int `json:"total_yaps"`
			QueueLength   int `json:"queue_length"`
			ActiveWorkers int `json:"active_workers"`
		}
		if err := c.getJSON(ctx, "/stats", &st); err != nil {
			return err
		}
		idle := st.QueueLength == 0 && st.ActiveWorkers == 0
		if idle && st.TotalYaps >= target {
			return nil
		}
		if time.Now().After(deadline) {
			if idle {
				logger.Get().Warn(ctx, "queue drained with fewer yaps than queued",
					logger.Int("stored", st.TotalYaps),
					logger.Int("expected", target))
				return nil
			}
			return fmt.Errorf("%w: %d queued, %d in flight", ErrWaitTimeout, st.QueueLength, st.ActiveWorkers)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
