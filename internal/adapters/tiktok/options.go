package tiktok

import (
	"net/http"
	"time"

	"github.com/okian/yap/pkg/logger"
)

const (
	defaultBaseURL   = "https://www.tiktok.com"
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	defaultDelay     = time.Second
	defaultMaxPages  = 10
	defaultPageSize  = 50
	defaultTimeout   = 15 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the API calls somewhere else, for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithLinkBase rewrites short-link hosts to base, keeping the path. Used by
// tests to resolve short links against a local server.
func WithLinkBase(base string) Option {
	return func(c *Client) { c.linkBase = base }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithDelay sets the minimum delay between API requests. Zero disables
// throttling.
func WithDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithMaxPages bounds how many comment pages are read per video.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithProxy routes requests through an http, https or socks5 proxy.
func WithProxy(addr string) Option {
	return func(c *Client) { c.proxy = addr }
}

// WithHTTPClient replaces the http.Client. The proxy option is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSignFunc installs a URL signer applied to every API request.
func WithSignFunc(fn func(rawURL string) (string, error)) Option {
	return func(c *Client) { c.sign = fn }
}

// WithLogger overrides the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}
