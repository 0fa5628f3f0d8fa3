package tiktok

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const signScript = `(url) => {
	if (typeof window.byted_acrawler === 'undefined') {
		throw new Error('signing function not available');
	}
	const params = window.byted_acrawler.frontierSign(url);
	if (typeof params === 'string') {
		return params;
	}
	const u = new URL(url);
	for (const [k, v] of Object.entries(params)) {
		u.searchParams.set(k, v);
	}
	return u.toString();
}`

// BrowserSigner signs API URLs with the page's own JS, in a headless
// stealth browser. Its Sign method fits WithSignFunc.
type BrowserSigner struct {
	homeURL string
	browser *rod.Browser
	page    *rod.Page
	mu      sync.Mutex
	ready   atomic.Bool
}

// NewBrowserSigner launches the browser, optionally through proxyAddr, and
// loads homeURL.
func NewBrowserSigner(homeURL, proxyAddr string) (*BrowserSigner, error) {
	if homeURL == "" {
		homeURL = defaultBaseURL
	}
	l := launcher.New().Headless(true)
	if proxyAddr != "" {
		l = l.Proxy(proxyAddr)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := stealth.Page(browser)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("create stealth page: %w", err)
	}

	s := &BrowserSigner{homeURL: homeURL, browser: browser, page: page}
	s.blockResources()
	if err := s.reload(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// blockResources skips media and styles; the page is only needed for JS.
func (s *BrowserSigner) blockResources() {
	router := s.browser.HijackRequests()
	for _, pattern := range []string{"*.css", "*.png", "*.jpg", "*.jpeg", "*.mp4", "*.woff*", "*.svg"} {
		router.MustAdd(pattern, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
}

func (s *BrowserSigner) reload() error {
	if err := s.page.Navigate(s.homeURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := s.page.WaitStable(2 * time.Second); err != nil {
		return fmt.Errorf("wait for page stable: %w", err)
	}
	s.ready.Store(true)
	return nil
}

// Sign returns rawURL with signature parameters appended.
func (s *BrowserSigner) Sign(rawURL string) (string, error) {
	if s == nil {
		return "", ErrBrowserNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return "", ErrBrowserNotReady
	}
	if !s.ready.Load() {
		if err := s.reload(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
		}
	}
	res, err := s.page.Timeout(5*time.Second).Eval(signScript, rawURL)
	if err != nil {
		s.ready.Store(false)
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return res.Value.String(), nil
}

// Close shuts the browser down.
func (s *BrowserSigner) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			return fmt.Errorf("close browser: %w", err)
		}
		s.browser = nil
	}
	return nil
}
