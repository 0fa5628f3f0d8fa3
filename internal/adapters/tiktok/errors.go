package tiktok

import "errors"

// Sentinel errors. They are wrapped with an apperr kind before leaving the
// package.
var (
	ErrRateLimited      = errors.New("tiktok: rate limited")
	ErrNotFound         = errors.New("tiktok: not found")
	ErrPrivate          = errors.New("tiktok: video is private")
	ErrUpstream         = errors.New("tiktok: upstream error")
	ErrInvalidResponse  = errors.New("tiktok: invalid response")
	ErrNoVideoID        = errors.New("tiktok: redirect did not reveal a video id")
	ErrSigningFailed    = errors.New("tiktok: url signing failed")
	ErrBrowserNotReady  = errors.New("tiktok: browser not initialized")
	ErrUnsupportedProxy = errors.New("tiktok: unsupported proxy scheme")
)
