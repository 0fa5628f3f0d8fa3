package videourl

import "errors"

// Sentinel kinds for URL validation errors.
var (
	ErrEmptyURL       = errors.New("video url is empty")
	ErrUnsupportedURL = errors.New("unsupported video url")
)
