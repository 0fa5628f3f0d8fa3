// Package videourl validates and canonicalizes short-video URLs.
//
// Everything here is pure: no network access happens, so a bad URL is
// rejected before any fetch is attempted.
package videourl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/okian/yap/internal/domain/apperr"
)

// Shape identifies which accepted URL form matched.
type Shape int

const (
	// ShapeDesktop is tiktok.com/@handle/video/<id>.
	ShapeDesktop Shape = iota + 1
	// ShapeShortRedirect is vm.tiktok.com/<code> or vt.tiktok.com/<code>.
	ShapeShortRedirect
	// ShapeShortPath is tiktok.com/t/<code> or tiktok.com/v/<id>.html.
	ShapeShortPath
)

func (s Shape) String() string {
	switch s {
	case ShapeDesktop:
		return "desktop"
	case ShapeShortRedirect:
		return "short_redirect"
	case ShapeShortPath:
		return "short_path"
	default:
		return "unknown"
	}
}

const (
	scheme = `(?:(?i:https?)://)?`
	tail   = `/?(?:[?#].*)?$`
)

// pattern pairs a shape with its matcher. Order is priority: first match wins.
type pattern struct {
	shape Shape
	re    *regexp.Regexp
}

var patterns = []pattern{
	{ShapeDesktop, regexp.MustCompile(`^` + scheme + `(?i:www\.|m\.)?(?i:tiktok\.com)/@[A-Za-z0-9._-]{1,64}/video/\d{1,32}` + tail)},
	{ShapeShortRedirect, regexp.MustCompile(`^` + scheme + `(?i:vm|vt)\.(?i:tiktok\.com)/[A-Za-z0-9]{4,32}` + tail)},
	{ShapeShortPath, regexp.MustCompile(`^` + scheme + `(?i:www\.|m\.)?(?i:tiktok\.com)/(?:t/[A-Za-z0-9]{4,32}|v/\d{1,32}(?:\.html)?)` + tail)},
}

// Video id extractors, tried in order.
var idExtractors = []*regexp.Regexp{
	regexp.MustCompile(`/video/(\d{1,32})(?:[/?#]|$)`),
	regexp.MustCompile(`/v/(\d{1,32})(?:\.html)?(?:[/?#]|$)`),
	regexp.MustCompile(`video/(\d{1,32})`),
}

var handleRe = regexp.MustCompile(`/@([A-Za-z0-9._-]{1,64})/`)

// URL is a validated, canonical video URL.
type URL struct {
	Raw        string
	Normalized string
	Shape      Shape
	VideoID    string
	Handle     string
}

// NeedsResolution reports whether the video id can only be learned by
// following the short link's redirect.
func (u URL) NeedsResolution() bool { return u.VideoID == "" }

// Match returns the first accepted shape for raw.
func Match(raw string) (Shape, bool) {
	s := strings.TrimSpace(raw)
	for _, p := range patterns {
		if p.re.MatchString(s) {
			return p.shape, true
		}
	}
	return 0, false
}

// Validate reports a ValidationError when raw matches no accepted shape.
func Validate(raw string) error {
	_, err := Parse(raw)
	return err
}

// Parse validates raw and returns its canonical form.
func Parse(raw string) (URL, error) {
	const op = "videourl.parse"
	s := strings.TrimSpace(raw)
	if s == "" {
		return URL{}, apperr.Wrap(op, apperr.ErrValidation, ErrEmptyURL)
	}
	shape, ok := Match(s)
	if !ok {
		return URL{}, apperr.Wrap(op, apperr.ErrValidation, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw))
	}

	canonical, err := canonicalize(s)
	if err != nil {
		return URL{}, apperr.Wrap(op, apperr.ErrValidation, err)
	}

	u := URL{Raw: raw, Normalized: canonical, Shape: shape}
	if id, ok := ExtractVideoID(canonical); ok {
		u.VideoID = id
	}
	if m := handleRe.FindStringSubmatch(canonical); m != nil {
		u.Handle = m[1]
	}
	return u, nil
}

// Normalize returns the canonical cache key for raw.
// Normalize(Normalize(u)) == Normalize(u) for every accepted u.
func Normalize(raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return u.Normalized, nil
}

// ExtractVideoID finds the numeric video id in s. It tries /video/<id>,
// then /v/<id>, then a bare video/<id> anywhere.
func ExtractVideoID(s string) (string, bool) {
	for _, re := range idExtractors {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// canonicalize drops scheme, www., query, fragment and trailing slash and
// lowercases the host and the @handle segment. Short link codes keep their
// case.
func canonicalize(s string) (string, error) {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	path := strings.TrimRight(parsed.EscapedPath(), "/")
	if strings.HasPrefix(path, "/@") {
		end := len(path)
		if i := strings.IndexByte(path[1:], '/'); i >= 0 {
			end = i + 1
		}
		path = strings.ToLower(path[:end]) + path[end:]
	}
	return host + path, nil
}
