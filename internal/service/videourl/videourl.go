// Package videourl turns untrusted input into a validated YouTube video identity.
//
// RequireCanonical is the only entry point other packages should use before
// handing a URL to the external tool: it never passes an unvalidated string through.
package videourl

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

// ErrInvalidID is returned when a string does not have the shape of a video id.
var ErrInvalidID = errors.New("invalid video id")

// canonicalPrefix is the fixed template every identity is rendered into.
const canonicalPrefix = "https://www.youtube.com/watch?v="

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Hosts accepted by IsRecognizedHost. Subdomains of an entry are accepted too.
var allowedHosts = []string{
	"youtube.com",
	"www.youtube.com",
	"m.youtube.com",
	"music.youtube.com",
	"gaming.youtube.com",
	"youtu.be",
	"youtube-nocookie.com",
	"www.youtube-nocookie.com",
}

const (
	scheme   = `^(?i:https?://)?`
	ytHost   = `(?i:(?:(?:www|m|music|gaming)\.)?youtube(?:-nocookie)?\.com)`
	queryV   = `\?(?:[^#]*&)?v=`
	idGroup  = `([A-Za-z0-9_-]{11})`
	idEnding = `(?:[^A-Za-z0-9_-]|$)`
)

// matcher recognises one URL shape. Each pattern is anchored on its host and
// path kind, so no two matchers can fire for the same input.
type matcher struct {
	kind    string
	pattern *regexp.Regexp
}

var matchers = []matcher{
	{"watch", regexp.MustCompile(scheme + ytHost + `/(?i:watch)` + queryV + idGroup + idEnding)},
	{"short", regexp.MustCompile(scheme + `(?i:(?:www\.)?youtu\.be)/` + idGroup + idEnding)},
	{"shorts", regexp.MustCompile(scheme + ytHost + `/(?i:shorts)/` + idGroup + idEnding)},
	{"embed", regexp.MustCompile(scheme + ytHost + `/(?i:embed)/` + idGroup + idEnding)},
	{"live", regexp.MustCompile(scheme + ytHost + `/(?i:live)/` + idGroup + idEnding)},
	{"channel", regexp.MustCompile(scheme + ytHost + `/c/[^/?#]+/(?i:watch)` + queryV + idGroup + idEnding)},
	{"user", regexp.MustCompile(scheme + ytHost + `/user/[^/?#]+/(?i:watch)` + queryV + idGroup + idEnding)},
}

// VideoRef identifies one source video. The zero value is not a valid reference;
// valid values only come from NewVideoRef or RequireCanonical.
type VideoRef struct {
	id string
}

// NewVideoRef validates id and wraps it.
func NewVideoRef(id string) (VideoRef, error) {
	if !IsValidID(id) {
		return VideoRef{}, ErrInvalidID
	}
	return VideoRef{id: id}, nil
}

// ID returns the 11-character video id.
func (r VideoRef) ID() string { return r.id }

// CanonicalURL derives the canonical watch URL from the id.
func (r VideoRef) CanonicalURL() string { return canonicalPrefix + r.id }

// IsZero reports whether r holds no identity.
func (r VideoRef) IsZero() bool { return r.id == "" }

// IsValidID reports whether s has the shape of a video id.
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}

// clean trims whitespace and repairs HTML-escaped ampersands.
func clean(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), "&amp;", "&")
}

func withScheme(s string) string {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return "https://" + s
}

// ParseVideoID extracts the video id from any supported URL shape.
// It returns "" when no matcher fires.
func ParseVideoID(raw string) string {
	s := clean(raw)
	if s == "" {
		return ""
	}
	for _, m := range matchers {
		match := m.pattern.FindStringSubmatch(s)
		if len(match) < 2 {
			continue
		}
		// The capture group already enforces the shape; the explicit check keeps
		// the guarantee independent of the patterns.
		if IsValidID(match[1]) {
			return match[1]
		}
	}
	return ""
}

// IsRecognizedHost reports whether raw points at an allowed host and carries a video id.
// Input whose host cannot be parsed is tested against the shape matchers directly.
func IsRecognizedHost(raw string) bool {
	s := clean(raw)
	if s == "" {
		return false
	}

	u, err := url.Parse(withScheme(s))
	if err != nil || u.Hostname() == "" {
		for _, m := range matchers {
			if m.pattern.MatchString(s) {
				return true
			}
		}
		return false
	}

	if !isAllowedHost(strings.ToLower(u.Hostname())) {
		return false
	}
	return ParseVideoID(s) != ""
}

func isAllowedHost(host string) bool {
	for _, h := range allowedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// ToCanonicalURL renders the canonical watch URL for id.
func ToCanonicalURL(id string) (string, error) {
	ref, err := NewVideoRef(id)
	if err != nil {
		return "", err
	}
	return ref.CanonicalURL(), nil
}

// RequireCanonical is the strict entry point: it normalises raw input and
// returns a valid reference plus the cleaned URL, or a URL parse error.
func RequireCanonical(raw string) (VideoRef, string, error) {
	s := clean(raw)
	if s == "" {
		return VideoRef{}, "", parseError("URL is required")
	}
	s = withScheme(s)

	if !IsRecognizedHost(s) {
		return VideoRef{}, "", parseError("unsupported or malformed YouTube URL")
	}

	ref, err := NewVideoRef(ParseVideoID(s))
	if err != nil {
		return VideoRef{}, "", parseError("unable to extract video ID")
	}
	return ref, s, nil
}

func parseError(reason string) *domain.Error {
	return domain.NewError(
		domain.KindURLParse,
		domain.ReasonNone,
		"Invalid YouTube link ("+reason+"). Supported forms: youtube.com/watch?v=..., youtu.be/..., youtube.com/shorts/..., youtube.com/embed/..., youtube.com/live/...",
		errors.New(reason),
	)
}
