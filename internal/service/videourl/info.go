package videourl

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// UrlInfo holds facts about a URL beyond its identity. Purely informational.
type UrlInfo struct {
	VideoID          string  `json:"videoId,omitempty"`
	PlaylistID       *string `json:"playlistId"`
	TimestampSeconds *int    `json:"timestampSeconds"`
	IsShorts         bool    `json:"isShorts"`
	IsLive           bool    `json:"isLive"`
	IsMobileHost     bool    `json:"isMobileHost"`
	IsMusicHost      bool    `json:"isMusicHost"`
}

var (
	bareSeconds = regexp.MustCompile(`^\d+$`)
	// Matches "1h2m3s", "1m30s", "45s" and "2h". Seconds count only with an
	// "s", so the trailing "30" in "1m30" is ignored.
	timestampPattern = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s|\d+)?$`)
)

// ExtractInfo derives auxiliary metadata from raw. It is best effort: when no
// video id can be parsed the zero UrlInfo is returned.
func ExtractInfo(raw string) UrlInfo {
	s := clean(raw)
	id := ParseVideoID(s)
	if id == "" {
		return UrlInfo{}
	}

	info := UrlInfo{VideoID: id}
	u, err := url.Parse(withScheme(s))
	if err != nil {
		return info
	}

	q := u.Query()
	if list := q.Get("list"); list != "" {
		info.PlaylistID = &list
	}

	t := q.Get("t")
	if t == "" {
		t = q.Get("start")
	}
	info.TimestampSeconds = parseTimestamp(t)

	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)
	info.IsShorts = strings.Contains(path, "/shorts/")
	info.IsLive = strings.Contains(path, "/live/")
	info.IsMobileHost = strings.HasPrefix(host, "m.")
	info.IsMusicHost = strings.HasPrefix(host, "music.")

	return info
}

// parseTimestamp returns nil for empty or malformed values. Missing h/m/s
// components count as zero.
func parseTimestamp(s string) *int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	if bareSeconds.MatchString(s) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil
		}
		return &n
	}

	m := timestampPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}

	total := 0
	for i, unit := range []int{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil || n > (math.MaxInt-total)/unit {
			return nil
		}
		total += n * unit
	}
	return &total
}
