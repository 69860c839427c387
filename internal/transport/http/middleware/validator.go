package middleware

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/emanuelef/yt-convert-go/internal/domain"
	"github.com/emanuelef/yt-convert-go/internal/service/quality"
	"github.com/emanuelef/yt-convert-go/internal/service/videourl"
)

// maxURLLength bounds what is accepted before any parsing happens.
const maxURLLength = 2048

var qualityPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)

// ValidationError names the request field that failed and why.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateVideoURL checks that raw is a plausible, recognised video link.
func ValidateVideoURL(raw string) error {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return &ValidationError{Field: "url", Message: "URL is required"}
	case len(raw) > maxURLLength:
		return &ValidationError{Field: "url", Message: "URL is too long"}
	case strings.ContainsAny(raw, " \t\r\n"):
		return &ValidationError{Field: "url", Message: "URL must not contain whitespace"}
	case strings.Contains(raw, "@"):
		return &ValidationError{Field: "url", Message: "URLs with user credentials are not allowed"}
	case !videourl.IsRecognizedHost(raw):
		return &ValidationError{Field: "url", Message: "Please enter a valid YouTube URL"}
	}
	return nil
}

// ValidateVideoInfoRequest validates a metadata lookup.
func ValidateVideoInfoRequest(req *domain.VideoInfoRequest) error {
	return ValidateVideoURL(req.URL)
}

// ValidateDownloadRequest validates a conversion request. Quality is optional.
// Video quality must be an offered tier; audio quality is only checked for
// shape, since unknown bitrates fall back to a default further down.
func ValidateDownloadRequest(req *domain.DownloadRequest) error {
	if err := ValidateVideoURL(req.URL); err != nil {
		return err
	}

	format, ok := domain.ParseFormat(req.Format)
	if !ok {
		return &ValidationError{Field: "format", Message: "format must be mp3 or mp4"}
	}

	if req.Quality == "" {
		return nil
	}
	switch {
	case format == domain.FormatVideo && !quality.IsVideoTier(req.Quality):
		return &ValidationError{Field: "quality", Message: "quality must be one of " + strings.Join(quality.VideoTiers, ", ")}
	case !qualityPattern.MatchString(req.Quality):
		return &ValidationError{Field: "quality", Message: "quality must be one of " + strings.Join(quality.AudioTiers, ", ")}
	}
	return nil
}
