package downloader

import (
	"context"
	"errors"
	"strings"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

type toolErrorRule struct {
	phrases []string
	kind    domain.ErrorKind
	reason  domain.Reason
	message string
}

// Order matters: the first rule with a matching phrase wins. Specific
// unavailability reasons come before the generic "video unavailable".
var toolErrorRules = []toolErrorRule{
	{
		phrases: []string{"requested format is not available", "requested format not available", "format not available", "no suitable formats", "no video formats found"},
		kind:    domain.KindToolInvocation,
		reason:  domain.ReasonFormatUnavailable,
		message: "The requested quality is not available for this video. Try a lower quality.",
	},
	{
		phrases: []string{"ffmpeg", "ffprobe", "merger", "postprocessing", "post-processing", "conversion failed"},
		kind:    domain.KindToolInvocation,
		reason:  domain.ReasonTranscode,
		message: "The video could not be converted. Please try a different format.",
	},
	{
		phrases: []string{"larger than max-filesize", "max-filesize", "too large", "file size"},
		kind:    domain.KindToolInvocation,
		reason:  domain.ReasonTooLarge,
		message: "The file is too large to convert.",
	},
	{
		phrases: []string{"private video", "video is private", "is private"},
		kind:    domain.KindVideoUnavailable,
		reason:  domain.ReasonPrivate,
		message: "This video is private.",
	},
	{
		phrases: []string{"age-restricted", "age restricted", "confirm your age", "inappropriate for some users"},
		kind:    domain.KindVideoUnavailable,
		reason:  domain.ReasonAgeRestricted,
		message: "This video is age-restricted and cannot be downloaded.",
	},
	{
		phrases: []string{"sign in", "login required", "log in", "cookies"},
		kind:    domain.KindVideoUnavailable,
		reason:  domain.ReasonLoginRequired,
		message: "This video requires signing in and cannot be downloaded.",
	},
	{
		phrases: []string{"members-only", "members only", "join this channel", "premium", "membership"},
		kind:    domain.KindVideoUnavailable,
		reason:  domain.ReasonMembersOnly,
		message: "This video is only available to members.",
	},
	{
		phrases: []string{"available in your country", "blocked it in your country", "geo-restricted", "geo restricted", "region"},
		kind:    domain.KindVideoUnavailable,
		reason:  domain.ReasonRegionLocked,
		message: "This video is not available in this region.",
	},
	{
		phrases: []string{"video unavailable", "has been removed", "no longer available", "account associated with this video has been terminated", "http error 404", "404", "not found", "does not exist"},
		kind:    domain.KindVideoUnavailable,
		reason:  domain.ReasonRemoved,
		message: "This video is unavailable or has been removed.",
	},
	{
		phrases: []string{"timed out", "timeout", "unable to download webpage", "network", "connection", "name resolution", "temporary failure", "http error 5"},
		kind:    domain.KindNetwork,
		reason:  domain.ReasonNone,
		message: "Could not reach YouTube. Please try again in a moment.",
	},
	{
		phrases: []string{"unsupported url", "is not a valid url"},
		kind:    domain.KindURLParse,
		reason:  domain.ReasonNone,
		message: "This link is not supported.",
	},
}

const genericToolMessage = "The video could not be processed. Please try again later."

// TranslateToolError classifies a tool failure from its output. It never
// returns nil and never includes output in the user message.
func TranslateToolError(output string, err error) *domain.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.KindNetwork, domain.ReasonTimeout,
			"The request timed out. Please try again or pick a shorter video.", err)
	}

	lower := strings.ToLower(output)
	for _, rule := range toolErrorRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(lower, phrase) {
				return domain.NewError(rule.kind, rule.reason, rule.message, cause(output, err))
			}
		}
	}
	return domain.NewError(domain.KindToolInvocation, domain.ReasonNone, genericToolMessage, cause(output, err))
}

// translate unpacks a ToolError before classification.
func translate(err error) *domain.Error {
	var te *ToolError
	if errors.As(err, &te) {
		return TranslateToolError(te.Output, err)
	}
	return TranslateToolError("", err)
}

func cause(output string, err error) error {
	if err != nil {
		return err
	}
	if output == "" {
		return errors.New("yt-dlp failed")
	}
	return errors.New(lastLine(output))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
