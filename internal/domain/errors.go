package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable tag surfaced to callers for every failure.
type ErrorKind string

const (
	KindURLParse         ErrorKind = "url_parse_error"
	KindVideoUnavailable ErrorKind = "video_unavailable"
	KindToolInvocation   ErrorKind = "tool_invocation_error"
	KindArtifactNotFound ErrorKind = "artifact_not_found"
	KindNetwork          ErrorKind = "network_error"
)

// Reason narrows a kind down for message quality and the one retry rule.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonRemoved           Reason = "removed"
	ReasonPrivate           Reason = "private"
	ReasonRegionLocked      Reason = "region_locked"
	ReasonAgeRestricted     Reason = "age_restricted"
	ReasonLoginRequired     Reason = "login_required"
	ReasonMembersOnly       Reason = "members_only"
	ReasonFormatUnavailable Reason = "format_unavailable"
	ReasonTranscode         Reason = "transcode_failed"
	ReasonTooLarge          Reason = "too_large"
	ReasonDurationExceeded  Reason = "duration_exceeded"
	ReasonTimeout           Reason = "timeout"
)

// Error is a classified failure with a user-safe message.
// Err carries the internal cause for logging and is never shown to users.
type Error struct {
	Kind    ErrorKind
	Reason  Reason
	Message string
	Err     error
}

// NewError creates a classified error.
func NewError(kind ErrorKind, reason Reason, message string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// ReasonOf returns the reason of a classified error, or ReasonNone.
func ReasonOf(err error) Reason {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ReasonNone
}

// UserMessage returns the message safe to show to end users.
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "Something went wrong while processing the video. Please try again."
}

// IsUserCorrectable reports whether the user can fix the failure by changing the request.
func (e *Error) IsUserCorrectable() bool {
	switch e.Kind {
	case KindURLParse, KindVideoUnavailable:
		return true
	case KindToolInvocation:
		switch e.Reason {
		case ReasonFormatUnavailable, ReasonTooLarge, ReasonDurationExceeded:
			return true
		}
	}
	return false
}
