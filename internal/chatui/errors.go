package chatui

import (
	"strings"
)

type ErrorKind string

const (
	KindQuota     ErrorKind = "quota"
	KindRateLimit ErrorKind = "rate_limit"
	KindGeneric   ErrorKind = "generic"
)

// UIError is the persistent error shown above the conversation.
type UIError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *UIError) Error() string { return e.Message }

func (e *UIError) Unwrap() error { return e.Err }

// ClassifyError buckets a failed request by its message. Matching is
// case-insensitive; quota is checked before rate limit.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindGeneric
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		return KindQuota
	case strings.Contains(msg, "rate limit"):
		return KindRateLimit
	default:
		return KindGeneric
	}
}

func newUIError(err error) *UIError {
	kind := ClassifyError(err)
	return &UIError{Kind: kind, Message: kind.Message(), Err: err}
}

// Message is the user-facing text for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case KindQuota:
		return "API quota exceeded. Please try again later."
	case KindRateLimit:
		return "Rate limit reached. Please wait a moment and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
