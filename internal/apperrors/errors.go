package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failure talking to the external platform.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindForbidden   ErrorKind = "forbidden"
	KindRateLimited ErrorKind = "rate_limited"
	KindValidation  ErrorKind = "validation"
	KindTransport   ErrorKind = "transport"
	KindMediaFetch  ErrorKind = "media_fetch"
	KindMediaUpload ErrorKind = "media_upload"
	KindDuplicate   ErrorKind = "duplicate"
)

var (
	ErrDuplicateContent = errors.New("Duplicate content detected")
	ErrPostNotFound     = errors.New("post doesn't exist")
	ErrPostNotEditable  = errors.New("post is no longer scheduled")
	ErrPostNotRetryable = errors.New("post is not in a retryable state")

	// ErrNotAttempted marks a call that never reached the platform, so it
	// must not count against the post's retries.
	ErrNotAttempted = errors.New("request was not sent")
)

// permanentMarkers flag untyped errors that will not resolve on retry.
var permanentMarkers = []string{"credentials", "unauthorized", "forbidden"}

// PlatformError is returned by every call against the external platform.
type PlatformError struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *PlatformError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying cannot help.
func (e *PlatformError) Permanent() bool {
	switch e.Kind {
	case KindAuth, KindForbidden, KindValidation, KindDuplicate:
		return true
	}
	return false
}

func NewPlatformError(kind ErrorKind, statusCode int, body string) error {
	return &PlatformError{Kind: kind, StatusCode: statusCode, Body: body}
}

func Wrap(kind ErrorKind, err error) error {
	return &PlatformError{Kind: kind, Err: err}
}

// KindForStatus maps an HTTP status from the platform to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 401:
		return KindAuth
	case status == 403:
		return KindForbidden
	case status == 429:
		return KindRateLimited
	case status == 400 || status == 422:
		return KindValidation
	}
	return KindTransport
}

// IsPermanent classifies err. Typed errors decide by kind; anything else falls
// back to matching well-known auth markers in the message.
func IsPermanent(err error) bool {
	if err == nil || errors.Is(err, ErrNotAttempted) {
		return false
	}
	if errors.Is(err, ErrDuplicateContent) {
		return true
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Permanent()
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// KindOf returns the platform error kind, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrDuplicateContent) {
		return KindDuplicate
	}
	return ""
}

// NotAttempted wraps the reason a platform call was abandoned before sending.
func NotAttempted(err error) error {
	return fmt.Errorf("%w: %w", ErrNotAttempted, err)
}
