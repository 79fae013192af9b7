// ABOUTME: Turn-level failure categories surfaced to gateway callers
// ABOUTME: Maps upstream and store failures onto a stable Kind with an HTTP status

package conversation

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/psychat-gateway/internal/upstream"
)

// Kind is the stable failure category of a turn.
type Kind int

const (
	// KindServiceNotConfigured means the upstream base URL or workspace is missing
	KindServiceNotConfigured Kind = iota + 1
	// KindUpstreamUnavailable means the upstream could not be reached in time
	KindUpstreamUnavailable
	// KindUpstreamRejected means the upstream answered with a non-2xx status
	KindUpstreamRejected
	// KindInternal covers everything else
	KindInternal
)

// String returns the category code sent to clients.
func (k Kind) String() string {
	switch k {
	case KindServiceNotConfigured:
		return "service_not_configured"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindUpstreamRejected:
		return "upstream_rejected"
	default:
		return "internal_error"
	}
}

// HTTPStatus is the response status a handler should use for this category.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindUpstreamRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by Answer and carried by relay error events.
type Error struct {
	Kind Kind

	// Message is safe to show to the client
	Message string

	// UpstreamStatus is the upstream HTTP status (KindUpstreamRejected only)
	UpstreamStatus int

	// Err is the underlying cause, logged but never shown to clients
	Err error
}

func (e *Error) Error() string {
	if e.UpstreamStatus != 0 {
		return fmt.Sprintf("%s (upstream status %d): %s", e.Kind, e.UpstreamStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the category of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return KindInternal
}

// classify converts an error from thread resolution or dispatch into an *Error.
func classify(err error) *Error {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}

	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		switch {
		case uerr.Unavailable():
			return &Error{
				Kind:    KindUpstreamUnavailable,
				Message: "the language model service is unavailable, please try again later",
				Err:     err,
			}
		case uerr.Kind == upstream.KindStatus:
			return &Error{
				Kind:           KindUpstreamRejected,
				Message:        uerr.Message(),
				UpstreamStatus: uerr.StatusCode,
				Err:            err,
			}
		case uerr.Kind == upstream.KindMalformed && uerr.Op == upstream.OpCreateThread:
			return &Error{
				Kind:    KindUpstreamRejected,
				Message: "the language model service did not return a thread identifier",
				Err:     err,
			}
		}
	}

	return &Error{
		Kind:    KindInternal,
		Message: "internal error",
		Err:     err,
	}
}
