// ABOUTME: Typed upstream failures: timeout, connect, HTTP status, malformed body
// ABOUTME: Classifies each failure as retryable or fatal and extracts a readable message

package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Kind tags an upstream failure.
type Kind int

const (
	// KindTimeout means the per-call timeout elapsed before a response was read
	KindTimeout Kind = iota + 1
	// KindConnect means the request never produced a response (DNS, refused, reset)
	KindConnect
	// KindStatus means the service answered with a non-2xx status
	KindStatus
	// KindMalformed means a 2xx body was not a JSON object or lacked a required field
	KindMalformed
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnect:
		return "connect"
	case KindStatus:
		return "http_status"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is returned by every Client operation that fails after building its request.
type Error struct {
	// Op is the client operation: create_thread, thread_chat or workspace_chat
	Op string

	Kind Kind

	// StatusCode is the HTTP status (KindStatus only)
	StatusCode int

	// Body is the raw response body, truncated (KindStatus and KindMalformed)
	Body string

	// Cause is the underlying transport or decode error, if any
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("upstream %s: status %d: %s", e.Op, e.StatusCode, e.Message())
	case KindMalformed:
		if e.Cause != nil {
			return fmt.Sprintf("upstream %s: malformed response: %v", e.Op, e.Cause)
		}
		return fmt.Sprintf("upstream %s: malformed response", e.Op)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("upstream %s: %s: %v", e.Op, e.Kind, e.Cause)
		}
		return fmt.Sprintf("upstream %s: %s", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Unavailable reports whether the service could not be reached at all.
func (e *Error) Unavailable() bool {
	return e.Kind == KindTimeout || e.Kind == KindConnect
}

// Retryable reports whether a caller may reasonably repeat the call.
// 5xx, 408 and 429 are transient; every other 4xx is final for this turn.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnect:
		return true
	case KindStatus:
		return e.StatusCode >= 500 ||
			e.StatusCode == http.StatusRequestTimeout ||
			e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// Message extracts a human readable message from an error body.
// It tries {"error":{"message":...}}, {"error":"..."}, {"message":...} and
// {"detail":...} before falling back to the raw body text.
func (e *Error) Message() string {
	if msg := extractErrorMessage(e.Body); msg != "" {
		return msg
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	if e.StatusCode > 0 {
		return http.StatusText(e.StatusCode)
	}
	return e.Kind.String()
}

func extractErrorMessage(body string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return ""
	}

	switch v := obj["error"].(type) {
	case map[string]any:
		if msg, ok := v["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return strings.TrimSpace(msg)
		}
	case string:
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	for _, key := range []string{"message", "detail"} {
		if msg, ok := obj[key].(string); ok && strings.TrimSpace(msg) != "" {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}
