package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// HTTPError is returned when the appliance answers with a non-2xx status.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
}

const (
	msgTimeout     = "Request timed out"
	msgUnreachable = "Connection refused or host unreachable"
)

// Describe turns a transport error into the short message shown in the UI.
// Timeouts and refused/unreachable hosts get fixed wording; anything else
// keeps its own text.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("HTTP %d from %s", httpErr.StatusCode, httpErr.Path)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return msgTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return msgUnreachable
	}

	// Wrapped errors from some transports lose their type; fall back to text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline exceeded"):
		return msgTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "unreachable"), strings.Contains(msg, "failed to fetch"):
		return msgUnreachable
	}
	return err.Error()
}

// Result is the {success, error} shape every appliance call is folded into
// before it reaches the UI.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ResultOf converts an error into a Result.
func ResultOf(err error) Result {
	if err != nil {
		return Result{Success: false, Error: Describe(err)}
	}
	return Result{Success: true}
}
