package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrUnreachable marks transport failures, timeouts and server-side errors.
var ErrUnreachable = errors.New("remote service unreachable")

// RejectedError is returned when the remote service refuses a request.
type RejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote service rejected request (http status %d): %s", e.StatusCode, e.Reason)
	}
	return "remote service rejected request: " + e.Reason
}

// Unreachable wraps err so that errors.Is(err, ErrUnreachable) holds.
func Unreachable(err error) error {
	if err == nil || errors.Is(err, ErrUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// IsTransient reports whether retrying the same call later may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrUnreachable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "http status 429") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}

// RejectionReason extracts a human-readable reason from a submission error.
func RejectionReason(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) && strings.TrimSpace(rejected.Reason) != "" {
		return rejected.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
