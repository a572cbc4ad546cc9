package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unreachable", Unreachable(errors.New("dial tcp")), true},
		{"wrapped unreachable", fmt.Errorf("poll r-1: %w", ErrUnreachable), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"net timeout", timeoutErr{}, true},
		{"server error text", errors.New("http status 503"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"rejected", &RejectedError{StatusCode: 400, Reason: "invalid cnpj"}, false},
		{"rejected wrapping 5xx text", fmt.Errorf("http status 500: %w", &RejectedError{Reason: "bad"}), false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRejectionReason(t *testing.T) {
	err := fmt.Errorf("submit: %w", &RejectedError{StatusCode: 422, Reason: "unsupported layout"})
	if got := RejectionReason(err); got != "unsupported layout" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := RejectionReason(errors.New("plain")); got != "plain" {
		t.Fatalf("unexpected reason %q", got)
	}
}
