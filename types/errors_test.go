package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, FailureUnknown},
		{"invalid scheme", &InvalidSchemeError{URL: "ftp://example.com"}, FailureInvalidScheme},
		{"http status", &HTTPStatusError{Code: 503, Status: "503 Service Unavailable"}, FailureHTTPStatus},
		{"network", &NetworkError{Err: errors.New("connection refused")}, FailureNetwork},
		{"tool not found", &ToolNotFoundError{Name: "unknown_tool"}, FailureToolNotFound},
		{"backend", &BackendError{Err: errors.New("api error")}, FailureBackend},
		{"provider blocked", ErrProviderBlocked, FailureProviderBlocked},
		{"wrapped backend", fmt.Errorf("session failed: %w", &BackendError{Err: errors.New("boom")}), FailureBackend},
		{"plain error", errors.New("something else"), FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFailureKindIsFatal(t *testing.T) {
	fatal := []FailureKind{FailureToolNotFound, FailureBackend}
	recoverable := []FailureKind{
		FailureInvalidScheme, FailureNetwork, FailureHTTPStatus,
		FailureProviderBlocked, FailureUnknown,
	}

	for _, k := range fatal {
		if !k.IsFatal() {
			t.Errorf("expected %v to be fatal", k)
		}
	}
	for _, k := range recoverable {
		if k.IsFatal() {
			t.Errorf("expected %v to be recoverable", k)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	if got := (&InvalidSchemeError{URL: "file:///etc/passwd"}).Error(); got == "" {
		t.Error("empty error message")
	}
	e := &HTTPStatusError{Code: 404, Status: "404 Not Found"}
	if want := "HTTP error 404: 404 Not Found"; e.Error() != want {
		t.Errorf("got %q, want %q", e.Error(), want)
	}

	inner := errors.New("dial tcp: i/o timeout")
	ne := &NetworkError{Err: inner}
	if !errors.Is(ne, inner) {
		t.Error("NetworkError should unwrap to inner error")
	}
}
