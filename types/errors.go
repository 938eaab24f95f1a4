package types

import (
	"errors"
	"fmt"
)

// FailureKind classifies failures produced by the web tools and the model
// backend. The orchestrator uses the kind to decide between local recovery
// (feed the failure back to the model as a tool result) and terminating the
// session.
type FailureKind string

const (
	// FailureInvalidScheme means a fetch target was not http/https. Never retried.
	FailureInvalidScheme FailureKind = "invalid_scheme"
	// FailureNetwork covers connect/read timeouts and transport errors.
	FailureNetwork FailureKind = "network"
	// FailureHTTPStatus covers non-2xx, non-redirect responses.
	FailureHTTPStatus FailureKind = "http_status"
	// FailureProviderBlocked marks an anti-bot interstitial on a scraped
	// results page. Treated as an empty result set, not an error.
	FailureProviderBlocked FailureKind = "provider_blocked"
	// FailureToolNotFound means the model requested a tool the dispatcher
	// does not know. Programming-contract violation, fatal to the session.
	FailureToolNotFound FailureKind = "tool_not_found"
	// FailureBackend means the model backend itself errored. Fatal.
	FailureBackend FailureKind = "backend"
	// FailureUnknown is everything else.
	FailureUnknown FailureKind = "unknown"
)

// IsFatal reports whether a failure of this kind terminates the session.
// Tool-level failures are converted into textual tool results instead so the
// model can react within the conversation.
func (k FailureKind) IsFatal() bool {
	switch k {
	case FailureToolNotFound, FailureBackend:
		return true
	default:
		return false
	}
}

// InvalidSchemeError is returned before any network call when the fetch
// target's scheme is not http or https.
type InvalidSchemeError struct {
	URL string
}

func (e *InvalidSchemeError) Error() string {
	return fmt.Sprintf("invalid URL scheme (only http/https allowed): %s", e.URL)
}

// HTTPStatusError is returned for a non-success, non-redirect response.
type HTTPStatusError struct {
	Code   int
	Status string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Status)
}

// NetworkError wraps a transport-level failure (timeout, refused connection,
// DNS, broken pipe).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// ToolNotFoundError is returned by the dispatcher for an unregistered tool name.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string { return fmt.Sprintf("tool not found: %s", e.Name) }

// BackendError wraps a model-backend failure. The message is surfaced verbatim
// as the session's error event.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string { return fmt.Sprintf("model backend error: %v", e.Err) }

func (e *BackendError) Unwrap() error { return e.Err }

// ErrProviderBlocked marks a scraped search page that hit an anti-bot
// interstitial with zero parsed results.
var ErrProviderBlocked = errors.New("search provider blocked the request")

// Classify maps an error to its FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}

	var invalidScheme *InvalidSchemeError
	var httpStatus *HTTPStatusError
	var network *NetworkError
	var toolNotFound *ToolNotFoundError
	var backend *BackendError

	switch {
	case errors.As(err, &invalidScheme):
		return FailureInvalidScheme
	case errors.As(err, &httpStatus):
		return FailureHTTPStatus
	case errors.As(err, &network):
		return FailureNetwork
	case errors.As(err, &toolNotFound):
		return FailureToolNotFound
	case errors.As(err, &backend):
		return FailureBackend
	case errors.Is(err, ErrProviderBlocked):
		return FailureProviderBlocked
	default:
		return FailureUnknown
	}
}
