package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrTimeout          = errors.New("upstream deadline exceeded")
	ErrTransport        = errors.New("upstream unreachable")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// UpstreamError reports a provider that was reachable but answered with a
// non-success status or an unparseable body. Body is kept for diagnostics
// only and is never returned to callers verbatim.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream http %d", e.Provider, e.Status)
}
