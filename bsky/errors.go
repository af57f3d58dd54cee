package bsky

import (
	"errors"
	"fmt"

	"github.com/goskyapi/gosky/model"
)

var (
	// ErrNotAuthenticated means an authenticated call was attempted with no
	// usable credentials configured.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrExcessiveIteration means a pagination loop exceeded its hard
	// ceiling, which usually indicates a server or protocol bug.
	ErrExcessiveIteration = errors.New("excessive iteration")

	// ErrSessionRefreshRecursion means a session refresh was attempted
	// while another refresh was already in progress. It is always
	// propagated, never retried.
	ErrSessionRefreshRecursion = errors.New("session refresh recursion")
)

// APIError is returned when the server answered with HTTP >= 400 after all
// retries. It carries the persisted call log row for post-hoc diagnosis.
type APIError struct {
	StatusCode int
	ErrorClass string
	Log        *model.CallLog
}

func (e *APIError) Error() string {
	if e.ErrorClass != "" {
		return fmt.Sprintf("failed request, status code %d (%s)", e.StatusCode, e.ErrorClass)
	}
	return fmt.Sprintf("failed request, status code %d", e.StatusCode)
}

// RateLimitError is returned when a call would meet or exceed the local
// write-op budget for a window. The call is never sent.
type RateLimitError struct {
	WindowHours int
	Used        int64
	Points      int64
	Budget      int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("at or exceeded write operations budget: %d/%d points used in the last %dh, %d more requested",
		e.Used, e.Budget, e.WindowHours, e.Points)
}
