package jira

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable means the retry budget was spent on transient failures.
	ErrUnavailable = errors.New("jira: resource unavailable")
	// ErrRejected means the server refused the request with a non-retryable 4xx.
	ErrRejected = errors.New("jira: request rejected")
)

// APIError carries enough context to diagnose a failed fetch without
// re-running it.
type APIError struct {
	Resource string
	Status   int // 0 when no response was received
	Attempts int
	Body     string
	Err      error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("jira %s: %v (attempts=%d)", e.Resource, e.Err, e.Attempts)
	}
	return fmt.Sprintf("jira %s: status=%d attempts=%d body=%s: %v", e.Resource, e.Status, e.Attempts, e.Body, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether the failure class is one that is retried.
func (e *APIError) Transient() bool { return transientStatus(e.Status) }

func transientStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}
