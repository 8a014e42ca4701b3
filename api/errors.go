package api

import (
	"errors"
	"fmt"
	"time"
)

// Error categories. APIError wraps one of these so callers can use
// errors.Is without inspecting status codes.
var (
	// ErrInvalidRequest covers HTTP 400 and 404 responses.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateLimited covers HTTP 429 responses.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrAPI covers all other 4xx and 5xx responses.
	ErrAPI = errors.New("api error")
)

// APIError describes a failed API request.
type APIError struct {
	Message    string
	StatusCode int
	RequestID  string // from the X-Request-Id response header, may be empty

	// RetryAfter is the wait the server requested via the Retry-After
	// response header. Zero when the header was absent or unparseable.
	RetryAfter time.Duration

	category error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "<empty message>"
	}
	if e.RequestID != "" {
		return fmt.Sprintf("request %s: %s", e.RequestID, msg)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.category
}

// RetryDelay reports the server-requested wait before a retry. The
// retry package consults it when scheduling the next attempt.
func (e *APIError) RetryDelay() time.Duration {
	return e.RetryAfter
}

func newAPIError(message string, statusCode int, requestID string) *APIError {
	category := ErrAPI
	switch statusCode {
	case 400, 404:
		category = ErrInvalidRequest
	case 429:
		category = ErrRateLimited
	}
	return &APIError{
		Message:    message,
		StatusCode: statusCode,
		RequestID:  requestID,
		category:   category,
	}
}

// JobError indicates a backtest job reported failure or an unknown state.
type JobError struct {
	JobID   string
	Message string
}

func (e *JobError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("job %s: %s", e.JobID, e.Message)
	}
	return e.Message
}
