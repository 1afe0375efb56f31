package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited means the platform refused the call with a 429-style flood signal.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound means the referenced message (or chat) no longer exists.
	ErrNotFound = errors.New("message not found")
)

// RateLimitError carries the platform's retry hint. It matches ErrRateLimited via errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitError) Unwrap() error { return e.Err }

// RetryAfter extracts the retry hint from err, or 0 if err carries none.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
