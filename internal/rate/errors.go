package rate

import "errors"

var (
	// ErrRateLimited means the refresh budget for the window is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis infrastructure failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
