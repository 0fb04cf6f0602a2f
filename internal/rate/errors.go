package rate

import "errors"

var (
	// ErrRedisUnavailable wraps failures of the Redis backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidWindow is returned for non-positive windows or limits.
	ErrInvalidWindow = errors.New("invalid flood window")
)
