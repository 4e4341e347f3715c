package rate

import "errors"

// ErrRedisUnavailable wraps counter store failures.
var ErrRedisUnavailable = errors.New("redis unavailable")
