package rate

import "errors"

// ErrRedisUnavailable is returned when the backing counter store cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")
