package repository

import (
	"context"
	"time"
)

// RateLimiter is a fixed-window counter per key. Check reports whether the
// request is admitted and the current window count. Implementations fail
// open (admit, count 0) when the backing store is unreachable.
type RateLimiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, count int, err error)
}
