package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"iamoneai-gateway/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

var _ repository.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter. A window begins on the first
// request after the previous window's key expired; the expiry is attached
// only on the 0->1 transition so later requests never reset it.
//
// The limiter fails open: when the store is unreachable or unconfigured,
// every request is admitted. Chat availability wins over strict quotas.
type RateLimiter struct {
	client RedisClient
	log    *zerolog.Logger
}

// NewRateLimiter accepts a nil client, which means "unconfigured".
func NewRateLimiter(client RedisClient, logger *zerolog.Logger) *RateLimiter {
	return &RateLimiter{client: client, log: logger}
}

func (r *RateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	if r.client == nil {
		return true, 0, nil
	}

	cur, err := r.client.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		r.log.Warn().Err(err).Str("key", key).Msg("rate limit store unreachable, failing open")
		return true, 0, nil
	}
	count := 0
	if cur != "" {
		count, _ = strconv.Atoi(cur)
	}

	// Reject without incrementing so the stored count stays accurate.
	if count >= limit {
		return false, count, nil
	}

	n, err := r.client.Incr(ctx, key)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("rate limit increment failed, failing open")
		return true, count, nil
	}
	if count == 0 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("rate limit expire failed")
		}
	}
	return true, int(n), nil
}

// RateKey scopes the counter to one caller identity.
func RateKey(userID string) string { return "rate:" + userID }
