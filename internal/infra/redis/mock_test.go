package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// fakeClient is an in-memory RedisClient. It records Expire calls so tests
// can assert the window TTL is attached exactly once per window.
type fakeClient struct {
	mu sync.Mutex

	values map[string]string
	ttls   map[string]time.Duration

	expireCalls map[string]int

	// error hooks
	errGet    error
	errIncr   error
	errSet    error
	errExpire error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		values:      map[string]string{},
		ttls:        map[string]time.Duration{},
		expireCalls: map[string]int{},
	}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if f.errSet != nil {
		return f.errSet
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = string(value)
	f.ttls[key] = expiration
	return nil
}

func (f *fakeClient) Get(ctx context.Context, key string) (string, error) {
	if f.errGet != nil {
		return "", f.errGet
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	if f.errIncr != nil {
		return 0, f.errIncr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if f.errExpire != nil {
		return f.errExpire
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireCalls[key]++
	f.ttls[key] = expiration
	return nil
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
		delete(f.ttls, k)
	}
	return nil
}

func (f *fakeClient) Close() error { return nil }

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
