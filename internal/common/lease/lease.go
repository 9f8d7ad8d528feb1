// internal/common/lease/lease.go
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"commitment-reaper/internal/common/errors"
)

// Lease guards a run against overlapping runs elsewhere. Acquire returns a
// release func on success, a LEASE_HELD error when another holder owns it and
// LEASE_FAILED when the store cannot be reached.
type Lease interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLease struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	token  func() string
}

func NewRedisLease(client redis.Cmdable, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  func() string { return uuid.NewString() },
	}
}

func (l *RedisLease) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := l.token()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.NewLeaseFailedError(l.key, err)
	}
	if !ok {
		return nil, errors.NewLeaseHeldError(l.key)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
			return errors.NewLeaseFailedError(l.key, err)
		}
		return nil
	}, nil
}

// NopLease always grants the lease.
type NopLease struct{}

func (NopLease) Acquire(context.Context) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
