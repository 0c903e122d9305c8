package lock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "clinicq:lock:"

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every replica that talks to the same Redis.
type Redis struct {
	rdb  *redis.Client
	wait time.Duration
	ttl  time.Duration
}

// NewRedis builds a Redis locker. ttl bounds how long a crashed holder can
// keep a scope; it must comfortably exceed the longest unit of work.
func NewRedis(rdb *redis.Client, wait, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{rdb: rdb, wait: wait, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	key = keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(r.wait)
	backoff := 10 * time.Millisecond

	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// The caller's context may already be done.
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, r.rdb, []string{key}, token).Err()
			}, nil
		}

		left := time.Until(deadline)
		if left <= 0 {
			return nil, ErrTimeout
		}
		sleep := min(backoff+rand.N(backoff), left)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff = min(backoff*2, 200*time.Millisecond)
	}
}
