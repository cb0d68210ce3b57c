// Package redis implements the distributed turn lock over Redis SetNX with a
// TTL, so a crashed server cannot leave a thread locked forever. Release is
// token-checked: only the holder's release deletes the key.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/huminex/t4chat/runtime/chat/turnlock"
)

const (
	defaultTTL = 2 * time.Minute
	keyPrefix  = "t4chat:turn:"
)

// releaseScript deletes the lock only when the stored token matches.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Options configures the locker.
type Options struct {
	// Client is the Redis client. Required.
	Client *goredis.Client
	// TTL bounds how long an abandoned lock survives. Defaults to 2m.
	TTL time.Duration
}

// Locker implements turnlock.Locker over Redis.
type Locker struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ turnlock.Locker = (*Locker)(nil)

// New builds a Redis-backed locker.
func New(opts Options) (*Locker, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{client: opts.Client, ttl: ttl}, nil
}

// Acquire takes the lock for key or returns turnlock.ErrLocked.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := keyPrefix + key
	ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire turn lock %s: %w", key, err)
	}
	if !ok {
		return nil, turnlock.ErrLocked
	}
	return func() {
		// Best effort; the TTL reclaims the lock if this fails.
		_ = releaseScript.Run(context.Background(), l.client, []string{full}, token).Err()
	}, nil
}
