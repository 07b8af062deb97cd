package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can block other replicas.
const DefaultTTL = 10 * time.Minute

// releaseScript deletes the key only if it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// Redis is a Locker shared by every process using the same key.
type Redis struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	token  func() string
}

// NewRedis creates a Redis lock on key. If ttl is 0, DefaultTTL is used.
func NewRedis(client redis.Cmdable, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString,
	}
}

// TryLock implements Locker using SET NX with an expiry.
func (l *Redis) TryLock(ctx context.Context) (Release, bool, error) {
	token := l.token()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func(ctx context.Context) error {
		n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", l.key, err)
		}
		if n == 0 {
			return ErrNotHeld
		}
		return nil
	}, true, nil
}

var _ Locker = (*Redis)(nil)
