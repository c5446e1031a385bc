package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLock implements SchoolLock with a SETNX-with-TTL pattern against
// a shared Redis instance, matching the lock/cache role
// jordigilh/kubernaut gives redis/go-redis elsewhere in its stack.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLock constructs a RedisLock. ttl should comfortably exceed
// the longest expected school sync (see config.Config.AttemptTimeout);
// a lock that expires mid-sync defeats the purpose.
func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLock{client: client, ttl: ttl, prefix: "roster-sync:school-lock:"}
}

// TryAcquire sets a unique token under the school's key with NX, and
// releases by deleting the key only if the token still matches (so a
// lock that outlived its TTL and was re-acquired by someone else isn't
// clobbered by a late release).
func (l *RedisLock) TryAcquire(ctx context.Context, schoolID string) (func(), bool, error) {
	key := l.prefix + schoolID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("lock: acquire %s: %w", schoolID, err)
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		current, err := l.client.Get(releaseCtx, key).Result()
		if err == nil && current == token {
			l.client.Del(releaseCtx, key)
		}
	}
	return release, true, nil
}
