package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisLocker serializes status transitions per owner across instances using
// SET NX with an expiry. Acquisition is best-effort: when Redis is down the
// transition proceeds unlocked, which matches the accepted consistency gap of
// a client-evaluated limit check.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewRedisLocker creates a locker with the given lock expiry.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *log.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// Lock blocks until the owner's transition lock is held, the lock expiry has
// passed, or ctx is done. The returned function releases the lock and is safe
// to call regardless of how acquisition ended.
func (l *RedisLocker) Lock(ctx context.Context, ownerID string) func() {
	if l.client == nil {
		return func() {}
	}
	key := "transition:" + ownerID
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if l.logger != nil {
				l.logger.WithError(err).Warn("transition lock unavailable; proceeding unlocked")
			}
			return func() {}
		}
		if ok {
			break
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return func() {}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return func() {
		// Release only our own token so an expired lock reclaimed by another
		// request is not deleted from under it.
		val, err := l.client.Get(ctx, key).Result()
		if err == nil && val == token {
			_ = l.client.Del(ctx, key).Err()
		}
	}
}
