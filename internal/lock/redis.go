package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a distributed locker based on SET NX PX with a random token.
type Redis struct {
	rc     *redis.Client
	prefix string
	TTL    time.Duration
	Poll   time.Duration
	log    *zap.Logger
}

func NewRedis(rc *redis.Client, prefix string, log *zap.Logger) *Redis {
	return &Redis{
		rc:     rc,
		prefix: prefix,
		TTL:    30 * time.Second,
		Poll:   50 * time.Millisecond,
		log:    log,
	}
}

// NewRedisFromURL parses a redis:// URL and pings the server.
func NewRedisFromURL(ctx context.Context, url, prefix string, log *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedis(rc, prefix, log), nil
}

func (r *Redis) Close() error {
	return r.rc.Close()
}

func (r *Redis) try(ctx context.Context, key string) (Unlock, bool, error) {
	k := r.prefix + key
	token := uuid.NewString()
	ok, err := r.rc.SetNX(ctx, k, token, r.TTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", k, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			if err := releaseScript.Run(context.Background(), r.rc, []string{k}, token).Err(); err != nil {
				r.log.Warn("failed to release lock", zap.String("key", k), zap.Error(err))
			}
		})
	}
	return unlock, true, nil
}

func (r *Redis) TryLock(ctx context.Context, key string) (Unlock, error) {
	unlock, ok, err := r.try(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.ErrLockNotAcquired
	}
	return unlock, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	ticker := time.NewTicker(r.Poll)
	defer ticker.Stop()
	for {
		unlock, ok, err := r.try(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
