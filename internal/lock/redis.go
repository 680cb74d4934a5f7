package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

const extendScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// Redis is a Locker shared by every process pointing at the same Redis.
// TTL bounds how long a crashed holder can block a key; a live holder keeps
// extending it every TTL/3 until unlock.
type Redis struct {
	Client        *redis.Client
	Timeout       time.Duration
	TTL           time.Duration
	RetryInterval time.Duration
	Logger        *zap.Logger
}

func NewRedis(client *redis.Client, timeout, ttl, retry time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &Redis{Client: client, Timeout: timeout, TTL: ttl, RetryInterval: retry, Logger: logger}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	redisKey := "lock:" + key
	token := ulid.Make().String()

	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	defer cancel()

	ticker := time.NewTicker(r.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.Client.SetNX(waitCtx, redisKey, token, r.TTL).Result()
		if err == nil && ok {
			break
		}
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		select {
		case <-waitCtx.Done():
		case <-ticker.C:
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}

	r.Logger.Debug("lock acquired", zap.String("key", key), zap.Duration("ttl", r.TTL))

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.keepAlive(context.WithoutCancel(ctx), key, redisKey, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			n, err := r.Client.Eval(releaseCtx, releaseScript, []string{redisKey}, token).Int()
			if err != nil {
				r.Logger.Error("lock release failed", zap.String("key", key), zap.Error(err))
				return
			}
			if n == 0 {
				r.Logger.Warn("lock expired before release", zap.String("key", key))
			}
		})
	}, nil
}

// keepAlive extends the key's TTL while the holder runs. It gives up once the
// key no longer carries token.
func (r *Redis) keepAlive(ctx context.Context, key, redisKey, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(r.TTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		extendCtx, cancel := context.WithTimeout(ctx, r.TTL/3)
		n, err := r.Client.Eval(extendCtx, extendScript, []string{redisKey}, token, r.TTL.Milliseconds()).Int()
		cancel()
		if err != nil {
			r.Logger.Warn("lock extend failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if n == 0 {
			r.Logger.Error("lock lost while held", zap.String("key", key))
			return
		}
	}
}
