package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockKeyPrefix = "stockledger:lock:product:"
	defaultLockTTL       = 30 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still holds our token
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// RedisLockerConfig tunes the distributed lock
type RedisLockerConfig struct {
	KeyPrefix string
	// TTL bounds how long a crashed holder keeps the product locked
	TTL time.Duration
	// RenewInterval is how often a live holder extends its lease; defaults to TTL/3
	RenewInterval time.Duration
	// RetryInterval is the wait between acquisition attempts
	RetryInterval time.Duration
	// WaitTimeout caps the total wait; zero waits until ctx is done
	WaitTimeout time.Duration
}

// RedisLocker is a lease-based lock shared by every instance connected to the
// same Redis. Acquisition is SET NX PX with a random token; release is a
// compare-and-delete script. The lease is extended in the background for as
// long as it is held, so a slow holder does not lose it after TTL.
type RedisLocker struct {
	client redis.UniversalClient
	cfg    RedisLockerConfig
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker using an existing client
func NewRedisLocker(client redis.UniversalClient, cfg RedisLockerConfig, logger *zap.Logger) *RedisLocker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultLockKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultLockTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.RenewInterval <= 0 || cfg.RenewInterval >= cfg.TTL {
		cfg.RenewInterval = cfg.TTL / 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, cfg: cfg, logger: logger}
}

// Lock acquires the product lease, polling until it is free
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Lock key cannot be empty")
	}
	if l.cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.WaitTimeout)
		defer cancel()
	}

	redisKey := l.cfg.KeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, shared.NewStorageError("lock.acquire", fmt.Errorf("redis SETNX %s: %w", redisKey, err))
		}
		if ok {
			return l.hold(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, shared.NewDomainError(shared.CodeLockUnavailable,
					fmt.Sprintf("Timed out waiting for lock on %s", key))
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold keeps the lease alive until the returned function releases it
func (l *RedisLocker) hold(redisKey, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context may already be done when the lock is released
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("failed to release product lock",
					zap.String("key", redisKey),
					zap.Error(err),
				)
			}
		})
	}
}

func (l *RedisLocker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.cfg.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.RenewInterval)
		renewed, err := renewScript.Run(ctx, l.client, []string{redisKey}, token, l.cfg.TTL.Milliseconds()).Int()
		cancel()
		if err != nil {
			l.logger.Warn("failed to renew product lock",
				zap.String("key", redisKey),
				zap.Error(err),
			)
			continue
		}
		if renewed == 0 {
			l.logger.Error("product lock lease lost",
				zap.String("key", redisKey),
			)
			return
		}
	}
}
