package cache

import (
	"errors"
	"fmt"

	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/meatco/stockledger/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrRedisClientRequired is returned when the redis backend is selected without a client
var ErrRedisClientRequired = errors.New("cache: redis backend selected but no redis client configured")

// IdempotencyStoreFactory builds the allocation replay store named by the ledger config
type IdempotencyStoreFactory struct {
	backend   string
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
	fallback  bool
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithRedisClient supplies the shared client used by the redis backend
func WithRedisClient(client redis.UniversalClient) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.client = client
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix
func WithKeyPrefix(prefix string) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.keyPrefix = prefix
	}
}

// WithInMemoryFallback controls whether a missing redis client degrades to memory.
// Default is false: a misconfigured redis backend fails startup.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.fallback = allow
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(cfg config.LedgerConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		backend:   cfg.IdempotencyBackend,
		keyPrefix: DefaultKeyPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns the store for the configured backend
func (f *IdempotencyStoreFactory) CreateStore() (shared.IdempotencyStore, error) {
	switch f.backend {
	case config.BackendRedis:
		if f.client != nil {
			f.logger.Info("using Redis idempotency store", zap.String("key_prefix", f.keyPrefix))
			return NewRedisIdempotencyStore(f.client, f.keyPrefix), nil
		}
		if !f.fallback {
			return nil, ErrRedisClientRequired
		}
		f.logger.Warn("Redis client unavailable, falling back to in-memory idempotency store. " +
			"Replays across replicas will be resolved from the ledger only.")
		return NewInMemoryIdempotencyStore(), nil
	case config.BackendMemory, "":
		f.logger.Info("using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	default:
		return nil, fmt.Errorf("cache: unknown idempotency backend %q", f.backend)
	}
}
