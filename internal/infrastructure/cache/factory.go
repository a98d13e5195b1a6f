package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/infrastructure/config"
)

// TransmissionStoreFactory creates the transmission store based on configuration
type TransmissionStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// TransmissionStoreFactoryOption is a functional option for configuring the factory
type TransmissionStoreFactoryOption func(*TransmissionStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) TransmissionStoreFactoryOption {
	return func(f *TransmissionStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unconfigured or unreachable Redis
// falls back to the in-memory store. Default is true.
func WithInMemoryFallback(allow bool) TransmissionStoreFactoryOption {
	return func(f *TransmissionStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewTransmissionStoreFactory creates a new factory
func NewTransmissionStoreFactory(cfg config.RedisConfig, opts ...TransmissionStoreFactoryOption) *TransmissionStoreFactory {
	f := &TransmissionStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisStore connects to Redis and returns the store with its client,
// which the caller closes on shutdown.
func (f *TransmissionStoreFactory) CreateRedisStore(ctx context.Context) (*RedisTransmissionStore, *redis.Client, error) {
	if f.redisConfig.Host == "" {
		return nil, nil, fmt.Errorf("redis host is not configured")
	}
	client, err := NewRedisClient(ctx, f.redisConfig.Addr(), f.redisConfig.Password, f.redisConfig.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Redis transmission store: %w", err)
	}
	return NewRedisTransmissionStore(client, f.redisConfig.KeyPrefix), client, nil
}

// CreateStore tries Redis first and falls back to the in-memory store when allowed.
// The returned client is nil for the in-memory store.
// In-memory claims are process-local: two instances may transmit the same event.
func (f *TransmissionStoreFactory) CreateStore(ctx context.Context) (bookkeeping.TransmissionStore, *redis.Client, error) {
	store, client, err := f.CreateRedisStore(ctx)
	if err == nil {
		f.logger.Info("using Redis transmission store", zap.String("addr", f.redisConfig.Addr()))
		return store, client, nil
	}
	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("redis required for transmission claims but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory transmission store. "+
		"Claims are not shared between instances.",
		zap.Error(err),
	)
	return NewInMemoryTransmissionStore(), nil, nil
}
