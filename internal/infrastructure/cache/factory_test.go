package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ledgerflow/backend/internal/infrastructure/config"
)

func TestTransmissionStoreFactory_FallsBackWithoutRedis(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := NewTransmissionStoreFactory(config.RedisConfig{}, WithLogger(zap.New(core)))

	store, client, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.IsType(t, &InMemoryTransmissionStore{}, store)
	assert.Equal(t, 1, logs.Len())
}

func TestTransmissionStoreFactory_FallsBackWhenUnreachable(t *testing.T) {
	f := NewTransmissionStoreFactory(config.RedisConfig{Host: "127.0.0.1", Port: 1})

	store, client, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.IsType(t, &InMemoryTransmissionStore{}, store)
}

func TestTransmissionStoreFactory_RequiresRedis(t *testing.T) {
	f := NewTransmissionStoreFactory(config.RedisConfig{}, WithInMemoryFallback(false))

	_, _, err := f.CreateStore(context.Background())
	assert.Error(t, err)
}
