package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	lp, err := NewLoggerProvider(ctx, Config{}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, lp.Core("ledgerflow", zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))

	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)
	attached := lp.Attach(base, "ledgerflow", zapcore.InfoLevel)
	attached.Info("posted")
	assert.Equal(t, 1, logs.Len())
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	assert.NoError(t, RegisterDBTracing(db, Config{Enabled: false}, zap.NewNop()))
}

func TestRegisterDBTracing_Enabled(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, RegisterDBTracing(db, Config{Enabled: true}, zap.NewNop()))
	assert.NoError(t, db.Exec("SELECT 1").Error)
}
