package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockMigrator struct {
	mock.Mock
}

func (m *mockMigrator) Up() error   { return m.Called().Error(0) }
func (m *mockMigrator) Down() error { return m.Called().Error(0) }
func (m *mockMigrator) Steps(n int) error {
	return m.Called(n).Error(0)
}
func (m *mockMigrator) Version() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}
func (m *mockMigrator) Force(version int) error {
	return m.Called(version).Error(0)
}

func TestRunCommand(t *testing.T) {
	t.Run("up and down", func(t *testing.T) {
		m := new(mockMigrator)
		m.On("Up").Return(nil).Once()
		m.On("Down").Return(assert.AnError).Once()

		require.NoError(t, runCommand(m, []string{"up"}, zap.NewNop()))
		assert.ErrorIs(t, runCommand(m, []string{"down"}, zap.NewNop()), assert.AnError)
		m.AssertExpectations(t)
	})

	t.Run("step parses a signed count", func(t *testing.T) {
		m := new(mockMigrator)
		m.On("Steps", -1).Return(nil).Once()

		require.NoError(t, runCommand(m, []string{"step", "-1"}, zap.NewNop()))
		m.AssertExpectations(t)
	})

	t.Run("force parses the version", func(t *testing.T) {
		m := new(mockMigrator)
		m.On("Force", 3).Return(nil).Once()

		require.NoError(t, runCommand(m, []string{"force", "3"}, zap.NewNop()))
		m.AssertExpectations(t)
	})

	t.Run("version is logged", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		m := new(mockMigrator)
		m.On("Version").Return(uint(1), false, nil).Once()

		require.NoError(t, runCommand(m, []string{"version"}, zap.New(core)))
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "Current migration version", entry.Message)
		assert.EqualValues(t, 1, entry.ContextMap()["version"])
	})

	t.Run("usage errors", func(t *testing.T) {
		m := new(mockMigrator)
		for _, args := range [][]string{
			{"step"},
			{"step", "zero"},
			{"step", "0"},
			{"force"},
			{"create", "x"},
		} {
			err := runCommand(m, args, zap.NewNop())
			assert.ErrorIs(t, err, errUsage, "%v", args)
		}
		m.AssertNotCalled(t, "Steps", mock.Anything)
		m.AssertNotCalled(t, "Force", mock.Anything)
	})
}
