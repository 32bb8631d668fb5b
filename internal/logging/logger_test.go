package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Level: "debug", Development: true})
	require.NoError(t, err)
	defer Sync(logger)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	logger.Info("development logger ready")
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	defer Sync(logger)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewOffIsNop(t *testing.T) {
	t.Parallel()

	for _, level := range []string{"", "off", "OFF"} {
		logger, err := New(Config{Level: level})
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel), level)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Level: "chatty"})
	require.Error(t, err)
}

func TestNewTeesToRotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "probe.log")
	logger, err := New(Config{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)

	logger.Info("chain recorded")
	logger.Debug("filtered out")
	Sync(logger)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"chain recorded"`)
	assert.NotContains(t, string(data), "filtered out")
}
