package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, closeFn, err := New(Options{Development: true})
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("development logger ready")
	_ = closeFn()
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, closeFn, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
	_ = closeFn()
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, _, err := New(Options{Level: "chatty"})
	require.Error(t, err)
}

func TestFileTee(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "harvest.log")
	logger, closeFn, err := New(Options{File: path, Level: "info"})
	require.NoError(t, err)

	logger.Info("window harvested", zap.String("window", "2024-01-01_2024-01-10"))
	logger.Debug("hidden")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "window harvested", entry["msg"])
	assert.Equal(t, "2024-01-01_2024-01-10", entry["window"])
}
