package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesToFile(t *testing.T) {
	t.Cleanup(func() { Use(nil) })
	path := filepath.Join(t.TempDir(), "logs", "restorepick.log")

	require.NoError(t, Init(Config{Level: "debug", Format: "json", OutputPath: path}))
	L().Info("listing fetched", zap.String("path", "/wp-content"))
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "listing fetched")
	assert.Contains(t, string(data), "/wp-content")
}

func TestSetLevelFiltersDebug(t *testing.T) {
	t.Cleanup(func() { Use(nil) })
	path := filepath.Join(t.TempDir(), "restorepick.log")

	require.NoError(t, Init(Config{Level: "info", OutputPath: path}))
	L().Debug("hidden")
	SetLevel("debug")
	L().Debug("shown")
	SetLevel("not-a-level")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestLWithoutInitIsNop(t *testing.T) {
	Use(nil)
	assert.NotPanics(t, func() {
		L().Info("dropped")
		S().Infow("dropped", "k", "v")
	})
}
