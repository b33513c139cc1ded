package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Level(t *testing.T) {
	log, err := NewLogger("warn", "json", "test")
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNewLoggerWithOptions_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")

	log, err := NewLoggerWithOptions(Options{
		Level:       "info",
		Format:      "console",
		ServiceName: "test",
		File:        path,
	})
	require.NoError(t, err)

	log.Info("queued action replayed")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "queued action replayed")
	assert.Contains(t, string(data), `"service_name":"test"`)
}

func TestParseLevel_DefaultsToInfo(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
}
