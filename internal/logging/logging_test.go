package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsToInfo(t *testing.T) {
	logger, level, err := New(Config{Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, zapcore.InfoLevel, level.Level())
}

func TestNewAppliesCustomLevel(t *testing.T) {
	_, level, err := New(Config{Level: "debug", Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}

func TestNewRejectsInvalidInput(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, _, err = New(Config{Encoding: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log encoding")
}

func TestJSONEncoding(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Config{Level: "warn", Encoding: "json", Writer: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("index conflict", zap.String("collection", "users"))
	require.NoError(t, logger.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "index conflict", line["msg"])
	assert.Equal(t, "users", line["collection"])
}

func TestLevelIsAdjustable(t *testing.T) {
	var buf bytes.Buffer
	logger, level, err := New(Config{Level: "error", Writer: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	level.SetLevel(zapcore.DebugLevel)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
