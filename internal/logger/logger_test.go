package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("chatty"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json")

	l.Debug("hidden")
	l.Info("job started", "job_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "job started", entry["message"])
	assert.Equal(t, "abc", entry["job_id"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "text").Debug("visible")
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "visible")
}

func TestInit_ReplacesZapGlobal(t *testing.T) {
	var buf bytes.Buffer
	restore := zap.ReplaceGlobals(zap.NewNop())
	defer restore()
	prev := slog.Default()
	defer slog.SetDefault(prev)

	Init(&buf, "warn", "json")
	zap.L().Info("dropped")
	zap.L().Warn("kept", zap.String("website", "example.com"))
	Sync()

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"website":"example.com"`)
}
