package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petakeu/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestInitializeLogger(t *testing.T) {
	t.Cleanup(ResetLoggerForTesting)
	ResetLoggerForTesting()

	logPath := filepath.Join(t.TempDir(), "logs", "petakeu.log")
	logger, err := InitializeLogger(config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logPath,
	})
	require.NoError(t, err)
	require.NotNil(t, logger)

	again, err := InitializeLogger(config.LoggingConfig{Level: "debug", Output: "console"})
	require.NoError(t, err)
	assert.Same(t, logger, again)
	assert.Same(t, logger, GetLogger())

	logger.Info("upload received", slog.String("upload_id", "u-1"))
	require.NoError(t, CloseLogFile())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"upload received"`)
	assert.Contains(t, string(data), `"upload_id":"u-1"`)
}

func TestNewLoggerRejectsEmptyFilePath(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "info", Output: "file"})
	assert.Error(t, err)
}

func TestTraceIDInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")

	ctx := WithTraceID(context.Background(), "trace-123")
	logger.InfoContext(ctx, "with trace")
	logger.Info("without trace")
	logger.With(slog.String("component", "uploads")).InfoContext(ctx, "derived")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "trace-123", entries[0]["trace_id"])
	assert.NotContains(t, entries[1], "trace_id")
	assert.Equal(t, "trace-123", entries[2]["trace_id"])
	assert.Equal(t, "uploads", entries[2]["component"])
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}

	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn")
	logger.Info("dropped")
	logger.Warn("kept")
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
}

func TestContextHelpers(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	//nolint:staticcheck // nil context is tolerated
	assert.Empty(t, GetTraceID(nil))

	ctx := EnsureTraceID(context.Background())
	traceID := GetTraceID(ctx)
	assert.NotEmpty(t, traceID)
	assert.Equal(t, traceID, GetTraceID(EnsureTraceID(ctx)))

	assert.NotEqual(t, GenerateTraceID(), GenerateTraceID())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")

	WithComponent(logger, "reports").InfoContext(WithTraceID(context.Background(), "abc"), "component")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0]["trace_id"])
	assert.Equal(t, "reports", entries[0]["component"])
}
