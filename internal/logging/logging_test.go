package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/rejfix/internal/logging"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		got, err := logging.ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := logging.ParseLevel("loud")
	require.Error(t, err)
}

func TestNewWithWriterJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(&buf, slog.LevelDebug, "json")
	require.NoError(t, err)

	logger.Debug("anchored", "tier", "exact", "line", 12)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "anchored", record["msg"])
	assert.Equal(t, "exact", record["tier"])
	assert.InDelta(t, 12, record["line"], 0)
}

func TestNewWithWriterRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := logging.NewWithWriter(&bytes.Buffer{}, slog.LevelInfo, "xml")
	require.ErrorIs(t, err, logging.ErrInvalidFormat)
}

func TestNewWritesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.log")
	logger, closer, err := logging.New(logging.Config{Level: "info", Format: "text", Output: path})
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, closer.Close())
	assert.FileExists(t, path)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(&buf, slog.LevelInfo, "text")
	require.NoError(t, err)

	ctx := logging.WithContext(context.Background(), logger)
	ctx = logging.With(ctx, "reject", "a.rej")
	logging.FromContext(ctx).Info("processing")

	assert.Contains(t, buf.String(), "reject=a.rej")
	assert.NotNil(t, logging.FromContext(context.Background()))
}

func TestDeferredFlush(t *testing.T) {
	t.Parallel()

	var deferred logging.Deferred
	logger, err := logging.NewWithWriter(&deferred, slog.LevelInfo, "text")
	require.NoError(t, err)
	logger.Info("buffered")

	var out bytes.Buffer
	require.NoError(t, deferred.Flush(&out))
	assert.Contains(t, out.String(), "buffered")

	out.Reset()
	require.NoError(t, deferred.Flush(&out))
	assert.Empty(t, out.String())
}
