package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(Options{Format: "json", Level: "info", Output: &buf})
	log.Info("sent", "recipient", "a@example.com", "account", "alice")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "sent", rec["msg"])
	require.Equal(t, "a@example.com", rec["recipient"])
	require.Equal(t, "alice", rec["account"])
}

func TestNew_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(Options{Format: "text", Level: "warn", Output: &buf})
	log.Info("hidden")
	log.Warn("visible")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "visible")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMultiHandler_FansOut(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	h := newMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	log := slog.New(h).With("run_id", "r1")

	log.Info("progress")
	log.Error("fatal")

	require.Contains(t, a.String(), "progress")
	require.Contains(t, a.String(), "fatal")
	require.NotContains(t, b.String(), "progress")
	require.Contains(t, b.String(), "run_id=r1")
	require.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}
