package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestInitLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := InitLoggerTo(&buf, "info", "json")
	t.Cleanup(func() { InitLogger("info", "text") })

	l.Debug("hidden")
	l.Info("visible", "component", "test")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "visible", line["msg"])
	require.Equal(t, "test", line["component"])
	require.Same(t, l, GetLogger())
}
