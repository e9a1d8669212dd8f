package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLevel(tc.in))
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: "json", Output: &buf})
	l.Debug("frame classified", "class", "dog")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "frame classified", entry["msg"])
	assert.Equal(t, "dog", entry["class"])
}

func TestNewTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: "text", Output: &buf})
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.True(t, strings.Contains(out, "shown"))
}

func TestSetAndComponent(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Set(New(Options{Format: "json", Output: &buf}))
	Component("session").Info("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session", entry["component"])
	assert.Same(t, L(), slog.Default())
}
