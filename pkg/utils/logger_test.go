package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestZeroLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON, &buf)

	logger.Debug("hidden %d", 1)
	logger.WithField("trace", "t1").Info("loaded %d events", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "loaded 42 events", entry["message"])
	assert.Equal(t, "t1", entry["trace"])
}

func TestZeroLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelDebug, FormatConsole, &buf)
	logger.WithFields(map[string]interface{}{"block": 3}).Warn("evicted")
	assert.Contains(t, buf.String(), "evicted")
	assert.Contains(t, buf.String(), "block=")
}

func TestNullLogger(t *testing.T) {
	var l Logger = &NullLogger{}
	l.Info("nothing")
	assert.Same(t, l, l.WithField("k", "v"))
}

func TestGlobalLogger(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	null := &NullLogger{}
	SetGlobalLogger(null)
	assert.Same(t, Logger(null), GetGlobalLogger())
}
