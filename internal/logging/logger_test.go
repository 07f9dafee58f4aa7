package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, JSON: true, Writer: &buf})

	log.Info("dropped")
	log.With("pass", "extract").Warn("kept", "items", 3)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "extract", rec["pass"])
	assert.Equal(t, float64(3), rec["items"])
	assert.Equal(t, "specc", rec["component"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": LevelDebug, "WARN": LevelWarn, "": LevelInfo, "error": LevelError}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseLevel("loud")
	assert.False(t, ok)
}

func TestNilLoggerIsSilent(t *testing.T) {
	var log *Logger
	assert.NotPanics(t, func() { log.With("k", "v").Info("x") })
	assert.NotPanics(t, func() { Discard().Error("x") })
}
