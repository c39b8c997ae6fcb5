package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"critical", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestHandle_PerSinkLevels(t *testing.T) {
	var quiet, verbose bytes.Buffer
	h := New("unit-a", []Sink{
		FileSink(&quiet, LevelWarn),
		FileSink(&verbose, LevelDebug),
	})

	h.Debug("debug line")
	h.Warn("warn line")

	assert.Equal(t, LevelDebug, h.Level())
	assert.NotContains(t, quiet.String(), "debug line")
	assert.Contains(t, quiet.String(), "warn line")
	assert.Contains(t, verbose.String(), "debug line")
	assert.Contains(t, verbose.String(), `"unit":"unit-a"`)
}

func TestHandle_WithVerbosityOverridesEverySink(t *testing.T) {
	var a, b bytes.Buffer
	h := New("unit-b", []Sink{
		FileSink(&a, LevelError),
		FileSink(&b, LevelInfo),
	}, WithVerbosity(LevelDebug))

	require.Equal(t, LevelDebug, h.Level())
	for _, s := range h.Sinks() {
		assert.Equal(t, LevelDebug, s.Level, s.Name)
	}

	h.Debug("hello", String("k", "v"))
	assert.Contains(t, a.String(), "hello")
	assert.Contains(t, b.String(), `"k":"v"`)
}

func TestHandle_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	h := New("unit-c", []Sink{FileSink(&buf, LevelInfo)}).With(String("session", "s1"))

	h.Info("tagged")
	assert.Contains(t, buf.String(), `"session":"s1"`)
}

func TestHandle_NoSinksDiscards(t *testing.T) {
	h := New("silent", nil)
	h.Error("nobody hears this")
	assert.Empty(t, h.Sinks())
}
