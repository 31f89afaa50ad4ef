// Package logging provides unit tests for logger setup.
package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseLevel tests level string mapping.
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestSetup_InvalidLevel tests that a bad level is rejected before any
// handler is installed.
func TestSetup_InvalidLevel(t *testing.T) {
	_, err := Setup("verbose", "")
	assert.Error(t, err)
}

// TestSetup_LogFileFanout tests that records reach the configured file.
func TestSetup_LogFileFanout(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "fsload.log")
	closer, err := Setup("debug", path)
	require.NoError(t, err)

	slog.Info("workspace verified", slog.String("path", "/mnt/t"))
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "workspace verified")
	assert.Contains(t, string(data), "/mnt/t")
}

// TestMultiHandler_ForwardsToAll tests fan-out and level gating.
func TestMultiHandler_ForwardsToAll(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h)

	logger.Debug("quiet detail")
	logger.Warn("loud problem")

	assert.Contains(t, a.String(), "quiet detail")
	assert.Contains(t, a.String(), "loud problem")
	assert.NotContains(t, b.String(), "quiet detail")
	assert.Contains(t, b.String(), "loud problem")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "sink")})
	slog.New(withAttrs).Warn("tagged")
	assert.Contains(t, b.String(), "component=sink")
}
