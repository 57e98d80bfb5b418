package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupReturnsLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "bogus", ""} {
		logger := Setup(level)
		require.NotNil(t, logger, "Setup(%q) should return a logger", level)
	}
}

func TestFromContextRoundTrip(t *testing.T) {
	base := slog.New(slog.NewTextHandler(io.Discard, nil)).With("component", "test")

	ctx := WithContext(context.Background(), base)
	got := FromContext(ctx)
	assert.Same(t, base, got)
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	got := FromContext(context.Background())
	require.NotNil(t, got)
	assert.Same(t, slog.Default(), got)
}
