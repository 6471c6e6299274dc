package log

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"orderbook-lister/internal/config"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "lister.log")

	logger, err := NewLogger(config.LoggingConfig{
		Level:            "debug",
		Encoding:         "json",
		OutputPaths:      []string{out},
		ErrorOutputPaths: []string{"stderr"},
	})
	require.NoError(t, err)

	Component(logger, "listing").Info("hello")
	require.NoError(t, logger.Sync())
	require.FileExists(t, out)
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "loud", Encoding: "console"})
	require.Error(t, err)
}

func TestComponent_NilLogger(t *testing.T) {
	require.NotNil(t, Component(nil, "x"))
}
