package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/abgdnv/shelfstock/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestToLevel(t *testing.T) {
	testCases := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "WARN", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "", expected: slog.LevelInfo},
		{level: "unknown", expected: slog.LevelInfo},
	}
	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			require.Equal(t, tc.expected, toLevel(tc.level))
		})
	}
}

func TestNewLogger_JSONByDefault(t *testing.T) {
	// given
	var buf bytes.Buffer
	log := newLogger(&buf, config.LogConfig{Level: "info"})

	// when
	log.InfoContext(context.Background(), "stock moved", slog.String("product_code", "MILK"))
	log.Debug("hidden")

	// then
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "stock moved", entry["msg"])
	require.Equal(t, "MILK", entry["product_code"])
}

func TestNewLogger_Text(t *testing.T) {
	// given
	var buf bytes.Buffer
	log := newLogger(&buf, config.LogConfig{Level: "info", Format: "text"})

	// when
	log.Info("stock moved")

	// then
	require.Contains(t, buf.String(), "msg=\"stock moved\"")
}
