package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"debug", "debug", false},
		{"INFO", "info", false},
		{"", "info", false},
		{"warning", "warn", false},
		{"ERROR", "error", false},
		{"verbose", "info", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lvl, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, lvl.String())
		})
	}
}

func TestZapLogger_WritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLoggerWithWriter("DEBUG", &buf)
	require.NoError(t, err)

	logger.WithField("component", "engine").Info("fill",
		"symbol", "AAPL",
		"price", decimal.RequireFromString("101.25"),
		"error", errors.New("boom"),
	)
	_ = logger.Sync()

	out := buf.String()
	assert.Contains(t, out, "fill")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "101.25")
	assert.Contains(t, out, "engine")
	assert.Contains(t, out, "boom")
}

func TestZapLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLoggerWithWriter("WARN", &buf)
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestZapLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewZapLogger("chatty")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	logger := NewNop()
	logger.WithFields(map[string]interface{}{"a": 1}).Error("dropped", "k", "v")
}
