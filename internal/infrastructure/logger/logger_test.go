package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.NotEmpty(t, cfg.TimeFormat)
}

func TestProductionConfig(t *testing.T) {
	cfg := ProductionConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "default config", cfg: DefaultConfig()},
		{name: "production config", cfg: ProductionConfig()},
		{
			name: "stderr json",
			cfg: &Config{
				Level:      "warn",
				Format:     "json",
				Output:     "stderr",
				TimeFormat: "2006-01-02T15:04:05Z07:00",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestNewFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channelsync.log")

	log, err := New(&Config{
		Level:      "info",
		Format:     "json",
		Output:     path,
		TimeFormat: "2006-01-02T15:04:05Z07:00",
	})
	require.NoError(t, err)

	log.Info("sync job enqueued", zap.String("job_kind", "sync.push_channel"))
	require.NoError(t, Sync(log))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sync job enqueued")
	assert.Contains(t, string(data), "sync.push_channel")
}

func TestNewFileSinkUnwritable(t *testing.T) {
	_, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: filepath.Join(t.TempDir(), "no-such-dir", "channelsync.log"),
	})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestJSONOutputShape(t *testing.T) {
	var buf bytes.Buffer

	core := zapcore.NewCore(
		buildEncoder(&Config{Format: "json", TimeFormat: "2006-01-02T15:04:05Z07:00"}),
		zapcore.AddSync(&buf),
		zapcore.InfoLevel,
	)
	log := zap.New(core)

	log.Info("webhook accepted", zap.String("channel_type", "SHOPIFY"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "webhook accepted", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "SHOPIFY", line["channel_type"])
	assert.Contains(t, line, "time")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	core := zapcore.NewCore(
		buildEncoder(&Config{Format: "json", TimeFormat: "2006-01-02T15:04:05Z07:00"}),
		zapcore.AddSync(&buf),
		zapcore.WarnLevel,
	)
	log := zap.New(core)

	log.Info("reconcile pass finished")
	assert.Empty(t, buf.String(), "info suppressed at warn level")

	log.Warn("breaker opened")
	assert.Contains(t, buf.String(), "breaker opened")
}

func TestOpenSink(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "STDOUT", ""} {
		sink, err := openSink(output)
		require.NoError(t, err)
		assert.NotNil(t, sink)
	}
}
