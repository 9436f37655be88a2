package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, "", cfg.FFmpeg.BinaryPath)
	assert.Equal(t, []string{"vaapi", "cuda", "qsv", "videotoolbox"}, cfg.FFmpeg.HWAccelPriority)

	assert.Equal(t, defaultMaxQueueDepth, cfg.Pipeline.MaxQueueDepth)
	assert.Equal(t, time.Second, cfg.Pipeline.StatsInterval.Duration())
	assert.Equal(t, int64(defaultMaxFragmentBytes), cfg.Pipeline.MaxFragmentBuffer.Bytes())
	assert.Equal(t, defaultShutdownTimeout, cfg.Pipeline.ShutdownTimeout)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"
  format: "text"

ffmpeg:
  binary_path: "/usr/local/bin/ffmpeg"
  hwaccel_priority: ["vaapi"]

pipeline:
  max_queue_depth: 4
  max_fragment_buffer: "16MB"
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.FFmpeg.BinaryPath)
	assert.Equal(t, []string{"vaapi"}, cfg.FFmpeg.HWAccelPriority)
	assert.Equal(t, 4, cfg.Pipeline.MaxQueueDepth)
	assert.Equal(t, int64(16*1024*1024), cfg.Pipeline.MaxFragmentBuffer.Bytes())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ENCODECORE_LOGGING_LEVEL", "warn")
	t.Setenv("ENCODECORE_PIPELINE_MAX_QUEUE_DEPTH", "2")
	t.Setenv("ENCODECORE_FFMPEG_BINARY_PATH", "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Pipeline.MaxQueueDepth)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpeg.BinaryPath)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "info"
pipeline:
  max_queue_depth: 10
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	t.Setenv("ENCODECORE_PIPELINE_MAX_QUEUE_DEPTH", "20")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Pipeline.MaxQueueDepth)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Pipeline: PipelineConfig{MaxQueueDepth: 10},
	}

	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := &Config{
		Logging:  LoggingConfig{Level: "invalid", Format: "json"},
		Pipeline: PipelineConfig{MaxQueueDepth: 10},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := &Config{
		Logging:  LoggingConfig{Level: "info", Format: "xml"},
		Pipeline: PipelineConfig{MaxQueueDepth: 10},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate_InvalidMaxQueueDepth(t *testing.T) {
	tests := []struct {
		name  string
		depth int
	}{
		{"zero", 0},
		{"negative", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Logging:  LoggingConfig{Level: "info", Format: "json"},
				Pipeline: PipelineConfig{MaxQueueDepth: tt.depth},
			}
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "max_queue_depth")
		})
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
logging:
  level: "info"
  invalid yaml structure
`
	err := os.WriteFile(configPath, []byte(invalidContent), 0o600)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
