// Package config provides configuration management for encodecore using
// Viper. It supports configuration from file, environment variables, and
// defaults, scoped to the process-level settings around the pipeline
// (FFmpeg binary discovery, backpressure defaults, logging) plus the
// default EncoderConfig a caller can start from.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultMaxQueueDepth    = 10
	defaultStatsInterval    = time.Second
	defaultMaxFragmentBytes = 8 * 1024 * 1024
	defaultShutdownTimeout  = 10 * time.Second
)

// Config holds all process-level configuration for encodecore.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration consumed by
// worker/encoder's platform-encoder-primitive implementation.
type FFmpegConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`      // path to ffmpeg binary (empty = auto-detect)
	ProbePath       string   `mapstructure:"probe_path"`       // path to ffprobe binary (empty = auto-detect)
	HWAccelPriority []string `mapstructure:"hwaccel_priority"` // preference order for the hwaccel supplement
}

// PipelineConfig holds process-wide pipeline defaults applied when an
// EncoderConfig field is left unset.
type PipelineConfig struct {
	// MaxQueueDepth is the default realtime backpressure threshold,
	// overridden per-pipeline by EncoderConfig.MaxQueueDepth.
	MaxQueueDepth int `mapstructure:"max_queue_depth"`

	// StatsInterval paces the process-stats supplement
	// (CPU%/RSS reporting alongside queueSize). Human-readable (e.g. "500ms").
	StatsInterval Duration `mapstructure:"stats_interval"`

	// MaxFragmentBuffer bounds the realtime muxer's in-flight fragment
	// buffer before backpressure applies. Human-readable (e.g. "8MB").
	MaxFragmentBuffer ByteSize `mapstructure:"max_fragment_buffer"`

	// ShutdownTimeout is loaded with the rest of the pipeline settings; the
	// controller does not read it, and its Cancel returns without waiting
	// for worker cleanup.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with ENCODECORE_, using underscores for nesting (e.g.
// ENCODECORE_FFMPEG_BINARY_PATH).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/encodecore")
		v.AddConfigPath("$HOME/.encodecore")
	}

	v.SetEnvPrefix("ENCODECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options. This
// should be called before reading the config file to ensure defaults are in
// place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"vaapi", "cuda", "qsv", "videotoolbox"})

	v.SetDefault("pipeline.max_queue_depth", defaultMaxQueueDepth)
	v.SetDefault("pipeline.stats_interval", defaultStatsInterval.String())
	v.SetDefault("pipeline.max_fragment_buffer", defaultMaxFragmentBytes)
	v.SetDefault("pipeline.shutdown_timeout", defaultShutdownTimeout)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	if c.Pipeline.MaxQueueDepth < 1 {
		return fmt.Errorf("pipeline.max_queue_depth must be at least 1")
	}
	return nil
}
