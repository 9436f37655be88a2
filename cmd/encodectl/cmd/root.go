// Package cmd implements the CLI commands for encodectl.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/encodecore/encodecore/internal/config"
	"github.com/encodecore/encodecore/internal/observability"
	"github.com/encodecore/encodecore/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cliViper is a separate viper instance for encodectl's own flags/env so
// it never collides with a Load'd process config.Config.
var cliViper = viper.New()

var rootCmd = &cobra.Command{
	Use:     "encodectl",
	Short:   "Drive the encode pipeline core from the command line",
	Version: version.Short(),
	Long: `encodectl is a thin command-line facade over the encode pipeline core:
a controller/worker pair that turns raw video frames and audio samples
into a fragmented MP4 or WebM byte stream.

It exists to exercise the pipeline end to end without reimplementing the
browser-facing convenience facade, which is out of scope for this module.

Configuration is primarily via environment variables, prefixed ENCODECORE_:
  ENCODECORE_FFMPEG_BINARY_PATH   - path to the ffmpeg binary (auto-detected if unset)
  ENCODECORE_PIPELINE_MAX_QUEUE_DEPTH - realtime backpressure threshold

Example:
  encodectl encode --frames-dir ./frames --width 320 --height 240 \
    --frame-rate 30 --container mp4 --out output.mp4`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
	rootCmd.PersistentFlags().String("ffmpeg-path", "", "path to the ffmpeg binary (auto-detect if empty)")
}

func initConfig() {
	cliViper.SetEnvPrefix("ENCODECORE")
	cliViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	cliViper.AutomaticEnv()
}

// initLogging configures the slog logger for the CLI process.
func initLogging() error {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	format, _ := rootCmd.PersistentFlags().GetString("log-format")

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}

	logCfg := config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)

	return nil
}

// ffmpegPath returns the --ffmpeg-path flag, then ENCODECORE_FFMPEG_BINARY_PATH,
// falling back to "ffmpeg" for PATH-based lookup.
func ffmpegPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("ffmpeg-path")
	if path == "" {
		path = cliViper.GetString("ffmpeg.binary_path")
	}
	if path == "" {
		path = "ffmpeg"
	}
	return path
}
