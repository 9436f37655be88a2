package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/encodecore/encodecore/internal/pipeline/controller"
	"github.com/encodecore/encodecore/internal/pipeline/source"
	"github.com/encodecore/encodecore/internal/pipeline/types"
	"github.com/spf13/cobra"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a directory of raw RGBA frames into a fragmented MP4 or WebM file",
	Long: `encode drives the Controller against a finite frame
source (the "finite frame sequence" input shape) built from a
directory of raw, packed-RGBA32 frame files, and writes the resulting
output to disk.

Frame files are read in lexical filename order; each must be exactly
width*height*4 bytes.`,
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().String("frames-dir", "", "directory of raw RGBA32 frame files (required)")
	encodeCmd.Flags().String("out", "out.mp4", "output file path")
	encodeCmd.Flags().Int("width", 0, "frame width in pixels (required, even)")
	encodeCmd.Flags().Int("height", 0, "frame height in pixels (required, even)")
	encodeCmd.Flags().Int("frame-rate", 30, "nominal frames per second")
	encodeCmd.Flags().Int("video-bitrate", 2_000_000, "target video bitrate, bits/second (0 disables video)")
	encodeCmd.Flags().Int("audio-bitrate", 0, "target audio bitrate, bits/second (0 disables audio)")
	encodeCmd.Flags().String("container", "mp4", "output container: mp4 or webm")
	encodeCmd.Flags().String("latency-mode", "quality", "quality (batch) or realtime (streamed fragments)")
	encodeCmd.Flags().String("video-codec", "avc", "preferred video codec family")
	encodeCmd.Flags().String("audio-codec", "aac", "preferred audio codec family")
	encodeCmd.Flags().String("hwaccel", "auto", "hardware accelerator preference: auto, none, vaapi, cuda, qsv, videotoolbox")
	encodeCmd.Flags().String("extra-video-args", "", "advanced passthrough FFmpeg output args for the video encoder (validated)")
	encodeCmd.Flags().String("extra-audio-args", "", "advanced passthrough FFmpeg output args for the audio encoder (validated)")
	_ = encodeCmd.MarkFlagRequired("frames-dir")
	_ = encodeCmd.MarkFlagRequired("width")
	_ = encodeCmd.MarkFlagRequired("height")
}

func runEncode(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	framesDir, _ := cmd.Flags().GetString("frames-dir")
	out, _ := cmd.Flags().GetString("out")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	frameRate, _ := cmd.Flags().GetInt("frame-rate")
	videoBitrate, _ := cmd.Flags().GetInt("video-bitrate")
	audioBitrate, _ := cmd.Flags().GetInt("audio-bitrate")
	containerStr, _ := cmd.Flags().GetString("container")
	latencyStr, _ := cmd.Flags().GetString("latency-mode")
	videoCodec, _ := cmd.Flags().GetString("video-codec")
	audioCodec, _ := cmd.Flags().GetString("audio-codec")
	hwaccel, _ := cmd.Flags().GetString("hwaccel")
	extraVideoArgs, _ := cmd.Flags().GetString("extra-video-args")
	extraAudioArgs, _ := cmd.Flags().GetString("extra-audio-args")

	frames, err := loadFrames(framesDir, width, height)
	if err != nil {
		return fmt.Errorf("loading frames: %w", err)
	}
	logger.Info("loaded frames", "count", len(frames), "dir", framesDir)

	cfg := types.EncoderConfig{
		Width:        width,
		Height:       height,
		FrameRate:    frameRate,
		VideoBitrate: videoBitrate,
		AudioBitrate: audioBitrate,
		Container:    types.Container(containerStr),
		LatencyMode:  types.LatencyMode(latencyStr),
		Codec: types.CodecConfig{
			Video: videoCodec,
			Audio: audioCodec,
		},
		HWAccelPreference: hwaccel,
		ExtraVideoArgs:    extraVideoArgs,
		ExtraAudioArgs:    extraAudioArgs,
		MaxQueueDepth:     cliViper.GetInt("pipeline.max_queue_depth"),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	outFile, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating output file %s: %w", out, err)
	}
	defer outFile.Close()

	ctrl := controller.New(controller.Config{
		Logger:     logger,
		FFmpegPath: ffmpegPath(cmd),
		Callbacks: controller.Callbacks{
			OnProgress: func(p types.ProgressMsg) {
				logger.Info("progress", "processed_frames", p.ProcessedFrames, "fps", p.FPS)
			},
			OnDataChunk: func(c types.DataChunkMsg) {
				if _, err := outFile.Write(c.Bytes); err != nil {
					logger.Error("writing fragment", "error", err)
				}
			},
		},
	})

	if info, err := ctrl.DetectCapabilities(cmd.Context()); err != nil {
		logger.Warn("capability detection failed, negotiating unconditionally", "error", err)
	} else {
		logger.Info("detected ffmpeg", "version", info.Version)
	}

	src := source.NewFiniteFrames(frames)
	defer src.Close()

	ctx := context.Background()
	bytes, err := ctrl.RunSource(ctx, src, cfg)
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	ctrl.Wait()

	if len(bytes) > 0 {
		if _, err := outFile.Write(bytes); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}

	logger.Info("encode complete",
		"output", out,
		"actual_video_codec", ctrl.ActualVideoCodec(),
		"actual_audio_codec", ctrl.ActualAudioCodec(),
	)
	return nil
}

// loadFrames reads every regular file in dir, in lexical order, as a packed
// RGBA32 frame of exactly width*height*4 bytes (the Frame: "owned
// exclusively by the pipeline after submission").
func loadFrames(dir string, width, height int) ([]*types.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	wantSize := width * height * 4
	frames := make([]*types.Frame, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if len(data) != wantSize {
			return nil, fmt.Errorf("%s: expected %d bytes (%dx%d RGBA32), got %d", name, wantSize, width, height, len(data))
		}
		frames = append(frames, &types.Frame{
			TimestampUs: -1,
			Width:       width,
			Height:      height,
			Data:        data,
		})
	}
	return frames, nil
}
