// Package encoder implements the worker's video- and audio-encoder
// primitives: a configure/encode/flush/close lifecycle backed by an
// FFmpeg subprocess per stream, a synchronous support query, a
// per-chunk output callback, and an asynchronous error channel. Process
// lifecycle is handled by the ffmpeg wrapper package; output demuxing
// follows the same MPEG-TS parsing approach used elsewhere in this
// tree.
package encoder

import (
	"context"
	"slices"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/ffmpeg"
)

// Supported reports whether ffmpeg (as described by info) carries an encoder
// for v under hwaccel. This is the primitive's synchronous support query;
// the worker's codec manager does not call it and negotiates with its own
// support check.
func Supported(info *ffmpeg.BinaryInfo, v codec.Video, hwaccel codec.HWAccel) bool {
	if info == nil {
		return false
	}
	return slices.Contains(info.Encoders, codec.GetVideoEncoder(v, hwaccel))
}

// AudioSupported is Supported's audio-codec counterpart.
func AudioSupported(info *ffmpeg.BinaryInfo, a codec.Audio) bool {
	if info == nil {
		return false
	}
	return slices.Contains(info.Encoders, codec.GetAudioEncoder(a))
}

// Detect is a small convenience wrapper so callers that only need a one-shot
// BinaryInfo don't have to construct their own BinaryDetector.
func Detect(ctx context.Context) (*ffmpeg.BinaryInfo, error) {
	return ffmpeg.NewBinaryDetector().Detect(ctx)
}
