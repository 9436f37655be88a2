// Package source implements the Source Adapter: it normalizes
// any of the four supported input shapes — a finite frame sequence, a
// live media stream, a caller-paced async iterator, and a pre-recorded
// media file — into the single Source interface the Frame Scheduler
// drives. The tagged-dispatch-over-input-kind approach mirrors how the
// transcode coordinator picks between its TS and fMP4 muxers based on
// source codec, applied here to one constructor per input shape.
package source

import (
	"context"

	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// Source is the uniform lazy sequence the Frame Scheduler drives.
// Implementations need not support audio; NextAudioSample then always
// returns ok=false.
type Source interface {
	// NextVideoFrame returns the next frame, or ok=false when the source is
	// exhausted. err is InvalidInput on a malformed upstream element.
	NextVideoFrame(ctx context.Context) (frame *types.Frame, ok bool, err error)

	// NextAudioSample returns the next audio block, or ok=false when no
	// more audio is available (including "this source carries no audio").
	NextAudioSample(ctx context.Context) (sample *types.AudioSample, ok bool, err error)

	// TotalFrames returns the known frame count. err is KindUnknownLength
	// when the source cannot derive a length (the design: "fails with
	// UnknownLength for live and async sources").
	TotalFrames() (int, error)

	// Close releases any resources (decoder subprocesses, open files).
	Close() error
}
