package types

import "sync/atomic"

// ChunkType distinguishes a key (sync) chunk from a delta (predicted) chunk.
type ChunkType int

const (
	ChunkDelta ChunkType = iota
	ChunkKey
)

// String implements fmt.Stringer.
func (t ChunkType) String() string {
	if t == ChunkKey {
		return "key"
	}
	return "delta"
}

// Frame is a raw visual sample carrying a presentation timestamp in
// microseconds. Owned exclusively by the pipeline after submission; Release
// must be called exactly once after the worker consumes it.
type Frame struct {
	// TimestampUs is the explicit presentation timestamp in microseconds, or
	// -1 if the caller did not supply one (the scheduler then derives it from
	// the monotonic frame-rate counter).
	TimestampUs int64

	Width  int
	Height int

	// Data holds packed RGBA32 pixel data, row-major, no padding. Treated as
	// an opaque platform frame handle per the non-goals.
	Data []byte

	released atomic.Bool
}

// HasExplicitTimestamp reports whether the caller supplied a timestamp.
func (f *Frame) HasExplicitTimestamp() bool {
	return f.TimestampUs >= 0
}

// Release marks the frame as consumed. It is safe to call multiple times;
// only the first call has effect and reports true, and Released can be used by tests to
// assert the "released exactly once" invariant (the design, invariant 4).
func (f *Frame) Release() bool {
	return f.released.CompareAndSwap(false, true)
}

// Released reports whether Release has already been called.
func (f *Frame) Released() bool {
	return f.released.Load()
}

// AudioFormat describes the layout of a planar float audio buffer.
type AudioFormat int

const (
	AudioFormatPlanarF32 AudioFormat = iota
)

// AudioSample is a block of audio held as a planar array of 32-bit floats
// with declared format.
type AudioSample struct {
	TimestampUs int64 // -1 if not explicitly supplied

	SampleRate  int
	FrameCount  int
	Channels    int
	Format      AudioFormat
	PlanarFloat [][]float32 // one slice per channel, len == FrameCount

	released atomic.Bool
}

// HasExplicitTimestamp reports whether the caller supplied a timestamp.
func (a *AudioSample) HasExplicitTimestamp() bool {
	return a.TimestampUs >= 0
}

// DurationUs returns the block's duration in microseconds, derived from
// frame count and sample rate (the audio timestamp advance rule).
func (a *AudioSample) DurationUs() int64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return int64(a.FrameCount) * 1_000_000 / int64(a.SampleRate)
}

// Release marks the sample as consumed; safe to call multiple times.
func (a *AudioSample) Release() bool {
	return a.released.CompareAndSwap(false, true)
}

// Released reports whether Release has already been called.
func (a *AudioSample) Released() bool {
	return a.released.Load()
}

// EncodedChunk is the output of an encoder: opaque bytes, a type, a
// timestamp, and optional codec-description metadata emitted on the first
// chunk after (re)configuration.
type EncodedChunk struct {
	Data        []byte
	Type        ChunkType
	TimestampUs int64
	DurationUs  int64

	// DecoderConfig is non-nil only on the first chunk after (re)configuration.
	DecoderConfig []byte
}
