// Package encodepipe re-exports the encode pipeline's wire types for
// embedders that want to construct frames, audio samples, and configuration
// without importing the internal pipeline packages directly: a thin public
// alias layer over an internal implementation.
package encodepipe

import "github.com/encodecore/encodecore/internal/pipeline/types"

// Type aliases let callers use encodepipe.Frame, encodepipe.EncoderConfig,
// etc. interchangeably with the internal pipeline's own types; no copying or
// adaptation occurs at this boundary.
type (
	Frame        = types.Frame
	AudioSample  = types.AudioSample
	AudioFormat  = types.AudioFormat
	EncodedChunk = types.EncodedChunk
	ChunkType    = types.ChunkType

	EncoderConfig = types.EncoderConfig
	CodecConfig   = types.CodecConfig
	Container     = types.Container
	LatencyMode   = types.LatencyMode

	PipelineState = types.PipelineState

	Error = types.Error
	Kind  = types.Kind
)

// Re-exported Kind values, used by embedders to match on Error.Kind.
const (
	KindUnknown              = types.KindUnknown
	KindNotSupported         = types.KindNotSupported
	KindConfigurationError   = types.KindConfigurationError
	KindInitializationFailed = types.KindInitializationFailed
	KindInvalidInput         = types.KindInvalidInput
	KindVideoEncodingError   = types.KindVideoEncodingError
	KindAudioEncodingError   = types.KindAudioEncodingError
	KindMuxingFailed         = types.KindMuxingFailed
	KindCancelled            = types.KindCancelled
	KindInternalError        = types.KindInternalError
	KindInvalidState         = types.KindInvalidState
	KindTimestampOrdering    = types.KindTimestampOrdering
	KindUnknownLength        = types.KindUnknownLength
)

// Re-exported constants mirror the internal enum values.
const (
	ContainerMP4  = types.ContainerMP4
	ContainerWebM = types.ContainerWebM

	LatencyQuality  = types.LatencyQuality
	LatencyRealtime = types.LatencyRealtime

	ChunkDelta = types.ChunkDelta
	ChunkKey   = types.ChunkKey

	AudioFormatPlanarF32 = types.AudioFormatPlanarF32
)

// NewError and Wrap are re-exported so embedders can construct pipeline
// errors without an internal import.
var (
	NewError = types.NewError
	Wrap     = types.Wrap
)
