package types

// Container is the output container format.
type Container string

const (
	ContainerMP4  Container = "mp4"
	ContainerWebM Container = "webm"
)

// LatencyMode selects batch (single finalized buffer) vs realtime (streamed
// fragments) muxing.
type LatencyMode string

const (
	LatencyQuality  LatencyMode = "quality"
	LatencyRealtime LatencyMode = "realtime"
)

// FirstTimestampBehavior controls how the scheduler treats a non-zero first
// submitted timestamp. Defaults to Offset.
type FirstTimestampBehavior string

const (
	FirstTimestampStrict      FirstTimestampBehavior = "strict"
	FirstTimestampOffset      FirstTimestampBehavior = "offset"
	FirstTimestampPassthrough FirstTimestampBehavior = "passthrough"
)

// CodecConfig names the preferred codec family for each stream.
type CodecConfig struct {
	Video string // e.g. "avc", "hevc", "vp9", "av1"
	Audio string // e.g. "aac", "opus"
}

// EncoderConfig is the immutable-after-start pipeline configuration described
// in the design
type EncoderConfig struct {
	Width  int
	Height int

	FrameRate int // nominal frames per second, > 0

	VideoBitrate int // bits/second, 0 disables video
	AudioBitrate int // bits/second, 0 disables audio

	SampleRate int // audio sample rate, > 0 when audio enabled
	Channels   int // audio channel count, > 0 when audio enabled

	Container   Container
	LatencyMode LatencyMode
	Codec       CodecConfig

	FirstTimestampBehavior FirstTimestampBehavior

	// MaxQueueDepth bounds realtime backpressure. Zero means the
	// package default of 10 applies.
	MaxQueueDepth int

	// HWAccelPreference is a supplement: "auto", "none", or a
	// concrete accelerator name ("vaapi", "cuda", "qsv", "videotoolbox").
	// Never changes the negotiated codec family, only the concrete encoder.
	HWAccelPreference string

	// ExtraVideoArgs/ExtraAudioArgs are advanced passthrough FFmpeg output
	// options (e.g. "-preset veryfast -tune zerolatency"), validated with
	// ffmpeg.ValidateCustomFlags before being applied to the encoder's
	// CommandBuilder. Most callers leave these empty.
	ExtraVideoArgs string
	ExtraAudioArgs string
}

// DefaultMaxQueueDepth is the default for max_queue_depth.
const DefaultMaxQueueDepth = 10

// AudioEnabled reports whether the config requests an audio stream.
func (c *EncoderConfig) AudioEnabled() bool {
	return c.AudioBitrate > 0
}

// VideoEnabled reports whether the config requests a video stream.
func (c *EncoderConfig) VideoEnabled() bool {
	return c.VideoBitrate > 0
}

// Validate checks the invariants from the data model table.
func (c *EncoderConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return NewError(KindConfigurationError, "width and height must be > 0")
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		return NewError(KindConfigurationError, "width and height must be even")
	}
	if c.FrameRate <= 0 {
		return NewError(KindConfigurationError, "frame_rate must be > 0")
	}
	if c.VideoBitrate < 0 || c.AudioBitrate < 0 {
		return NewError(KindConfigurationError, "bitrates must be >= 0")
	}
	if c.AudioEnabled() && (c.SampleRate <= 0 || c.Channels <= 0) {
		return NewError(KindConfigurationError, "sample_rate and channels must be > 0 when audio is enabled")
	}
	switch c.Container {
	case ContainerMP4, ContainerWebM:
	default:
		return NewError(KindConfigurationError, "container must be mp4 or webm")
	}
	switch c.LatencyMode {
	case LatencyQuality, LatencyRealtime:
	default:
		return NewError(KindConfigurationError, "latency_mode must be quality or realtime")
	}
	return nil
}

// EffectiveMaxQueueDepth returns MaxQueueDepth or the package default.
func (c *EncoderConfig) EffectiveMaxQueueDepth() int {
	if c.MaxQueueDepth > 0 {
		return c.MaxQueueDepth
	}
	return DefaultMaxQueueDepth
}

// EffectiveFirstTimestampBehavior returns FirstTimestampBehavior or the
// the default (offset).
func (c *EncoderConfig) EffectiveFirstTimestampBehavior() FirstTimestampBehavior {
	if c.FirstTimestampBehavior != "" {
		return c.FirstTimestampBehavior
	}
	return FirstTimestampOffset
}
