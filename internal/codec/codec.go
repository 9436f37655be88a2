// Package codec provides a unified codec registry for the video and audio
// codec families the encode pipeline can negotiate, plus their mapping onto
// concrete FFmpeg encoder names and hardware accelerators.
package codec

import "strings"

// Video represents a video codec family.
type Video string

// Video codec family constants. These are the families the pipeline's
// codec negotiation step (the worker's codecmanager) resolves a requested
// family into, per the encode pipeline's codec table.
const (
	VideoH264 Video = "h264" // H.264/AVC
	VideoH265 Video = "h265" // H.265/HEVC
	VideoVP8  Video = "vp8"  // VP8
	VideoVP9  Video = "vp9"  // VP9 (fMP4/WebM only)
	VideoAV1  Video = "av1"  // AV1 (fMP4/WebM only)
)

// Audio represents an audio codec family.
type Audio string

// Audio codec family constants.
const (
	AudioAAC  Audio = "aac"  // AAC
	AudioOpus Audio = "opus" // Opus (fMP4/WebM only)
)

// Container represents an output container format.
type Container string

// Container format constants.
const (
	ContainerMP4  Container = "mp4"
	ContainerWebM Container = "webm"
)

// HWAccel represents a hardware acceleration type.
type HWAccel string

// Hardware acceleration constants.
const (
	HWAccelAuto  HWAccel = "auto"         // Auto-detect best available
	HWAccelNone  HWAccel = "none"         // Disabled (software only)
	HWAccelCUDA  HWAccel = "cuda"         // NVIDIA CUDA/NVENC
	HWAccelQSV   HWAccel = "qsv"          // Intel QuickSync
	HWAccelVAAPI HWAccel = "vaapi"        // Linux VA-API
	HWAccelVT    HWAccel = "videotoolbox" // macOS VideoToolbox
)

// String returns the string representation of the video codec.
func (v Video) String() string {
	return string(v)
}

// String returns the string representation of the audio codec.
func (a Audio) String() string {
	return string(a)
}

// String returns the string representation of the container.
func (c Container) String() string {
	return string(c)
}

// String returns the string representation of the hardware acceleration type.
func (h HWAccel) String() string {
	return string(h)
}

// videoInfo contains metadata about a video codec family.
type videoInfo struct {
	Name Video
	// Aliases are all known alternate spellings and encoder names that map
	// to this codec.
	Aliases []string
	// Encoders maps a requested hardware accelerator to the FFmpeg encoder
	// name that implements this codec under it.
	Encoders map[HWAccel]string
	// WebMCompatible reports whether this codec can be packaged into WebM.
	WebMCompatible bool
	// MP4Compatible reports whether this codec can be packaged into MP4.
	MP4Compatible bool
}

// audioInfo contains metadata about an audio codec family.
type audioInfo struct {
	Name           Audio
	Aliases        []string
	Encoder        string
	WebMCompatible bool
	MP4Compatible  bool
}

// videoRegistry contains all video codec family definitions.
var videoRegistry = map[Video]*videoInfo{
	VideoH264: {
		Name: VideoH264,
		Aliases: []string{
			"h264", "avc", "avc1", "h.264",
			"libx264", "h264_nvenc", "h264_qsv", "h264_vaapi",
			"h264_videotoolbox", "h264_amf",
		},
		Encoders: map[HWAccel]string{
			HWAccelNone:  "libx264",
			HWAccelAuto:  "libx264",
			HWAccelCUDA:  "h264_nvenc",
			HWAccelQSV:   "h264_qsv",
			HWAccelVAAPI: "h264_vaapi",
			HWAccelVT:    "h264_videotoolbox",
		},
		WebMCompatible: false,
		MP4Compatible:  true,
	},
	VideoH265: {
		Name: VideoH265,
		Aliases: []string{
			"h265", "hevc", "hev1", "hvc1", "h.265",
			"libx265", "hevc_nvenc", "hevc_qsv", "hevc_vaapi", "hevc_videotoolbox",
		},
		Encoders: map[HWAccel]string{
			HWAccelNone:  "libx265",
			HWAccelAuto:  "libx265",
			HWAccelCUDA:  "hevc_nvenc",
			HWAccelQSV:   "hevc_qsv",
			HWAccelVAAPI: "hevc_vaapi",
			HWAccelVT:    "hevc_videotoolbox",
		},
		WebMCompatible: false,
		MP4Compatible:  true,
	},
	VideoVP8: {
		Name:           VideoVP8,
		Aliases:        []string{"vp8", "libvpx"},
		Encoders:       map[HWAccel]string{HWAccelNone: "libvpx", HWAccelAuto: "libvpx"},
		WebMCompatible: true,
		MP4Compatible:  false,
	},
	VideoVP9: {
		Name:    VideoVP9,
		Aliases: []string{"vp9", "vp09", "libvpx-vp9", "vp9_qsv", "vp9_vaapi"},
		Encoders: map[HWAccel]string{
			HWAccelNone:  "libvpx-vp9",
			HWAccelAuto:  "libvpx-vp9",
			HWAccelQSV:   "vp9_qsv",
			HWAccelVAAPI: "vp9_vaapi",
		},
		WebMCompatible: true,
		MP4Compatible:  true,
	},
	VideoAV1: {
		Name: VideoAV1,
		Aliases: []string{
			"av1", "av01", "libaom-av1", "libsvtav1",
			"av1_nvenc", "av1_qsv", "av1_vaapi",
		},
		Encoders: map[HWAccel]string{
			HWAccelNone:  "libsvtav1",
			HWAccelAuto:  "libsvtav1",
			HWAccelCUDA:  "av1_nvenc",
			HWAccelQSV:   "av1_qsv",
			HWAccelVAAPI: "av1_vaapi",
		},
		WebMCompatible: true,
		MP4Compatible:  true,
	},
}

// audioRegistry contains all audio codec family definitions.
var audioRegistry = map[Audio]*audioInfo{
	AudioAAC: {
		Name:           AudioAAC,
		Aliases:        []string{"aac", "mp4a", "libfdk_aac", "aac_at"},
		Encoder:        "aac",
		WebMCompatible: false,
		MP4Compatible:  true,
	},
	AudioOpus: {
		Name:           AudioOpus,
		Aliases:        []string{"opus", "libopus"},
		Encoder:        "libopus",
		WebMCompatible: true,
		MP4Compatible:  true,
	},
}

var videoAliasIndex map[string]Video
var audioAliasIndex map[string]Audio

func init() {
	videoAliasIndex = make(map[string]Video)
	for codec, info := range videoRegistry {
		for _, alias := range info.Aliases {
			videoAliasIndex[strings.ToLower(alias)] = codec
		}
	}

	audioAliasIndex = make(map[string]Audio)
	for codec, info := range audioRegistry {
		for _, alias := range info.Aliases {
			audioAliasIndex[strings.ToLower(alias)] = codec
		}
	}
}

// ParseVideo parses a string (family name, alias, or encoder) to a Video
// codec family. Returns the canonical family and whether the parse succeeded.
func ParseVideo(s string) (Video, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	codec, ok := videoAliasIndex[s]
	return codec, ok
}

// ParseAudio parses a string (family name, alias, or encoder) to an Audio
// codec family.
func ParseAudio(s string) (Audio, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	codec, ok := audioAliasIndex[s]
	return codec, ok
}

// GetVideoEncoder returns the FFmpeg encoder name for a video codec family
// under the given hardware accelerator. Falls back to the software encoder
// if the accelerator isn't wired for this family.
func GetVideoEncoder(v Video, hwaccel HWAccel) string {
	info, ok := videoRegistry[v]
	if !ok {
		return string(v)
	}
	if encoder, ok := info.Encoders[hwaccel]; ok {
		return encoder
	}
	if encoder, ok := info.Encoders[HWAccelNone]; ok {
		return encoder
	}
	return string(v)
}

// GetAudioEncoder returns the FFmpeg encoder name for an audio codec family.
func GetAudioEncoder(a Audio) string {
	info, ok := audioRegistry[a]
	if !ok {
		return string(a)
	}
	return info.Encoder
}

// IsWebMCompatible reports whether the video codec family can be packaged
// into a WebM container.
func (v Video) IsWebMCompatible() bool {
	info, ok := videoRegistry[v]
	return ok && info.WebMCompatible
}

// IsMP4Compatible reports whether the video codec family can be packaged
// into an MP4 container.
func (v Video) IsMP4Compatible() bool {
	info, ok := videoRegistry[v]
	return ok && info.MP4Compatible
}

// IsWebMCompatible reports whether the audio codec family can be packaged
// into a WebM container.
func (a Audio) IsWebMCompatible() bool {
	info, ok := audioRegistry[a]
	return ok && info.WebMCompatible
}

// IsMP4Compatible reports whether the audio codec family can be packaged
// into an MP4 container.
func (a Audio) IsMP4Compatible() bool {
	info, ok := audioRegistry[a]
	return ok && info.MP4Compatible
}

// CompatibleWithContainer reports whether the video family can be packaged
// into the given container.
func (v Video) CompatibleWithContainer(c Container) bool {
	if c == ContainerWebM {
		return v.IsWebMCompatible()
	}
	return v.IsMP4Compatible()
}

// CompatibleWithContainer reports whether the audio family can be packaged
// into the given container.
func (a Audio) CompatibleWithContainer(c Container) bool {
	if c == ContainerWebM {
		return a.IsWebMCompatible()
	}
	return a.IsMP4Compatible()
}

// ValidVideoCodecs returns the set of video codec family names the
// negotiator accepts as a preferred family.
func ValidVideoCodecs() map[string]Video {
	return map[string]Video{
		"h264": VideoH264,
		"avc":  VideoH264,
		"h265": VideoH265,
		"hevc": VideoH265,
		"vp8":  VideoVP8,
		"vp9":  VideoVP9,
		"av1":  VideoAV1,
	}
}

// ValidAudioCodecs returns the set of audio codec family names the
// negotiator accepts as a preferred family.
func ValidAudioCodecs() map[string]Audio {
	return map[string]Audio{
		"aac":  AudioAAC,
		"opus": AudioOpus,
	}
}

// ValidHWAccels returns the set of hardware accelerator names accepted in
// the config's hw_accel_preference field.
func ValidHWAccels() map[string]HWAccel {
	return map[string]HWAccel{
		"auto":         HWAccelAuto,
		"none":         HWAccelNone,
		"cuda":         HWAccelCUDA,
		"qsv":          HWAccelQSV,
		"vaapi":        HWAccelVAAPI,
		"videotoolbox": HWAccelVT,
	}
}

// ParseHWAccel parses a hardware acceleration preference string.
func ParseHWAccel(s string) (HWAccel, bool) {
	hw, ok := ValidHWAccels()[strings.ToLower(strings.TrimSpace(s))]
	return hw, ok
}

// SupportedEncodingVideoCodecs returns the video families the pipeline can
// target as an encoder output.
func SupportedEncodingVideoCodecs() []Video {
	return []Video{VideoH264, VideoH265, VideoVP8, VideoVP9, VideoAV1}
}

// SupportedEncodingAudioCodecs returns the audio families the pipeline can
// target as an encoder output.
func SupportedEncodingAudioCodecs() []Audio {
	return []Audio{AudioAAC, AudioOpus}
}
