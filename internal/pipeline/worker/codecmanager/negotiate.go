// Package codecmanager implements the worker's Codec Manager:
// family-to-concrete codec negotiation with a fixed fallback table, encoder
// configuration, chunk forwarding, per-encoder queue-depth tracking, and
// out-of-band error surfacing. The hw-accel preference ordering and
// platform support query are adapted from "pick the fastest encoder for
// a target codec" to "negotiate the requested family, then pick the
// fastest encoder implementing it".
package codecmanager

import (
	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/ffmpeg"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// videoFallback is the fixed family-to-fallback table from the design:
// "avc→avc, hevc→hevc, vp9→vp8, av1→vp8". A family that maps to itself has
// no real fallback: if the primary is unsupported, negotiation fails.
var videoFallback = map[codec.Video]codec.Video{
	codec.VideoH264: codec.VideoH264,
	codec.VideoH265: codec.VideoH265,
	codec.VideoVP9:  codec.VideoVP8,
	codec.VideoAV1:  codec.VideoVP8,
}

// NegotiatedVideo is the result of video codec negotiation.
type NegotiatedVideo struct {
	Family     codec.Video
	HWAccel    codec.HWAccel
	CodecString string
}

// NegotiatedAudio is the result of audio codec negotiation.
type NegotiatedAudio struct {
	Family      codec.Audio
	CodecString string
}

// NegotiateVideo resolves preferred to a concrete, platform-supported, and
// container-compatible video codec family, applying the fixed fallback
// table on unsupported or incompatible primaries. Deterministic
// for a given (preferred, container, platform-support) triple, per the design
// invariant 6.
func NegotiateVideo(info *ffmpeg.BinaryInfo, preferred codec.Video, container types.Container, hwaccel codec.HWAccel) (*NegotiatedVideo, error) {
	candidates := []codec.Video{preferred}
	if fallback, ok := videoFallback[preferred]; ok && fallback != preferred {
		candidates = append(candidates, fallback)
	}

	for _, candidate := range candidates {
		if !candidate.CompatibleWithContainer(codec.Container(container)) {
			continue
		}
		if info != nil {
			hw := hwaccel
			if _, ok := supportedEncoder(info, candidate, hw); !ok {
				// Preferred hwaccel unsupported for this family; the
				// software encoder is still a valid negotiation outcome.
				if _, ok := supportedEncoder(info, candidate, codec.HWAccelNone); !ok {
					continue
				}
				hw = codec.HWAccelNone
			}
			return &NegotiatedVideo{
				Family:      candidate,
				HWAccel:     hw,
				CodecString: VideoCodecString(candidate, container),
			}, nil
		}
		return &NegotiatedVideo{Family: candidate, HWAccel: hwaccel, CodecString: VideoCodecString(candidate, container)}, nil
	}

	return nil, types.NewError(types.KindNotSupported, "no supported video codec for requested family "+string(preferred))
}

// NegotiateAudio resolves preferred to a concrete audio family. AAC
// unsupported in an MP4 batch-mode target is a hard NotSupported error;
// WebM falls back aac→opus.
func NegotiateAudio(info *ffmpeg.BinaryInfo, preferred codec.Audio, container types.Container, mode types.LatencyMode) (*NegotiatedAudio, error) {
	if preferred.CompatibleWithContainer(codec.Container(container)) && audioSupported(info, preferred) {
		return &NegotiatedAudio{Family: preferred, CodecString: AudioCodecString(preferred)}, nil
	}

	if preferred == codec.AudioAAC && container == types.ContainerMP4 && mode == types.LatencyQuality {
		return nil, types.NewError(types.KindNotSupported, "aac unsupported and mp4 batch has no audio fallback")
	}

	fallback := codec.AudioOpus
	if fallback.CompatibleWithContainer(codec.Container(container)) && audioSupported(info, fallback) {
		return &NegotiatedAudio{Family: fallback, CodecString: AudioCodecString(fallback)}, nil
	}

	return nil, types.NewError(types.KindNotSupported, "no supported audio codec for requested family "+string(preferred))
}

func supportedEncoder(info *ffmpeg.BinaryInfo, v codec.Video, hw codec.HWAccel) (string, bool) {
	name := codec.GetVideoEncoder(v, hw)
	for _, e := range info.Encoders {
		if e == name {
			return name, true
		}
	}
	return name, false
}

func audioSupported(info *ffmpeg.BinaryInfo, a codec.Audio) bool {
	if info == nil {
		return true
	}
	name := codec.GetAudioEncoder(a)
	for _, e := range info.Encoders {
		if e == name {
			return true
		}
	}
	return false
}

// VideoCodecString derives the wire codec string the controller reports as
// actual_video_codec (the design, scenario 1: "avc1.42001f"). These are fixed
// per family, whatever the container, rather than parsed from the encoded stream's
// parameter sets — precise profile/level strings are the muxer's internal
// concern (the design non-goal: container byte layout).
func VideoCodecString(v codec.Video, container types.Container) string {
	switch v {
	case codec.VideoH264:
		return "avc1.42001f"
	case codec.VideoH265:
		return "hvc1.1.6.L93.B0"
	case codec.VideoVP8:
		return "vp8"
	case codec.VideoVP9:
		return "vp09.00.10.08"
	case codec.VideoAV1:
		return "av01.0.04M.08"
	default:
		return string(v)
	}
}

// AudioCodecString derives the wire codec string for actual_audio_codec.
func AudioCodecString(a codec.Audio) string {
	switch a {
	case codec.AudioAAC:
		return "mp4a.40.2"
	case codec.AudioOpus:
		return "opus"
	default:
		return string(a)
	}
}
