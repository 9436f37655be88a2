package codecmanager

import (
	"context"
	"log/slog"
	"strings"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/ffmpeg"
	"github.com/encodecore/encodecore/internal/pipeline/types"
	"github.com/encodecore/encodecore/internal/pipeline/worker/encoder"
)

// Config configures a Manager, fixed for its lifetime (the design:
// "Configuration is created by the caller and frozen at initialization").
type Config struct {
	Logger     *slog.Logger
	FFmpegPath string

	// BinInfo is the platform support query result (the design: "Queries
	// platform support"). Nil skips the query — negotiation then trusts the
	// preferred family unconditionally, useful for tests against a fixed
	// FFmpeg binary that hasn't been probed.
	BinInfo *ffmpeg.BinaryInfo

	EncoderConfig types.EncoderConfig

	// OnVideoChunk/OnAudioChunk are invoked once per encoded chunk, from
	// background goroutines owned by the underlying encoder primitives.
	// The caller forwards resulting chunks on to the Muxer Driver.
	OnVideoChunk func(*types.EncodedChunk)
	OnAudioChunk func(*types.EncodedChunk)
}

// Manager is the worker's Codec Manager: owns the video and
// audio encoder handles, negotiates codecs, configures, encodes, flushes,
// and closes them, and surfaces per-encoder queue depth and async errors.
type Manager struct {
	cfg Config

	video *encoder.VideoEncoder
	audio *encoder.AudioEncoder

	negVideo *NegotiatedVideo
	negAudio *NegotiatedAudio

	errCh chan error
}

// New negotiates codecs for cfg.EncoderConfig's enabled streams, then
// configures and starts the underlying encoder primitives. The
// FFmpeg-subprocess-backed audio primitive is always started with exactly
// the configured channel count and reports no channel count of its own, so
// New makes no separate channel-count check.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}

	m := &Manager{cfg: cfg, errCh: make(chan error, 2)}
	ec := cfg.EncoderConfig

	if ec.ExtraVideoArgs != "" {
		if res := ffmpeg.ValidateCustomFlags("", ec.ExtraVideoArgs, ""); !res.Valid {
			return nil, types.NewError(types.KindConfigurationError, "extra_video_args: "+strings.Join(res.Errors, "; "))
		}
	}
	if ec.ExtraAudioArgs != "" {
		if res := ffmpeg.ValidateCustomFlags("", ec.ExtraAudioArgs, ""); !res.Valid {
			return nil, types.NewError(types.KindConfigurationError, "extra_audio_args: "+strings.Join(res.Errors, "; "))
		}
	}

	hwaccel, _ := codec.ParseHWAccel(ec.HWAccelPreference)
	if hwaccel == "" {
		hwaccel = codec.HWAccelAuto
	}

	if ec.VideoEnabled() {
		preferred, ok := codec.ParseVideo(ec.Codec.Video)
		if !ok {
			return nil, types.NewError(types.KindConfigurationError, "unrecognized video codec family "+ec.Codec.Video)
		}
		neg, err := NegotiateVideo(cfg.BinInfo, preferred, ec.Container, hwaccel)
		if err != nil {
			return nil, err
		}
		m.negVideo = neg

		ve, err := encoder.NewVideoEncoder(ctx, encoder.VideoConfig{
			Logger:     cfg.Logger,
			FFmpegPath: cfg.FFmpegPath,
			Codec:      neg.Family,
			HWAccel:    neg.HWAccel,
			Width:      ec.Width,
			Height:     ec.Height,
			FrameRate:  ec.FrameRate,
			Bitrate:    ec.VideoBitrate,
			ExtraArgs:  ec.ExtraVideoArgs,
			OnChunk:    cfg.OnVideoChunk,
		})
		if err != nil {
			return nil, err
		}
		m.video = ve
	}

	if ec.AudioEnabled() {
		preferred, ok := codec.ParseAudio(ec.Codec.Audio)
		if !ok {
			return nil, types.NewError(types.KindConfigurationError, "unrecognized audio codec family "+ec.Codec.Audio)
		}
		neg, err := NegotiateAudio(cfg.BinInfo, preferred, ec.Container, ec.LatencyMode)
		if err != nil {
			if m.video != nil {
				_ = m.video.Close()
			}
			return nil, err
		}
		m.negAudio = neg

		ae, err := encoder.NewAudioEncoder(ctx, encoder.AudioConfig{
			Logger:     cfg.Logger,
			FFmpegPath: cfg.FFmpegPath,
			Codec:      neg.Family,
			SampleRate: ec.SampleRate,
			Channels:   ec.Channels,
			Bitrate:    ec.AudioBitrate,
			ExtraArgs:  ec.ExtraAudioArgs,
			OnChunk:    cfg.OnAudioChunk,
		})
		if err != nil {
			if m.video != nil {
				_ = m.video.Close()
			}
			return nil, err
		}
		m.audio = ae
	}

	go m.watchErrors()

	return m, nil
}

func (m *Manager) watchErrors() {
	if m.video != nil {
		go func() {
			if err := <-m.video.Errors(); err != nil {
				select {
				case m.errCh <- err:
				default:
				}
			}
		}()
	}
	if m.audio != nil {
		go func() {
			if err := <-m.audio.Errors(); err != nil {
				select {
				case m.errCh <- err:
				default:
				}
			}
		}()
	}
}

// Errors returns the out-of-band error channel merging both encoders' async
// error streams (the "Error surface").
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// ActualVideoCodec returns the negotiated video codec string, or "" if
// video is disabled.
func (m *Manager) ActualVideoCodec() string {
	if m.negVideo == nil {
		return ""
	}
	return m.negVideo.CodecString
}

// ActualAudioCodec returns the negotiated audio codec string, or "" if
// audio is disabled.
func (m *Manager) ActualAudioCodec() string {
	if m.negAudio == nil {
		return ""
	}
	return m.negAudio.CodecString
}

// NegotiatedVideoFamily returns the negotiated video codec family, the zero
// value if video is disabled. Consumed by the Muxer Driver, which needs the
// family (not just its wire string) to pick a container-specific box layout.
func (m *Manager) NegotiatedVideoFamily() codec.Video {
	if m.negVideo == nil {
		return ""
	}
	return m.negVideo.Family
}

// NegotiatedAudioFamily returns the negotiated audio codec family, the zero
// value if audio is disabled.
func (m *Manager) NegotiatedAudioFamily() codec.Audio {
	if m.negAudio == nil {
		return ""
	}
	return m.negAudio.Family
}

// EncodeVideo submits one frame to the video encoder and releases it
// exactly once after the platform call returns (the design invariant 4).
func (m *Manager) EncodeVideo(frame *types.Frame) error {
	defer frame.Release()
	if m.video == nil {
		return types.NewError(types.KindInvalidInput, "video is disabled for this pipeline")
	}
	return m.video.Encode(frame)
}

// EncodeAudio submits one audio block to the audio encoder and releases it
// exactly once.
func (m *Manager) EncodeAudio(sample *types.AudioSample) error {
	defer sample.Release()
	if m.audio == nil {
		return types.NewError(types.KindInvalidInput, "audio is disabled for this pipeline")
	}
	return m.audio.Encode(sample)
}

// QueueDepth reports the current per-encoder queue depth snapshot for the
// worker's periodic report.
func (m *Manager) QueueDepth() (video, audio int) {
	if m.video != nil {
		video = m.video.QueueDepth()
	}
	if m.audio != nil {
		audio = m.audio.QueueDepth()
	}
	return video, audio
}

// Stats returns the process-stats supplement for each active
// encoder subprocess; either return value may be nil.
func (m *Manager) Stats() (video, audio *ffmpeg.ProcessStats) {
	if m.video != nil {
		video = m.video.Stats()
	}
	if m.audio != nil {
		audio = m.audio.Stats()
	}
	return video, audio
}

// Flush awaits platform flush completion on both encoders before returning,
// per the design ("On finalize, awaits platform flush completion on both
// encoders before forwarding completion to the Muxer Driver").
func (m *Manager) Flush() error {
	var videoErr, audioErr error
	done := make(chan struct{}, 2)
	n := 0

	if m.video != nil {
		n++
		go func() {
			videoErr = m.video.Flush()
			done <- struct{}{}
		}()
	}
	if m.audio != nil {
		n++
		go func() {
			audioErr = m.audio.Flush()
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	if videoErr != nil {
		return videoErr
	}
	return audioErr
}

// Close releases both platform handles unconditionally; idempotent and
// safe on any exit path (the "Close").
func (m *Manager) Close() error {
	if m.video != nil {
		_ = m.video.Close()
	}
	if m.audio != nil {
		_ = m.audio.Close()
	}
	return nil
}
