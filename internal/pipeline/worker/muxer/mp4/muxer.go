// Package mp4 implements the Muxer Driver's MP4 backend,
// wrapping github.com/bluenviron/mediacommon/v2's fragmented-MP4 writer.
// Both pipeline modes are served by the same underlying fMP4 structure: batch
// mode concatenates the init segment with exactly one fragment into a single
// standalone buffer, realtime mode emits the init segment once followed by a
// fragment per Flush call.
package mp4

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/av1"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

const (
	videoTrackID = 1
	audioTrackID = 2

	videoTimeScale = 90000
)

// Config configures a Muxer instance, fixed at construction per the design
// ("two modes, selected at init and fixed thereafter").
type Config struct {
	Logger *slog.Logger

	VideoCodec codec.Video
	AudioCodec codec.Audio // zero value means audio disabled

	Width, Height int
	AudioSampleRate int

	// AudioInitData is the AAC AudioSpecificConfig, when known up front.
	AudioInitData []byte
}

// Muxer accumulates encoded chunks and emits MP4 fragments, per the design
type Muxer struct {
	cfg Config
	mu  sync.Mutex

	initialized bool
	initWritten bool

	videoBaseTime uint64
	audioBaseTime uint64
	lastVideoPTS  int64
	lastAudioPTS  int64
	sequence      uint32

	videoSamples []*fmp4.Sample
	audioSamples []*fmp4.Sample

	h264SPS, h264PPS         []byte
	h265VPS, h265SPS, h265PPS []byte
	av1SeqHeader             []byte

	audioTimeScale uint32
}

// New constructs a Muxer. Video params accumulate lazily from keyframes;
// the muxer becomes ready to emit once enough params exist for the chosen
// video codec.
func New(cfg Config) *Muxer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	audioTimeScale := uint32(cfg.AudioSampleRate)
	if audioTimeScale == 0 {
		audioTimeScale = 48000
	}
	return &Muxer{
		cfg:            cfg,
		sequence:       1,
		audioTimeScale: audioTimeScale,
	}
}

// WriteVideo buffers one encoded video chunk as an fMP4 sample.
func (m *Muxer) WriteVideo(chunk *types.EncodedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(chunk.Data) == 0 {
		return nil
	}

	if chunk.Type == types.ChunkKey {
		if err := m.extractVideoParams(chunk.Data); err != nil {
			m.cfg.Logger.Warn("extracting video params failed", slog.String("error", err.Error()))
		}
	}

	if !m.initialized && m.canInitialize() {
		m.initialized = true
		m.cfg.Logger.Debug("mp4 muxer initialized", slog.String("video_codec", string(m.cfg.VideoCodec)))
	}
	if !m.initialized {
		return nil
	}

	sample := &fmp4.Sample{
		Duration:        3000,
		PTSOffset:       0,
		IsNonSyncSample: chunk.Type != types.ChunkKey,
	}
	if m.lastVideoPTS > 0 && chunk.TimestampUs > m.lastVideoPTS {
		sample.Duration = uint32((chunk.TimestampUs - m.lastVideoPTS) * videoTimeScale / 1_000_000)
	} else if chunk.DurationUs > 0 {
		sample.Duration = uint32(chunk.DurationUs * videoTimeScale / 1_000_000)
	}

	switch m.cfg.VideoCodec {
	case codec.VideoAV1:
		if err := sample.FillAV1(dataToOBUs(chunk.Data)); err != nil {
			return fmt.Errorf("mp4: filling AV1 sample: %w", err)
		}
	case codec.VideoH265:
		if err := sample.FillH265(sample.PTSOffset, dataToAccessUnit(chunk.Data)); err != nil {
			return fmt.Errorf("mp4: filling H.265 sample: %w", err)
		}
	case codec.VideoH264:
		if err := sample.FillH264(sample.PTSOffset, dataToAccessUnit(chunk.Data)); err != nil {
			return fmt.Errorf("mp4: filling H.264 sample: %w", err)
		}
	case codec.VideoVP9:
		sample.Payload = chunk.Data
		sample.IsNonSyncSample = !isVP9Keyframe(chunk.Data)
	default:
		return types.NewError(types.KindMuxingFailed, fmt.Sprintf("mp4: unsupported video codec %q", m.cfg.VideoCodec))
	}

	m.videoSamples = append(m.videoSamples, sample)
	m.lastVideoPTS = chunk.TimestampUs
	return nil
}

// WriteAudio buffers one encoded audio chunk as an fMP4 sample.
func (m *Muxer) WriteAudio(chunk *types.EncodedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(chunk.Data) == 0 || m.cfg.AudioCodec == "" || !m.initialized {
		return nil
	}

	duration := uint32(1024)
	if chunk.DurationUs > 0 {
		duration = uint32(chunk.DurationUs * int64(m.audioTimeScale) / 1_000_000)
	}

	payload := chunk.Data
	if m.cfg.AudioCodec == codec.AudioAAC {
		payload = extractRawAudio(chunk.Data)
	}

	m.audioSamples = append(m.audioSamples, &fmp4.Sample{
		Duration: duration,
		Payload:  payload,
	})
	m.lastAudioPTS = chunk.TimestampUs
	return nil
}

// Header returns the fMP4 init segment, valid only once the video codec has
// produced enough parameter data (the design: "header fragment ... before any
// media fragment").
func (m *Muxer) Header() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeInitLocked()
}

// Flush packages any buffered samples into one fMP4 fragment (Part) and
// returns its bytes, or nil if nothing is buffered.
func (m *Muxer) Flush() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeFragmentLocked()
}

// Finalize produces a single standalone buffer: the init segment followed by
// one fragment containing every sample seen so far (the design batch mode).
func (m *Muxer) Finalize() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	init, err := m.writeInitLocked()
	if err != nil {
		return nil, err
	}
	if init == nil {
		return nil, types.NewError(types.KindMuxingFailed, "mp4: no video samples to finalize")
	}
	frag, err := m.writeFragmentLocked()
	if err != nil {
		return nil, err
	}
	return append(init, frag...), nil
}

func (m *Muxer) canInitialize() bool {
	switch m.cfg.VideoCodec {
	case codec.VideoAV1:
		return len(m.av1SeqHeader) > 0
	case codec.VideoVP9:
		return true
	case codec.VideoH265:
		return len(m.h265VPS) > 0 && len(m.h265SPS) > 0 && len(m.h265PPS) > 0
	case codec.VideoH264:
		return len(m.h264SPS) > 0 && len(m.h264PPS) > 0
	default:
		return false
	}
}

func (m *Muxer) extractVideoParams(data []byte) error {
	switch m.cfg.VideoCodec {
	case codec.VideoAV1:
		var bs av1.Bitstream
		if err := bs.Unmarshal(data); err != nil {
			return err
		}
		for _, obu := range bs {
			if len(obu) == 0 {
				continue
			}
			if av1.OBUType((obu[0]>>3)&0x0F) == av1.OBUTypeSequenceHeader {
				m.av1SeqHeader = append([]byte(nil), obu...)
				return nil
			}
		}
		return nil
	case codec.VideoVP9:
		return nil
	case codec.VideoH265:
		for _, nalu := range dataToAccessUnit(data) {
			if len(nalu) == 0 {
				continue
			}
			switch h265.NALUType((nalu[0] >> 1) & 0x3F) {
			case h265.NALUType_VPS_NUT:
				m.h265VPS = append([]byte(nil), nalu...)
			case h265.NALUType_SPS_NUT:
				m.h265SPS = append([]byte(nil), nalu...)
			case h265.NALUType_PPS_NUT:
				m.h265PPS = append([]byte(nil), nalu...)
			}
		}
		return nil
	case codec.VideoH264:
		for _, nalu := range dataToAccessUnit(data) {
			if len(nalu) == 0 {
				continue
			}
			switch h264.NALUType(nalu[0] & 0x1F) {
			case h264.NALUTypeSPS:
				m.h264SPS = append([]byte(nil), nalu...)
			case h264.NALUTypePPS:
				m.h264PPS = append([]byte(nil), nalu...)
			}
		}
		return nil
	default:
		return fmt.Errorf("mp4: unsupported video codec %q", m.cfg.VideoCodec)
	}
}

func (m *Muxer) writeInitLocked() ([]byte, error) {
	if !m.initialized || m.initWritten {
		return nil, nil
	}

	videoCodec, err := m.videoCodecLocked()
	if err != nil {
		return nil, fmt.Errorf("mp4: building video codec: %w", err)
	}

	init := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{ID: videoTrackID, TimeScale: videoTimeScale, Codec: videoCodec},
		},
	}

	if m.cfg.AudioCodec != "" {
		audioCodec, err := m.audioCodecLocked()
		if err != nil {
			m.cfg.Logger.Warn("building audio codec failed, omitting audio track", slog.String("error", err.Error()))
		} else {
			init.Tracks = append(init.Tracks, &fmp4.InitTrack{
				ID: audioTrackID, TimeScale: m.audioTimeScale, Codec: audioCodec,
			})
		}
	}

	buf := &seekableBuffer{}
	if err := init.Marshal(buf); err != nil {
		return nil, fmt.Errorf("mp4: marshaling init segment: %w", err)
	}
	m.initWritten = true
	return buf.Bytes(), nil
}

func (m *Muxer) writeFragmentLocked() ([]byte, error) {
	if len(m.videoSamples) == 0 && len(m.audioSamples) == 0 {
		return nil, nil
	}

	part := &fmp4.Part{SequenceNumber: m.sequence}

	if len(m.videoSamples) > 0 {
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID: videoTrackID, BaseTime: m.videoBaseTime, Samples: m.videoSamples,
		})
		for _, s := range m.videoSamples {
			m.videoBaseTime += uint64(s.Duration)
		}
		m.videoSamples = nil
	}

	if len(m.audioSamples) > 0 {
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID: audioTrackID, BaseTime: m.audioBaseTime, Samples: m.audioSamples,
		})
		for _, s := range m.audioSamples {
			m.audioBaseTime += uint64(s.Duration)
		}
		m.audioSamples = nil
	}

	buf := &seekableBuffer{}
	if err := part.Marshal(buf); err != nil {
		return nil, fmt.Errorf("mp4: marshaling fragment: %w", err)
	}
	m.sequence++
	return buf.Bytes(), nil
}

func (m *Muxer) videoCodecLocked() (mp4.Codec, error) {
	switch m.cfg.VideoCodec {
	case codec.VideoAV1:
		if len(m.av1SeqHeader) == 0 {
			return nil, fmt.Errorf("AV1 sequence header not available")
		}
		return &mp4.CodecAV1{SequenceHeader: m.av1SeqHeader}, nil
	case codec.VideoVP9:
		return &mp4.CodecVP9{Width: m.cfg.Width, Height: m.cfg.Height}, nil
	case codec.VideoH265:
		if len(m.h265VPS) == 0 || len(m.h265SPS) == 0 || len(m.h265PPS) == 0 {
			return nil, fmt.Errorf("H.265 VPS/SPS/PPS not available")
		}
		return &mp4.CodecH265{VPS: m.h265VPS, SPS: m.h265SPS, PPS: m.h265PPS}, nil
	case codec.VideoH264:
		if len(m.h264SPS) == 0 || len(m.h264PPS) == 0 {
			return nil, fmt.Errorf("H.264 SPS/PPS not available")
		}
		return &mp4.CodecH264{SPS: m.h264SPS, PPS: m.h264PPS}, nil
	default:
		return nil, fmt.Errorf("unsupported video codec %q", m.cfg.VideoCodec)
	}
}

func (m *Muxer) audioCodecLocked() (mp4.Codec, error) {
	switch m.cfg.AudioCodec {
	case codec.AudioAAC:
		cfgAudio := mpeg4audio.AudioSpecificConfig{
			Type:         mpeg4audio.ObjectTypeAACLC,
			SampleRate:   int(m.audioTimeScale),
			ChannelCount: 2,
		}
		if len(m.cfg.AudioInitData) > 0 {
			_ = cfgAudio.Unmarshal(m.cfg.AudioInitData)
		}
		m.audioTimeScale = uint32(cfgAudio.SampleRate)
		return &mp4.CodecMPEG4Audio{Config: cfgAudio}, nil
	case codec.AudioOpus:
		return &mp4.CodecOpus{ChannelCount: 2}, nil
	default:
		return nil, fmt.Errorf("unsupported audio codec %q", m.cfg.AudioCodec)
	}
}
