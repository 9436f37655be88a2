package webm

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

const (
	videoTrackNumber uint64 = 1
	audioTrackNumber uint64 = 2

	// clusterSpanMs bounds how long a single Cluster accumulates blocks
	// before the muxer starts a new one, matching the Azunyan example's
	// one-cluster-per-second cadence.
	clusterSpanMs = 1000
)

// Config configures a Muxer instance, fixed at construction.
type Config struct {
	Logger *slog.Logger

	VideoCodec codec.Video
	AudioCodec codec.Audio // zero value means audio disabled

	Width, Height         int
	AudioSampleRate       int
	AudioChannels         int
}

// Muxer accumulates encoded chunks into EBML Clusters of SimpleBlocks.
type Muxer struct {
	cfg Config
	mu  sync.Mutex

	headerWritten bool

	clusterOpen    bool
	clusterStartMs int64

	pending bytes.Buffer // blocks (and any cluster headers) not yet flushed
}

// New constructs a Muxer for the given codec pair.
func New(cfg Config) *Muxer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Muxer{cfg: cfg}
}

// Header returns the EBML header, Segment start, Info and Tracks elements —
// emitted exactly once, always before any Cluster (the header-first
// guarantee).
func (m *Muxer) Header() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headerLocked()
}

func (m *Muxer) headerLocked() ([]byte, error) {
	if m.headerWritten {
		return nil, nil
	}

	var out bytes.Buffer

	writeElement(&out, idEBMLHeader, ebmlHeaderBody())
	unknownSizeElement(&out, idSegment)
	writeElement(&out, idInfo, infoBody())

	tracks, err := m.tracksBody()
	if err != nil {
		return nil, err
	}
	writeElement(&out, idTracks, tracks)

	m.headerWritten = true
	return out.Bytes(), nil
}

func ebmlHeaderBody() []byte {
	var b bytes.Buffer
	writeElement(&b, 0x4286, encodeUint(1))            // EBMLVersion
	writeElement(&b, 0x42F7, encodeUint(1))            // EBMLReadVersion
	writeElement(&b, 0x42F2, encodeUint(4))            // EBMLMaxIDLength
	writeElement(&b, 0x42F3, encodeUint(8))            // EBMLMaxSizeLength
	writeElement(&b, 0x4282, []byte("webm"))           // DocType
	writeElement(&b, 0x4287, encodeUint(4))            // DocTypeVersion
	writeElement(&b, 0x4285, encodeUint(2))            // DocTypeReadVersion
	return b.Bytes()
}

func infoBody() []byte {
	var b bytes.Buffer
	writeElement(&b, idTimecodeScale, encodeUint(1_000_000)) // ns per timecode unit (1ms)
	writeElement(&b, idMuxingApp, []byte("encodecore"))
	writeElement(&b, idWritingApp, []byte("encodecore"))
	return b.Bytes()
}

func (m *Muxer) tracksBody() ([]byte, error) {
	var tracks bytes.Buffer

	if m.cfg.VideoCodec != "" {
		codecID, err := videoCodecID(m.cfg.VideoCodec)
		if err != nil {
			return nil, err
		}
		var entry bytes.Buffer
		writeElement(&entry, idTrackNumber, encodeUint(videoTrackNumber))
		writeElement(&entry, idTrackUID, encodeUint(videoTrackNumber))
		writeElement(&entry, idTrackType, []byte{trackTypeVideo})
		writeElement(&entry, idCodecID, []byte(codecID))

		var video bytes.Buffer
		writeElement(&video, idPixelWidth, encodeUint(uint64(m.cfg.Width)))
		writeElement(&video, idPixelHeight, encodeUint(uint64(m.cfg.Height)))
		writeElement(&entry, idVideo, video.Bytes())

		writeElement(&tracks, idTrackEntry, entry.Bytes())
	}

	if m.cfg.AudioCodec != "" {
		codecID, err := audioCodecID(m.cfg.AudioCodec)
		if err != nil {
			return nil, err
		}
		var entry bytes.Buffer
		writeElement(&entry, idTrackNumber, encodeUint(audioTrackNumber))
		writeElement(&entry, idTrackUID, encodeUint(audioTrackNumber))
		writeElement(&entry, idTrackType, []byte{trackTypeAudio})
		writeElement(&entry, idCodecID, []byte(codecID))

		sampleRate := m.cfg.AudioSampleRate
		if sampleRate == 0 {
			sampleRate = 48000
		}
		channels := m.cfg.AudioChannels
		if channels == 0 {
			channels = 2
		}
		var audio bytes.Buffer
		writeElement(&audio, idSamplingFrequency, encodeFloat64(float64(sampleRate)))
		writeElement(&audio, idChannels, encodeUint(uint64(channels)))
		writeElement(&entry, idAudio, audio.Bytes())

		writeElement(&tracks, idTrackEntry, entry.Bytes())
	}

	return tracks.Bytes(), nil
}

func videoCodecID(v codec.Video) (string, error) {
	switch v {
	case codec.VideoVP8:
		return "V_VP8", nil
	case codec.VideoVP9:
		return "V_VP9", nil
	case codec.VideoAV1:
		return "V_AV1", nil
	default:
		return "", fmt.Errorf("webm: unsupported video codec %q", v)
	}
}

func audioCodecID(a codec.Audio) (string, error) {
	if a == codec.AudioOpus {
		return "A_OPUS", nil
	}
	return "", fmt.Errorf("webm: unsupported audio codec %q", a)
}

// WriteVideo appends one encoded video chunk as a SimpleBlock.
func (m *Muxer) WriteVideo(chunk *types.EncodedChunk) error {
	return m.writeBlock(videoTrackNumber, chunk)
}

// WriteAudio appends one encoded audio chunk as a SimpleBlock.
func (m *Muxer) WriteAudio(chunk *types.EncodedChunk) error {
	return m.writeBlock(audioTrackNumber, chunk)
}

func (m *Muxer) writeBlock(trackNumber uint64, chunk *types.EncodedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(chunk.Data) == 0 {
		return nil
	}
	if !m.headerWritten {
		return types.NewError(types.KindInternalError, "webm: WriteVideo/WriteAudio called before Header")
	}

	timecodeMs := chunk.TimestampUs / 1000

	if !m.clusterOpen || timecodeMs-m.clusterStartMs >= clusterSpanMs {
		m.clusterStartMs = timecodeMs
		m.clusterOpen = true
		unknownSizeElement(&m.pending, idCluster)
		writeElement(&m.pending, idTimecode, encodeUint(uint64(timecodeMs)))
	}

	relative := int16(timecodeMs - m.clusterStartMs)

	var block bytes.Buffer
	writeVarInt(&block, trackNumber)
	block.WriteByte(byte(relative >> 8))
	block.WriteByte(byte(relative))
	flags := byte(0)
	if chunk.Type == types.ChunkKey {
		flags |= 0x80
	}
	block.WriteByte(flags)
	block.Write(chunk.Data)

	writeElement(&m.pending, idSimpleBlock, block.Bytes())
	return nil
}

// Flush returns and clears any buffered Cluster/SimpleBlock bytes, for
// realtime-mode streaming delivery.
func (m *Muxer) Flush() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending.Len() == 0 {
		return nil, nil
	}
	out := append([]byte(nil), m.pending.Bytes()...)
	m.pending.Reset()
	m.clusterOpen = false
	return out, nil
}

// Finalize returns a single standalone buffer: header (if not already
// emitted) followed by every buffered Cluster (the design batch mode).
func (m *Muxer) Finalize() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	header, err := m.headerLocked()
	if err != nil {
		return nil, err
	}
	out := append(header, m.pending.Bytes()...)
	m.pending.Reset()
	m.clusterOpen = false
	return out, nil
}
