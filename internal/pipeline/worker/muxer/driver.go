// Package muxer implements the Muxer Driver: it wraps one of the
// two container-specific muxers (mp4 or webm) and dispatches between batch
// and realtime delivery, the two fixed modes selected once at construction.
package muxer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/pipeline/types"
	"github.com/encodecore/encodecore/internal/pipeline/worker/muxer/mp4"
	"github.com/encodecore/encodecore/internal/pipeline/worker/muxer/webm"
)

// containerMuxer is the common shape both container-specific muxers expose.
type containerMuxer interface {
	Header() ([]byte, error)
	WriteVideo(*types.EncodedChunk) error
	WriteAudio(*types.EncodedChunk) error
	Flush() ([]byte, error)
	Finalize() ([]byte, error)
}

// Config configures a Driver, fixed for its lifetime.
type Config struct {
	Logger *slog.Logger

	Container types.Container
	Mode      types.LatencyMode

	VideoCodec codec.Video
	AudioCodec codec.Audio // zero value means audio disabled

	Width, Height                 int
	AudioSampleRate, AudioChannels int
	AudioInitData                 []byte

	// OnFragment is invoked with every realtime-mode dataChunk;
	// never invoked in batch mode.
	OnFragment func(types.DataChunkMsg)
}

// Driver is the worker's Muxer Driver.
type Driver struct {
	cfg   Config
	inner containerMuxer

	mu         sync.Mutex
	headerSent bool
}

// New builds a Driver for cfg.Container, per the design ("selected at init").
func New(cfg Config) (*Driver, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var inner containerMuxer
	switch cfg.Container {
	case types.ContainerMP4:
		inner = mp4.New(mp4.Config{
			Logger:          cfg.Logger,
			VideoCodec:      cfg.VideoCodec,
			AudioCodec:      cfg.AudioCodec,
			Width:           cfg.Width,
			Height:          cfg.Height,
			AudioSampleRate: cfg.AudioSampleRate,
			AudioInitData:   cfg.AudioInitData,
		})
	case types.ContainerWebM:
		inner = webm.New(webm.Config{
			Logger:          cfg.Logger,
			VideoCodec:      cfg.VideoCodec,
			AudioCodec:      cfg.AudioCodec,
			Width:           cfg.Width,
			Height:          cfg.Height,
			AudioSampleRate: cfg.AudioSampleRate,
			AudioChannels:   cfg.AudioChannels,
		})
	default:
		return nil, types.NewError(types.KindConfigurationError, fmt.Sprintf("muxer: unsupported container %q", cfg.Container))
	}

	d := &Driver{cfg: cfg, inner: inner}
	if cfg.Mode == types.LatencyRealtime {
		// WebM's header needs no codec params, so it is available
		// immediately; emitting it up front lets the header-before-media
		// invariant hold even if the first video chunk is slow to arrive.
		if err := d.tryEmitHeaderLocked(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// WriteVideo forwards chunk to the container muxer and, in realtime mode,
// emits any resulting fragment.
func (d *Driver) WriteVideo(chunk *types.EncodedChunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.inner.WriteVideo(chunk); err != nil {
		return types.Wrap(types.KindMuxingFailed, "muxing video chunk", err)
	}
	return d.maybeEmitLocked()
}

// WriteAudio forwards chunk to the container muxer and, in realtime mode,
// emits any resulting fragment.
func (d *Driver) WriteAudio(chunk *types.EncodedChunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.inner.WriteAudio(chunk); err != nil {
		return types.Wrap(types.KindMuxingFailed, "muxing audio chunk", err)
	}
	return d.maybeEmitLocked()
}

// Finalize completes the container. Batch mode returns the single output
// buffer; realtime mode flushes any trailing fragment via OnFragment and
// returns nil, matching the "finalized message with a null payload".
func (d *Driver) Finalize() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.Mode == types.LatencyQuality {
		buf, err := d.inner.Finalize()
		if err != nil {
			return nil, types.Wrap(types.KindMuxingFailed, "finalizing container", err)
		}
		return buf, nil
	}

	trailing, err := d.inner.Finalize()
	if err != nil {
		return nil, types.Wrap(types.KindMuxingFailed, "flushing trailing fragment", err)
	}
	if len(trailing) > 0 && d.cfg.OnFragment != nil {
		d.cfg.OnFragment(types.DataChunkMsg{Bytes: trailing, IsHeader: false, Container: d.cfg.Container})
	}
	return nil, nil
}

func (d *Driver) maybeEmitLocked() error {
	if d.cfg.Mode != types.LatencyRealtime {
		return nil
	}
	if err := d.tryEmitHeaderLocked(); err != nil {
		return err
	}
	if !d.headerSent {
		return nil
	}
	frag, err := d.inner.Flush()
	if err != nil {
		return types.Wrap(types.KindMuxingFailed, "flushing fragment", err)
	}
	if len(frag) > 0 && d.cfg.OnFragment != nil {
		d.cfg.OnFragment(types.DataChunkMsg{Bytes: frag, IsHeader: false, Container: d.cfg.Container})
	}
	return nil
}

func (d *Driver) tryEmitHeaderLocked() error {
	if d.headerSent {
		return nil
	}
	header, err := d.inner.Header()
	if err != nil {
		return types.Wrap(types.KindMuxingFailed, "building container header", err)
	}
	if header == nil {
		return nil
	}
	d.headerSent = true
	if d.cfg.OnFragment != nil {
		d.cfg.OnFragment(types.DataChunkMsg{Bytes: header, IsHeader: true, Container: d.cfg.Container})
	}
	return nil
}
