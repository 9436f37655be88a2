package encoder

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/ffmpeg"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// AudioConfig configures an AudioEncoder, fixed for its lifetime.
type AudioConfig struct {
	Logger     *slog.Logger
	FFmpegPath string

	Codec      codec.Audio
	SampleRate int
	Channels   int
	Bitrate    int // bits/second

	// ExtraArgs is a validated passthrough of advanced FFmpeg output
	// options, applied after the standard codec/bitrate args.
	ExtraArgs string

	// OnChunk is invoked once per encoded chunk, from a background goroutine.
	OnChunk func(*types.EncodedChunk)
}

// AudioEncoder is the worker's audio-encoder primitive, mirroring
// VideoEncoder: an FFmpeg subprocess fed raw interleaved float32 PCM on
// stdin, demuxed from MPEG-TS on its stdout (both AAC and Opus are
// MPEG-TS-carriable, so audio never needs the IVF path).
type AudioEncoder struct {
	cfg   AudioConfig
	cmd   *ffmpeg.Command
	stdin io.WriteCloser
	demux chunkDemuxer
	errCh chan error

	// exitCh/exitErr fan out StreamWithStdin's single-value done channel to
	// both watch() and Flush(), which otherwise race for the one value (see
	// VideoEncoder's waitExit).
	exitCh  chan struct{}
	exitErr error

	queueDepth atomic.Int64
	closeOnce  sync.Once
}

// NewAudioEncoder starts the FFmpeg subprocess and demux goroutine.
func NewAudioEncoder(ctx context.Context, cfg AudioConfig) (*AudioEncoder, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.OnChunk == nil {
		return nil, types.NewError(types.KindConfigurationError, "audio encoder: OnChunk is required")
	}

	e := &AudioEncoder{cfg: cfg, errCh: make(chan error, 1), exitCh: make(chan struct{})}

	builder := ffmpeg.NewCommandBuilder(cfg.FFmpegPath).
		LogLevel("error").
		HideBanner().
		Overwrite().
		InputArgs("-f", "f32le", "-ar", fmt.Sprintf("%d", cfg.SampleRate), "-ac", fmt.Sprintf("%d", cfg.Channels)).
		Input("pipe:0").
		AudioCodec(codec.GetAudioEncoder(cfg.Codec)).
		AudioChannels(cfg.Channels)

	if cfg.Bitrate > 0 {
		builder = builder.AudioBitrate(fmt.Sprintf("%d", cfg.Bitrate))
	}
	if cfg.ExtraArgs != "" {
		builder = builder.ApplyCustomOutputOptions(cfg.ExtraArgs)
	}

	demux := newTSDemuxer(cfg.Logger, cfg.OnChunk)
	e.demux = demux

	e.cmd = builder.MpegtsArgs().Output("pipe:1").Build()

	stdin, done, err := e.cmd.StreamWithStdin(ctx, demux)
	if err != nil {
		return nil, types.Wrap(types.KindInitializationFailed, "starting audio encoder process", err)
	}
	e.stdin = stdin

	go e.waitExit(done)
	go e.watch()

	return e, nil
}

// waitExit consumes StreamWithStdin's single done value exactly once and
// broadcasts it via exitCh, so watch() and Flush() never compete for it.
func (e *AudioEncoder) waitExit(done <-chan error) {
	e.exitErr = <-done
	close(e.exitCh)
}

func (e *AudioEncoder) watch() {
	<-e.exitCh
	if e.exitErr != nil {
		select {
		case e.errCh <- types.Wrap(types.KindAudioEncodingError, "audio encoder process exited", e.exitErr):
		default:
		}
	}
}

// Encode writes one audio sample's planar float data to the encoder's
// stdin, interleaving channels first since raw f32le is interleaved PCM
// while AudioSample.PlanarFloat is per-channel.
func (e *AudioEncoder) Encode(sample *types.AudioSample) error {
	e.queueDepth.Add(1)
	defer e.queueDepth.Add(-1)

	interleaved := interleavePlanarFloat(sample.PlanarFloat, sample.FrameCount)
	if _, err := e.stdin.Write(interleaved); err != nil {
		return types.Wrap(types.KindAudioEncodingError, "writing audio sample to encoder", err)
	}
	return nil
}

// QueueDepth reports samples currently being written to the encoder process.
func (e *AudioEncoder) QueueDepth() int {
	return int(e.queueDepth.Load())
}

// Flush closes stdin, waits for FFmpeg to exit, then drains the demuxer.
func (e *AudioEncoder) Flush() error {
	if err := e.stdin.Close(); err != nil {
		return types.Wrap(types.KindAudioEncodingError, "closing encoder stdin", err)
	}
	<-e.exitCh
	if e.exitErr != nil {
		return types.Wrap(types.KindAudioEncodingError, "audio encoder process exited", e.exitErr)
	}
	if err := e.demux.Close(); err != nil {
		return types.Wrap(types.KindMuxingFailed, "draining audio demuxer", err)
	}
	return nil
}

// Close releases the encoder unconditionally, for cancellation.
func (e *AudioEncoder) Close() error {
	e.closeOnce.Do(func() {
		e.demux.Kill()
		_ = e.cmd.Kill()
	})
	return nil
}

// Errors returns the asynchronous error channel.
func (e *AudioEncoder) Errors() <-chan error {
	return e.errCh
}

// Stats returns the encoder subprocess's current resource usage. Returns nil
// if the process isn't running or monitoring hasn't started yet.
func (e *AudioEncoder) Stats() *ffmpeg.ProcessStats {
	return e.cmd.ProcessStats()
}

// interleavePlanarFloat packs per-channel float32 samples into little-endian
// interleaved PCM bytes, the layout raw f32le input expects.
func interleavePlanarFloat(channels [][]float32, frameCount int) []byte {
	numChannels := len(channels)
	out := make([]byte, 0, frameCount*numChannels*4)
	var buf [4]byte
	for i := 0; i < frameCount; i++ {
		for c := 0; c < numChannels; c++ {
			var v float32
			if i < len(channels[c]) {
				v = channels[c][i]
			}
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			out = append(out, buf[:]...)
		}
	}
	return out
}
