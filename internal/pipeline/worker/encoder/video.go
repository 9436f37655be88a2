package encoder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/ffmpeg"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// chunkDemuxer is the shape both demux backends (MPEG-TS and IVF) expose to
// the encoder primitives.
type chunkDemuxer interface {
	io.Writer
	Close() error
	Kill()
}

// VideoConfig configures a VideoEncoder, fixed for its lifetime.
type VideoConfig struct {
	Logger     *slog.Logger
	FFmpegPath string // defaults to "ffmpeg"

	Codec     codec.Video
	HWAccel   codec.HWAccel
	Width     int
	Height    int
	FrameRate int
	Bitrate   int // bits/second

	// ExtraArgs is a validated passthrough of advanced FFmpeg output
	// options, applied after the standard codec/bitrate args.
	ExtraArgs string

	// OnChunk is invoked once per encoded chunk, from a background goroutine
	// reading FFmpeg's output — never from Encode itself (the design's
	// "output callback per chunk").
	OnChunk func(*types.EncodedChunk)
}

// usesIVF reports whether v's elementary stream must be carried over
// FFmpeg's IVF muxer rather than MPEG-TS: mediacommon's mpegts package
// has no VP8/VP9/AV1 support.
func usesIVF(v codec.Video) bool {
	switch v {
	case codec.VideoVP8, codec.VideoVP9, codec.VideoAV1:
		return true
	default:
		return false
	}
}

func keyframeDetectorFor(v codec.Video) func([]byte) bool {
	switch v {
	case codec.VideoVP8:
		return isVP8Keyframe
	case codec.VideoVP9:
		return isVP9Keyframe
	case codec.VideoAV1:
		return isAV1Keyframe
	default:
		return nil
	}
}

// VideoEncoder is the worker's video-encoder primitive: an FFmpeg
// subprocess fed raw RGBA frames on stdin, demuxed back into
// EncodedChunks from its stdout.
type VideoEncoder struct {
	cfg   VideoConfig
	cmd   *ffmpeg.Command
	stdin io.WriteCloser
	demux chunkDemuxer
	errCh chan error

	// exitCh is closed exactly once, after exitErr has been set, when the
	// FFmpeg process exits. StreamWithStdin's done channel delivers its
	// single value to exactly one receiver; watch() and Flush() both need
	// to observe the exit, so a dedicated goroutine consumes done once and
	// fans the result out through exitCh/exitErr instead of letting the two
	// race for it.
	exitCh  chan struct{}
	exitErr error

	queueDepth atomic.Int64
	closeOnce  sync.Once
}

// NewVideoEncoder starts the FFmpeg subprocess and demux goroutine.
func NewVideoEncoder(ctx context.Context, cfg VideoConfig) (*VideoEncoder, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.OnChunk == nil {
		return nil, types.NewError(types.KindConfigurationError, "video encoder: OnChunk is required")
	}

	e := &VideoEncoder{cfg: cfg, errCh: make(chan error, 1), exitCh: make(chan struct{})}

	builder := ffmpeg.NewCommandBuilder(cfg.FFmpegPath).
		LogLevel("error").
		HideBanner().
		Overwrite().
		RawVideoInput(cfg.Width, cfg.Height, cfg.FrameRate).
		VideoCodec(codec.GetVideoEncoder(cfg.Codec, cfg.HWAccel))

	if cfg.Bitrate > 0 {
		builder = builder.VideoBitrate(fmt.Sprintf("%d", cfg.Bitrate))
	}
	if cfg.ExtraArgs != "" {
		builder = builder.ApplyCustomOutputOptions(cfg.ExtraArgs)
	}

	var pw io.Writer
	if usesIVF(cfg.Codec) {
		demux := newIVFDemuxer(cfg.Logger, keyframeDetectorFor(cfg.Codec), cfg.OnChunk)
		e.demux = demux
		pw = demux
		builder = builder.OutputArgs("-f", "ivf").Output("pipe:1")
	} else {
		demux := newTSDemuxer(cfg.Logger, cfg.OnChunk)
		e.demux = demux
		pw = demux
		builder = builder.MpegtsArgs().Output("pipe:1")
	}

	e.cmd = builder.Build()

	stdin, done, err := e.cmd.StreamWithStdin(ctx, pw)
	if err != nil {
		return nil, types.Wrap(types.KindInitializationFailed, "starting video encoder process", err)
	}
	e.stdin = stdin

	go e.waitExit(done)
	go e.watch()

	return e, nil
}

// waitExit consumes StreamWithStdin's single done value exactly once and
// broadcasts it via exitCh, so watch() and Flush() never compete for it.
func (e *VideoEncoder) waitExit(done <-chan error) {
	e.exitErr = <-done
	close(e.exitCh)
}

func (e *VideoEncoder) watch() {
	<-e.exitCh
	if e.exitErr != nil {
		select {
		case e.errCh <- types.Wrap(types.KindVideoEncodingError, "video encoder process exited", e.exitErr):
		default:
		}
	}
}

// Encode writes one raw RGBA frame to the encoder's stdin.
func (e *VideoEncoder) Encode(frame *types.Frame) error {
	e.queueDepth.Add(1)
	defer e.queueDepth.Add(-1)

	if _, err := e.stdin.Write(frame.Data); err != nil {
		return types.Wrap(types.KindVideoEncodingError, "writing frame to encoder", err)
	}
	return nil
}

// QueueDepth reports frames currently being written to the encoder process,
// the "per-encoder queue depth" the codec manager surfaces upstream as
// backpressure.
func (e *VideoEncoder) QueueDepth() int {
	return int(e.queueDepth.Load())
}

// Flush closes stdin and waits for FFmpeg to drain and exit, then waits for
// the demuxer to finish emitting chunks.
func (e *VideoEncoder) Flush() error {
	if err := e.stdin.Close(); err != nil {
		return types.Wrap(types.KindVideoEncodingError, "closing encoder stdin", err)
	}
	<-e.exitCh
	if e.exitErr != nil {
		return types.Wrap(types.KindVideoEncodingError, "video encoder process exited", e.exitErr)
	}
	if err := e.demux.Close(); err != nil {
		return types.Wrap(types.KindMuxingFailed, "draining video demuxer", err)
	}
	return nil
}

// Close releases the encoder unconditionally, for cancellation: it kills
// the process rather than waiting for a clean exit.
func (e *VideoEncoder) Close() error {
	e.closeOnce.Do(func() {
		e.demux.Kill()
		_ = e.cmd.Kill()
	})
	return nil
}

// Errors returns the asynchronous error channel.
func (e *VideoEncoder) Errors() <-chan error {
	return e.errCh
}

// Stats returns the encoder subprocess's current resource usage. Returns
// nil if the process isn't running or monitoring hasn't started yet.
func (e *VideoEncoder) Stats() *ffmpeg.ProcessStats {
	return e.cmd.ProcessStats()
}
