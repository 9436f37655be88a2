// Package worker implements the Message Loop: a single
// goroutine processing one ToWorker message at a time from a buffered
// channel, honoring FIFO ordering, cancellation-drops-everything-but-cancel,
// and unknown-command tolerance, while owning the Codec Manager and Muxer
// Driver for the pipeline's lifetime. The lifecycle follows an
// atomic.Bool-guarded idempotent shutdown with a dedicated goroutine
// draining an input channel without blocking the caller, paired with a
// receive-dispatch-send loop over that channel.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/encodecore/encodecore/internal/ffmpeg"
	"github.com/encodecore/encodecore/internal/pipeline/types"
	"github.com/encodecore/encodecore/internal/pipeline/worker/codecmanager"
	"github.com/encodecore/encodecore/internal/pipeline/worker/muxer"
)

// Config configures a Loop, fixed for its lifetime.
type Config struct {
	Logger     *slog.Logger
	FFmpegPath string
	BinInfo    *ffmpeg.BinaryInfo

	// Send delivers one FromWorker message to the controller. It is called
	// from the loop's own goroutine and from the encoder primitives' chunk
	// callback goroutines, so calls can overlap and Send must be safe for
	// concurrent use. Each stream's chunks come from a single callback
	// goroutine and reach the muxer in the order the codec delivers them.
	Send func(types.FromWorker)
}

// Loop is the worker's Message Loop.
type Loop struct {
	cfg   Config
	in    chan types.ToWorker
	state atomic.Int32 // types.PipelineState

	mgr *codecmanager.Manager
	mux *muxer.Driver

	processedFrames int
	totalFrames     int
	droppedFrames   int

	closed atomic.Bool
}

// New constructs a Loop. Call Run in its own goroutine to start processing.
func New(cfg Config) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Loop{cfg: cfg, in: make(chan types.ToWorker, 64)}
	l.state.Store(int32(types.StateIdle))
	return l
}

// Enqueue submits a message for processing, preserving arrival order
//.
func (l *Loop) Enqueue(msg types.ToWorker) {
	if l.closed.Load() {
		return
	}
	l.in <- msg
}

// State returns the current pipeline state.
func (l *Loop) State() types.PipelineState {
	return types.PipelineState(l.state.Load())
}

func (l *Loop) setState(s types.PipelineState) {
	l.state.Store(int32(s))
}

// Run processes messages until a terminal message is emitted or ctx is
// cancelled, whichever comes first. It must run in its own goroutine and
// only one Run call may be active at a time.
func (l *Loop) Run(ctx context.Context) {
	defer l.closed.Store(true)

	for {
		select {
		case <-ctx.Done():
			l.handleCancel()
			return
		case msg := <-l.in:
			terminal := l.dispatch(ctx, msg)
			if terminal {
				return
			}
		case err := <-l.mgrErrCh():
			if !l.State().IsTerminal() {
				l.emitError(err)
				return
			}
		}
	}
}

// mgrErrCh returns the Codec Manager's out-of-band async error channel, or
// nil before initialize completes. A nil channel blocks forever in the
// select above, which is exactly the desired no-op until l.mgr exists.
func (l *Loop) mgrErrCh() <-chan error {
	if l.mgr == nil {
		return nil
	}
	return l.mgr.Errors()
}

// dispatch handles one message and reports whether the loop should stop.
func (l *Loop) dispatch(ctx context.Context, msg types.ToWorker) bool {
	state := l.State()

	// Cancellation absorbs every other command: once
	// cancelled, all subsequent messages except cancel (itself a no-op by
	// then) are dropped.
	if state == types.StateCancelled || state == types.StateTerminated {
		if msg.AddVideoFrame != nil {
			msg.AddVideoFrame.Frame.Release()
		}
		if msg.AddAudioData != nil {
			msg.AddAudioData.Sample.Release()
		}
		return true
	}

	switch {
	case msg.Initialize != nil:
		l.handleInitialize(ctx, msg.Initialize)
	case msg.AddVideoFrame != nil:
		l.handleAddVideoFrame(msg.AddVideoFrame)
	case msg.AddAudioData != nil:
		l.handleAddAudioData(msg.AddAudioData)
	case msg.Finalize != nil:
		l.handleFinalize()
	case msg.Cancel != nil:
		l.handleCancel()
		return true
	default:
		l.cfg.Logger.Warn("worker: unknown or empty message dropped")
	}

	return l.State().IsTerminal()
}

func (l *Loop) handleInitialize(ctx context.Context, cmd *types.InitializeCmd) {
	if l.State() != types.StateIdle {
		l.emitError(types.NewError(types.KindInvalidState, "initialize must be the first message"))
		return
	}
	l.setState(types.StateInitializing)

	if err := cmd.Config.Validate(); err != nil {
		l.emitError(err)
		return
	}
	l.totalFrames = cmd.TotalFrames

	var onVideoChunk, onAudioChunk func(*types.EncodedChunk)

	mgr, err := codecmanager.New(ctx, codecmanager.Config{
		Logger:        l.cfg.Logger,
		FFmpegPath:    l.cfg.FFmpegPath,
		BinInfo:       l.cfg.BinInfo,
		EncoderConfig: cmd.Config,
		OnVideoChunk: func(c *types.EncodedChunk) {
			if onVideoChunk != nil {
				onVideoChunk(c)
			}
		},
		OnAudioChunk: func(c *types.EncodedChunk) {
			if onAudioChunk != nil {
				onAudioChunk(c)
			}
		},
	})
	if err != nil {
		l.emitError(err)
		return
	}
	l.mgr = mgr

	drv, err := muxer.New(muxer.Config{
		Logger:          l.cfg.Logger,
		Container:       cmd.Config.Container,
		Mode:            cmd.Config.LatencyMode,
		VideoCodec:      mgr.NegotiatedVideoFamily(),
		AudioCodec:      mgr.NegotiatedAudioFamily(),
		Width:           cmd.Config.Width,
		Height:          cmd.Config.Height,
		AudioSampleRate: cmd.Config.SampleRate,
		AudioChannels:   cmd.Config.Channels,
		OnFragment: func(chunk types.DataChunkMsg) {
			l.cfg.Send(types.FromWorker{DataChunk: &chunk})
		},
	})
	if err != nil {
		l.mgr.Close()
		l.emitError(err)
		return
	}
	l.mux = drv

	onVideoChunk = func(c *types.EncodedChunk) {
		if err := l.mux.WriteVideo(c); err != nil {
			l.emitError(err)
		}
	}
	onAudioChunk = func(c *types.EncodedChunk) {
		if err := l.mux.WriteAudio(c); err != nil {
			l.emitError(err)
		}
	}

	l.setState(types.StateReady)
	l.cfg.Send(types.FromWorker{Initialized: &types.InitializedMsg{
		ActualVideoCodec: mgr.ActualVideoCodec(),
		ActualAudioCodec: mgr.ActualAudioCodec(),
	}})
}

func (l *Loop) handleAddVideoFrame(cmd *types.AddVideoFrameCmd) {
	if !l.State().CanAcceptFrames() {
		cmd.Frame.Release()
		l.emitError(types.NewError(types.KindInvalidState, "addVideoFrame requires state ready or running"))
		return
	}
	if l.State() == types.StateReady {
		l.setState(types.StateRunning)
	}

	if err := l.mgr.EncodeVideo(cmd.Frame); err != nil {
		l.emitError(err)
		return
	}
	l.processedFrames++
	l.reportProgress()
	l.reportQueueDepth()
}

func (l *Loop) handleAddAudioData(cmd *types.AddAudioDataCmd) {
	if !l.State().CanAcceptFrames() {
		cmd.Sample.Release()
		l.emitError(types.NewError(types.KindInvalidState, "addAudioData requires state ready or running"))
		return
	}
	if l.State() == types.StateReady {
		l.setState(types.StateRunning)
	}

	if err := l.mgr.EncodeAudio(cmd.Sample); err != nil {
		l.emitError(err)
		return
	}
	l.reportQueueDepth()
}

func (l *Loop) reportProgress() {
	total := l.totalFrames
	l.cfg.Send(types.FromWorker{Progress: &types.ProgressMsg{
		ProcessedFrames:      l.processedFrames,
		TotalFrames:          total,
		Stage:                "encoding",
		EstimatedRemainingMs: -1,
		DroppedFrames:        l.droppedFrames,
	}})
}

func (l *Loop) reportQueueDepth() {
	videoDepth, audioDepth := l.mgr.QueueDepth()
	videoStats, audioStats := l.mgr.Stats()

	msg := types.QueueSizeMsg{VideoQueueDepth: videoDepth, AudioQueueDepth: audioDepth}
	if videoStats != nil {
		msg.CPUPercent = videoStats.CPUPercent
		msg.MemoryMB = videoStats.MemoryRSSMB
	} else if audioStats != nil {
		msg.CPUPercent = audioStats.CPUPercent
		msg.MemoryMB = audioStats.MemoryRSSMB
	}
	l.cfg.Send(types.FromWorker{QueueSize: &msg})
}

func (l *Loop) handleFinalize() {
	state := l.State()
	if state != types.StateRunning {
		l.emitError(types.NewError(types.KindInvalidState, "finalize requires state running"))
		return
	}
	l.setState(types.StateFinalizing)

	if err := l.mgr.Flush(); err != nil {
		l.mgr.Close()
		l.emitError(err)
		return
	}

	bytes, err := l.mux.Finalize()
	l.mgr.Close()
	if err != nil {
		l.emitError(err)
		return
	}

	l.setState(types.StateTerminated)
	l.cfg.Send(types.FromWorker{Finalized: &types.FinalizedMsg{Bytes: bytes}})
}

func (l *Loop) handleCancel() {
	if l.State().IsTerminal() {
		return
	}
	l.setState(types.StateCancelled)
	if l.mgr != nil {
		l.mgr.Close()
	}
	l.cfg.Send(types.FromWorker{Cancelled: &types.CancelledMsg{}})
}

func (l *Loop) emitError(err error) {
	kind := types.KindOf(err)
	if kind == types.KindUnknown {
		kind = types.KindInternalError
	}
	l.setState(types.StateCancelled)
	if l.mgr != nil {
		l.mgr.Close()
	}
	l.cfg.Send(types.FromWorker{Error: &types.ErrorMsg{Kind: kind, Message: err.Error()}})
}
