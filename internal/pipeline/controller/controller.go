// Package controller implements the Controller: a thin façade
// over the worker. It validates arguments, serializes commands onto the
// Message Loop, tracks outstanding initialize/finalize operations, and
// dispatches incoming worker messages to user callbacks. The
// request-validate-dispatch-await pattern — a caller blocking on a
// response channel while a background goroutine drains the reply
// stream — is adapted from an RPC handler shape to an in-process
// channel pair, since there is no RPC boundary here.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/encodecore/encodecore/internal/ffmpeg"
	"github.com/encodecore/encodecore/internal/pipeline/scheduler"
	"github.com/encodecore/encodecore/internal/pipeline/source"
	"github.com/encodecore/encodecore/internal/pipeline/types"
	"github.com/encodecore/encodecore/internal/pipeline/worker"
)

// Callbacks receives worker messages as they arrive (the design: "dispatches
// incoming worker messages to user callbacks"). Any field may be nil.
type Callbacks struct {
	OnProgress  func(types.ProgressMsg)
	OnQueueSize func(types.QueueSizeMsg)
	OnDataChunk func(types.DataChunkMsg)
	OnCancelled func()
}

// Config configures a Controller, fixed for its lifetime.
type Config struct {
	Logger     *slog.Logger
	FFmpegPath string

	// BinInfo is reused across Initialize calls once populated by
	// DetectCapabilities; callers that skip DetectCapabilities leave
	// negotiation to trust the preferred codec family unconditionally.
	BinInfo *ffmpeg.BinaryInfo

	Callbacks Callbacks
}

// Controller is the public façade over one pipeline instance's lifetime. A
// Controller is single-use: once cancel or finalize completes, every
// further operation fails with InvalidState.
type Controller struct {
	cfg Config

	// sessionID correlates this Controller's log lines across its
	// lifetime; one per instance, generated once in New. A pipeline
	// instance has no caller-visible identifier of its own, so this
	// exists purely for observability, the way a per-job UUID
	// correlates a daemon's registration/heartbeat log lines.
	sessionID string

	loop    *worker.Loop
	cancel  context.CancelFunc
	runDone chan struct{}

	mu             sync.Mutex
	initResult     chan error
	finalizeResult chan error
	finalizeBytes  []byte

	actualVideoCodec string
	actualAudioCodec string

	lastVideoDepth int
	lastAudioDepth int

	terminal atomic.Bool
}

// New constructs a Controller. The pipeline is idle until Initialize is
// called.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &Controller{cfg: cfg, sessionID: uuid.NewString()}
}

// SessionID returns this Controller's unique correlation identifier,
// generated once in New.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// DetectCapabilities probes the local FFmpeg binary for codec/format support
// and caches the result on the Controller for subsequent Initialize calls.
func (c *Controller) DetectCapabilities(ctx context.Context) (*ffmpeg.BinaryInfo, error) {
	info, err := ffmpeg.NewBinaryDetector().Detect(ctx)
	if err != nil {
		return nil, types.Wrap(types.KindInitializationFailed, "detecting ffmpeg capabilities", err)
	}
	c.mu.Lock()
	c.cfg.BinInfo = info
	c.mu.Unlock()
	return info, nil
}

// Initialize starts the worker and blocks until the pipeline reports ready
// or fails, awaiting the worker's initialized/error acknowledgment.
// It must be the first operation called on a Controller.
func (c *Controller) Initialize(ctx context.Context, cfg types.EncoderConfig, totalFrames int) error {
	if c.terminal.Load() {
		return types.NewError(types.KindInvalidState, "initialize called on a terminated controller")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.runDone = make(chan struct{})

	c.mu.Lock()
	c.initResult = make(chan error, 1)
	c.mu.Unlock()

	c.loop = worker.New(worker.Config{
		Logger:     c.cfg.Logger.With(slog.String("session_id", c.sessionID)),
		FFmpegPath: c.cfg.FFmpegPath,
		BinInfo:    c.cfg.BinInfo,
		Send:       c.dispatch,
	})

	go func() {
		c.loop.Run(runCtx)
		close(c.runDone)
	}()

	c.loop.Enqueue(types.ToWorker{Initialize: &types.InitializeCmd{Config: cfg, TotalFrames: totalFrames}})

	select {
	case err := <-c.initResult:
		return err
	case <-ctx.Done():
		c.Cancel()
		return types.Wrap(types.KindCancelled, "initialize cancelled by caller context", ctx.Err())
	}
}

// AddVideoFrame submits one frame (the add_video_frame). Ownership
// of frame transfers to the pipeline; the worker releases it exactly once.
func (c *Controller) AddVideoFrame(frame *types.Frame) error {
	if c.terminal.Load() {
		frame.Release()
		return types.NewError(types.KindInvalidState, "addVideoFrame called after cancel or finalize")
	}
	c.loop.Enqueue(types.ToWorker{AddVideoFrame: &types.AddVideoFrameCmd{Frame: frame}})
	return nil
}

// AddAudio submits one audio block (the add_audio).
func (c *Controller) AddAudio(sample *types.AudioSample) error {
	if c.terminal.Load() {
		sample.Release()
		return types.NewError(types.KindInvalidState, "addAudio called after cancel or finalize")
	}
	c.loop.Enqueue(types.ToWorker{AddAudioData: &types.AddAudioDataCmd{Sample: sample}})
	return nil
}

// Finalize requests the terminal flush/mux sequence and blocks until it
// completes, returning the finalized buffer (nil in realtime mode, since
// realtime output was already delivered as streamed fragments).
func (c *Controller) Finalize(ctx context.Context) ([]byte, error) {
	if c.terminal.Load() {
		return nil, types.NewError(types.KindInvalidState, "finalize called after cancel or a prior finalize")
	}

	c.mu.Lock()
	c.finalizeResult = make(chan error, 1)
	c.mu.Unlock()

	c.loop.Enqueue(types.ToWorker{Finalize: &types.FinalizeCmd{}})

	select {
	case err := <-c.finalizeResult:
		if err != nil {
			return nil, err
		}
		return c.finalizeBytes, nil
	case <-ctx.Done():
		c.Cancel()
		return nil, types.Wrap(types.KindCancelled, "finalize cancelled by caller context", ctx.Err())
	}
}

// Cancel requests teardown. It is asynchronous: it returns immediately, and
// any in-flight Initialize or Finalize call observes Cancelled.
func (c *Controller) Cancel() {
	if c.terminal.Swap(true) {
		return
	}
	if c.loop != nil {
		c.loop.Enqueue(types.ToWorker{Cancel: &types.CancelCmd{}})
	}
}

// ActualVideoCodec returns the negotiated video codec string reported by
// the worker's initialized message, or "" before initialization completes.
func (c *Controller) ActualVideoCodec() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actualVideoCodec
}

// ActualAudioCodec returns the negotiated audio codec string.
func (c *Controller) ActualAudioCodec() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actualAudioCodec
}

// Wait blocks until the worker's message loop has fully exited, after a
// terminal message (finalized, cancelled, or error) has been dispatched.
func (c *Controller) Wait() {
	if c.runDone != nil {
		<-c.runDone
	}
}

// RunSource drives src through a Scheduler until exhaustion, submitting
// frames/samples via AddVideoFrame/AddAudio, then calls Finalize and
// returns its result. This is the normal, convenience way a caller feeds
// the pipeline, layered over the same per-element operations a caller
// could also drive by hand.
func (c *Controller) RunSource(ctx context.Context, src source.Source, encCfg types.EncoderConfig) ([]byte, error) {
	totalFrames := 0
	if n, err := src.TotalFrames(); err == nil {
		totalFrames = n
	}

	if err := c.Initialize(ctx, encCfg, totalFrames); err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{
		Logger:                 c.cfg.Logger,
		Source:                 src,
		FrameRate:              encCfg.FrameRate,
		LatencyMode:            encCfg.LatencyMode,
		MaxQueueDepth:          encCfg.EffectiveMaxQueueDepth(),
		FirstTimestampBehavior: encCfg.EffectiveFirstTimestampBehavior(),
		SendVideoFrame: func(f *types.Frame) {
			_ = c.AddVideoFrame(f)
		},
		SendAudioSample: func(a *types.AudioSample) {
			_ = c.AddAudio(a)
		},
		QueueDepth: func() (video, audio int) {
			return c.lastQueueDepth()
		},
		OnProgress: c.cfg.Callbacks.OnProgress,
	})

	if err := sched.Run(ctx); err != nil {
		c.Cancel()
		return nil, err
	}

	return c.Finalize(ctx)
}

// dispatch is the worker's Send callback: it resolves any pending
// Initialize/Finalize wait, records negotiated codec strings and the most
// recent queue-depth snapshot, and forwards everything else to user
// callbacks.
func (c *Controller) dispatch(msg types.FromWorker) {
	switch {
	case msg.Initialized != nil:
		c.mu.Lock()
		c.actualVideoCodec = msg.Initialized.ActualVideoCodec
		c.actualAudioCodec = msg.Initialized.ActualAudioCodec
		ch := c.initResult
		c.mu.Unlock()
		if ch != nil {
			ch <- nil
		}

	case msg.Progress != nil:
		if c.cfg.Callbacks.OnProgress != nil {
			c.cfg.Callbacks.OnProgress(*msg.Progress)
		}

	case msg.QueueSize != nil:
		c.mu.Lock()
		c.lastVideoDepth = msg.QueueSize.VideoQueueDepth
		c.lastAudioDepth = msg.QueueSize.AudioQueueDepth
		c.mu.Unlock()
		if c.cfg.Callbacks.OnQueueSize != nil {
			c.cfg.Callbacks.OnQueueSize(*msg.QueueSize)
		}

	case msg.DataChunk != nil:
		if c.cfg.Callbacks.OnDataChunk != nil {
			c.cfg.Callbacks.OnDataChunk(*msg.DataChunk)
		}

	case msg.Finalized != nil:
		c.terminal.Store(true)
		c.mu.Lock()
		c.finalizeBytes = msg.Finalized.Bytes
		ch := c.finalizeResult
		c.mu.Unlock()
		if ch != nil {
			ch <- nil
		}

	case msg.Cancelled != nil:
		c.terminal.Store(true)
		c.resolvePending(types.NewError(types.KindCancelled, "pipeline was cancelled"))
		if c.cfg.Callbacks.OnCancelled != nil {
			c.cfg.Callbacks.OnCancelled()
		}

	case msg.Error != nil:
		c.terminal.Store(true)
		c.resolvePending(types.NewError(msg.Error.Kind, msg.Error.Message))
	}
}

func (c *Controller) resolvePending(err error) {
	c.mu.Lock()
	initCh, finCh := c.initResult, c.finalizeResult
	c.mu.Unlock()
	if initCh != nil {
		select {
		case initCh <- err:
		default:
		}
	}
	if finCh != nil {
		select {
		case finCh <- err:
		default:
		}
	}
}

func (c *Controller) lastQueueDepth() (video, audio int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastVideoDepth, c.lastAudioDepth
}
