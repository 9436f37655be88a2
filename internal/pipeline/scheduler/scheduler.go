// Package scheduler implements the Frame Scheduler: it drives a
// Source Adapter, assigns or validates timestamps, paces submission against
// worker backpressure, and reports EWMA-smoothed progress. In realtime
// mode pacing polls the worker's queue depth and drops the pending frame
// after a bounded number of polls, so a slow worker never blocks the frame
// source indefinitely.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/encodecore/encodecore/internal/pipeline/source"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// fpsEwmaAlpha weights the most recent inter-frame interval against the
// running average, so the estimate follows roughly the last few (about 1/0.3)
// frame intervals.
const fpsEwmaAlpha = 0.3

// maxBackpressurePolls bounds how long the scheduler waits for queue depth
// to clear in realtime mode before dropping the pending frame; frame
// drops are permitted in this mode and the scheduler records them.
const maxBackpressurePolls = 50

// Config configures a Scheduler, fixed for its lifetime.
type Config struct {
	Logger *slog.Logger

	Source source.Source

	FrameRate              int
	LatencyMode            types.LatencyMode
	MaxQueueDepth          int
	FirstTimestampBehavior types.FirstTimestampBehavior

	// PollInterval is the short poll interval used while backpressured in
	// realtime mode. Zero selects a 5ms default.
	PollInterval time.Duration

	// SendVideoFrame/SendAudioSample submit one owned element to the worker.
	// Ownership transfers on call; the scheduler never reads the element
	// again afterward.
	SendVideoFrame  func(*types.Frame)
	SendAudioSample func(*types.AudioSample)

	// QueueDepth polls the worker's current backpressure signal.
	QueueDepth func() (video, audio int)

	// OnProgress delivers each progress record.
	OnProgress func(types.ProgressMsg)

	// OnComplete is invoked once after both the video and audio sequences
	// are exhausted (the "sends finalize to the worker").
	OnComplete func()
}

// Scheduler drives a Source per the design
type Scheduler struct {
	cfg Config

	videoIndex int64 // monotonic counter for timestamp-less video frames
	audioCur   int64 // running audio timestamp for timestamp-less samples

	videoOffset  int64
	videoOffsetSet bool
	lastVideoTs  int64
	haveVideoTs  bool

	audioOffset    int64
	audioOffsetSet bool
	lastAudioTs    int64
	haveAudioTs    bool

	mu              sync.Mutex
	processedFrames int
	droppedFrames   int
	totalFrames     int
	fpsEwma         float64
	lastFrameAt     time.Time
}

// New constructs a Scheduler. Call Run to start driving cfg.Source.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.FirstTimestampBehavior == "" {
		cfg.FirstTimestampBehavior = types.FirstTimestampOffset
	}
	return &Scheduler{cfg: cfg}
}

// Run drives the source to exhaustion (or ctx cancellation / a source or
// ordering error), submitting video and audio concurrently, then invokes
// OnComplete. It returns the first error encountered, or nil on a clean
// end-of-source.
func (s *Scheduler) Run(ctx context.Context) error {
	if total, err := s.cfg.Source.TotalFrames(); err == nil {
		s.mu.Lock()
		s.totalFrames = total
		s.mu.Unlock()
	} else if types.KindOf(err) != types.KindUnknownLength {
		return err
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.runVideo(ctx); err != nil {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.runAudio(ctx); err != nil {
			errs <- err
		}
	}()

	wg.Wait()
	close(errs)

	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
	}

	if first == nil && s.cfg.OnComplete != nil {
		s.cfg.OnComplete()
	}
	return first
}

func (s *Scheduler) runVideo(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, ok, err := s.cfg.Source.NextVideoFrame(ctx)
		if err != nil {
			return types.Wrap(types.KindInvalidInput, "source produced a malformed video frame", err)
		}
		if !ok {
			return nil
		}

		ts, err := s.assignVideoTimestamp(frame)
		if err != nil {
			frame.Release()
			return err
		}
		frame.TimestampUs = ts

		if s.shouldDropForBackpressure(ctx, videoStream) {
			frame.Release()
			s.mu.Lock()
			s.droppedFrames++
			s.mu.Unlock()
			s.emitProgress()
			continue
		}

		s.cfg.SendVideoFrame(frame)
		s.recordAcceptedFrame()
		s.emitProgress()
	}
}

func (s *Scheduler) runAudio(ctx context.Context) error {
	if s.cfg.SendAudioSample == nil {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sample, ok, err := s.cfg.Source.NextAudioSample(ctx)
		if err != nil {
			return types.Wrap(types.KindInvalidInput, "source produced a malformed audio block", err)
		}
		if !ok {
			return nil
		}

		ts, err := s.assignAudioTimestamp(sample)
		if err != nil {
			sample.Release()
			return err
		}
		sample.TimestampUs = ts

		s.cfg.SendAudioSample(sample)
	}
}

type streamKind int

const (
	videoStream streamKind = iota
	audioStream
)

// shouldDropForBackpressure polls the worker's queue depth in realtime mode,
// reporting whether the caller should drop the pending element rather than
// submit it (the pacing and permitted-drop rules).
func (s *Scheduler) shouldDropForBackpressure(ctx context.Context, which streamKind) bool {
	if s.cfg.LatencyMode != types.LatencyRealtime || s.cfg.QueueDepth == nil {
		return false
	}
	max := s.cfg.MaxQueueDepth
	if max <= 0 {
		max = types.DefaultMaxQueueDepth
	}

	for attempt := 0; attempt < maxBackpressurePolls; attempt++ {
		videoDepth, audioDepth := s.cfg.QueueDepth()
		depth := videoDepth
		if which == audioStream {
			depth = audioDepth
		}
		if depth <= max {
			return false
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(s.cfg.PollInterval):
		}
	}
	return true
}

// assignVideoTimestamp resolves a frame's timestamp using per-shape
// index-based assignment, and enforces monotonic ordering.
func (s *Scheduler) assignVideoTimestamp(frame *types.Frame) (int64, error) {
	var ts int64
	if frame.HasExplicitTimestamp() {
		raw := frame.TimestampUs
		switch s.cfg.FirstTimestampBehavior {
		case types.FirstTimestampStrict:
			if !s.haveVideoTs && raw != 0 {
				return 0, types.NewError(types.KindTimestampOrdering, "strict first_timestamp_behavior requires the first video timestamp to be 0")
			}
			ts = raw
		case types.FirstTimestampPassthrough:
			ts = raw
		default: // offset
			if !s.videoOffsetSet {
				s.videoOffset = raw
				s.videoOffsetSet = true
			}
			ts = raw - s.videoOffset
		}
	} else {
		frameRate := s.cfg.FrameRate
		if frameRate <= 0 {
			frameRate = 30
		}
		ts = s.videoIndex * 1_000_000 / int64(frameRate)
	}
	s.videoIndex++

	if s.haveVideoTs && ts < s.lastVideoTs {
		return 0, types.NewError(types.KindTimestampOrdering, "video timestamp decreased relative to the previous accepted frame")
	}
	s.lastVideoTs = ts
	s.haveVideoTs = true
	return ts, nil
}

func (s *Scheduler) assignAudioTimestamp(sample *types.AudioSample) (int64, error) {
	var ts int64
	if sample.HasExplicitTimestamp() {
		raw := sample.TimestampUs
		switch s.cfg.FirstTimestampBehavior {
		case types.FirstTimestampStrict:
			if !s.haveAudioTs && raw != 0 {
				return 0, types.NewError(types.KindTimestampOrdering, "strict first_timestamp_behavior requires the first audio timestamp to be 0")
			}
			ts = raw
		case types.FirstTimestampPassthrough:
			ts = raw
		default: // offset
			if !s.audioOffsetSet {
				s.audioOffset = raw
				s.audioOffsetSet = true
			}
			ts = raw - s.audioOffset
		}
	} else {
		ts = s.audioCur
	}
	s.audioCur = ts + sample.DurationUs()

	if s.haveAudioTs && ts < s.lastAudioTs {
		return 0, types.NewError(types.KindTimestampOrdering, "audio timestamp decreased relative to the previous accepted block")
	}
	s.lastAudioTs = ts
	s.haveAudioTs = true
	return ts, nil
}

func (s *Scheduler) recordAcceptedFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if !s.lastFrameAt.IsZero() {
		dt := now.Sub(s.lastFrameAt).Seconds()
		if dt > 0 {
			inst := 1.0 / dt
			s.fpsEwma = fpsEwmaAlpha*inst + (1-fpsEwmaAlpha)*s.fpsEwma
		}
	}
	s.lastFrameAt = now
	s.processedFrames++
}

func (s *Scheduler) emitProgress() {
	if s.cfg.OnProgress == nil {
		return
	}
	s.mu.Lock()
	msg := types.ProgressMsg{
		ProcessedFrames:      s.processedFrames,
		TotalFrames:          s.totalFrames,
		FPS:                  s.fpsEwma,
		Stage:                "encoding",
		EstimatedRemainingMs: -1,
		DroppedFrames:        s.droppedFrames,
	}
	if s.totalFrames > 0 && s.fpsEwma > 0 {
		remaining := s.totalFrames - s.processedFrames
		if remaining < 0 {
			remaining = 0
		}
		msg.EstimatedRemainingMs = int64(float64(remaining) / s.fpsEwma * 1000)
	}
	s.mu.Unlock()
	s.cfg.OnProgress(msg)
}
