package source

import (
	"context"

	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// finiteSource wraps a known-length, in-memory sequence of frames. It
// carries no audio; video-only content submitted this way leaves audio
// disabled in the resulting pipeline.
type finiteSource struct {
	frames []*types.Frame
	idx    int
}

// NewFiniteFrames builds a Source over a pre-built, finite slice of frames.
// Timestamp assignment (index/frame_rate for frames without an explicit
// timestamp) is the Frame Scheduler's job, not the adapter's:
// both derive the identical i/frame_rate sequence, so there is no need to
// duplicate the computation here.
func NewFiniteFrames(frames []*types.Frame) Source {
	return &finiteSource{frames: frames}
}

func (s *finiteSource) NextVideoFrame(_ context.Context) (*types.Frame, bool, error) {
	if s.idx >= len(s.frames) {
		return nil, false, nil
	}
	f := s.frames[s.idx]
	s.idx++
	return f, true, nil
}

func (s *finiteSource) NextAudioSample(_ context.Context) (*types.AudioSample, bool, error) {
	return nil, false, nil
}

func (s *finiteSource) TotalFrames() (int, error) {
	return len(s.frames), nil
}

func (s *finiteSource) Close() error {
	return nil
}
