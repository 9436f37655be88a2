package source

import (
	"context"

	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// PullVideoFunc pulls the next video frame at the caller's own pace.
type PullVideoFunc func(ctx context.Context) (*types.Frame, bool, error)

// PullAudioFunc pulls the next audio block at the caller's own pace.
type PullAudioFunc func(ctx context.Context) (*types.AudioSample, bool, error)

// asyncSource adapts a caller-paced async iterator (the design: "Async
// generator/iterator — caller supplies a pull function, paced by the
// caller rather than the pipeline"). It is a thin pass-through: pacing and
// blocking semantics belong entirely to the supplied functions.
type asyncSource struct {
	pullVideo PullVideoFunc
	pullAudio PullAudioFunc
}

// NewAsyncIterator builds a Source over caller-supplied pull functions.
// Either may be nil, meaning that stream carries nothing.
func NewAsyncIterator(pullVideo PullVideoFunc, pullAudio PullAudioFunc) Source {
	return &asyncSource{pullVideo: pullVideo, pullAudio: pullAudio}
}

func (s *asyncSource) NextVideoFrame(ctx context.Context) (*types.Frame, bool, error) {
	if s.pullVideo == nil {
		return nil, false, nil
	}
	return s.pullVideo(ctx)
}

func (s *asyncSource) NextAudioSample(ctx context.Context) (*types.AudioSample, bool, error) {
	if s.pullAudio == nil {
		return nil, false, nil
	}
	return s.pullAudio(ctx)
}

// TotalFrames always fails with KindUnknownLength: an async generator's
// length is whatever the caller's function eventually decides to stop at.
func (s *asyncSource) TotalFrames() (int, error) {
	return 0, types.NewError(types.KindUnknownLength, "async iterator length is not known ahead of time")
}

func (s *asyncSource) Close() error {
	return nil
}
