package source

import (
	"context"

	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// liveSource adapts a live media stream delivered over caller-owned channels
//. The
// caller produces frames/samples and closes each channel at end of stream;
// liveSource never closes them itself.
type liveSource struct {
	video <-chan *types.Frame
	audio <-chan *types.AudioSample
}

// NewLiveStream builds a Source over two channels the caller feeds. Either
// channel may be nil, meaning that stream carries nothing (e.g. video-only
// with audio nil). TotalFrames is unknown by construction.
func NewLiveStream(video <-chan *types.Frame, audio <-chan *types.AudioSample) Source {
	return &liveSource{video: video, audio: audio}
}

func (s *liveSource) NextVideoFrame(ctx context.Context) (*types.Frame, bool, error) {
	if s.video == nil {
		return nil, false, nil
	}
	select {
	case f, ok := <-s.video:
		return f, ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (s *liveSource) NextAudioSample(ctx context.Context) (*types.AudioSample, bool, error) {
	if s.audio == nil {
		return nil, false, nil
	}
	select {
	case a, ok := <-s.audio:
		return a, ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// TotalFrames always fails with KindUnknownLength.
func (s *liveSource) TotalFrames() (int, error) {
	return 0, types.NewError(types.KindUnknownLength, "live stream length is not known ahead of time")
}

// Close is a no-op: the channels are caller-owned and the stream is not
// restartable, so there is nothing for the adapter itself to release.
func (s *liveSource) Close() error {
	return nil
}
