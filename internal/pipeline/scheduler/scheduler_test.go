package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encodecore/encodecore/internal/pipeline/source"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

func frames(n int) []*types.Frame {
	out := make([]*types.Frame, n)
	for i := range out {
		out[i] = &types.Frame{TimestampUs: -1, Data: []byte{byte(i)}}
	}
	return out
}

func TestScheduler_BatchAssignsIndexTimestamps(t *testing.T) {
	src := source.NewFiniteFrames(frames(3))

	var mu sync.Mutex
	var sent []*types.Frame
	var progressMsgs []types.ProgressMsg
	completed := false

	s := New(Config{
		Source:      src,
		FrameRate:   10,
		LatencyMode: types.LatencyQuality,
		SendVideoFrame: func(f *types.Frame) {
			mu.Lock()
			sent = append(sent, f)
			mu.Unlock()
		},
		OnProgress: func(p types.ProgressMsg) {
			mu.Lock()
			progressMsgs = append(progressMsgs, p)
			mu.Unlock()
		},
		OnComplete: func() {
			mu.Lock()
			completed = true
			mu.Unlock()
		},
	})

	err := s.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 3)
	assert.Equal(t, int64(0), sent[0].TimestampUs)
	assert.Equal(t, int64(100_000), sent[1].TimestampUs) // 1/10s in microseconds
	assert.Equal(t, int64(200_000), sent[2].TimestampUs)
	assert.True(t, completed)
	require.NotEmpty(t, progressMsgs)
	assert.Equal(t, 3, progressMsgs[len(progressMsgs)-1].ProcessedFrames)
	assert.Equal(t, 3, progressMsgs[len(progressMsgs)-1].TotalFrames)
}

func TestScheduler_OffsetRebasesFirstExplicitTimestamp(t *testing.T) {
	f1 := &types.Frame{TimestampUs: 5_000_000, Data: []byte{1}}
	f2 := &types.Frame{TimestampUs: 5_100_000, Data: []byte{2}}
	src := source.NewFiniteFrames([]*types.Frame{f1, f2})

	var sent []*types.Frame
	s := New(Config{
		Source:                 src,
		FrameRate:              10,
		LatencyMode:            types.LatencyQuality,
		FirstTimestampBehavior: types.FirstTimestampOffset,
		SendVideoFrame:         func(f *types.Frame) { sent = append(sent, f) },
	})

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, sent, 2)
	assert.Equal(t, int64(0), sent[0].TimestampUs)
	assert.Equal(t, int64(100_000), sent[1].TimestampUs)
}

func TestScheduler_StrictRejectsNonZeroFirstTimestamp(t *testing.T) {
	f1 := &types.Frame{TimestampUs: 5_000, Data: []byte{1}}
	src := source.NewFiniteFrames([]*types.Frame{f1})

	s := New(Config{
		Source:                 src,
		FrameRate:              10,
		LatencyMode:            types.LatencyQuality,
		FirstTimestampBehavior: types.FirstTimestampStrict,
		SendVideoFrame:         func(f *types.Frame) {},
	})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.KindTimestampOrdering, types.KindOf(err))
	assert.True(t, f1.Released())
}

func TestScheduler_DecreasingTimestampIsRejected(t *testing.T) {
	f1 := &types.Frame{TimestampUs: 1000, Data: []byte{1}}
	f2 := &types.Frame{TimestampUs: 500, Data: []byte{2}}
	src := source.NewFiniteFrames([]*types.Frame{f1, f2})

	s := New(Config{
		Source:                 src,
		FrameRate:              10,
		LatencyMode:            types.LatencyQuality,
		FirstTimestampBehavior: types.FirstTimestampPassthrough,
		SendVideoFrame:         func(f *types.Frame) {},
	})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.KindTimestampOrdering, types.KindOf(err))
	assert.True(t, f2.Released())
}

func TestScheduler_RealtimeDropsOnSustainedBackpressure(t *testing.T) {
	src := source.NewFiniteFrames(frames(5))

	var sentCount int
	s := New(Config{
		Source:       src,
		FrameRate:    10,
		LatencyMode:  types.LatencyRealtime,
		MaxQueueDepth: 1,
		PollInterval: time.Millisecond,
		SendVideoFrame: func(f *types.Frame) {
			sentCount++
		},
		QueueDepth: func() (int, int) { return 100, 0 }, // always backpressured
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 0, sentCount, "every frame should have been dropped under sustained backpressure")
}

func TestScheduler_RealtimeSubmitsWhenUnderThreshold(t *testing.T) {
	src := source.NewFiniteFrames(frames(5))

	var sentCount int
	s := New(Config{
		Source:        src,
		FrameRate:     10,
		LatencyMode:   types.LatencyRealtime,
		MaxQueueDepth: 10,
		PollInterval:  time.Millisecond,
		SendVideoFrame: func(f *types.Frame) {
			sentCount++
		},
		QueueDepth: func() (int, int) { return 0, 0 },
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 5, sentCount)
}

func TestScheduler_UnknownLengthSourceRunsCleanly(t *testing.T) {
	videoCh := make(chan *types.Frame, 1)
	f := &types.Frame{TimestampUs: -1, Data: []byte{1}}
	videoCh <- f
	close(videoCh)
	src := source.NewLiveStream(videoCh, nil)

	var progress types.ProgressMsg
	s := New(Config{
		Source:         src,
		FrameRate:      30,
		LatencyMode:    types.LatencyQuality,
		SendVideoFrame: func(f *types.Frame) {},
		OnProgress:     func(p types.ProgressMsg) { progress = p },
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 0, progress.TotalFrames, "a live stream's length is never known ahead of time")
	assert.Equal(t, 1, progress.ProcessedFrames)
}
