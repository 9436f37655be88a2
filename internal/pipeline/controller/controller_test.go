package controller

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encodecore/encodecore/internal/pipeline/source"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
}

func TestController_InitializeRejectsInvalidConfig(t *testing.T) {
	c := New(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Initialize(ctx, types.EncoderConfig{}, 0)
	require.Error(t, err)
	assert.Equal(t, types.KindConfigurationError, types.KindOf(err))
}

func TestController_OperationsAfterCancelFailWithInvalidState(t *testing.T) {
	c := New(Config{})
	c.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Initialize(ctx, types.EncoderConfig{}, 0)
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidState, types.KindOf(err))

	frame := &types.Frame{TimestampUs: -1, Data: []byte{1}}
	err = c.AddVideoFrame(frame)
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidState, types.KindOf(err))
	assert.True(t, frame.Released())

	_, err = c.Finalize(ctx)
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidState, types.KindOf(err))
}

func TestController_DoubleCancelIsIdempotent(t *testing.T) {
	c := New(Config{})
	c.Cancel()
	c.Cancel() // must not panic or double-enqueue
}

func TestController_SessionIDIsUniquePerInstance(t *testing.T) {
	a := New(Config{})
	b := New(Config{})

	assert.NotEmpty(t, a.SessionID())
	assert.NotEmpty(t, b.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestController_FullLifecycle_BatchMP4ViaRunSource(t *testing.T) {
	requireFFmpeg(t)

	var progressEvents int
	c := New(Config{
		Callbacks: Callbacks{
			OnProgress: func(p types.ProgressMsg) { progressEvents++ },
		},
	})

	frames := make([]*types.Frame, 2)
	for i := range frames {
		frames[i] = &types.Frame{TimestampUs: -1, Width: 32, Height: 32, Data: make([]byte, 32*32*4)}
	}
	src := source.NewFiniteFrames(frames)

	cfg := types.EncoderConfig{
		Width: 32, Height: 32, FrameRate: 5,
		VideoBitrate: 100_000,
		Container:    types.ContainerMP4,
		LatencyMode:  types.LatencyQuality,
		Codec:        types.CodecConfig{Video: "avc"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	bytes, err := c.RunSource(ctx, src, cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, bytes)
	assert.Greater(t, progressEvents, 0)
	assert.NotEmpty(t, c.ActualVideoCodec())

	for _, f := range frames {
		assert.True(t, f.Released())
	}

	c.Wait()
}
