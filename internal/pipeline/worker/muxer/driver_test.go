package muxer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

func h264KeyframeAU() []byte {
	var out []byte
	out = append(out, 0, 0, 0, 1)
	out = append(out, 0x67, 0x42, 0x00, 0x1f)
	out = append(out, 0, 0, 0, 1)
	out = append(out, 0x68, 0xce)
	out = append(out, 0, 0, 0, 1)
	out = append(out, 0x65, 0x88, 0x84)
	return out
}

func TestDriver_MP4Batch(t *testing.T) {
	d, err := New(Config{
		Container:  types.ContainerMP4,
		Mode:       types.LatencyQuality,
		VideoCodec: codec.VideoH264,
		Width:      320, Height: 240,
	})
	require.NoError(t, err)

	require.NoError(t, d.WriteVideo(&types.EncodedChunk{Data: h264KeyframeAU(), Type: types.ChunkKey, DurationUs: 33333}))

	out, err := d.Finalize()
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestDriver_WebMRealtime_EmitsHeaderUpFront(t *testing.T) {
	var fragments []types.DataChunkMsg
	d, err := New(Config{
		Container:  types.ContainerWebM,
		Mode:       types.LatencyRealtime,
		VideoCodec: codec.VideoVP8,
		Width:      320, Height: 240,
		OnFragment: func(m types.DataChunkMsg) { fragments = append(fragments, m) },
	})
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.True(t, fragments[0].IsHeader)

	require.NoError(t, d.WriteVideo(&types.EncodedChunk{Data: []byte{1, 2, 3}, Type: types.ChunkKey}))
	require.Len(t, fragments, 2)
	assert.False(t, fragments[1].IsHeader)

	payload, err := d.Finalize()
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestDriver_MP4Realtime_HeaderWaitsForParams(t *testing.T) {
	var fragments []types.DataChunkMsg
	d, err := New(Config{
		Container:  types.ContainerMP4,
		Mode:       types.LatencyRealtime,
		VideoCodec: codec.VideoH264,
		Width:      320, Height: 240,
		OnFragment: func(m types.DataChunkMsg) { fragments = append(fragments, m) },
	})
	require.NoError(t, err)
	assert.Empty(t, fragments, "mp4 header must wait for SPS/PPS, unlike webm")

	require.NoError(t, d.WriteVideo(&types.EncodedChunk{Data: h264KeyframeAU(), Type: types.ChunkKey}))
	require.GreaterOrEqual(t, len(fragments), 1)
	assert.True(t, fragments[0].IsHeader)
}

func TestDriver_UnsupportedContainer(t *testing.T) {
	_, err := New(Config{Container: types.Container("avi")})
	require.Error(t, err)
	assert.Equal(t, types.KindConfigurationError, types.KindOf(err))
}
