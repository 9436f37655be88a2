package mp4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// h264KeyframeAU builds a minimal Annex-B buffer containing a fake SPS, PPS
// and IDR slice, just enough for extractVideoParams to recognize NAL types 7
// and 8.
func h264KeyframeAU() []byte {
	var out []byte
	out = append(out, 0, 0, 0, 1)
	out = append(out, 0x67, 0x42, 0x00, 0x1f) // SPS (NAL type 7)
	out = append(out, 0, 0, 0, 1)
	out = append(out, 0x68, 0xce) // PPS (NAL type 8)
	out = append(out, 0, 0, 0, 1)
	out = append(out, 0x65, 0x88, 0x84) // IDR slice (NAL type 5)
	return out
}

func TestMuxer_BatchFinalize_H264(t *testing.T) {
	m := New(Config{VideoCodec: codec.VideoH264, Width: 320, Height: 240})

	err := m.WriteVideo(&types.EncodedChunk{
		Data: h264KeyframeAU(), Type: types.ChunkKey, TimestampUs: 0, DurationUs: 33333,
	})
	require.NoError(t, err)

	out, err := m.Finalize()
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Contains(t, string(out[4:8]), "ftyp")
}

func TestMuxer_RealtimeHeaderBeforeFragment(t *testing.T) {
	m := New(Config{VideoCodec: codec.VideoH264, Width: 320, Height: 240})

	require.NoError(t, m.WriteVideo(&types.EncodedChunk{
		Data: h264KeyframeAU(), Type: types.ChunkKey, TimestampUs: 0,
	}))

	header, err := m.Header()
	require.NoError(t, err)
	require.NotEmpty(t, header)

	frag, err := m.Flush()
	require.NoError(t, err)
	require.NotEmpty(t, frag)

	// A second flush with nothing buffered returns nil, not an empty fragment.
	frag2, err := m.Flush()
	require.NoError(t, err)
	assert.Nil(t, frag2)
}

func TestMuxer_WaitsForParamsBeforeInitializing(t *testing.T) {
	m := New(Config{VideoCodec: codec.VideoH264, Width: 320, Height: 240})

	// A non-keyframe chunk with no SPS/PPS yet must not initialize the muxer.
	require.NoError(t, m.WriteVideo(&types.EncodedChunk{
		Data: []byte{0, 0, 0, 1, 0x61, 0x00}, Type: types.ChunkDelta, TimestampUs: 0,
	}))
	assert.False(t, m.initialized)
}

func TestMuxer_VP9AlwaysReady(t *testing.T) {
	m := New(Config{VideoCodec: codec.VideoVP9, Width: 320, Height: 240})
	assert.True(t, m.canInitialize())
}
