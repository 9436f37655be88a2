package webm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encodecore/encodecore/internal/codec"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

func TestMuxer_HeaderBeginsWithEBMLSignature(t *testing.T) {
	m := New(Config{VideoCodec: codec.VideoVP8, Width: 320, Height: 240})
	header, err := m.Header()
	require.NoError(t, err)
	require.Len(t, header, len(header))
	assert.Equal(t, []byte{0x1A, 0x45, 0xDF, 0xA3}, header[:4])
}

func TestMuxer_HeaderEmittedExactlyOnce(t *testing.T) {
	m := New(Config{VideoCodec: codec.VideoVP8, Width: 320, Height: 240})
	first, err := m.Header()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := m.Header()
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestMuxer_WriteBeforeHeaderFails(t *testing.T) {
	m := New(Config{VideoCodec: codec.VideoVP8, Width: 320, Height: 240})
	err := m.WriteVideo(&types.EncodedChunk{Data: []byte{1, 2, 3}, Type: types.ChunkKey})
	require.Error(t, err)
	assert.Equal(t, types.KindInternalError, types.KindOf(err))
}

func TestMuxer_RealtimeFlushDrainsOnlyOnce(t *testing.T) {
	m := New(Config{VideoCodec: codec.VideoVP8, Width: 320, Height: 240})
	_, err := m.Header()
	require.NoError(t, err)

	require.NoError(t, m.WriteVideo(&types.EncodedChunk{Data: []byte{9, 9, 9}, Type: types.ChunkKey, TimestampUs: 0}))

	frag, err := m.Flush()
	require.NoError(t, err)
	assert.NotEmpty(t, frag)

	empty, err := m.Flush()
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestMuxer_BatchFinalizeIncludesHeaderAndBlocks(t *testing.T) {
	m := New(Config{VideoCodec: codec.VideoVP9, AudioCodec: codec.AudioOpus, Width: 640, Height: 480, AudioSampleRate: 48000, AudioChannels: 2})

	_, err := m.Header()
	require.NoError(t, err)
	require.NoError(t, m.WriteVideo(&types.EncodedChunk{Data: []byte{1, 2}, Type: types.ChunkKey, TimestampUs: 0}))
	require.NoError(t, m.WriteAudio(&types.EncodedChunk{Data: []byte{3, 4}, Type: types.ChunkKey, TimestampUs: 0}))

	out, err := m.Finalize()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1A, 0x45, 0xDF, 0xA3}, out[:4])
	assert.Greater(t, len(out), 4)
}

func TestVideoCodecID(t *testing.T) {
	tests := []struct {
		codec codec.Video
		want  string
		ok    bool
	}{
		{codec.VideoVP8, "V_VP8", true},
		{codec.VideoVP9, "V_VP9", true},
		{codec.VideoAV1, "V_AV1", true},
		{codec.VideoH264, "", false},
	}
	for _, tt := range tests {
		got, err := videoCodecID(tt.codec)
		if tt.ok {
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		} else {
			assert.Error(t, err)
		}
	}
}
