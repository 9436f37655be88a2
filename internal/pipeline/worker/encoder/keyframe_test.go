package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVP8Keyframe(t *testing.T) {
	assert.True(t, isVP8Keyframe([]byte{0x10, 0x00, 0x00}))
	assert.False(t, isVP8Keyframe([]byte{0x11, 0x00, 0x00}))
	assert.False(t, isVP8Keyframe(nil))
}

func TestIsVP9Keyframe(t *testing.T) {
	assert.True(t, isVP9Keyframe([]byte{0x82}))
	assert.False(t, isVP9Keyframe([]byte{0x00}))
}

func TestIsAV1Keyframe_InvalidDataIsNotKeyframe(t *testing.T) {
	assert.False(t, isAV1Keyframe([]byte{0xff, 0xff, 0xff}))
}

func TestInterleavePlanarFloat(t *testing.T) {
	channels := [][]float32{{1, 2}, {10, 20}}
	out := interleavePlanarFloat(channels, 2)
	assert.Len(t, out, 2*2*4)
}
