package encodepipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerAliases(t *testing.T) {
	assert.Equal(t, Container("mp4"), ContainerMP4)
	assert.Equal(t, Container("webm"), ContainerWebM)
}

func TestFrameAlias_Release(t *testing.T) {
	f := &Frame{TimestampUs: 0}
	assert.True(t, f.Release())
	assert.False(t, f.Release())
}

func TestNewError(t *testing.T) {
	err := NewError(KindConfigurationError, "bad width")
	assert.Equal(t, KindConfigurationError, err.Kind)
	assert.Contains(t, err.Error(), "bad width")
}

func TestWrap(t *testing.T) {
	cause := assert.AnError
	err := Wrap(KindVideoEncodingError, "encode failed", cause)
	assert.ErrorIs(t, err, cause)
}
