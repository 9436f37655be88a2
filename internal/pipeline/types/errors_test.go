package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindNotSupported, "NotSupported"},
		{KindConfigurationError, "ConfigurationError"},
		{KindInitializationFailed, "InitializationFailed"},
		{KindInvalidInput, "InvalidInput"},
		{KindVideoEncodingError, "VideoEncodingError"},
		{KindAudioEncodingError, "AudioEncodingError"},
		{KindMuxingFailed, "MuxingFailed"},
		{KindCancelled, "Cancelled"},
		{KindInternalError, "InternalError"},
		{KindInvalidState, "InvalidState"},
		{KindTimestampOrdering, "TimestampOrdering"},
		{KindUnknownLength, "UnknownLength"},
		{Kind(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestError_Error(t *testing.T) {
	plain := NewError(KindConfigurationError, "width must be > 0")
	assert.Equal(t, "ConfigurationError: width must be > 0", plain.Error())

	cause := errors.New("boom")
	wrapped := Wrap(KindMuxingFailed, "fragment write failed", cause)
	assert.Equal(t, "MuxingFailed: fragment write failed: boom", wrapped.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(KindMuxingFailed, "fragment write failed", cause)

	require.ErrorIs(t, wrapped, cause)
	assert.Same(t, cause, wrapped.Unwrap())
}

func TestAsCancelled(t *testing.T) {
	cause := NewError(KindVideoEncodingError, "encoder died mid-flush")
	cancelled := AsCancelled(cause)

	assert.Equal(t, KindCancelled, cancelled.Kind)
	require.ErrorIs(t, cancelled, cause)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))

	pipelineErr := NewError(KindInvalidState, "already finalized")
	assert.Equal(t, KindInvalidState, KindOf(pipelineErr))

	wrapped := fwrap(pipelineErr)
	assert.Equal(t, KindInvalidState, KindOf(wrapped), "KindOf must see through fmt.Errorf %%w wrapping")
}

// fwrap wraps err the way a caller one layer up in the stack would, to
// exercise errors.As traversal through a non-*Error wrapper.
func fwrap(err error) error {
	return &wrapOnce{err}
}

type wrapOnce struct{ err error }

func (w *wrapOnce) Error() string { return "context: " + w.err.Error() }
func (w *wrapOnce) Unwrap() error { return w.err }
