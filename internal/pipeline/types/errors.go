// Package types defines the shared wire types for the encode pipeline:
// configuration, frames, audio samples, encoded chunks, the controller/worker
// message protocol, and the error taxonomy.
//
// This package is import-only: it has no goroutines, no I/O, and no
// third-party dependencies, so embedders can depend on it without pulling in
// the rest of the pipeline.
package types

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a pipeline error, per the error taxonomy.
type Kind int

const (
	// KindUnknown is the zero value; never returned by the pipeline itself.
	KindUnknown Kind = iota
	// KindNotSupported means a required platform primitive or codec is unavailable.
	KindNotSupported
	// KindConfigurationError means the config is invalid or internally inconsistent.
	KindConfigurationError
	// KindInitializationFailed means worker spawn or the initial handshake failed.
	KindInitializationFailed
	// KindInvalidInput means a malformed frame, audio block, or source was submitted.
	KindInvalidInput
	// KindVideoEncodingError means the platform video encoder reported a failure.
	KindVideoEncodingError
	// KindAudioEncodingError means the platform audio encoder reported a failure.
	KindAudioEncodingError
	// KindMuxingFailed means the muxer rejected a chunk or the finalization.
	KindMuxingFailed
	// KindCancelled means the operation was aborted by the caller or shutdown.
	KindCancelled
	// KindInternalError means an invariant was violated (a pipeline bug).
	KindInternalError
	// KindInvalidState means an operation was attempted after cancel/finalize.
	KindInvalidState
	// KindTimestampOrdering means a submitted timestamp decreased relative to
	// the previous accepted frame of the same stream.
	KindTimestampOrdering
	// KindUnknownLength means total_frames could not be derived from the source.
	KindUnknownLength
)

// String returns a human-readable kind name, used both for logging and for
// the wire "kind" field of an error message.
func (k Kind) String() string {
	switch k {
	case KindNotSupported:
		return "NotSupported"
	case KindConfigurationError:
		return "ConfigurationError"
	case KindInitializationFailed:
		return "InitializationFailed"
	case KindInvalidInput:
		return "InvalidInput"
	case KindVideoEncodingError:
		return "VideoEncodingError"
	case KindAudioEncodingError:
		return "AudioEncodingError"
	case KindMuxingFailed:
		return "MuxingFailed"
	case KindCancelled:
		return "Cancelled"
	case KindInternalError:
		return "InternalError"
	case KindInvalidState:
		return "InvalidState"
	case KindTimestampOrdering:
		return "TimestampOrdering"
	case KindUnknownLength:
		return "UnknownLength"
	default:
		return "Unknown"
	}
}

// Error is the pipeline's user-visible error type. It always carries a Kind
// and a human-readable message, and optionally a wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// NewError creates an Error with no wrapped cause.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error wrapping cause with the given kind and message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// AsCancelled rewrites any error into a Cancelled error, per the design:
// "Cancellation never produces other error kinds for in-flight operations —
// they are rewritten to Cancelled."
func AsCancelled(cause error) *Error {
	return &Error{Kind: KindCancelled, Message: "operation cancelled", Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, else KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
