package audio

import "errors"

// Sentinel errors for audio package operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrBufferFull indicates a ring buffer write could not fit completely.
	ErrBufferFull = errors.New("ring buffer full")

	// ErrBufferUnderflow indicates a full frame was not available to read.
	ErrBufferUnderflow = errors.New("ring buffer underflow")

	// ErrInvalidCapacity indicates a zero or invalid buffer capacity.
	ErrInvalidCapacity = errors.New("invalid buffer capacity")

	// ErrInvalidFrame indicates an empty or malformed audio frame.
	ErrInvalidFrame = errors.New("invalid audio frame")

	// ErrDecodeFailed indicates the codec could not decode the payload.
	ErrDecodeFailed = errors.New("decode failed")
)
