package jitter

import "errors"

// Sentinel errors for jitter buffer operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrInvalidConfig indicates a configuration with a zero capacity,
	// clock rate, or frame duration.
	ErrInvalidConfig = errors.New("invalid jitter buffer configuration")

	// ErrInvalidPayload indicates an empty or oversized payload.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrBufferTooSmall indicates the output buffer cannot hold the
	// stored frame.
	ErrBufferTooSmall = errors.New("output buffer too small")
)
