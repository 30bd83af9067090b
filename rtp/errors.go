package rtp

import "errors"

// Sentinel errors for RTP/RTCP operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrInvalidPacket indicates malformed wire data. The packet is
	// dropped; this is never fatal to a session.
	ErrInvalidPacket = errors.New("invalid RTP packet")

	// ErrBufferTooSmall indicates the caller's output buffer cannot hold
	// the packet. A sizing bug on the caller's side, not retried.
	ErrBufferTooSmall = errors.New("output buffer too small")

	// ErrNilSession indicates an operation on a nil session.
	ErrNilSession = errors.New("session is nil")
)
