package srtp

import "errors"

// Sentinel errors for SRTP operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrReplayAttack indicates the packet index falls behind or inside
	// the replay window. Drop the packet; never fatal to the session.
	ErrReplayAttack = errors.New("replayed packet")

	// ErrAuthFailed indicates the authentication tag did not verify.
	// Drop the packet; never fatal to the session.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBufferTooSmall indicates the buffer cannot hold the packet plus
	// its authentication tag.
	ErrBufferTooSmall = errors.New("buffer too small for authentication tag")

	// ErrInvalidPacket indicates a packet too short to carry the
	// protocol fields the transform needs.
	ErrInvalidPacket = errors.New("invalid SRTP packet")

	// ErrBadKeyLength indicates master key or salt material of the wrong
	// size for the configured profile.
	ErrBadKeyLength = errors.New("bad key or salt length for profile")

	// ErrUnsupportedProfile indicates an unknown protection profile.
	ErrUnsupportedProfile = errors.New("unsupported protection profile")
)
