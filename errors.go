package govoice

import "errors"

// Sentinel errors for pipeline operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrInvalidConfig indicates a configuration missing a required
	// collaborator or carrying inconsistent parameters.
	ErrInvalidConfig = errors.New("invalid pipeline configuration")

	// ErrAlreadyRunning indicates Start on a pipeline that is not
	// stopped.
	ErrAlreadyRunning = errors.New("pipeline already running")

	// ErrNotRunning indicates Stop or a frame operation on a pipeline
	// that is not running.
	ErrNotRunning = errors.New("pipeline not running")

	// ErrDeviceStartFailed indicates the audio device rejected Start.
	// The pipeline transitions to StateError.
	ErrDeviceStartFailed = errors.New("audio device start failed")

	// ErrSRTPNotEnabled indicates a key operation on a pipeline created
	// without SRTP.
	ErrSRTPNotEnabled = errors.New("SRTP not enabled")

	// ErrPacketDropped indicates an inbound packet failed validation,
	// authentication, or replay protection and was discarded. Wraps the
	// underlying cause; never fatal to the pipeline.
	ErrPacketDropped = errors.New("packet dropped")
)
