package govoice

import "time"

// Stats is a snapshot of pipeline health, merging the RTP session's
// quality counters with jitter buffer and frame-level state.
type Stats struct {
	State State

	// Transport counters.
	PacketsSent     uint64
	BytesSent       uint64
	PacketsReceived uint64
	BytesReceived   uint64
	PacketsDropped  uint64 // failed parse, auth, or replay
	PacketsLost     uint32
	LossRate        float64

	// Quality estimates.
	JitterMS float64
	RTTMS    uint32

	// Frame counters.
	FramesCaptured  uint64
	FramesPlayed    uint64
	FramesConcealed uint64

	// Jitter buffer state.
	BufferDelay time.Duration
	BufferLevel int
	PlayoutRate float64
}
