package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RFC 3550 appendix A.1 source-validation constants.
const (
	seqMod        = 1 << 16
	maxDropout    = 3000
	maxMisorder   = 100
	minSequential = 2
)

// SessionConfig is the immutable configuration snapshot for an RTP
// session.
type SessionConfig struct {
	// SSRC is the synchronization source identifier. Zero means
	// generate a random one.
	SSRC uint32
	// PayloadType is the 7-bit RTP payload type for outgoing packets.
	PayloadType uint8
	// ClockRate is the media clock in Hz (48000 for Opus, 8000 for G.711).
	ClockRate uint32
	// MaxPacketSize bounds outgoing packets; zero means MaxPacketSize.
	MaxPacketSize int
}

// DefaultSessionConfig returns the configuration the voice pipeline uses
// unless told otherwise: Opus payload type at 48 kHz.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PayloadType:   111,
		ClockRate:     48000,
		MaxPacketSize: MaxPacketSize,
	}
}

// Statistics is a snapshot of a session's send and receive counters.
type Statistics struct {
	PacketsSent       uint64
	BytesSent         uint64
	PacketsReceived   uint64
	BytesReceived     uint64
	PacketsLost       uint32
	PacketsReordered  uint32
	PacketsDuplicate  uint32
	FractionLost      float64
	JitterSamples     uint32 // interarrival jitter in clock-rate units
	JitterMS          float64
	RTTMS             uint32
	HighestSequence   uint32 // extended: cycles + max_seq
}

// Session carries per-direction RTP state: send counters for outgoing
// packets and receive-side validation plus quality statistics for the
// remote source. One session per pipeline; all methods are safe for
// concurrent use.
type Session struct {
	mu     sync.Mutex
	config SessionConfig

	// Send state.
	sequence    uint16
	timestamp   uint32
	packetsSent uint64
	bytesSent   uint64

	// Receive state (RFC 3550 A.1).
	firstReceived    bool
	maxSeq           uint16
	cycles           uint32
	baseSeq          uint32
	badSeq           uint32
	probation        uint32
	packetsReceived  uint64
	bytesReceived    uint64
	packetsReordered uint32
	packetsDuplicate uint32
	remoteSSRC       uint32

	// Interarrival jitter, Q4 fixed point (RFC 3550 §6.4.1).
	jitter          uint32
	lastRTPTime     uint32
	lastArrivalTime uint32

	// RTCP state for RTT estimation.
	lastSRNTPSec  uint32
	lastSRNTPFrac uint32
	lastSRArrival uint32
	rttMS         uint32

	// now is the millisecond clock, injectable for tests.
	now func() uint32
}

// NewSession creates an RTP session from a configuration snapshot,
// generating a random SSRC and initial sequence number when the config
// leaves them unset.
func NewSession(config SessionConfig) (*Session, error) {
	if config.ClockRate == 0 {
		return nil, fmt.Errorf("clock rate cannot be zero")
	}
	if config.MaxPacketSize == 0 {
		config.MaxPacketSize = MaxPacketSize
	}
	if config.SSRC == 0 {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("failed to generate SSRC: %w", err)
		}
		config.SSRC = binary.BigEndian.Uint32(b[:])
	}

	var seqBytes [2]byte
	if _, err := rand.Read(seqBytes[:]); err != nil {
		return nil, fmt.Errorf("failed to generate initial sequence: %w", err)
	}

	s := &Session{
		config:    config,
		sequence:  binary.BigEndian.Uint16(seqBytes[:]),
		probation: minSequential,
		badSeq:    seqMod + 1,
		now:       nowMS,
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewSession",
		"ssrc":         fmt.Sprintf("0x%08X", config.SSRC),
		"payload_type": config.PayloadType,
		"clock_rate":   config.ClockRate,
	}).Info("RTP session created")

	return s, nil
}

func nowMS() uint32 {
	return uint32(time.Now().UnixNano() / int64(time.Millisecond))
}

// SSRC returns the session's synchronization source identifier.
func (s *Session) SSRC() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.SSRC
}

// Sequence returns the sequence number the next CreatePacket will use.
func (s *Session) Sequence() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// CreatePacket writes a complete RTP packet (12-byte header, no CSRC or
// extension, then payload) into out and auto-increments the send
// sequence number.
//
// Parameters:
//   - payload: encoded media for one frame
//   - timestamp: media timestamp in clock-rate units
//   - marker: RTP marker bit (start of talkspurt)
//   - out: output buffer, at least HeaderSize+len(payload) bytes
//
// Returns:
//   - int: bytes written
//   - error: ErrBufferTooSmall if out cannot hold header plus payload
func (s *Session) CreatePacket(payload []byte, timestamp uint32, marker bool, out []byte) (int, error) {
	packetSize := HeaderSize + len(payload)
	if len(out) < packetSize {
		return 0, fmt.Errorf("packet needs %d bytes, buffer holds %d: %w",
			packetSize, len(out), ErrBufferTooSmall)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writeHeader(out, s.config.PayloadType, marker, s.sequence, timestamp, s.config.SSRC)
	copy(out[HeaderSize:], payload)

	s.sequence++
	s.timestamp = timestamp
	s.packetsSent++
	s.bytesSent += uint64(len(payload))

	return packetSize, nil
}

// ProcessReceived folds a parsed inbound packet into the receive-side
// statistics using the RFC 3550 A.1 validation rules: the first packet
// seeds the window, a forward gap within maxDropout advances it (counting
// 16-bit wraparounds), anything older than maxMisorder is a stale
// duplicate and ignored, and the span in between counts as reordering.
func (s *Session) ProcessReceived(pkt *Packet) {
	if pkt == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := pkt.Header.Sequence
	arrival := s.now()

	if !s.firstReceived {
		s.firstReceived = true
		s.baseSeq = uint32(seq)
		s.maxSeq = seq
		s.badSeq = seqMod + 1
		s.cycles = 0
		s.probation = 0
		s.packetsReceived = 1
		s.bytesReceived = uint64(len(pkt.Payload))
		s.lastRTPTime = pkt.Header.Timestamp
		s.lastArrivalTime = arrival
		s.remoteSSRC = pkt.Header.SSRC
		return
	}

	delta := SequenceDiff(seq, s.maxSeq)
	switch {
	case delta >= 0:
		if delta > maxDropout {
			if !s.resyncLocked(seq) {
				return
			}
		} else {
			if seq < s.maxSeq {
				// Wrapped around the 16-bit ring.
				s.cycles += seqMod
			}
			s.maxSeq = seq
		}

	case delta < -maxMisorder:
		if !s.resyncLocked(seq) {
			// Too old to be reordering; stale duplicate.
			s.packetsDuplicate++
			return
		}

	default:
		s.packetsReordered++
	}

	// Interarrival jitter (RFC 3550 §6.4.1): EWMA of the transit-time
	// delta with gain 1/16, kept in Q4 fixed point.
	transit := int64(arrival)*int64(s.config.ClockRate)/1000 - int64(pkt.Header.Timestamp)
	lastTransit := int64(s.lastArrivalTime)*int64(s.config.ClockRate)/1000 - int64(s.lastRTPTime)
	d := transit - lastTransit
	if d < 0 {
		d = -d
	}
	s.jitter += uint32(d) - ((s.jitter + 8) >> 4)

	s.lastRTPTime = pkt.Header.Timestamp
	s.lastArrivalTime = arrival

	s.packetsReceived++
	s.bytesReceived += uint64(len(pkt.Payload))
}

// resyncLocked handles a sequence number outside the plausible window.
// The first such packet only records the next value it would imply; a
// second packet landing exactly there means the source restarted, so the
// window reseeds. Returns true when the packet was accepted.
func (s *Session) resyncLocked(seq uint16) bool {
	if uint32(seq) == s.badSeq {
		s.baseSeq = uint32(seq)
		s.maxSeq = seq
		s.badSeq = seqMod + 1
		s.cycles = 0

		logrus.WithFields(logrus.Fields{
			"function": "Session.resyncLocked",
			"sequence": seq,
		}).Debug("Source restarted, sequence window reseeded")
		return true
	}
	s.badSeq = (uint32(seq) + 1) & (seqMod - 1)
	return false
}

// Stats returns a snapshot of the session's counters. Cumulative loss is
// derived per RFC 3550 A.3: expected minus received, floored at zero.
func (s *Session) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Session) statsLocked() Statistics {
	stats := Statistics{
		PacketsSent:      s.packetsSent,
		BytesSent:        s.bytesSent,
		PacketsReceived:  s.packetsReceived,
		BytesReceived:    s.bytesReceived,
		PacketsReordered: s.packetsReordered,
		PacketsDuplicate: s.packetsDuplicate,
		JitterSamples:    s.jitter >> 4,
		RTTMS:            s.rttMS,
	}
	if s.config.ClockRate > 0 {
		stats.JitterMS = float64(s.jitter>>4) * 1000 / float64(s.config.ClockRate)
	}
	if s.firstReceived {
		extendedMax := s.cycles + uint32(s.maxSeq)
		expected := extendedMax - s.baseSeq + 1
		lost := int64(expected) - int64(s.packetsReceived)
		if lost < 0 {
			lost = 0
		}
		stats.PacketsLost = uint32(lost)
		stats.HighestSequence = extendedMax
		if expected > 0 {
			stats.FractionLost = float64(lost) / float64(expected)
		}
	}
	return stats
}

// ResetStats clears all counters and re-arms first-packet seeding.
func (s *Session) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packetsSent = 0
	s.bytesSent = 0
	s.packetsReceived = 0
	s.bytesReceived = 0
	s.packetsReordered = 0
	s.packetsDuplicate = 0
	s.jitter = 0
	s.firstReceived = false
	s.rttMS = 0
}
