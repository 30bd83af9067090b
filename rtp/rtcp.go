package rtp

import (
	"encoding/binary"
	"fmt"
	"time"
)

// RTCP packet types (RFC 3550 §12.1).
const (
	RTCPTypeSR   = 200
	RTCPTypeRR   = 201
	RTCPTypeSDES = 202
	RTCPTypeBYE  = 203
)

const (
	rtcpHeaderSize = 4
	srBodySize     = 24 // SSRC, NTP pair, RTP ts, packet/octet counts
	rrBlockSize    = 24
	ntpEpochOffset = 2208988800 // seconds between 1900-01-01 and 1970-01-01
)

// RTCPHeader is the common 4-byte header of every RTCP packet.
type RTCPHeader struct {
	Version    uint8
	Padding    bool
	Count      uint8 // RC for reports, SC for BYE
	PacketType uint8
	Length     uint16 // in 32-bit words minus one
}

// SenderInfo is a parsed SR body.
type SenderInfo struct {
	SSRC         uint32
	NTPSec       uint32
	NTPFrac      uint32
	RTPTimestamp uint32
	PacketCount  uint32
	OctetCount   uint32
}

// ReportBlock is one parsed RR block.
type ReportBlock struct {
	SSRC            uint32
	FractionLost    uint8
	CumulativeLost  uint32 // 24-bit
	HighestSequence uint32
	Jitter          uint32
	LSR             uint32
	DLSR            uint32
}

// NTPTime converts a wall-clock instant to the 64-bit NTP timestamp pair
// used in sender reports.
func NTPTime(t time.Time) (sec, frac uint32) {
	sec = uint32(t.Unix() + ntpEpochOffset)
	frac = uint32(uint64(t.Nanosecond()) << 32 / uint64(time.Second))
	return sec, frac
}

func writeRTCPHeader(out []byte, count, packetType uint8, sizeBytes int) {
	out[0] = Version<<6 | count&0x1F
	out[1] = packetType
	binary.BigEndian.PutUint16(out[2:4], uint16(sizeBytes/4-1))
}

// ParseRTCPHeader decodes and validates the common RTCP header,
// additionally checking that the signaled length fits the buffer so a
// compound-packet walker can trust it.
func ParseRTCPHeader(data []byte) (RTCPHeader, error) {
	var h RTCPHeader
	if len(data) < rtcpHeaderSize {
		return h, fmt.Errorf("RTCP packet of %d bytes shorter than header: %w",
			len(data), ErrInvalidPacket)
	}

	h.Version = data[0] >> 6
	h.Padding = data[0]&0x20 != 0
	h.Count = data[0] & 0x1F
	h.PacketType = data[1]
	h.Length = binary.BigEndian.Uint16(data[2:4])

	if h.Version != Version {
		return h, fmt.Errorf("RTCP version %d: %w", h.Version, ErrInvalidPacket)
	}
	if sizeBytes := (int(h.Length) + 1) * 4; len(data) < sizeBytes {
		return h, fmt.Errorf("RTCP length field %d exceeds packet: %w",
			h.Length, ErrInvalidPacket)
	}
	return h, nil
}

// BuildSenderReport writes an SR for this session into out: NTP and RTP
// timestamp pair plus packet/octet counts since the session started.
//
// Returns the number of bytes written, or ErrBufferTooSmall.
func (s *Session) BuildSenderReport(out []byte) (int, error) {
	size := rtcpHeaderSize + srBodySize
	if len(out) < size {
		return 0, fmt.Errorf("SR needs %d bytes, buffer holds %d: %w",
			size, len(out), ErrBufferTooSmall)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writeRTCPHeader(out, 0, RTCPTypeSR, size)
	binary.BigEndian.PutUint32(out[4:8], s.config.SSRC)

	sec, frac := NTPTime(time.Now())
	binary.BigEndian.PutUint32(out[8:12], sec)
	binary.BigEndian.PutUint32(out[12:16], frac)
	binary.BigEndian.PutUint32(out[16:20], s.timestamp)
	binary.BigEndian.PutUint32(out[20:24], uint32(s.packetsSent))
	binary.BigEndian.PutUint32(out[24:28], uint32(s.bytesSent))

	return size, nil
}

// BuildReceiverReport writes an RR with one report block describing the
// remote source: loss fraction scaled 0-255, 24-bit cumulative loss,
// extended highest sequence, interarrival jitter, and the LSR/DLSR pair
// the remote end needs to compute round-trip time.
func (s *Session) BuildReceiverReport(out []byte) (int, error) {
	size := rtcpHeaderSize + 4 + rrBlockSize
	if len(out) < size {
		return 0, fmt.Errorf("RR needs %d bytes, buffer holds %d: %w",
			size, len(out), ErrBufferTooSmall)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writeRTCPHeader(out, 1, RTCPTypeRR, size)
	binary.BigEndian.PutUint32(out[4:8], s.config.SSRC)
	binary.BigEndian.PutUint32(out[8:12], s.remoteSSRC)

	extendedMax := s.cycles + uint32(s.maxSeq)
	var lost uint32
	var fraction uint8
	if s.firstReceived {
		expected := extendedMax - s.baseSeq + 1
		if l := int64(expected) - int64(s.packetsReceived); l > 0 {
			lost = uint32(l)
		}
		if expected > 0 {
			fraction = uint8(uint64(lost) * 256 / uint64(expected))
		}
	}
	binary.BigEndian.PutUint32(out[12:16], uint32(fraction)<<24|lost&0x00FFFFFF)
	binary.BigEndian.PutUint32(out[16:20], extendedMax)
	binary.BigEndian.PutUint32(out[20:24], s.jitter>>4)

	// LSR: middle 32 bits of the last received SR's NTP timestamp.
	lsr := s.lastSRNTPSec<<16 | s.lastSRNTPFrac>>16
	binary.BigEndian.PutUint32(out[24:28], lsr)

	// DLSR: delay since that SR in 1/65536-second units.
	var dlsr uint32
	if s.lastSRArrival > 0 {
		dlsr = (s.now() - s.lastSRArrival) * 65536 / 1000
	}
	binary.BigEndian.PutUint32(out[28:32], dlsr)

	return size, nil
}

// BuildBye writes a BYE packet, carrying the reason string (truncated to
// 255 bytes, the wire limit) padded to a 4-byte boundary when present.
func (s *Session) BuildBye(reason string, out []byte) (int, error) {
	if len(reason) > 255 {
		reason = reason[:255]
	}

	size := rtcpHeaderSize + 4
	if len(reason) > 0 {
		size += 1 + len(reason)
		size = (size + 3) &^ 3
	}
	if len(out) < size {
		return 0, fmt.Errorf("BYE needs %d bytes, buffer holds %d: %w",
			size, len(out), ErrBufferTooSmall)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writeRTCPHeader(out, 1, RTCPTypeBYE, size)
	binary.BigEndian.PutUint32(out[4:8], s.config.SSRC)

	if len(reason) > 0 {
		out[8] = uint8(len(reason))
		copy(out[9:], reason)
		for i := 9 + len(reason); i < size; i++ {
			out[i] = 0
		}
	}

	return size, nil
}

// ParseBye extracts the source SSRC and optional reason string from a
// BYE packet.
func ParseBye(data []byte) (ssrc uint32, reason string, err error) {
	h, err := ParseRTCPHeader(data)
	if err != nil {
		return 0, "", err
	}
	if h.PacketType != RTCPTypeBYE || h.Count < 1 || len(data) < 8 {
		return 0, "", fmt.Errorf("not a BYE packet: %w", ErrInvalidPacket)
	}

	ssrc = binary.BigEndian.Uint32(data[4:8])
	offset := rtcpHeaderSize + int(h.Count)*4
	if len(data) > offset {
		reasonLen := int(data[offset])
		if len(data) < offset+1+reasonLen {
			return 0, "", fmt.Errorf("truncated BYE reason: %w", ErrInvalidPacket)
		}
		reason = string(data[offset+1 : offset+1+reasonLen])
	}
	return ssrc, reason, nil
}

// ProcessSenderReport folds a received SR into the session: it records
// the NTP timestamp and arrival time so the next receiver report can
// carry LSR and DLSR.
func (s *Session) ProcessSenderReport(data []byte) (SenderInfo, error) {
	var info SenderInfo
	h, err := ParseRTCPHeader(data)
	if err != nil {
		return info, err
	}
	if h.PacketType != RTCPTypeSR || len(data) < rtcpHeaderSize+srBodySize {
		return info, fmt.Errorf("not a sender report: %w", ErrInvalidPacket)
	}

	info.SSRC = binary.BigEndian.Uint32(data[4:8])
	info.NTPSec = binary.BigEndian.Uint32(data[8:12])
	info.NTPFrac = binary.BigEndian.Uint32(data[12:16])
	info.RTPTimestamp = binary.BigEndian.Uint32(data[16:20])
	info.PacketCount = binary.BigEndian.Uint32(data[20:24])
	info.OctetCount = binary.BigEndian.Uint32(data[24:28])

	s.mu.Lock()
	s.lastSRNTPSec = info.NTPSec
	s.lastSRNTPFrac = info.NTPFrac
	s.lastSRArrival = s.now()
	s.mu.Unlock()

	return info, nil
}

// ProcessReceiverReport folds a received RR into the session, updating
// the round-trip time estimate from its LSR/DLSR pair:
// RTT = now - LSR - DLSR, all in 16.16 fixed-point seconds, computed
// only once the remote has echoed a nonzero LSR.
func (s *Session) ProcessReceiverReport(data []byte) (ReportBlock, error) {
	var block ReportBlock
	h, err := ParseRTCPHeader(data)
	if err != nil {
		return block, err
	}
	if h.PacketType != RTCPTypeRR || h.Count < 1 || len(data) < rtcpHeaderSize+4+rrBlockSize {
		return block, fmt.Errorf("not a receiver report: %w", ErrInvalidPacket)
	}

	b := data[8:]
	block.SSRC = binary.BigEndian.Uint32(b[0:4])
	block.FractionLost = b[4]
	block.CumulativeLost = binary.BigEndian.Uint32(b[4:8]) & 0x00FFFFFF
	block.HighestSequence = binary.BigEndian.Uint32(b[8:12])
	block.Jitter = binary.BigEndian.Uint32(b[12:16])
	block.LSR = binary.BigEndian.Uint32(b[16:20])
	block.DLSR = binary.BigEndian.Uint32(b[20:24])

	if block.LSR != 0 {
		sec, frac := NTPTime(time.Now())
		now := sec<<16 | frac>>16
		// Clock skew can make the subtraction go negative; keep the old
		// estimate rather than storing a wrapped value.
		if elapsed := now - block.LSR; elapsed >= block.DLSR {
			s.mu.Lock()
			s.rttMS = uint32(uint64(elapsed-block.DLSR) * 1000 >> 16)
			s.mu.Unlock()
		}
	}

	return block, nil
}

// RTT returns the last estimated round-trip time in milliseconds, zero
// until the first receiver report with a usable LSR arrives.
func (s *Session) RTT() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rttMS
}
