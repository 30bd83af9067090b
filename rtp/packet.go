package rtp

import (
	"encoding/binary"
	"fmt"
)

// Wire-format constants (RFC 3550 §5.1).
const (
	Version = 2

	// HeaderSize is the fixed RTP header length in bytes.
	HeaderSize = 12

	// MaxCSRC is the largest CSRC count the 4-bit CC field can carry.
	MaxCSRC = 15

	// MaxPacketSize bounds a full packet to a conservative MTU.
	MaxPacketSize = 1500
)

// Header holds the fixed RTP header fields.
type Header struct {
	Version     uint8
	Padding     bool
	Extension   bool
	CSRCCount   uint8
	Marker      bool
	PayloadType uint8
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
}

// Packet is a parsed RTP packet. Payload and ExtensionData alias the
// input buffer passed to ParsePacket; they are valid only as long as that
// buffer is.
type Packet struct {
	Header           Header
	CSRC             []uint32
	ExtensionProfile uint16
	ExtensionData    []byte
	Payload          []byte
}

// SequenceDiff returns the wraparound-aware signed distance from b to a
// on the 16-bit sequence ring. The result is in [-32768, 32767] and
// satisfies SequenceDiff(a, b) == -SequenceDiff(b, a) except at the
// antipode. All sequence comparisons in this module go through here.
func SequenceDiff(a, b uint16) int {
	return int(int16(a - b))
}

// ParsePacket decodes an RTP packet from untrusted bytes.
//
// Validates version == 2, bounds-checks the CSRC list and extension
// header, and trims signaled padding from the tail. The returned packet
// aliases data; no bytes are copied.
//
// Returns:
//   - *Packet: the decoded packet
//   - error: ErrInvalidPacket on any truncation or malformation
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet of %d bytes shorter than header: %w",
			len(data), ErrInvalidPacket)
	}

	version := data[0] >> 6
	if version != Version {
		return nil, fmt.Errorf("version %d is not RTP: %w", version, ErrInvalidPacket)
	}

	pkt := &Packet{
		Header: Header{
			Version:     version,
			Padding:     data[0]&0x20 != 0,
			Extension:   data[0]&0x10 != 0,
			CSRCCount:   data[0] & 0x0F,
			Marker:      data[1]&0x80 != 0,
			PayloadType: data[1] & 0x7F,
			Sequence:    binary.BigEndian.Uint16(data[2:4]),
			Timestamp:   binary.BigEndian.Uint32(data[4:8]),
			SSRC:        binary.BigEndian.Uint32(data[8:12]),
		},
	}

	offset := HeaderSize

	if pkt.Header.CSRCCount > 0 {
		csrcBytes := int(pkt.Header.CSRCCount) * 4
		if len(data) < offset+csrcBytes {
			return nil, fmt.Errorf("truncated CSRC list: %w", ErrInvalidPacket)
		}
		pkt.CSRC = make([]uint32, pkt.Header.CSRCCount)
		for i := range pkt.CSRC {
			pkt.CSRC[i] = binary.BigEndian.Uint32(data[offset+i*4:])
		}
		offset += csrcBytes
	}

	if pkt.Header.Extension {
		if len(data) < offset+4 {
			return nil, fmt.Errorf("truncated extension header: %w", ErrInvalidPacket)
		}
		pkt.ExtensionProfile = binary.BigEndian.Uint16(data[offset:])
		extLen := int(binary.BigEndian.Uint16(data[offset+2:])) * 4
		offset += 4
		if len(data) < offset+extLen {
			return nil, fmt.Errorf("truncated extension data: %w", ErrInvalidPacket)
		}
		pkt.ExtensionData = data[offset : offset+extLen]
		offset += extLen
	}

	payloadSize := len(data) - offset
	if pkt.Header.Padding && payloadSize > 0 {
		padLen := int(data[len(data)-1])
		if padLen > payloadSize {
			return nil, fmt.Errorf("padding %d exceeds payload %d: %w",
				padLen, payloadSize, ErrInvalidPacket)
		}
		payloadSize -= padLen
	}

	pkt.Payload = data[offset : offset+payloadSize]
	return pkt, nil
}

// writeHeader encodes a 12-byte fixed header (no CSRC, no extension) into
// out, which must hold at least HeaderSize bytes.
func writeHeader(out []byte, payloadType uint8, marker bool, sequence uint16, timestamp, ssrc uint32) {
	out[0] = Version << 6
	out[1] = payloadType & 0x7F
	if marker {
		out[1] |= 0x80
	}
	binary.BigEndian.PutUint16(out[2:4], sequence)
	binary.BigEndian.PutUint32(out[4:8], timestamp)
	binary.BigEndian.PutUint32(out[8:12], ssrc)
}
