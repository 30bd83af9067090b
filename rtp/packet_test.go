package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceDiff(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint16
		expected int
	}{
		{name: "Equal", a: 100, b: 100, expected: 0},
		{name: "Forward one", a: 101, b: 100, expected: 1},
		{name: "Backward one", a: 100, b: 101, expected: -1},
		{name: "Forward across wrap", a: 1, b: 65535, expected: 2},
		{name: "Backward across wrap", a: 65535, b: 1, expected: -2},
		{name: "Wrap boundary", a: 0, b: 65535, expected: 1},
		{name: "Half ring", a: 32768, b: 0, expected: -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SequenceDiff(tt.a, tt.b))
		})
	}
}

func TestSequenceDiffAntisymmetry(t *testing.T) {
	// diff(a,b) == -diff(b,a) everywhere except the antipode, where both
	// sides sit at -32768.
	pairs := [][2]uint16{
		{0, 1}, {1, 65535}, {100, 200}, {40000, 20000},
		{65535, 0}, {12345, 54321}, {32767, 65535},
	}
	for _, p := range pairs {
		d1 := SequenceDiff(p[0], p[1])
		d2 := SequenceDiff(p[1], p[0])
		if d1 == -32768 {
			assert.Equal(t, -32768, d2)
			continue
		}
		assert.Equal(t, -d1, d2, "pair %v", p)
	}
}

func TestCreateParsePacketRoundtrip(t *testing.T) {
	session, err := NewSession(SessionConfig{
		SSRC:        0xCAFEBABE,
		PayloadType: 111,
		ClockRate:   48000,
	})
	require.NoError(t, err)

	out := make([]byte, MaxPacketSize)

	sizes := []int{MaxPacketSize - HeaderSize}
	for s := 0; s < MaxPacketSize-HeaderSize; s += 97 {
		sizes = append(sizes, s)
	}

	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}

		n, err := session.CreatePacket(payload, uint32(size)*960, size%2 == 0, out)
		require.NoError(t, err, "payload size %d", size)
		assert.Equal(t, HeaderSize+size, n)

		pkt, err := ParsePacket(out[:n])
		require.NoError(t, err, "payload size %d", size)
		assert.Equal(t, uint8(Version), pkt.Header.Version)
		assert.Equal(t, uint8(111), pkt.Header.PayloadType)
		assert.Equal(t, uint32(0xCAFEBABE), pkt.Header.SSRC)
		assert.Equal(t, uint32(size)*960, pkt.Header.Timestamp)
		assert.Equal(t, size%2 == 0, pkt.Header.Marker)
		assert.Equal(t, payload, append([]byte{}, pkt.Payload...))
	}
}

func TestCreatePacketWireFormat(t *testing.T) {
	session, err := NewSession(SessionConfig{
		SSRC:        0x12345678,
		PayloadType: 111,
		ClockRate:   48000,
	})
	require.NoError(t, err)

	payload := make([]byte, 160)
	out := make([]byte, MaxPacketSize)

	n, err := session.CreatePacket(payload, 0, true, out)
	require.NoError(t, err)
	assert.Equal(t, 172, n)

	pkt, err := ParsePacket(out[:n])
	require.NoError(t, err)
	assert.Equal(t, 160, len(pkt.Payload))
	assert.True(t, pkt.Header.Marker)
	assert.Equal(t, uint32(0x12345678), pkt.Header.SSRC)
	assert.Equal(t, uint32(0), pkt.Header.Timestamp)
}

func TestCreatePacketSequenceIncrements(t *testing.T) {
	session, err := NewSession(DefaultSessionConfig())
	require.NoError(t, err)

	out := make([]byte, MaxPacketSize)
	first := session.Sequence()

	for i := 0; i < 5; i++ {
		n, err := session.CreatePacket([]byte{1, 2, 3}, uint32(i), false, out)
		require.NoError(t, err)

		pkt, err := ParsePacket(out[:n])
		require.NoError(t, err)
		assert.Equal(t, first+uint16(i), pkt.Header.Sequence)
	}
}

func TestCreatePacketBufferTooSmall(t *testing.T) {
	session, err := NewSession(DefaultSessionConfig())
	require.NoError(t, err)

	payload := make([]byte, 100)
	out := make([]byte, HeaderSize+99)

	_, err = session.CreatePacket(payload, 0, false, out)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestParsePacketRejectsMalformed(t *testing.T) {
	valid := make([]byte, HeaderSize+10)
	valid[0] = Version << 6

	tests := []struct {
		name   string
		mutate func(data []byte) []byte
	}{
		{
			name:   "Too short",
			mutate: func(data []byte) []byte { return data[:HeaderSize-1] },
		},
		{
			name: "Wrong version",
			mutate: func(data []byte) []byte {
				data[0] = 1 << 6
				return data
			},
		},
		{
			name: "Truncated CSRC list",
			mutate: func(data []byte) []byte {
				data[0] |= 0x0F // 15 CSRCs, none present
				return data[:HeaderSize+4]
			},
		},
		{
			name: "Truncated extension",
			mutate: func(data []byte) []byte {
				data[0] |= 0x10
				return data[:HeaderSize+2]
			},
		},
		{
			name: "Extension length exceeds packet",
			mutate: func(data []byte) []byte {
				data[0] |= 0x10
				data[HeaderSize+2] = 0xFF
				data[HeaderSize+3] = 0xFF
				return data
			},
		},
		{
			name: "Padding exceeds payload",
			mutate: func(data []byte) []byte {
				data[0] |= 0x20
				data[len(data)-1] = 200
				return data
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte{}, valid...)
			_, err := ParsePacket(tt.mutate(data))
			assert.ErrorIs(t, err, ErrInvalidPacket)
		})
	}
}

func TestParsePacketCSRCAndExtension(t *testing.T) {
	data := make([]byte, HeaderSize+4+4+8+3)
	// Extension bit, one CSRC, marker, payload type 96.
	data[0] = Version<<6 | 0x10 | 0x01
	data[1] = 0x80 | 96

	// CSRC
	copy(data[HeaderSize:], []byte{0xDE, 0xAD, 0xBE, 0xEF})
	// Extension: profile 0xABCD, length 2 words.
	copy(data[HeaderSize+4:], []byte{0xAB, 0xCD, 0x00, 0x02})

	pkt, err := ParsePacket(data)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0xDEADBEEF}, pkt.CSRC)
	assert.Equal(t, uint16(0xABCD), pkt.ExtensionProfile)
	assert.Equal(t, 8, len(pkt.ExtensionData))
	assert.Equal(t, 3, len(pkt.Payload))
	assert.True(t, pkt.Header.Marker)
	assert.Equal(t, uint8(96), pkt.Header.PayloadType)
}

func TestParsePacketTrimsPadding(t *testing.T) {
	data := make([]byte, HeaderSize+8)
	data[0] = Version<<6 | 0x20
	data[len(data)-1] = 4 // 4 padding bytes including the count

	pkt, err := ParsePacket(data)
	require.NoError(t, err)
	assert.Equal(t, 4, len(pkt.Payload))
}
