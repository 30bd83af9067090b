package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTestPacket builds a parsed packet the way the receive path sees it.
func makeTestPacket(seq uint16, timestamp, ssrc uint32, payloadLen int) *Packet {
	return &Packet{
		Header: Header{
			Version:     Version,
			PayloadType: 111,
			Sequence:    seq,
			Timestamp:   timestamp,
			SSRC:        ssrc,
		},
		Payload: make([]byte, payloadLen),
	}
}

// newTestSession returns a session with a manually stepped clock.
func newTestSession(t *testing.T) (*Session, *uint32) {
	t.Helper()
	session, err := NewSession(SessionConfig{
		SSRC:        0x11111111,
		PayloadType: 111,
		ClockRate:   48000,
	})
	require.NoError(t, err)

	clock := new(uint32)
	session.now = func() uint32 { return *clock }
	return session, clock
}

func TestNewSessionValidation(t *testing.T) {
	t.Run("Zero clock rate rejected", func(t *testing.T) {
		_, err := NewSession(SessionConfig{})
		assert.Error(t, err)
	})

	t.Run("Random SSRC generated", func(t *testing.T) {
		s1, err := NewSession(DefaultSessionConfig())
		require.NoError(t, err)
		s2, err := NewSession(DefaultSessionConfig())
		require.NoError(t, err)
		assert.NotEqual(t, s1.SSRC(), s2.SSRC())
	})

	t.Run("Configured SSRC kept", func(t *testing.T) {
		s, err := NewSession(SessionConfig{SSRC: 42, ClockRate: 48000})
		require.NoError(t, err)
		assert.Equal(t, uint32(42), s.SSRC())
	})
}

func TestProcessReceivedInOrder(t *testing.T) {
	session, clock := newTestSession(t)

	for i := 0; i < 10; i++ {
		*clock += 20
		session.ProcessReceived(makeTestPacket(uint16(1000+i), uint32(i)*960, 0xABCD, 160))
	}

	stats := session.Stats()
	assert.Equal(t, uint64(10), stats.PacketsReceived)
	assert.Equal(t, uint64(1600), stats.BytesReceived)
	assert.Equal(t, uint32(0), stats.PacketsLost)
	assert.Equal(t, uint32(0), stats.PacketsReordered)
	assert.Equal(t, uint32(1009), stats.HighestSequence)
}

func TestProcessReceivedGapCountsLoss(t *testing.T) {
	session, clock := newTestSession(t)

	for _, seq := range []uint16{100, 101, 105} {
		*clock += 20
		session.ProcessReceived(makeTestPacket(seq, uint32(seq)*960, 0xABCD, 160))
	}

	stats := session.Stats()
	assert.Equal(t, uint64(3), stats.PacketsReceived)
	// Expected 100..105 = 6 packets, got 3.
	assert.Equal(t, uint32(3), stats.PacketsLost)
	assert.InDelta(t, 0.5, stats.FractionLost, 0.001)
}

func TestProcessReceivedReordering(t *testing.T) {
	session, clock := newTestSession(t)

	for _, seq := range []uint16{100, 102, 101} {
		*clock += 20
		session.ProcessReceived(makeTestPacket(seq, uint32(seq)*960, 0xABCD, 160))
	}

	stats := session.Stats()
	assert.Equal(t, uint64(3), stats.PacketsReceived)
	assert.Equal(t, uint32(1), stats.PacketsReordered)
	assert.Equal(t, uint32(0), stats.PacketsLost)
}

func TestProcessReceivedWraparound(t *testing.T) {
	session, clock := newTestSession(t)

	for _, seq := range []uint16{65534, 65535, 0, 1} {
		*clock += 20
		session.ProcessReceived(makeTestPacket(seq, 0, 0xABCD, 160))
	}

	stats := session.Stats()
	assert.Equal(t, uint64(4), stats.PacketsReceived)
	assert.Equal(t, uint32(0), stats.PacketsLost)
	// Extended sequence counts one full cycle past the wrap.
	assert.Equal(t, uint32(seqMod+1), stats.HighestSequence)
}

func TestProcessReceivedStaleDuplicate(t *testing.T) {
	session, clock := newTestSession(t)

	*clock += 20
	session.ProcessReceived(makeTestPacket(5000, 0, 0xABCD, 160))
	*clock += 20
	session.ProcessReceived(makeTestPacket(5001, 960, 0xABCD, 160))

	// 200 behind the window edge: beyond maxMisorder.
	*clock += 20
	session.ProcessReceived(makeTestPacket(4801, 0, 0xABCD, 160))

	stats := session.Stats()
	assert.Equal(t, uint64(2), stats.PacketsReceived)
	assert.Equal(t, uint32(1), stats.PacketsDuplicate)
}

func TestProcessReceivedSourceRestart(t *testing.T) {
	session, clock := newTestSession(t)

	*clock += 20
	session.ProcessReceived(makeTestPacket(100, 0, 0xABCD, 160))
	*clock += 20
	session.ProcessReceived(makeTestPacket(101, 960, 0xABCD, 160))

	// A jump beyond maxDropout is ignored once.
	*clock += 20
	session.ProcessReceived(makeTestPacket(20000, 0, 0xABCD, 160))
	assert.Equal(t, uint64(2), session.Stats().PacketsReceived)

	// The consecutive follow-up confirms a restart and reseeds.
	*clock += 20
	session.ProcessReceived(makeTestPacket(20001, 960, 0xABCD, 160))

	stats := session.Stats()
	assert.Equal(t, uint64(3), stats.PacketsReceived)
	assert.Equal(t, uint32(20001), stats.HighestSequence)
	assert.Equal(t, uint32(0), stats.PacketsLost)
}

func TestProcessReceivedJitterConstantSpacing(t *testing.T) {
	session, clock := newTestSession(t)

	// Perfectly paced packets: 20ms wall clock per 960-sample step.
	for i := 0; i < 50; i++ {
		*clock += 20
		session.ProcessReceived(makeTestPacket(uint16(i), uint32(i)*960, 0xABCD, 160))
	}

	stats := session.Stats()
	assert.Equal(t, uint32(0), stats.JitterSamples)
}

func TestProcessReceivedJitterVariableSpacing(t *testing.T) {
	session, clock := newTestSession(t)

	// Alternate 10ms and 30ms arrival spacing around a 20ms media clock.
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			*clock += 10
		} else {
			*clock += 30
		}
		session.ProcessReceived(makeTestPacket(uint16(i), uint32(i)*960, 0xABCD, 160))
	}

	stats := session.Stats()
	// |d| is 10ms = 480 samples each packet; the EWMA converges toward it.
	assert.Greater(t, stats.JitterSamples, uint32(300))
	assert.Less(t, stats.JitterSamples, uint32(481))
	assert.InDelta(t, float64(stats.JitterSamples)*1000/48000, stats.JitterMS, 0.01)
}

func TestResetStats(t *testing.T) {
	session, clock := newTestSession(t)

	out := make([]byte, MaxPacketSize)
	_, err := session.CreatePacket([]byte{1, 2, 3}, 0, false, out)
	require.NoError(t, err)

	*clock += 20
	session.ProcessReceived(makeTestPacket(10, 0, 0xABCD, 160))

	session.ResetStats()
	stats := session.Stats()
	assert.Equal(t, uint64(0), stats.PacketsSent)
	assert.Equal(t, uint64(0), stats.PacketsReceived)
	assert.Equal(t, uint32(0), stats.PacketsLost)

	// First packet after reset reseeds the window.
	*clock += 20
	session.ProcessReceived(makeTestPacket(30000, 0, 0xABCD, 160))
	assert.Equal(t, uint64(1), session.Stats().PacketsReceived)
}
