package audio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRingBuffer(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		frameSize   int
		expectError bool
		expectedCap int
	}{
		{name: "Power of two kept", capacity: 1024, frameSize: 320, expectedCap: 1024},
		{name: "Rounded up", capacity: 1000, frameSize: 320, expectedCap: 1024},
		{name: "One byte", capacity: 1, frameSize: 1, expectedCap: 1},
		{name: "Zero capacity rejected", capacity: 0, frameSize: 320, expectError: true},
		{name: "Negative capacity rejected", capacity: -5, frameSize: 320, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb, err := NewRingBuffer(tt.capacity, tt.frameSize)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidCapacity)
				assert.Nil(t, rb)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedCap, rb.Capacity())
			}
		})
	}
}

func TestRingBufferWriteRead(t *testing.T) {
	rb, err := NewRingBuffer(64, 4)
	require.NoError(t, err)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	assert.Equal(t, 8, rb.Write(data))
	assert.Equal(t, 8, rb.Available())
	assert.Equal(t, 56, rb.FreeSpace())

	out := make([]byte, 8)
	assert.Equal(t, 8, rb.Read(out))
	assert.Equal(t, data, out)
	assert.Equal(t, 0, rb.Available())
}

func TestRingBufferNeverOverwrites(t *testing.T) {
	rb, err := NewRingBuffer(8, 1)
	require.NoError(t, err)

	assert.Equal(t, 8, rb.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8}))

	// Full: only the fitting prefix (nothing) is accepted.
	assert.Equal(t, 0, rb.Write([]byte{9}))

	out := make([]byte, 3)
	require.Equal(t, 3, rb.Read(out))
	assert.Equal(t, []byte{1, 2, 3}, out)

	// Three bytes drained, so a four-byte write is cut to three.
	assert.Equal(t, 3, rb.Write([]byte{9, 10, 11, 12}))
}

func TestRingBufferWrapAround(t *testing.T) {
	rb, err := NewRingBuffer(8, 1)
	require.NoError(t, err)

	// Walk the positions past the physical end several times.
	out := make([]byte, 5)
	for round := 0; round < 10; round++ {
		data := []byte{
			byte(round), byte(round + 1), byte(round + 2),
			byte(round + 3), byte(round + 4),
		}
		require.Equal(t, 5, rb.Write(data))
		require.Equal(t, 5, rb.Read(out))
		assert.Equal(t, data, out, "round %d", round)
	}
}

func TestRingBufferPeekDoesNotConsume(t *testing.T) {
	rb, err := NewRingBuffer(64, 4)
	require.NoError(t, err)

	data := []byte{10, 20, 30, 40}
	rb.Write(data)

	out := make([]byte, 4)
	assert.Equal(t, 4, rb.Peek(out))
	assert.Equal(t, data, out)
	assert.Equal(t, 4, rb.Available())

	// Read returns the same bytes the peek saw.
	clear := make([]byte, 4)
	assert.Equal(t, 4, rb.Read(clear))
	assert.Equal(t, data, clear)
}

func TestRingBufferSkip(t *testing.T) {
	rb, err := NewRingBuffer(64, 4)
	require.NoError(t, err)

	rb.Write([]byte{1, 2, 3, 4, 5, 6})

	assert.Equal(t, 4, rb.Skip(4))
	assert.Equal(t, 2, rb.Available())

	out := make([]byte, 2)
	rb.Read(out)
	assert.Equal(t, []byte{5, 6}, out)

	// Skipping more than available discards only what is there.
	rb.Write([]byte{7})
	assert.Equal(t, 1, rb.Skip(100))
	assert.Equal(t, 0, rb.Skip(1))
}

func TestRingBufferClear(t *testing.T) {
	rb, err := NewRingBuffer(64, 4)
	require.NoError(t, err)

	rb.Write([]byte{1, 2, 3, 4})
	rb.Clear()
	assert.Equal(t, 0, rb.Available())
	assert.Equal(t, 64, rb.FreeSpace())
}

func TestRingBufferFrameHelpers(t *testing.T) {
	rb, err := NewRingBuffer(16, 4)
	require.NoError(t, err)

	t.Run("Wrong size rejected", func(t *testing.T) {
		assert.ErrorIs(t, rb.WriteFrame([]byte{1, 2, 3}), ErrInvalidFrame)
		assert.ErrorIs(t, rb.ReadFrame(make([]byte, 5)), ErrInvalidFrame)
	})

	t.Run("All or nothing", func(t *testing.T) {
		frame := []byte{1, 2, 3, 4}
		for i := 0; i < 4; i++ {
			require.NoError(t, rb.WriteFrame(frame))
		}
		assert.Equal(t, 4, rb.FrameCount())

		// Full: the whole frame is refused, nothing partial happens.
		assert.ErrorIs(t, rb.WriteFrame(frame), ErrBufferFull)
		assert.Equal(t, 4, rb.FrameCount())

		out := make([]byte, 4)
		for i := 0; i < 4; i++ {
			require.NoError(t, rb.ReadFrame(out))
			assert.Equal(t, frame, out)
		}
		assert.ErrorIs(t, rb.ReadFrame(out), ErrBufferUnderflow)
	})
}

func TestRingBufferSPSC(t *testing.T) {
	rb, err := NewRingBuffer(256, 4)
	require.NoError(t, err)

	const frames = 1000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		frame := make([]byte, 4)
		for i := 0; i < frames; {
			frame[0] = byte(i)
			frame[1] = byte(i >> 8)
			if rb.WriteFrame(frame) == nil {
				i++
			}
		}
	}()

	var bad int
	go func() {
		defer wg.Done()
		out := make([]byte, 4)
		for i := 0; i < frames; {
			if rb.ReadFrame(out) != nil {
				continue
			}
			if out[0] != byte(i) || out[1] != byte(i>>8) {
				bad++
			}
			i++
		}
	}()

	wg.Wait()
	assert.Zero(t, bad, "frames must arrive intact and in order")
}
