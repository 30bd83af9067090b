package audio

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// RingBuffer is a lock-free single-producer/single-consumer byte queue.
//
// It hands audio frames between the real-time device callback thread and
// processing logic without taking locks. Capacity is rounded up to a power
// of two so index arithmetic reduces to a bitwise AND, and the read/write
// positions are free-running 64-bit counters: their difference is the fill
// level, so no slot is ever wasted on full/empty disambiguation.
//
// Exactly one goroutine may write and exactly one may read. Any additional
// producer or consumer requires external synchronization this type does
// not provide.
type RingBuffer struct {
	data      []byte
	capacity  uint64
	mask      uint64
	frameSize int

	readPos  atomic.Uint64
	writePos atomic.Uint64
}

// NewRingBuffer creates a lock-free SPSC ring buffer.
//
// Parameters:
//   - capacity: minimum capacity in bytes (rounded up to a power of two)
//   - frameSize: frame granularity in bytes for frame-aligned helpers
//
// Returns:
//   - *RingBuffer: new ring buffer instance
//   - error: ErrInvalidCapacity if capacity is zero
func NewRingBuffer(capacity, frameSize int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if frameSize <= 0 {
		frameSize = 1
	}

	actual := uint64(1)
	for actual < uint64(capacity) {
		actual <<= 1
	}

	rb := &RingBuffer{
		data:      make([]byte, actual),
		capacity:  actual,
		mask:      actual - 1,
		frameSize: frameSize,
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewRingBuffer",
		"capacity":   actual,
		"frame_size": frameSize,
	}).Info("Ring buffer created")

	return rb, nil
}

// Write copies up to len(data) bytes into the buffer without blocking.
// It never overwrites unread data; if free space is short, only the
// fitting prefix is written. Returns the number of bytes written.
//
// Write must only be called by the single producer.
func (rb *RingBuffer) Write(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	readPos := rb.readPos.Load()
	writePos := rb.writePos.Load()

	free := rb.capacity - (writePos - readPos)
	toWrite := uint64(len(data))
	if toWrite > free {
		toWrite = free
	}
	if toWrite == 0 {
		return 0
	}

	index := writePos & rb.mask
	firstChunk := rb.capacity - index
	if firstChunk >= toWrite {
		copy(rb.data[index:], data[:toWrite])
	} else {
		copy(rb.data[index:], data[:firstChunk])
		copy(rb.data, data[firstChunk:toWrite])
	}

	// Publish after the payload copy so the consumer never observes
	// a position covering bytes that are still being written.
	rb.writePos.Store(writePos + toWrite)

	return int(toWrite)
}

// Read copies up to len(out) bytes out of the buffer without blocking.
// Returns the number of bytes read, which may be short if less data is
// available.
//
// Read must only be called by the single consumer.
func (rb *RingBuffer) Read(out []byte) int {
	if len(out) == 0 {
		return 0
	}

	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()

	available := writePos - readPos
	toRead := uint64(len(out))
	if toRead > available {
		toRead = available
	}
	if toRead == 0 {
		return 0
	}

	index := readPos & rb.mask
	firstChunk := rb.capacity - index
	if firstChunk >= toRead {
		copy(out, rb.data[index:index+toRead])
	} else {
		copy(out, rb.data[index:])
		copy(out[firstChunk:], rb.data[:toRead-firstChunk])
	}

	rb.readPos.Store(readPos + toRead)

	return int(toRead)
}

// Peek copies up to len(out) bytes without consuming them. The peeked
// bytes remain in the buffer for subsequent Read or Peek calls.
func (rb *RingBuffer) Peek(out []byte) int {
	if len(out) == 0 {
		return 0
	}

	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()

	available := writePos - readPos
	toPeek := uint64(len(out))
	if toPeek > available {
		toPeek = available
	}
	if toPeek == 0 {
		return 0
	}

	index := readPos & rb.mask
	firstChunk := rb.capacity - index
	if firstChunk >= toPeek {
		copy(out, rb.data[index:index+toPeek])
	} else {
		copy(out, rb.data[index:])
		copy(out[firstChunk:], rb.data[:toPeek-firstChunk])
	}

	return int(toPeek)
}

// Skip discards up to n bytes without copying them out, returning the
// number of bytes actually discarded.
func (rb *RingBuffer) Skip(n int) int {
	if n <= 0 {
		return 0
	}

	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()

	available := writePos - readPos
	toSkip := uint64(n)
	if toSkip > available {
		toSkip = available
	}
	if toSkip > 0 {
		rb.readPos.Store(readPos + toSkip)
	}

	return int(toSkip)
}

// Available returns the number of bytes ready to read. The value is a
// snapshot and may change immediately under concurrent use.
func (rb *RingBuffer) Available() int {
	return int(rb.writePos.Load() - rb.readPos.Load())
}

// FreeSpace returns the number of bytes that can be written without
// overwriting unread data.
func (rb *RingBuffer) FreeSpace() int {
	return int(rb.capacity - (rb.writePos.Load() - rb.readPos.Load()))
}

// FrameCount returns the number of complete frames available to read.
func (rb *RingBuffer) FrameCount() int {
	return rb.Available() / rb.frameSize
}

// Capacity returns the actual (power-of-two) capacity in bytes.
func (rb *RingBuffer) Capacity() int {
	return int(rb.capacity)
}

// Clear discards all buffered data by resetting both positions.
// Clear must not run concurrently with Read or Write.
func (rb *RingBuffer) Clear() {
	rb.readPos.Store(0)
	rb.writePos.Store(0)
}

// WriteFrame writes exactly one frame or nothing at all, so a reader
// never observes a torn frame.
//
// Returns:
//   - error: ErrInvalidFrame if data is not frame-sized, ErrBufferFull
//     if the buffer lacks space for the complete frame
func (rb *RingBuffer) WriteFrame(data []byte) error {
	if len(data) != rb.frameSize {
		return ErrInvalidFrame
	}
	if rb.FreeSpace() < rb.frameSize {
		return ErrBufferFull
	}
	rb.Write(data)
	return nil
}

// ReadFrame reads exactly one frame into out or nothing at all.
//
// Returns:
//   - error: ErrInvalidFrame if out is not frame-sized,
//     ErrBufferUnderflow if a complete frame is not available
func (rb *RingBuffer) ReadFrame(out []byte) error {
	if len(out) != rb.frameSize {
		return ErrInvalidFrame
	}
	if rb.Available() < rb.frameSize {
		return ErrBufferUnderflow
	}
	rb.Read(out)
	return nil
}
