package jitter

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Mode selects the delay control strategy.
type Mode int

const (
	// ModeAdaptive tracks interarrival jitter and adjusts the target
	// delay at runtime.
	ModeAdaptive Mode = iota
	// ModeFixed keeps the initial delay for the life of the buffer.
	ModeFixed
)

const (
	// maxPayloadSize bounds a stored frame; every slot preallocates this
	// much so Put never allocates.
	maxPayloadSize = 1500

	// jitterSmoothFactor is the EWMA weight for the average jitter.
	jitterSmoothFactor = 0.1

	// delayAdjustThresholdMS is the slack above the optimal delay before
	// the current delay starts backing off.
	delayAdjustThresholdMS = 10

	// historySize is how many interarrival jitter samples feed the
	// percentile estimate.
	historySize = 200

	// Playout rate hint bounds and step.
	stretchRateMin  = 0.85
	stretchRateMax  = 1.15
	stretchRateStep = 0.02

	// Buffer occupancy watermarks in frames.
	bufferLevelLow  = 1.0
	bufferLevelHigh = 4.0
)

// Config holds jitter buffer parameters.
type Config struct {
	// ClockRate is the RTP clock rate in Hz.
	ClockRate uint32
	// FrameDuration is the nominal duration of one frame.
	FrameDuration time.Duration
	// Mode selects fixed or adaptive delay control.
	Mode Mode
	// MinDelay and MaxDelay bound the adaptive delay.
	MinDelay time.Duration
	MaxDelay time.Duration
	// InitialDelay is the starting target delay.
	InitialDelay time.Duration
	// Capacity is the number of frame slots. Sequence numbers map onto
	// slots modulo this value.
	Capacity int
	// TargetLevel is the preferred buffer occupancy in frames for the
	// playout-rate hint.
	TargetLevel float64
	// Percentile of the jitter distribution the optimal delay covers.
	Percentile float64
	// EnableTimeStretch turns the playout-rate hint on.
	EnableTimeStretch bool
}

// DefaultConfig returns the standard voice configuration: 48 kHz clock,
// 20 ms frames, adaptive delay between 20 ms and 200 ms starting at
// 60 ms.
func DefaultConfig() Config {
	return Config{
		ClockRate:         48000,
		FrameDuration:     20 * time.Millisecond,
		Mode:              ModeAdaptive,
		MinDelay:          20 * time.Millisecond,
		MaxDelay:          200 * time.Millisecond,
		InitialDelay:      60 * time.Millisecond,
		Capacity:          50,
		TargetLevel:       2.0,
		Percentile:        0.95,
		EnableTimeStretch: true,
	}
}

// PutStatus classifies an inserted packet.
type PutStatus int

const (
	// PutOK means the packet was stored.
	PutOK PutStatus = iota
	// PutLate means the packet arrived behind the playout cursor and was
	// discarded.
	PutLate
	// PutDuplicate means a packet with the same sequence number is
	// already stored; the stored copy is kept.
	PutDuplicate
)

// GetStatus classifies an extracted frame.
type GetStatus int

const (
	// PacketOK means the expected frame was present and copied out.
	PacketOK GetStatus = iota
	// PacketLost means the expected frame never arrived; the caller
	// should conceal it.
	PacketLost
)

// Frame describes the frame slot a Get call consumed.
type Frame struct {
	Size      int
	Timestamp uint32
	Sequence  uint16
	Marker    bool
}

// Stats is a snapshot of buffer behavior.
type Stats struct {
	PacketsReceived  uint64
	PacketsOutput    uint64
	PacketsLost      uint64
	PacketsLate      uint64
	PacketsDuplicate uint64
	LossRate         float64

	CurrentDelay time.Duration
	OptimalDelay time.Duration

	JitterAvg        float64
	JitterMax        float64
	JitterPercentile float64

	PlayoutRate float64
	BufferLevel int
}

type slot struct {
	data      []byte
	size      int
	timestamp uint32
	sequence  uint16
	marker    bool
	used      bool
}

// jitterStats tracks the interarrival jitter distribution that drives
// the adaptive delay.
type jitterStats struct {
	history      [historySize]float64
	historyIndex int
	historyCount int

	avg float64
	max float64

	lastArrival   uint32
	lastTimestamp uint32
	firstPacket   bool
}

func (s *jitterStats) reset() {
	*s = jitterStats{firstPacket: true}
}

// update folds one arrival into the distribution. The sample is the
// absolute deviation between wall-clock spacing and RTP-clock spacing.
func (s *jitterStats) update(arrivalMS, timestamp, clockRate uint32) {
	if s.firstPacket {
		s.firstPacket = false
		s.lastArrival = arrivalMS
		s.lastTimestamp = timestamp
		return
	}

	arrivalDelta := int32(arrivalMS - s.lastArrival)
	rtpDeltaMS := int32(timestamp-s.lastTimestamp) * 1000 / int32(clockRate)

	jitter := float64(arrivalDelta - rtpDeltaMS)
	if jitter < 0 {
		jitter = -jitter
	}

	s.avg = s.avg*(1.0-jitterSmoothFactor) + jitter*jitterSmoothFactor
	if jitter > s.max {
		s.max = jitter
	}

	s.history[s.historyIndex] = jitter
	s.historyIndex = (s.historyIndex + 1) % historySize
	if s.historyCount < historySize {
		s.historyCount++
	}

	s.lastArrival = arrivalMS
	s.lastTimestamp = timestamp
}

// percentile returns the given percentile of the recorded jitter
// samples, in milliseconds.
func (s *jitterStats) percentile(p float64) float64 {
	if s.historyCount == 0 {
		return 0
	}

	sorted := make([]float64, s.historyCount)
	copy(sorted, s.history[:s.historyCount])
	sort.Float64s(sorted)

	idx := int(float64(s.historyCount) * p)
	if idx >= s.historyCount {
		idx = s.historyCount - 1
	}
	return sorted[idx]
}

// Buffer is a sequence-indexed reorder buffer with adaptive playout
// delay. Safe for concurrent use; the network thread calls Put while the
// playback thread calls Get.
type Buffer struct {
	mu     sync.Mutex
	config Config

	slots []slot
	count int

	firstPacket   bool
	started       bool
	nextSequence  uint16
	nextTimestamp uint32

	currentDelayMS uint32
	optimalDelayMS uint32
	minDelayMS     uint32
	maxDelayMS     uint32

	stretchRate  float64
	framesMS     uint32
	frameSamples uint32

	jstats jitterStats
	stats  Stats

	// now is injectable for tests.
	now func() uint32
}

func nowMS() uint32 {
	return uint32(time.Now().UnixMilli())
}

// NewBuffer creates a jitter buffer.
//
// Parameters:
//   - config: buffer parameters; zero-value fields fall back to
//     DefaultConfig values
//
// Returns:
//   - *Buffer: the buffer ready for Put/Get
//   - error: ErrInvalidConfig when capacity, clock rate, or frame
//     duration resolve to zero
func NewBuffer(config Config) (*Buffer, error) {
	def := DefaultConfig()
	if config.ClockRate == 0 {
		config.ClockRate = def.ClockRate
	}
	if config.FrameDuration == 0 {
		config.FrameDuration = def.FrameDuration
	}
	if config.Capacity == 0 {
		config.Capacity = def.Capacity
	}
	if config.MinDelay == 0 {
		config.MinDelay = def.MinDelay
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.TargetLevel == 0 {
		config.TargetLevel = def.TargetLevel
	}
	if config.Percentile == 0 {
		config.Percentile = def.Percentile
	}

	if config.Capacity < 0 || config.FrameDuration <= 0 ||
		config.MinDelay > config.MaxDelay {
		return nil, fmt.Errorf("capacity %d, frame %v, delay %v..%v: %w",
			config.Capacity, config.FrameDuration,
			config.MinDelay, config.MaxDelay, ErrInvalidConfig)
	}

	frameSamples := uint32(config.ClockRate) *
		uint32(config.FrameDuration/time.Millisecond) / 1000
	if frameSamples == 0 {
		return nil, fmt.Errorf("frame duration %v at %d Hz: %w",
			config.FrameDuration, config.ClockRate, ErrInvalidConfig)
	}

	b := &Buffer{
		config:         config,
		slots:          make([]slot, config.Capacity),
		firstPacket:    true,
		currentDelayMS: uint32(config.InitialDelay / time.Millisecond),
		optimalDelayMS: uint32(config.InitialDelay / time.Millisecond),
		minDelayMS:     uint32(config.MinDelay / time.Millisecond),
		maxDelayMS:     uint32(config.MaxDelay / time.Millisecond),
		stretchRate:    1.0,
		framesMS:       uint32(config.FrameDuration / time.Millisecond),
		frameSamples:   frameSamples,
		now:            nowMS,
	}
	for i := range b.slots {
		b.slots[i].data = make([]byte, maxPayloadSize)
	}
	b.jstats.reset()

	logrus.WithFields(logrus.Fields{
		"function":      "NewBuffer",
		"capacity":      config.Capacity,
		"initial_delay": config.InitialDelay,
		"mode":          config.Mode,
	}).Info("Jitter buffer created")

	return b, nil
}

// Put inserts one frame payload in arrival order.
//
// The first packet seeds the playout cursor at its sequence number and
// timestamp. A packet more than two frame durations behind the cursor is
// discarded as late; a packet whose sequence number is already stored is
// discarded as a duplicate without touching the stored copy.
//
// Returns:
//   - PutStatus: PutOK, PutLate, or PutDuplicate
//   - error: ErrInvalidPayload for empty or oversized payloads
func (b *Buffer) Put(payload []byte, timestamp uint32, sequence uint16, marker bool) (PutStatus, error) {
	if len(payload) == 0 || len(payload) > maxPayloadSize {
		return PutLate, fmt.Errorf("payload of %d bytes: %w", len(payload), ErrInvalidPayload)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	arrival := b.now()
	b.stats.PacketsReceived++

	if b.firstPacket {
		b.firstPacket = false
		b.nextSequence = sequence
		b.nextTimestamp = timestamp
	}

	b.jstats.update(arrival, timestamp, b.config.ClockRate)

	// Until the first Get the cursor is only a guess from whichever
	// packet happened to arrive first; an earlier packet inside the late
	// horizon pulls it back so playout starts at the true stream head.
	if !b.started && int16(sequence-b.nextSequence) < 0 &&
		int32(timestamp-b.nextTimestamp) >= -int32(b.frameSamples*2) {
		b.nextSequence = sequence
		b.nextTimestamp = timestamp
	}

	if int32(timestamp-b.nextTimestamp) < -int32(b.frameSamples*2) {
		b.stats.PacketsLate++
		return PutLate, nil
	}

	s := &b.slots[int(sequence)%len(b.slots)]
	if s.used && s.sequence == sequence {
		b.stats.PacketsDuplicate++
		return PutDuplicate, nil
	}

	if !s.used {
		b.count++
	}
	copy(s.data, payload)
	s.size = len(payload)
	s.timestamp = timestamp
	s.sequence = sequence
	s.marker = marker
	s.used = true

	return PutOK, nil
}

// Get extracts the next frame in playout order into out.
//
// The cursor advances exactly one frame whether or not the frame is
// present, so consecutive calls return strictly increasing timestamps
// one frame duration apart. On PacketLost the returned Frame carries the
// cursor position with a zero size; the caller conceals the gap.
//
// Returns:
//   - Frame: size, timestamp, sequence, and marker of the consumed slot
//   - GetStatus: PacketOK or PacketLost
//   - error: ErrBufferTooSmall when out cannot hold the stored frame
func (b *Buffer) Get(out []byte) (Frame, GetStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.started = true
	frame := Frame{
		Timestamp: b.nextTimestamp,
		Sequence:  b.nextSequence,
	}
	status := PacketLost

	s := &b.slots[int(b.nextSequence)%len(b.slots)]
	if s.used && s.sequence == b.nextSequence {
		if s.size > len(out) {
			return frame, PacketLost, fmt.Errorf("frame of %d bytes into %d: %w",
				s.size, len(out), ErrBufferTooSmall)
		}
		copy(out, s.data[:s.size])
		frame.Size = s.size
		frame.Marker = s.marker
		status = PacketOK

		s.used = false
		b.count--
		b.stats.PacketsOutput++
	} else {
		b.stats.PacketsLost++
	}

	b.nextSequence++
	b.nextTimestamp += b.frameSamples

	if b.config.Mode == ModeAdaptive {
		b.adaptLocked(status)
	}

	return frame, status, nil
}

// adaptLocked walks the current delay toward the percentile-based
// optimal delay and refreshes the playout-rate hint.
func (b *Buffer) adaptLocked(status GetStatus) {
	optimal := uint32(b.jstats.percentile(b.config.Percentile)) + b.framesMS
	if optimal < b.minDelayMS {
		optimal = b.minDelayMS
	}
	if optimal > b.maxDelayMS {
		optimal = b.maxDelayMS
	}
	b.optimalDelayMS = optimal

	if b.currentDelayMS < optimal {
		diff := optimal - b.currentDelayMS
		if diff > 10 {
			diff = 10
		}
		b.currentDelayMS += diff
	} else if b.currentDelayMS > optimal+delayAdjustThresholdMS {
		diff := b.currentDelayMS - optimal
		if diff > 5 {
			diff = 5
		}
		b.currentDelayMS -= diff
	}

	if status == PacketLost && b.currentDelayMS < b.maxDelayMS {
		b.currentDelayMS += 10
		if b.currentDelayMS > b.maxDelayMS {
			b.currentDelayMS = b.maxDelayMS
		}
	}

	if b.config.EnableTimeStretch {
		b.stretchRate = b.stretchRate*0.9 + b.stretchRateLocked()*0.1
	}
}

// stretchRateLocked maps buffer occupancy to a playout-rate hint.
func (b *Buffer) stretchRateLocked() float64 {
	level := float64(b.count)
	target := b.config.TargetLevel

	switch {
	case level < bufferLevelLow:
		// Running dry, slow the player down.
		return stretchRateMin + (level/bufferLevelLow)*(1.0-stretchRateMin)
	case level > bufferLevelHigh:
		// Backed up, speed the player up.
		rate := 1.0 + ((level-bufferLevelHigh)/bufferLevelHigh)*(stretchRateMax-1.0)
		if rate > stretchRateMax {
			rate = stretchRateMax
		}
		return rate
	case level > target+1.0:
		return 1.0 + stretchRateStep
	case level < target-1.0:
		return 1.0 - stretchRateStep
	default:
		return 1.0
	}
}

// PlayoutRate returns the current playout-rate hint in
// [0.85, 1.15]. 1.0 means play at nominal speed.
func (b *Buffer) PlayoutRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.config.EnableTimeStretch {
		return 1.0
	}
	return b.stretchRate
}

// Delay returns the current playout delay.
func (b *Buffer) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Duration(b.currentDelayMS) * time.Millisecond
}

// SetDelay pins the current and target delay, clamped to the configured
// bounds. Adaptive mode keeps adjusting from the new value.
func (b *Buffer) SetDelay(delay time.Duration) {
	ms := uint32(delay / time.Millisecond)
	if ms < b.minDelayMS {
		ms = b.minDelayMS
	}
	if ms > b.maxDelayMS {
		ms = b.maxDelayMS
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentDelayMS = ms
	b.optimalDelayMS = ms
}

// Count returns the number of frames currently stored.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns a snapshot of buffer counters and delay state.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats
	s.CurrentDelay = time.Duration(b.currentDelayMS) * time.Millisecond
	s.OptimalDelay = time.Duration(b.optimalDelayMS) * time.Millisecond
	s.JitterAvg = b.jstats.avg
	s.JitterMax = b.jstats.max
	s.JitterPercentile = b.jstats.percentile(b.config.Percentile)
	s.PlayoutRate = b.stretchRate
	s.BufferLevel = b.count

	if total := s.PacketsOutput + s.PacketsLost; total > 0 {
		s.LossRate = float64(s.PacketsLost) / float64(total)
	}
	return s
}

// ResetStats zeroes the packet counters. Delay state is untouched.
func (b *Buffer) ResetStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = Stats{}
}

// Reset drops all stored frames and returns the buffer to its initial
// state. The next Put reseeds the playout cursor.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.slots {
		b.slots[i].used = false
	}
	b.count = 0
	b.firstPacket = true
	b.started = false
	b.currentDelayMS = uint32(b.config.InitialDelay / time.Millisecond)
	b.optimalDelayMS = b.currentDelayMS
	b.stretchRate = 1.0
	b.jstats.reset()
	b.stats = Stats{}

	logrus.WithFields(logrus.Fields{
		"function": "Buffer.Reset",
	}).Debug("Jitter buffer reset")
}
