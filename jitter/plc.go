package jitter

import (
	"fmt"
	"sync"
)

// Algorithm selects the concealment strategy for a lost frame.
type Algorithm int

const (
	// AlgorithmZero fills the gap with silence.
	AlgorithmZero Algorithm = iota
	// AlgorithmRepeat replays the last good frame unchanged.
	AlgorithmRepeat
	// AlgorithmFade replays the last good frame, attenuating 20% per
	// consecutive loss.
	AlgorithmFade
	// AlgorithmInterpolate replays the last good frame with a growing
	// phase offset and 15% attenuation per loss, which breaks up the
	// buzzy artifact plain repetition produces.
	AlgorithmInterpolate
)

// PLCConfig holds packet loss concealment parameters.
type PLCConfig struct {
	// SampleRate in Hz.
	SampleRate uint32
	// FrameSize is the frame length in samples.
	FrameSize int
	// Algorithm is the concealment strategy.
	Algorithm Algorithm
	// MaxConsecutiveLoss is how many frames in a row get concealed
	// before the output drops to silence. Zero means 10.
	MaxConsecutiveLoss int
}

// DefaultPLCConfig returns fade concealment for 20 ms frames at 48 kHz.
func DefaultPLCConfig() PLCConfig {
	return PLCConfig{
		SampleRate:         48000,
		FrameSize:          960,
		Algorithm:          AlgorithmFade,
		MaxConsecutiveLoss: 10,
	}
}

// PLC conceals lost frames from the most recent good one. Feed every
// decoded frame through UpdateGoodFrame; call Generate once per lost
// frame. Safe for concurrent use.
type PLC struct {
	mu     sync.Mutex
	config PLCConfig

	lastFrame     []int16
	lastFrameSize int

	consecutiveLoss int
	fadeFactor      float32
}

// NewPLC creates a concealer.
//
// Returns:
//   - *PLC: ready for UpdateGoodFrame/Generate
//   - error: ErrInvalidConfig when the frame size is not positive
func NewPLC(config PLCConfig) (*PLC, error) {
	if config.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size %d: %w", config.FrameSize, ErrInvalidConfig)
	}
	if config.MaxConsecutiveLoss == 0 {
		config.MaxConsecutiveLoss = 10
	}

	return &PLC{
		config:     config,
		lastFrame:  make([]int16, config.FrameSize),
		fadeFactor: 1.0,
	}, nil
}

// UpdateGoodFrame records a successfully decoded frame and resets the
// loss run and fade attenuation.
func (p *PLC) UpdateGoodFrame(pcm []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(pcm)
	if n > len(p.lastFrame) {
		n = len(p.lastFrame)
	}
	copy(p.lastFrame, pcm[:n])
	p.lastFrameSize = n

	p.consecutiveLoss = 0
	p.fadeFactor = 1.0
}

// Generate synthesizes one concealment frame into output. Past
// MaxConsecutiveLoss frames in a row the output is silence regardless of
// algorithm, so an extended outage never loops stale audio.
func (p *PLC) Generate(output []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecutiveLoss++

	if p.consecutiveLoss > p.config.MaxConsecutiveLoss || p.lastFrameSize == 0 {
		zero(output)
		return
	}

	switch p.config.Algorithm {
	case AlgorithmRepeat:
		n := copyFrame(output, p.lastFrame[:p.lastFrameSize])
		zero(output[n:])

	case AlgorithmFade:
		p.fadeFactor *= 0.8
		if p.fadeFactor < 0.1 {
			p.fadeFactor = 0.0
		}

		n := p.lastFrameSize
		if n > len(output) {
			n = len(output)
		}
		for i := 0; i < n; i++ {
			output[i] = int16(float32(p.lastFrame[i]) * p.fadeFactor)
		}
		zero(output[n:])

	case AlgorithmInterpolate:
		p.fadeFactor *= 0.85

		n := p.lastFrameSize
		if n > len(output) {
			n = len(output)
		}
		// Shift the read phase a little more on each loss so the repeat
		// does not ring at the frame period.
		offset := p.consecutiveLoss * 3
		for i := 0; i < n; i++ {
			src := (i + offset) % p.lastFrameSize
			output[i] = int16(float32(p.lastFrame[src]) * p.fadeFactor)
		}
		zero(output[n:])

	default:
		zero(output)
	}
}

// ConsecutiveLoss returns the current loss run length.
func (p *PLC) ConsecutiveLoss() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutiveLoss
}

// Reset clears the stored frame and loss state.
func (p *PLC) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.lastFrame {
		p.lastFrame[i] = 0
	}
	p.lastFrameSize = 0
	p.consecutiveLoss = 0
	p.fadeFactor = 1.0
}

func zero(pcm []int16) {
	for i := range pcm {
		pcm[i] = 0
	}
}

func copyFrame(dst, src []int16) int {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, src[:n])
	return n
}
