package jitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goodFrame(size int, amplitude int16) []int16 {
	pcm := make([]int16, size)
	for i := range pcm {
		if i%2 == 0 {
			pcm[i] = amplitude
		} else {
			pcm[i] = -amplitude
		}
	}
	return pcm
}

func maxAbs(pcm []int16) int {
	var peak int
	for _, s := range pcm {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

func TestNewPLCValidation(t *testing.T) {
	_, err := NewPLC(PLCConfig{FrameSize: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	plc, err := NewPLC(DefaultPLCConfig())
	require.NoError(t, err)
	assert.NotNil(t, plc)
}

func TestGenerateZeroAlgorithm(t *testing.T) {
	plc, err := NewPLC(PLCConfig{
		SampleRate: 48000,
		FrameSize:  960,
		Algorithm:  AlgorithmZero,
	})
	require.NoError(t, err)

	plc.UpdateGoodFrame(goodFrame(960, 10000))

	out := make([]int16, 960)
	plc.Generate(out)
	assert.Equal(t, 0, maxAbs(out))
}

func TestGenerateRepeatAlgorithm(t *testing.T) {
	plc, err := NewPLC(PLCConfig{
		SampleRate: 48000,
		FrameSize:  960,
		Algorithm:  AlgorithmRepeat,
	})
	require.NoError(t, err)

	frame := goodFrame(960, 10000)
	plc.UpdateGoodFrame(frame)

	out := make([]int16, 960)
	plc.Generate(out)
	assert.Equal(t, frame, out)
}

func TestGenerateFadeDecaysToSilence(t *testing.T) {
	plc, err := NewPLC(PLCConfig{
		SampleRate:         48000,
		FrameSize:          960,
		Algorithm:          AlgorithmFade,
		MaxConsecutiveLoss: 10,
	})
	require.NoError(t, err)

	plc.UpdateGoodFrame(goodFrame(960, 20000))

	out := make([]int16, 960)
	lastPeak := 20001

	// Each concealed frame is quieter than the one before, reaching
	// exact silence before the loss run ends.
	for i := 0; i < 15; i++ {
		plc.Generate(out)
		peak := maxAbs(out)
		assert.LessOrEqual(t, peak, lastPeak, "frame %d got louder", i)
		lastPeak = peak
	}
	assert.Equal(t, 0, maxAbs(out))
}

func TestGenerateSilenceAfterMaxLoss(t *testing.T) {
	plc, err := NewPLC(PLCConfig{
		SampleRate:         48000,
		FrameSize:          960,
		Algorithm:          AlgorithmRepeat,
		MaxConsecutiveLoss: 3,
	})
	require.NoError(t, err)

	plc.UpdateGoodFrame(goodFrame(960, 10000))
	out := make([]int16, 960)

	for i := 0; i < 3; i++ {
		plc.Generate(out)
		assert.NotEqual(t, 0, maxAbs(out), "frame %d", i)
	}

	// Loss run exceeded: silence, even for the repeat algorithm.
	plc.Generate(out)
	assert.Equal(t, 0, maxAbs(out))
	assert.Equal(t, 4, plc.ConsecutiveLoss())
}

func TestGoodFrameResetsLossRun(t *testing.T) {
	plc, err := NewPLC(PLCConfig{
		SampleRate:         48000,
		FrameSize:          960,
		Algorithm:          AlgorithmFade,
		MaxConsecutiveLoss: 10,
	})
	require.NoError(t, err)

	plc.UpdateGoodFrame(goodFrame(960, 20000))
	out := make([]int16, 960)

	for i := 0; i < 5; i++ {
		plc.Generate(out)
	}
	faded := maxAbs(out)
	assert.Less(t, faded, 20000)

	// A good frame restores full amplitude for the next concealment.
	plc.UpdateGoodFrame(goodFrame(960, 20000))
	assert.Equal(t, 0, plc.ConsecutiveLoss())

	plc.Generate(out)
	assert.Greater(t, maxAbs(out), faded)
	assert.Equal(t, 16000, maxAbs(out)) // 20000 * 0.8
}

func TestGenerateInterpolateAttenuates(t *testing.T) {
	plc, err := NewPLC(PLCConfig{
		SampleRate:         48000,
		FrameSize:          960,
		Algorithm:          AlgorithmInterpolate,
		MaxConsecutiveLoss: 10,
	})
	require.NoError(t, err)

	plc.UpdateGoodFrame(goodFrame(960, 20000))
	out := make([]int16, 960)

	plc.Generate(out)
	first := maxAbs(out)
	assert.Equal(t, 17000, first) // 20000 * 0.85

	plc.Generate(out)
	assert.Less(t, maxAbs(out), first)
}

func TestGenerateBeforeAnyGoodFrame(t *testing.T) {
	plc, err := NewPLC(DefaultPLCConfig())
	require.NoError(t, err)

	out := goodFrame(960, 12345)
	plc.Generate(out)
	assert.Equal(t, 0, maxAbs(out), "no history means silence")
}

func TestPLCReset(t *testing.T) {
	plc, err := NewPLC(DefaultPLCConfig())
	require.NoError(t, err)

	plc.UpdateGoodFrame(goodFrame(960, 10000))
	out := make([]int16, 960)
	plc.Generate(out)

	plc.Reset()
	assert.Equal(t, 0, plc.ConsecutiveLoss())

	plc.Generate(out)
	assert.Equal(t, 0, maxAbs(out))
}
