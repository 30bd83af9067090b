package audio

// EchoCanceller is the contract for an acoustic echo cancellation stage.
//
// The pipeline feeds every played-out frame back as the echo reference via
// ProcessPlayback and runs ProcessCapture on every captured frame before
// encoding. Implementations work in place, synchronously, O(frame size),
// and must not block on I/O or unbounded locks.
type EchoCanceller interface {
	// ProcessCapture removes the echo estimate from mic in place.
	ProcessCapture(mic []int16) error
	// ProcessPlayback records one played frame as the echo reference.
	ProcessPlayback(ref []int16)
}

// Denoiser is the contract for a noise suppression stage. Process cleans
// one frame in place and optionally returns a voice-activity probability
// in [0, 1]; implementations that do not estimate VAD return 1.
type Denoiser interface {
	Process(pcm []int16) (voiceProb float32, err error)
}

// ApplyVolume scales a frame in place with saturating arithmetic.
// A volume of 1 is a no-op; values are clamped to the int16 range so
// scaling can never wrap.
func ApplyVolume(pcm []int16, volume float32) {
	if volume == 1.0 {
		return
	}
	for i, s := range pcm {
		scaled := int32(float32(s) * volume)
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		pcm[i] = int16(scaled)
	}
}

// Mute zeroes a frame in place.
func Mute(pcm []int16) {
	for i := range pcm {
		pcm[i] = 0
	}
}
