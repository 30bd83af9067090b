package audio

// CaptureFunc is invoked by the device on its real-time thread with one
// frame of captured samples. The callee must not block and must return
// within one frame period.
type CaptureFunc func(pcm []int16)

// PlaybackFunc is invoked by the device on its real-time thread with an
// output buffer to fill. The callee must fill every sample (silence if
// nothing else) and return within one frame period.
type PlaybackFunc func(out []int16)

// Device is the contract for an audio I/O backend. Device internals
// (ALSA, CoreAudio, a file, a test harness) are external collaborators;
// the pipeline only relies on the callback and lifecycle discipline
// documented here.
//
// SetCallbacks must be called before Start. After Stop returns, no
// callback is in flight and none will be invoked again until the next
// Start. Stop may be called from any goroutine.
type Device interface {
	SetCallbacks(capture CaptureFunc, playback PlaybackFunc)
	Start() error
	Stop() error
}
