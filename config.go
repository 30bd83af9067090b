package govoice

import (
	"fmt"
	"time"

	"github.com/opd-ai/govoice/audio"
	"github.com/opd-ai/govoice/jitter"
	"github.com/opd-ai/govoice/srtp"
)

// Config assembles a pipeline from its collaborators and parameters.
// Device, Encoder, and Decoder are required; the DSP stages are optional
// and skipped when nil.
type Config struct {
	// SampleRate in Hz. The RTP clock rate equals the sample rate for
	// the audio payloads this engine carries.
	SampleRate uint32
	// Channels of PCM audio. Only mono is supported.
	Channels int
	// FrameDuration is the capture/playback frame period.
	FrameDuration time.Duration

	// PayloadType is the RTP payload type for outgoing packets.
	PayloadType uint8
	// SSRC for outgoing packets; zero picks a random one.
	SSRC uint32

	// Device drives capture and playback callbacks.
	Device audio.Device
	// Encoder compresses captured frames; Decoder expands received ones.
	Encoder audio.Encoder
	Decoder audio.Decoder
	// EchoCanceller and Denoiser are optional capture-side DSP stages.
	EchoCanceller audio.EchoCanceller
	Denoiser      audio.Denoiser

	// EnableSRTP protects outgoing packets and requires protected
	// inbound ones. Key material is supplied via SetSendKey/SetRecvKey
	// before Start.
	EnableSRTP  bool
	SRTPProfile srtp.Profile

	// Jitter configures the receive-side buffer. Zero-value fields fall
	// back to jitter.DefaultConfig.
	Jitter jitter.Config
	// PLCAlgorithm conceals lost frames.
	PLCAlgorithm jitter.Algorithm

	// Loopback short-circuits outgoing packets back into the receive
	// path, bypassing the network. Diagnostic use.
	Loopback bool
}

// DefaultConfig returns the standard voice configuration: mono 48 kHz,
// 20 ms frames, dynamic payload type 111, adaptive jitter buffer with
// fade concealment. Collaborators must still be supplied.
func DefaultConfig() Config {
	return Config{
		SampleRate:    48000,
		Channels:      1,
		FrameDuration: 20 * time.Millisecond,
		PayloadType:   111,
		SRTPProfile:   srtp.ProfileAES128CMSHA1_80,
		Jitter:        jitter.DefaultConfig(),
		PLCAlgorithm:  jitter.AlgorithmFade,
	}
}

// validate checks the required collaborators and parameter consistency.
func (c *Config) validate() error {
	if c.SampleRate == 0 {
		return fmt.Errorf("sample rate cannot be zero: %w", ErrInvalidConfig)
	}
	if c.Channels != 1 {
		return fmt.Errorf("%d channels (only mono supported): %w", c.Channels, ErrInvalidConfig)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame duration %v: %w", c.FrameDuration, ErrInvalidConfig)
	}
	if c.Device == nil {
		return fmt.Errorf("device is required: %w", ErrInvalidConfig)
	}
	if c.Encoder == nil {
		return fmt.Errorf("encoder is required: %w", ErrInvalidConfig)
	}
	if c.Decoder == nil {
		return fmt.Errorf("decoder is required: %w", ErrInvalidConfig)
	}

	frameSamples := uint64(c.SampleRate) * uint64(c.FrameDuration) / uint64(time.Second)
	if frameSamples == 0 {
		return fmt.Errorf("frame duration %v at %d Hz yields empty frames: %w",
			c.FrameDuration, c.SampleRate, ErrInvalidConfig)
	}
	return nil
}

// frameSamples returns the number of samples per frame.
func (c *Config) frameSamples() int {
	return int(uint64(c.SampleRate) * uint64(c.FrameDuration) / uint64(time.Second))
}
