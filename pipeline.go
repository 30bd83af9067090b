package govoice

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/opd-ai/govoice/audio"
	"github.com/opd-ai/govoice/jitter"
	"github.com/opd-ai/govoice/rtp"
	"github.com/opd-ai/govoice/srtp"
)

// EncodedFunc receives each outgoing packet, protected and ready for the
// wire. It is invoked synchronously on the device's capture thread; the
// buffer is reused, so implementations must copy or send before
// returning, and must not block.
type EncodedFunc func(packet []byte)

// DecodedFunc receives each decoded frame just before playback, on the
// device's playback thread. Concealed frames are not delivered. The
// buffer is reused; do not retain it.
type DecodedFunc func(pcm []int16)

// StateFunc is notified of lifecycle transitions, synchronously on the
// thread performing the transition.
type StateFunc func(old, new State)

// ErrorFunc is notified of fatal pipeline errors, synchronously on the
// thread that detected them.
type ErrorFunc func(err error)

// Pipeline is the voice engine: it owns the capture path
// (mute, AEC, denoise, encode, packetize, protect) and the playback path
// (reorder, decode or conceal, volume, echo reference), glued to an
// audio.Device on one side and the application's transport on the other.
//
// The application pushes inbound packets via ReceivePacket and ships
// outbound ones from the encoded callback. All control methods are safe
// for concurrent use; the frame paths run on the device's real-time
// threads.
type Pipeline struct {
	config       Config
	frameSamples int

	state atomic.Int32

	// cbMu is held for reading by the frame callbacks for their whole
	// duration; Stop takes it for writing after stopping the device, so
	// when Stop returns no callback is in flight.
	cbMu sync.RWMutex

	rtpSession *rtp.Session
	srtpSend   *srtp.Session
	srtpRecv   *srtp.Session
	jbuf       *jitter.Buffer
	plc        *jitter.PLC

	// Capture-thread scratch, touched only inside processCapture.
	encodeBuf    []byte
	packetBuf    []byte
	rtpTimestamp uint32
	firstFrame   bool

	// Playback-thread scratch, touched only inside processPlayback.
	payloadBuf []byte
	decodePCM  []int16

	// Receive-path scratch, guarded by recvMu.
	recvMu  sync.Mutex
	recvBuf []byte

	// Controls.
	captureMuted   atomic.Bool
	playbackMuted  atomic.Bool
	aecEnabled     atomic.Bool
	denoiseEnabled atomic.Bool
	loopback       atomic.Bool
	volume         atomic.Float64

	// Frame counters.
	framesCaptured  atomic.Uint64
	framesPlayed    atomic.Uint64
	framesConcealed atomic.Uint64
	packetsDropped  atomic.Uint64

	// Callbacks, set before Start.
	callbackMu sync.RWMutex
	encodedCB  EncodedFunc
	decodedCB  DecodedFunc
	stateCB    StateFunc
	errorCB    ErrorFunc
}

// New assembles a pipeline from config. The pipeline starts in
// StateStopped; call Start to begin frame processing.
//
// Returns:
//   - *Pipeline: the assembled pipeline
//   - error: ErrInvalidConfig, or a wrapped constructor error from a
//     collaborator package
func New(config Config) (*Pipeline, error) {
	def := DefaultConfig()
	if config.SampleRate == 0 {
		config.SampleRate = def.SampleRate
	}
	if config.Channels == 0 {
		config.Channels = def.Channels
	}
	if config.FrameDuration == 0 {
		config.FrameDuration = def.FrameDuration
	}
	if config.PayloadType == 0 {
		config.PayloadType = def.PayloadType
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	frameSamples := config.frameSamples()

	rtpSession, err := rtp.NewSession(rtp.SessionConfig{
		SSRC:        config.SSRC,
		PayloadType: config.PayloadType,
		ClockRate:   config.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("rtp session: %w", err)
	}

	jcfg := config.Jitter
	if jcfg.ClockRate == 0 {
		jcfg.ClockRate = config.SampleRate
	}
	if jcfg.FrameDuration == 0 {
		jcfg.FrameDuration = config.FrameDuration
	}
	jbuf, err := jitter.NewBuffer(jcfg)
	if err != nil {
		return nil, fmt.Errorf("jitter buffer: %w", err)
	}

	plc, err := jitter.NewPLC(jitter.PLCConfig{
		SampleRate: config.SampleRate,
		FrameSize:  frameSamples,
		Algorithm:  config.PLCAlgorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("plc: %w", err)
	}

	p := &Pipeline{
		config:       config,
		frameSamples: frameSamples,
		rtpSession:   rtpSession,
		jbuf:         jbuf,
		plc:          plc,
		encodeBuf:    make([]byte, rtp.MaxPacketSize),
		packetBuf:    make([]byte, rtp.MaxPacketSize+64),
		payloadBuf:   make([]byte, rtp.MaxPacketSize),
		decodePCM:    make([]int16, frameSamples),
		recvBuf:      make([]byte, rtp.MaxPacketSize+64),
		firstFrame:   true,
	}
	p.state.Store(int32(StateStopped))
	p.volume.Store(1.0)
	p.aecEnabled.Store(config.EchoCanceller != nil)
	p.denoiseEnabled.Store(config.Denoiser != nil)
	p.loopback.Store(config.Loopback)

	logrus.WithFields(logrus.Fields{
		"function":      "New",
		"sample_rate":   config.SampleRate,
		"frame_samples": frameSamples,
		"payload_type":  config.PayloadType,
		"srtp":          config.EnableSRTP,
	}).Info("Voice pipeline created")

	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// transition swaps the state and fires the state callback.
func (p *Pipeline) transition(from, to State) bool {
	if !p.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.transition",
		"from":     from.String(),
		"to":       to.String(),
	}).Info("Pipeline state changed")

	p.callbackMu.RLock()
	cb := p.stateCB
	p.callbackMu.RUnlock()
	if cb != nil {
		cb(from, to)
	}
	return true
}

// fail moves the pipeline to StateError and fires the error callback.
func (p *Pipeline) fail(from State, err error) {
	p.transition(from, StateError)

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.fail",
		"error":    err,
	}).Error("Pipeline entered error state")

	p.callbackMu.RLock()
	cb := p.errorCB
	p.callbackMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// SetEncodedCallback installs the outgoing-packet callback. Set before
// Start.
func (p *Pipeline) SetEncodedCallback(cb EncodedFunc) {
	p.callbackMu.Lock()
	defer p.callbackMu.Unlock()
	p.encodedCB = cb
}

// SetDecodedCallback installs the decoded-frame callback. Set before
// Start.
func (p *Pipeline) SetDecodedCallback(cb DecodedFunc) {
	p.callbackMu.Lock()
	defer p.callbackMu.Unlock()
	p.decodedCB = cb
}

// SetStateCallback installs the lifecycle callback.
func (p *Pipeline) SetStateCallback(cb StateFunc) {
	p.callbackMu.Lock()
	defer p.callbackMu.Unlock()
	p.stateCB = cb
}

// SetErrorCallback installs the fatal-error callback.
func (p *Pipeline) SetErrorCallback(cb ErrorFunc) {
	p.callbackMu.Lock()
	defer p.callbackMu.Unlock()
	p.errorCB = cb
}

// SetSendKey installs or replaces the outbound SRTP key material.
// Callable before Start or mid-call for a rekey.
func (p *Pipeline) SetSendKey(masterKey, masterSalt []byte) error {
	if !p.config.EnableSRTP {
		return ErrSRTPNotEnabled
	}
	if p.srtpSend == nil {
		session, err := srtp.NewSession(srtp.Config{
			Profile:    p.config.SRTPProfile,
			MasterKey:  masterKey,
			MasterSalt: masterSalt,
		})
		if err != nil {
			return err
		}
		p.srtpSend = session
		return nil
	}
	return p.srtpSend.SetKey(masterKey, masterSalt)
}

// SetRecvKey installs or replaces the inbound SRTP key material.
// Rekeying resets replay state; packets protected under the old key are
// dropped as authentication failures.
func (p *Pipeline) SetRecvKey(masterKey, masterSalt []byte) error {
	if !p.config.EnableSRTP {
		return ErrSRTPNotEnabled
	}
	if p.srtpRecv == nil {
		session, err := srtp.NewSession(srtp.Config{
			Profile:    p.config.SRTPProfile,
			MasterKey:  masterKey,
			MasterSalt: masterSalt,
		})
		if err != nil {
			return err
		}
		p.srtpRecv = session
		return nil
	}
	return p.srtpRecv.SetKey(masterKey, masterSalt)
}

// Start wires the device callbacks and begins frame processing.
//
// Returns:
//   - error: ErrAlreadyRunning when not stopped; ErrDeviceStartFailed
//     (with the pipeline in StateError) when the device rejects Start;
//     ErrInvalidConfig when SRTP is enabled but keys were never set
func (p *Pipeline) Start() error {
	if p.config.EnableSRTP && (p.srtpSend == nil || p.srtpRecv == nil) {
		return fmt.Errorf("SRTP enabled but keys not set: %w", ErrInvalidConfig)
	}

	if !p.transition(StateStopped, StateStarting) {
		return fmt.Errorf("state %s: %w", p.State(), ErrAlreadyRunning)
	}

	p.firstFrame = true
	p.config.Device.SetCallbacks(p.processCapture, p.processPlayback)

	if err := p.config.Device.Start(); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrDeviceStartFailed, err)
		p.fail(StateStarting, wrapped)
		return wrapped
	}

	p.transition(StateStarting, StateRunning)
	return nil
}

// Stop halts the device and waits for in-flight frame callbacks to
// drain. When Stop returns, no capture or playback callback is running
// and none will run again until the next Start.
//
// Returns:
//   - error: ErrNotRunning when the pipeline is neither running nor in
//     error; the device's Stop error otherwise, with the pipeline still
//     moved to StateStopped
func (p *Pipeline) Stop() error {
	if p.transition(StateError, StateStopped) {
		return p.config.Device.Stop()
	}

	if !p.transition(StateRunning, StateStopping) {
		return fmt.Errorf("state %s: %w", p.State(), ErrNotRunning)
	}

	err := p.config.Device.Stop()

	// Wait out callbacks that were already past the state check.
	p.cbMu.Lock()
	p.cbMu.Unlock() //nolint:staticcheck // barrier, not a critical section

	p.transition(StateStopping, StateStopped)

	if err != nil {
		return fmt.Errorf("device stop: %w", err)
	}
	return nil
}

// processCapture runs the send path on the device's capture thread:
// mute, echo cancellation, denoise, encode, packetize, protect, deliver.
func (p *Pipeline) processCapture(pcm []int16) {
	p.cbMu.RLock()
	defer p.cbMu.RUnlock()

	if p.State() != StateRunning {
		return
	}
	p.framesCaptured.Inc()

	if p.captureMuted.Load() {
		audio.Mute(pcm)
	}

	if p.aecEnabled.Load() && p.config.EchoCanceller != nil {
		if err := p.config.EchoCanceller.ProcessCapture(pcm); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.processCapture",
				"error":    err,
			}).Debug("AEC capture processing failed, frame passed through")
		}
	}

	if p.denoiseEnabled.Load() && p.config.Denoiser != nil {
		if _, err := p.config.Denoiser.Process(pcm); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.processCapture",
				"error":    err,
			}).Debug("Denoise failed, frame passed through")
		}
	}

	n, err := p.config.Encoder.Encode(pcm, p.encodeBuf)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.processCapture",
			"error":    err,
		}).Warn("Encode failed, frame dropped")
		return
	}

	marker := p.firstFrame
	p.firstFrame = false

	pktLen, err := p.rtpSession.CreatePacket(p.encodeBuf[:n], p.rtpTimestamp, marker, p.packetBuf)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.processCapture",
			"error":    err,
		}).Warn("Packetize failed, frame dropped")
		return
	}
	p.rtpTimestamp += uint32(p.frameSamples)

	if p.srtpSend != nil {
		pktLen, err = p.srtpSend.Protect(p.packetBuf, pktLen)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.processCapture",
				"error":    err,
			}).Warn("SRTP protect failed, frame dropped")
			return
		}
	}

	packet := p.packetBuf[:pktLen]

	if p.loopback.Load() {
		if err := p.ReceivePacket(packet); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.processCapture",
				"error":    err,
			}).Debug("Loopback packet dropped")
		}
	}

	p.callbackMu.RLock()
	cb := p.encodedCB
	p.callbackMu.RUnlock()
	if cb != nil {
		cb(packet)
	}
}

// processPlayback runs the receive path on the device's playback thread:
// pull the next frame from the jitter buffer, decode it or conceal the
// gap, then apply volume and feed the echo reference. The output buffer
// is always fully written.
func (p *Pipeline) processPlayback(out []int16) {
	p.cbMu.RLock()
	defer p.cbMu.RUnlock()

	if p.State() != StateRunning {
		audio.Mute(out)
		return
	}

	frame, status, err := p.jbuf.Get(p.payloadBuf)
	if err != nil {
		audio.Mute(out)
		return
	}

	played := false
	if status == jitter.PacketOK {
		n, err := p.config.Decoder.Decode(p.payloadBuf[:frame.Size], p.decodePCM)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.processPlayback",
				"sequence": frame.Sequence,
				"error":    err,
			}).Debug("Decode failed, concealing frame")
		} else {
			if n > len(out) {
				n = len(out)
			}
			copy(out, p.decodePCM[:n])
			audio.Mute(out[n:])
			p.plc.UpdateGoodFrame(p.decodePCM[:n])
			played = true

			p.callbackMu.RLock()
			cb := p.decodedCB
			p.callbackMu.RUnlock()
			if cb != nil {
				cb(out)
			}
		}
	}

	if !played {
		p.plc.Generate(out)
		p.framesConcealed.Inc()
	}
	p.framesPlayed.Inc()

	if p.playbackMuted.Load() {
		audio.Mute(out)
	}
	audio.ApplyVolume(out, float32(p.volume.Load()))

	if p.aecEnabled.Load() && p.config.EchoCanceller != nil {
		p.config.EchoCanceller.ProcessPlayback(out)
	}
}

// ReceivePacket feeds one inbound packet from the application's
// transport into the receive path: unprotect, parse, update reception
// statistics, insert into the jitter buffer.
//
// Callable from any goroutine, including before Start so the buffer can
// pre-fill. The data slice is copied; the caller keeps ownership.
//
// Returns:
//   - error: ErrPacketDropped wrapping the cause (srtp.ErrAuthFailed,
//     srtp.ErrReplayAttack, rtp.ErrInvalidPacket). Dropped packets are
//     counted; the pipeline keeps running
func (p *Pipeline) ReceivePacket(data []byte) error {
	p.recvMu.Lock()
	defer p.recvMu.Unlock()

	if len(data) > len(p.recvBuf) {
		p.packetsDropped.Inc()
		return fmt.Errorf("%w: packet of %d bytes exceeds maximum", ErrPacketDropped, len(data))
	}
	n := copy(p.recvBuf, data)

	if p.srtpRecv != nil {
		var err error
		n, err = p.srtpRecv.Unprotect(p.recvBuf[:n])
		if err != nil {
			p.packetsDropped.Inc()
			return fmt.Errorf("%w: %w", ErrPacketDropped, err)
		}
	}

	pkt, err := rtp.ParsePacket(p.recvBuf[:n])
	if err != nil {
		p.packetsDropped.Inc()
		return fmt.Errorf("%w: %w", ErrPacketDropped, err)
	}

	p.rtpSession.ProcessReceived(pkt)

	if _, err := p.jbuf.Put(pkt.Payload, pkt.Header.Timestamp, pkt.Header.Sequence, pkt.Header.Marker); err != nil {
		p.packetsDropped.Inc()
		return fmt.Errorf("%w: %w", ErrPacketDropped, err)
	}
	return nil
}

// BuildReport writes an RTCP sender report for this pipeline into out,
// SRTCP-protected when SRTP is enabled. The application ships it over
// its control channel at its own cadence.
func (p *Pipeline) BuildReport(out []byte) (int, error) {
	n, err := p.rtpSession.BuildSenderReport(out)
	if err != nil {
		return 0, err
	}
	if p.srtpSend != nil {
		return p.srtpSend.ProtectRTCP(out, n)
	}
	return n, nil
}

// ReceiveReport feeds one inbound RTCP compound packet into the session:
// sender reports feed the RTT estimator, receiver reports close it, BYE
// is surfaced through the return value.
//
// Returns:
//   - bool: true when the compound packet contained a BYE
//   - error: ErrPacketDropped wrapping the cause
func (p *Pipeline) ReceiveReport(data []byte) (bool, error) {
	p.recvMu.Lock()
	defer p.recvMu.Unlock()

	if len(data) > len(p.recvBuf) {
		return false, fmt.Errorf("%w: packet of %d bytes exceeds maximum", ErrPacketDropped, len(data))
	}
	n := copy(p.recvBuf, data)

	if p.srtpRecv != nil {
		var err error
		n, err = p.srtpRecv.UnprotectRTCP(p.recvBuf[:n])
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrPacketDropped, err)
		}
	}

	bye := false
	buf := p.recvBuf[:n]
	for len(buf) > 0 {
		header, err := rtp.ParseRTCPHeader(buf)
		if err != nil {
			return bye, fmt.Errorf("%w: %w", ErrPacketDropped, err)
		}
		size := (int(header.Length) + 1) * 4

		switch header.PacketType {
		case rtp.RTCPTypeSR:
			if _, err := p.rtpSession.ProcessSenderReport(buf[:size]); err != nil {
				return bye, fmt.Errorf("%w: %w", ErrPacketDropped, err)
			}
		case rtp.RTCPTypeRR:
			if _, err := p.rtpSession.ProcessReceiverReport(buf[:size]); err != nil {
				return bye, fmt.Errorf("%w: %w", ErrPacketDropped, err)
			}
		case rtp.RTCPTypeBYE:
			if _, reason, err := rtp.ParseBye(buf[:size]); err == nil {
				logrus.WithFields(logrus.Fields{
					"function": "Pipeline.ReceiveReport",
					"reason":   reason,
				}).Info("Remote said goodbye")
			}
			bye = true
		}
		// SDES and unknown types are skipped by length.

		buf = buf[size:]
	}
	return bye, nil
}

// SetCaptureMuted replaces captured audio with silence before encoding,
// so the remote side keeps receiving (silent) packets.
func (p *Pipeline) SetCaptureMuted(muted bool) {
	p.captureMuted.Store(muted)
}

// SetPlaybackMuted silences playback locally without disturbing the
// receive path or statistics.
func (p *Pipeline) SetPlaybackMuted(muted bool) {
	p.playbackMuted.Store(muted)
}

// SetPlaybackVolume scales playback, clamped to [0, 4]. 1 is unity gain.
func (p *Pipeline) SetPlaybackVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 4 {
		volume = 4
	}
	p.volume.Store(volume)
}

// SetAECEnabled toggles echo cancellation. No-op without an
// EchoCanceller collaborator.
func (p *Pipeline) SetAECEnabled(enabled bool) {
	p.aecEnabled.Store(enabled && p.config.EchoCanceller != nil)
}

// SetDenoiseEnabled toggles noise suppression. No-op without a Denoiser
// collaborator.
func (p *Pipeline) SetDenoiseEnabled(enabled bool) {
	p.denoiseEnabled.Store(enabled && p.config.Denoiser != nil)
}

// SetLoopback toggles loopback of outgoing packets into the receive
// path.
func (p *Pipeline) SetLoopback(enabled bool) {
	p.loopback.Store(enabled)
}

// SetBitRate forwards a bitrate change to the encoder.
func (p *Pipeline) SetBitRate(bitRate uint32) error {
	return p.config.Encoder.SetBitRate(bitRate)
}

// GetStats merges transport, jitter buffer, and frame counters into one
// snapshot.
func (p *Pipeline) GetStats() Stats {
	rs := p.rtpSession.Stats()
	js := p.jbuf.Stats()

	return Stats{
		State:           p.State(),
		PacketsSent:     rs.PacketsSent,
		BytesSent:       rs.BytesSent,
		PacketsReceived: rs.PacketsReceived,
		BytesReceived:   rs.BytesReceived,
		PacketsDropped:  p.packetsDropped.Load(),
		PacketsLost:     rs.PacketsLost,
		LossRate:        rs.FractionLost,
		JitterMS:        rs.JitterMS,
		RTTMS:           rs.RTTMS,
		FramesCaptured:  p.framesCaptured.Load(),
		FramesPlayed:    p.framesPlayed.Load(),
		FramesConcealed: p.framesConcealed.Load(),
		BufferDelay:     js.CurrentDelay,
		BufferLevel:     js.BufferLevel,
		PlayoutRate:     js.PlayoutRate,
	}
}

// ResetStats zeroes the transport, buffer, and frame counters.
func (p *Pipeline) ResetStats() {
	p.rtpSession.ResetStats()
	p.jbuf.ResetStats()
	p.framesCaptured.Store(0)
	p.framesPlayed.Store(0)
	p.framesConcealed.Store(0)
	p.packetsDropped.Store(0)
}
