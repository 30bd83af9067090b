package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// Encoder compresses one frame of PCM samples into a payload suitable for
// RTP packetization. Implementations must be synchronous and bounded by
// one frame period; they are called from the real-time capture path.
type Encoder interface {
	// Encode compresses pcm into out and returns the payload length.
	Encode(pcm []int16, out []byte) (int, error)
	// SetBitRate updates the target bit rate, if the codec supports it.
	SetBitRate(bitRate uint32) error
}

// Decoder expands one encoded payload into PCM samples. Implementations
// must be synchronous and bounded; they are called from the real-time
// playback path.
type Decoder interface {
	// Decode expands data into pcm and returns the sample count.
	Decode(data []byte, pcm []int16) (int, error)
}

// RTP payload types for the built-in codecs.
const (
	PayloadTypePCMU = 0   // G.711 µ-law, 8 kHz
	PayloadTypePCMA = 8   // G.711 A-law, 8 kHz
	PayloadTypeL16  = 96  // raw 16-bit PCM, dynamic
	PayloadTypeOpus = 111 // Opus, 48 kHz, dynamic
)

// PCM16Codec is a pass-through codec carrying raw 16-bit samples in
// network byte order. It exists for loopback testing and for callers that
// run their own compression outside the pipeline.
type PCM16Codec struct{}

// NewPCM16Codec creates a pass-through 16-bit PCM codec.
func NewPCM16Codec() *PCM16Codec {
	return &PCM16Codec{}
}

// Encode writes pcm into out big-endian, returning the payload length.
func (c *PCM16Codec) Encode(pcm []int16, out []byte) (int, error) {
	need := len(pcm) * 2
	if len(out) < need {
		return 0, fmt.Errorf("pcm16 encode: output holds %d of %d bytes: %w",
			len(out), need, ErrBufferFull)
	}
	for i, s := range pcm {
		binary.BigEndian.PutUint16(out[i*2:], uint16(s))
	}
	return need, nil
}

// SetBitRate is a no-op for uncompressed PCM.
func (c *PCM16Codec) SetBitRate(bitRate uint32) error {
	return nil
}

// Decode reads big-endian samples from data into pcm.
func (c *PCM16Codec) Decode(data []byte, pcm []int16) (int, error) {
	if len(data)%2 != 0 {
		return 0, fmt.Errorf("pcm16 decode: odd payload size %d: %w", len(data), ErrDecodeFailed)
	}
	samples := len(data) / 2
	if samples > len(pcm) {
		return 0, fmt.Errorf("pcm16 decode: %d samples exceed output %d: %w",
			samples, len(pcm), ErrBufferFull)
	}
	for i := 0; i < samples; i++ {
		pcm[i] = int16(binary.BigEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// G711Law selects the companding variant for the G.711 codec.
type G711Law int

const (
	// G711ALaw is ITU-T G.711 A-law companding (PT 8).
	G711ALaw G711Law = iota
	// G711ULaw is ITU-T G.711 µ-law companding (PT 0).
	G711ULaw
)

// G711Codec implements ITU-T G.711 logarithmic companding: 8-bit samples
// at 8 kHz, 64 kbit/s. One byte per sample, so payload length equals the
// frame sample count.
type G711Codec struct {
	law G711Law
}

// NewG711Codec creates a G.711 codec for the given companding law.
func NewG711Codec(law G711Law) *G711Codec {
	logrus.WithFields(logrus.Fields{
		"function": "NewG711Codec",
		"alaw":     law == G711ALaw,
	}).Info("G.711 codec created")
	return &G711Codec{law: law}
}

// PayloadType returns the static RTP payload type for this variant.
func (c *G711Codec) PayloadType() uint8 {
	if c.law == G711ALaw {
		return PayloadTypePCMA
	}
	return PayloadTypePCMU
}

// Encode compands pcm into out, one byte per sample.
func (c *G711Codec) Encode(pcm []int16, out []byte) (int, error) {
	if len(out) < len(pcm) {
		return 0, fmt.Errorf("g711 encode: output holds %d of %d bytes: %w",
			len(out), len(pcm), ErrBufferFull)
	}
	if c.law == G711ALaw {
		for i, s := range pcm {
			out[i] = linearToALaw(s)
		}
	} else {
		for i, s := range pcm {
			out[i] = linearToULaw(s)
		}
	}
	return len(pcm), nil
}

// SetBitRate is a no-op; G.711 is fixed at 64 kbit/s.
func (c *G711Codec) SetBitRate(bitRate uint32) error {
	return nil
}

// Decode expands companded bytes into pcm.
func (c *G711Codec) Decode(data []byte, pcm []int16) (int, error) {
	if len(data) > len(pcm) {
		return 0, fmt.Errorf("g711 decode: %d samples exceed output %d: %w",
			len(data), len(pcm), ErrBufferFull)
	}
	if c.law == G711ALaw {
		for i, b := range data {
			pcm[i] = aLawToLinear(b)
		}
	} else {
		for i, b := range data {
			pcm[i] = uLawToLinear(b)
		}
	}
	return len(data), nil
}

const ulawBias = 0x84

func linearToALaw(pcm int16) byte {
	sign := byte(0)
	v := int(pcm)
	if v >= 0 {
		sign = 0x80
	} else {
		v = -v
	}
	if v > 32635 {
		v = 32635
	}

	var compressed byte
	if v < 256 {
		compressed = byte(v >> 4)
	} else {
		exponent := 7
		for mantissa := v >> 8; mantissa < 0x40; mantissa <<= 1 {
			exponent--
		}
		compressed = byte(exponent<<4) | byte((v>>(exponent+3))&0x0F)
	}

	return (compressed | sign) ^ 0x55
}

func aLawToLinear(alaw byte) int16 {
	alaw ^= 0x55
	sign := alaw & 0x80
	exponent := int(alaw>>4) & 0x07
	mantissa := int(alaw & 0x0F)

	var v int
	if exponent == 0 {
		v = mantissa<<4 + 8
	} else {
		v = (mantissa<<4 + 0x108) << (exponent - 1)
	}

	if sign != 0 {
		return int16(v)
	}
	return int16(-v)
}

func linearToULaw(pcm int16) byte {
	sign := byte(0)
	v := int(pcm)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > 32635 {
		v = 32635
	}
	v += ulawBias

	exponent := 7
	for mask := 0x4000; v&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (v >> (exponent + 3)) & 0x0F

	return ^(sign | byte(exponent<<4) | byte(mantissa))
}

func uLawToLinear(ulaw byte) int16 {
	ulaw = ^ulaw
	sign := ulaw & 0x80
	exponent := int(ulaw>>4) & 0x07
	mantissa := int(ulaw & 0x0F)

	v := ((mantissa<<3 + ulawBias) << exponent) - ulawBias

	if sign != 0 {
		return int16(-v)
	}
	return int16(v)
}

// OpusDecoder adapts the pure-Go pion/opus decoder to the Decoder
// contract. Decode-only: sending Opus requires an external encoder
// collaborator behind the Encoder interface.
type OpusDecoder struct {
	decoder *opus.Decoder
	scratch []byte
}

// NewOpusDecoder creates an Opus decoder for 48 kHz mono streams.
func NewOpusDecoder() *OpusDecoder {
	logrus.WithFields(logrus.Fields{
		"function": "NewOpusDecoder",
	}).Info("Opus decoder created")

	decoder := opus.NewDecoder()
	return &OpusDecoder{
		decoder: &decoder,
		// 120 ms at 48 kHz is the largest legal Opus frame.
		scratch: make([]byte, 5760*2),
	}
}

// Decode expands an Opus payload into pcm and returns the sample count.
func (d *OpusDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("opus decode: empty payload: %w", ErrInvalidFrame)
	}

	_, isStereo, err := d.decoder.Decode(data, d.scratch)
	if err != nil {
		return 0, fmt.Errorf("opus decode: %w", err)
	}

	samples := len(d.scratch) / 2
	if isStereo {
		samples /= 2
	}
	if samples > len(pcm) {
		samples = len(pcm)
	}
	for i := 0; i < samples; i++ {
		pcm[i] = int16(uint16(d.scratch[i*2]) | uint16(d.scratch[i*2+1])<<8)
	}
	return samples, nil
}
