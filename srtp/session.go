package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

// Config is the configuration snapshot for one protection direction.
// Master key and salt arrive pre-negotiated; this package performs no
// key exchange.
type Config struct {
	Profile    Profile
	MasterKey  []byte
	MasterSalt []byte
	// ReplayWindowSize is the receive replay window in packets,
	// rounded up to a multiple of 64. Zero means 128.
	ReplayWindowSize int
}

// DefaultConfig returns a config for the RFC 3711 default profile.
// Key material must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Profile:          ProfileAES128CMSHA1_80,
		ReplayWindowSize: defaultReplayWindow,
	}
}

// cryptoContext bundles the derived per-session transforms. Rekeying
// swaps the whole context atomically under the session lock.
type cryptoContext struct {
	profile Profile

	rtpSalt  []byte
	rtcpSalt []byte

	// Counter-mode profiles.
	rtpCipher   cipher.Block
	rtcpCipher  cipher.Block
	rtpAuthKey  []byte
	rtcpAuthKey []byte

	// AEAD profiles.
	rtpAEAD  cipher.AEAD
	rtcpAEAD cipher.AEAD
}

// Session is one direction of SRTP/SRTCP protection. Send and receive
// sides each own a separate session: rollover-counter and replay state
// diverge between directions even under the same master key.
//
// All methods are safe for concurrent use, though a single direction is
// normally driven by one thread.
type Session struct {
	mu     sync.Mutex
	config Config
	ctx    *cryptoContext

	// SRTP packet-index state.
	roc     uint32
	lastSeq uint16
	seqSeen bool
	replay  *replayWindow

	// SRTCP index state.
	rtcpIndex  uint32
	rtcpReplay *replayWindow
}

// NewSession creates a protection session for one direction from
// pre-negotiated key material.
func NewSession(config Config) (*Session, error) {
	if !config.Profile.valid() {
		return nil, fmt.Errorf("profile %d: %w", config.Profile, ErrUnsupportedProfile)
	}

	ctx, err := newCryptoContext(config.Profile, config.MasterKey, config.MasterSalt)
	if err != nil {
		return nil, err
	}

	s := &Session{
		config:     config,
		ctx:        ctx,
		replay:     newReplayWindow(config.ReplayWindowSize),
		rtcpReplay: newReplayWindow(config.ReplayWindowSize),
	}

	logrus.WithFields(logrus.Fields{
		"function":      "NewSession",
		"profile":       config.Profile.String(),
		"replay_window": s.replay.size,
	}).Info("SRTP session created")

	return s, nil
}

func newCryptoContext(profile Profile, masterKey, masterSalt []byte) (*cryptoContext, error) {
	if len(masterKey) != profile.KeyLen() || len(masterSalt) != profile.SaltLen() {
		return nil, fmt.Errorf("key %d/salt %d for %s: %w",
			len(masterKey), len(masterSalt), profile, ErrBadKeyLength)
	}

	ctx := &cryptoContext{profile: profile}

	rtpKey, err := deriveKey(masterKey, masterSalt, labelRTPEncryption, profile.KeyLen())
	if err != nil {
		return nil, err
	}
	rtcpKey, err := deriveKey(masterKey, masterSalt, labelRTCPEncryption, profile.KeyLen())
	if err != nil {
		return nil, err
	}
	if ctx.rtpSalt, err = deriveKey(masterKey, masterSalt, labelRTPSalt, profile.SaltLen()); err != nil {
		return nil, err
	}
	if ctx.rtcpSalt, err = deriveKey(masterKey, masterSalt, labelRTCPSalt, profile.SaltLen()); err != nil {
		return nil, err
	}

	switch profile {
	case ProfileAES128CMSHA1_80, ProfileAES128CMSHA1_32:
		if ctx.rtpCipher, err = aes.NewCipher(rtpKey); err != nil {
			return nil, fmt.Errorf("rtp cipher: %w", err)
		}
		if ctx.rtcpCipher, err = aes.NewCipher(rtcpKey); err != nil {
			return nil, fmt.Errorf("rtcp cipher: %w", err)
		}
		if ctx.rtpAuthKey, err = deriveKey(masterKey, masterSalt, labelRTPAuth, hmacSHA1KeyLen); err != nil {
			return nil, err
		}
		if ctx.rtcpAuthKey, err = deriveKey(masterKey, masterSalt, labelRTCPAuth, hmacSHA1KeyLen); err != nil {
			return nil, err
		}

	case ProfileAEADAES128GCM, ProfileAEADAES256GCM:
		rtpBlock, err := aes.NewCipher(rtpKey)
		if err != nil {
			return nil, fmt.Errorf("rtp cipher: %w", err)
		}
		if ctx.rtpAEAD, err = cipher.NewGCM(rtpBlock); err != nil {
			return nil, fmt.Errorf("rtp gcm: %w", err)
		}
		rtcpBlock, err := aes.NewCipher(rtcpKey)
		if err != nil {
			return nil, fmt.Errorf("rtcp cipher: %w", err)
		}
		if ctx.rtcpAEAD, err = cipher.NewGCM(rtcpBlock); err != nil {
			return nil, fmt.Errorf("rtcp gcm: %w", err)
		}

	case ProfileAEADChaCha20Poly1305:
		if ctx.rtpAEAD, err = chacha20poly1305.New(rtpKey); err != nil {
			return nil, fmt.Errorf("rtp chacha20: %w", err)
		}
		if ctx.rtcpAEAD, err = chacha20poly1305.New(rtcpKey); err != nil {
			return nil, fmt.Errorf("rtcp chacha20: %w", err)
		}
	}

	return ctx, nil
}

// SetKey rekeys the session: the whole crypto context is rebuilt from the
// new master key and salt, and rollover-counter plus replay state reset.
// Packets protected under the old key that arrive after the swap fail
// authentication and are dropped like any tampered packet.
func (s *Session) SetKey(masterKey, masterSalt []byte) error {
	ctx, err := newCryptoContext(s.config.Profile, masterKey, masterSalt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx
	s.config.MasterKey = masterKey
	s.config.MasterSalt = masterSalt
	s.roc = 0
	s.lastSeq = 0
	s.seqSeen = false
	s.replay.reset()
	s.rtcpIndex = 0
	s.rtcpReplay.reset()

	logrus.WithFields(logrus.Fields{
		"function": "Session.SetKey",
		"profile":  s.config.Profile.String(),
	}).Info("SRTP session rekeyed")

	return nil
}

// Overhead returns the number of bytes Protect appends to a packet.
func (s *Session) Overhead() int {
	return s.config.Profile.TagLen()
}

// rtpHeaderLen returns the offset of the payload: fixed header plus CSRC
// list plus extension, validated against the packet length.
func rtpHeaderLen(packet []byte) (int, error) {
	if len(packet) < 12 {
		return 0, fmt.Errorf("packet of %d bytes shorter than RTP header: %w",
			len(packet), ErrInvalidPacket)
	}
	n := 12 + 4*int(packet[0]&0x0F)
	if packet[0]&0x10 != 0 {
		if len(packet) < n+4 {
			return 0, fmt.Errorf("truncated extension: %w", ErrInvalidPacket)
		}
		n += 4 + 4*int(binary.BigEndian.Uint16(packet[n+2:]))
	}
	if len(packet) < n {
		return 0, fmt.Errorf("header %d exceeds packet %d: %w", n, len(packet), ErrInvalidPacket)
	}
	return n, nil
}

// rtpIV builds the AES-CM IV: (salt << 16) XOR (SSRC << 64) XOR (index << 16).
func rtpIV(salt []byte, ssrc uint32, index uint64) [16]byte {
	var iv [16]byte
	copy(iv[:], salt)
	iv[4] ^= byte(ssrc >> 24)
	iv[5] ^= byte(ssrc >> 16)
	iv[6] ^= byte(ssrc >> 8)
	iv[7] ^= byte(ssrc)
	for i := 0; i < 6; i++ {
		iv[8+i] ^= byte(index >> (40 - 8*i))
	}
	return iv
}

// aeadNonce builds the RFC 7714 12-byte nonce:
// salt XOR (0x0000 || SSRC || ROC || SEQ).
func aeadNonce(salt []byte, ssrc, roc uint32, seq uint16) [12]byte {
	var nonce [12]byte
	copy(nonce[:], salt)
	nonce[2] ^= byte(ssrc >> 24)
	nonce[3] ^= byte(ssrc >> 16)
	nonce[4] ^= byte(ssrc >> 8)
	nonce[5] ^= byte(ssrc)
	nonce[6] ^= byte(roc >> 24)
	nonce[7] ^= byte(roc >> 16)
	nonce[8] ^= byte(roc >> 8)
	nonce[9] ^= byte(roc)
	nonce[10] ^= byte(seq >> 8)
	nonce[11] ^= byte(seq)
	return nonce
}

// Protect encrypts and authenticates an RTP packet in place.
//
// buf[:packetLen] holds the plaintext packet; the authentication tag is
// appended inside buf, so len(buf) is the caller's max length.
//
// Returns:
//   - int: the protected packet length (packetLen + tag)
//   - error: ErrBufferTooSmall if buf cannot hold the tag,
//     ErrInvalidPacket on a malformed header
func (s *Session) Protect(buf []byte, packetLen int) (int, error) {
	tagLen := s.config.Profile.TagLen()
	if packetLen+tagLen > len(buf) {
		return 0, fmt.Errorf("protected packet needs %d bytes, buffer holds %d: %w",
			packetLen+tagLen, len(buf), ErrBufferTooSmall)
	}

	packet := buf[:packetLen]
	headerLen, err := rtpHeaderLen(packet)
	if err != nil {
		return 0, err
	}

	seq := binary.BigEndian.Uint16(packet[2:4])
	ssrc := binary.BigEndian.Uint32(packet[8:12])

	s.mu.Lock()
	defer s.mu.Unlock()

	// The sender emits packets in order, so a sequence step backwards
	// across the ring midpoint is a 16-bit wrap.
	if s.seqSeen && seq < s.lastSeq && s.lastSeq-seq > 1<<15 {
		s.roc++
	}
	s.lastSeq = seq
	s.seqSeen = true

	index := uint64(s.roc)<<16 | uint64(seq)
	payload := packet[headerLen:]

	if s.ctx.profile.aead() {
		nonce := aeadNonce(s.ctx.rtpSalt, ssrc, s.roc, seq)
		s.ctx.rtpAEAD.Seal(payload[:0], nonce[:], payload, packet[:headerLen])
		return packetLen + tagLen, nil
	}

	iv := rtpIV(s.ctx.rtpSalt, ssrc, index)
	cipher.NewCTR(s.ctx.rtpCipher, iv[:]).XORKeyStream(payload, payload)

	mac := hmac.New(sha1.New, s.ctx.rtpAuthKey)
	mac.Write(packet)
	var rocBytes [4]byte
	binary.BigEndian.PutUint32(rocBytes[:], s.roc)
	mac.Write(rocBytes[:])
	copy(buf[packetLen:packetLen+tagLen], mac.Sum(nil))

	return packetLen + tagLen, nil
}

// estimateIndex guesses the 48-bit packet index of an inbound sequence
// number relative to the highest one seen (RFC 3711 appendix A).
func (s *Session) estimateIndex(seq uint16) (uint64, uint32) {
	if !s.seqSeen {
		return uint64(seq), s.roc
	}

	roc := s.roc
	if s.lastSeq < 1<<15 {
		if int(seq)-int(s.lastSeq) > 1<<15 && roc > 0 {
			roc--
		}
	} else if int(s.lastSeq)-int(seq) > 1<<15 {
		roc++
	}
	return uint64(roc)<<16 | uint64(seq), roc
}

// Unprotect verifies and decrypts an SRTP packet in place. The tag is
// verified before any decrypted content is used; replay-window rejection
// happens before any cryptographic work.
//
// Returns:
//   - int: the plaintext packet length (input minus tag)
//   - error: ErrReplayAttack, ErrAuthFailed, or ErrInvalidPacket —
//     all mean "drop the packet," never a fatal session error
func (s *Session) Unprotect(packet []byte) (int, error) {
	tagLen := s.config.Profile.TagLen()
	headerLen, err := rtpHeaderLen(packet)
	if err != nil {
		return 0, err
	}
	if len(packet) < headerLen+tagLen {
		return 0, fmt.Errorf("packet too short for %d-byte tag: %w", tagLen, ErrInvalidPacket)
	}

	seq := binary.BigEndian.Uint16(packet[2:4])
	ssrc := binary.BigEndian.Uint32(packet[8:12])

	s.mu.Lock()
	defer s.mu.Unlock()

	index, roc := s.estimateIndex(seq)
	if err := s.replay.check(index); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Unprotect",
			"sequence": seq,
			"index":    index,
		}).Warn("Replayed packet rejected")
		return 0, err
	}

	plainLen := len(packet) - tagLen

	if s.ctx.profile.aead() {
		nonce := aeadNonce(s.ctx.rtpSalt, ssrc, roc, seq)
		if _, err := s.ctx.rtpAEAD.Open(packet[headerLen:headerLen],
			nonce[:], packet[headerLen:], packet[:headerLen]); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Session.Unprotect",
				"sequence": seq,
			}).Warn("Authentication failed")
			return 0, ErrAuthFailed
		}
	} else {
		mac := hmac.New(sha1.New, s.ctx.rtpAuthKey)
		mac.Write(packet[:plainLen])
		var rocBytes [4]byte
		binary.BigEndian.PutUint32(rocBytes[:], roc)
		mac.Write(rocBytes[:])
		expected := mac.Sum(nil)[:tagLen]

		if subtle.ConstantTimeCompare(expected, packet[plainLen:]) != 1 {
			logrus.WithFields(logrus.Fields{
				"function": "Session.Unprotect",
				"sequence": seq,
			}).Warn("Authentication failed")
			return 0, ErrAuthFailed
		}

		iv := rtpIV(s.ctx.rtpSalt, ssrc, index)
		payload := packet[headerLen:plainLen]
		cipher.NewCTR(s.ctx.rtpCipher, iv[:]).XORKeyStream(payload, payload)
	}

	// Authenticated: commit index state.
	s.replay.update(index)
	if roc > s.roc || (roc == s.roc && (!s.seqSeen || seq > s.lastSeq)) {
		s.roc = roc
		s.lastSeq = seq
	}
	s.seqSeen = true

	return plainLen, nil
}

// srtcpTrailerSize is the E-bit + 31-bit index word.
const srtcpTrailerSize = 4

// rtcpNonce builds the SRTCP AEAD nonce:
// salt XOR (0x0000 || SSRC || 0x0000 || index).
func rtcpNonce(salt []byte, ssrc, index uint32) [12]byte {
	var nonce [12]byte
	copy(nonce[:], salt)
	nonce[2] ^= byte(ssrc >> 24)
	nonce[3] ^= byte(ssrc >> 16)
	nonce[4] ^= byte(ssrc >> 8)
	nonce[5] ^= byte(ssrc)
	nonce[8] ^= byte(index >> 24)
	nonce[9] ^= byte(index >> 16)
	nonce[10] ^= byte(index >> 8)
	nonce[11] ^= byte(index)
	return nonce
}

// ProtectRTCP encrypts and authenticates an RTCP compound packet in
// place, appending the E-bit + index trailer and the authentication tag.
// The first 8 bytes (header and sender SSRC) stay in the clear as the
// protocol requires.
func (s *Session) ProtectRTCP(buf []byte, packetLen int) (int, error) {
	extra := s.config.Profile.TagLen() + srtcpTrailerSize
	if packetLen+extra > len(buf) {
		return 0, fmt.Errorf("protected RTCP needs %d bytes, buffer holds %d: %w",
			packetLen+extra, len(buf), ErrBufferTooSmall)
	}
	if packetLen < 8 {
		return 0, fmt.Errorf("RTCP packet of %d bytes too short: %w", packetLen, ErrInvalidPacket)
	}

	packet := buf[:packetLen]
	ssrc := binary.BigEndian.Uint32(packet[4:8])

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rtcpIndex = (s.rtcpIndex + 1) & 0x7FFFFFFF
	index := s.rtcpIndex
	trailer := uint32(1)<<31 | index

	payload := packet[8:]

	if s.ctx.profile.aead() {
		var trailerBytes [srtcpTrailerSize]byte
		binary.BigEndian.PutUint32(trailerBytes[:], trailer)

		aad := make([]byte, 0, 8+srtcpTrailerSize)
		aad = append(aad, packet[:8]...)
		aad = append(aad, trailerBytes[:]...)

		nonce := rtcpNonce(s.ctx.rtcpSalt, ssrc, index)
		s.ctx.rtcpAEAD.Seal(payload[:0], nonce[:], payload, aad)

		n := packetLen + s.config.Profile.TagLen()
		binary.BigEndian.PutUint32(buf[n:n+srtcpTrailerSize], trailer)
		return n + srtcpTrailerSize, nil
	}

	iv := rtpIV(s.ctx.rtcpSalt, ssrc, uint64(index))
	cipher.NewCTR(s.ctx.rtcpCipher, iv[:]).XORKeyStream(payload, payload)

	binary.BigEndian.PutUint32(buf[packetLen:packetLen+srtcpTrailerSize], trailer)
	authLen := packetLen + srtcpTrailerSize

	mac := hmac.New(sha1.New, s.ctx.rtcpAuthKey)
	mac.Write(buf[:authLen])
	tagLen := s.config.Profile.TagLen()
	copy(buf[authLen:authLen+tagLen], mac.Sum(nil))

	return authLen + tagLen, nil
}

// UnprotectRTCP verifies and decrypts an SRTCP packet in place,
// returning the plaintext compound-packet length.
func (s *Session) UnprotectRTCP(packet []byte) (int, error) {
	tagLen := s.config.Profile.TagLen()
	minLen := 8 + srtcpTrailerSize + tagLen
	if len(packet) < minLen {
		return 0, fmt.Errorf("SRTCP packet of %d bytes too short: %w", len(packet), ErrInvalidPacket)
	}

	ssrc := binary.BigEndian.Uint32(packet[4:8])

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.profile.aead() {
		trailerOffset := len(packet) - srtcpTrailerSize
		trailer := binary.BigEndian.Uint32(packet[trailerOffset:])
		index := trailer & 0x7FFFFFFF

		if err := s.rtcpReplay.check(uint64(index)); err != nil {
			return 0, err
		}

		aad := make([]byte, 0, 8+srtcpTrailerSize)
		aad = append(aad, packet[:8]...)
		aad = append(aad, packet[trailerOffset:]...)

		nonce := rtcpNonce(s.ctx.rtcpSalt, ssrc, index)
		if _, err := s.ctx.rtcpAEAD.Open(packet[8:8], nonce[:],
			packet[8:trailerOffset], aad); err != nil {
			return 0, ErrAuthFailed
		}

		s.rtcpReplay.update(uint64(index))
		return trailerOffset - tagLen, nil
	}

	authLen := len(packet) - tagLen
	trailer := binary.BigEndian.Uint32(packet[authLen-srtcpTrailerSize:])
	index := trailer & 0x7FFFFFFF

	if err := s.rtcpReplay.check(uint64(index)); err != nil {
		return 0, err
	}

	mac := hmac.New(sha1.New, s.ctx.rtcpAuthKey)
	mac.Write(packet[:authLen])
	expected := mac.Sum(nil)[:tagLen]
	if subtle.ConstantTimeCompare(expected, packet[authLen:]) != 1 {
		return 0, ErrAuthFailed
	}

	encrypted := trailer>>31 == 1
	plainLen := authLen - srtcpTrailerSize
	if encrypted {
		iv := rtpIV(s.ctx.rtcpSalt, ssrc, uint64(index))
		payload := packet[8:plainLen]
		cipher.NewCTR(s.ctx.rtcpCipher, iv[:]).XORKeyStream(payload, payload)
	}

	s.rtcpReplay.update(uint64(index))
	return plainLen, nil
}
