// Package srtp implements Secure RTP (RFC 3711) for the govoice engine:
// per-direction cryptographic sessions wrapping RTP and RTCP packets with
// authenticated encryption and replay protection.
//
// Supported protection profiles are AES-128-CM with HMAC-SHA1 (80- and
// 32-bit tags), AEAD AES-GCM with 128- and 256-bit keys (RFC 7714), and
// AEAD ChaCha20-Poly1305 with the GCM nonce convention. Session keys are
// derived from the master key and salt with the RFC 3711 AES-CM key
// derivation function.
//
// A Session covers exactly one direction. Send and receive must never
// share a session even under the same master key: rollover-counter and
// replay state diverge between the two directions.
package srtp
