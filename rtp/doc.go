// Package rtp implements the RTP/RTCP wire protocol for the govoice
// engine (RFC 3550).
//
// The codec is explicit byte-level encode/decode: every header field is
// written and read with shifts and masks in network byte order, so wire
// correctness never depends on struct layout or platform endianness.
// Parsing operates on untrusted bytes and rejects anything truncated or
// malformed with ErrInvalidPacket; a malformed packet is dropped, never
// fatal.
//
// A Session carries the per-direction state: send-side sequence/timestamp
// counters and the receive-side source validation, loss, reordering and
// jitter statistics from RFC 3550 appendix A.1 and §6.4.1. RTCP sender
// and receiver reports, BYE, and RTT estimation build on the same state.
package rtp
