// Package govoice is a real-time two-party voice transport engine.
//
// The pipeline connects an audio device to an application-supplied
// transport. On the capture side each frame runs through optional echo
// cancellation and denoising, an encoder, RTP packetization, and SRTP
// protection before being handed to the encoded callback. On the receive
// side the application pushes packets into ReceivePacket; frames flow
// through SRTP unprotection, RTP validation, an adaptive jitter buffer,
// and decode or packet-loss concealment into the device's playback
// callback. Playback never stalls on the network: every frame period the
// device gets a fully written buffer, real audio or concealment.
//
// The engine moves media only. Signaling, key negotiation, and the
// network socket belong to the application; SRTP keys arrive
// pre-negotiated through SetSendKey and SetRecvKey.
//
// Subpackages: rtp (packet codec, reception statistics, RTCP), srtp
// (per-direction protection), jitter (reorder buffer and concealment),
// audio (ring buffer, codecs, DSP and device contracts).
package govoice
