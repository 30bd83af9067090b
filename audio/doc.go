// Package audio provides the audio-side building blocks for the govoice
// pipeline: the lock-free SPSC ring buffer bridging real-time device
// callbacks and processing logic, encoder/decoder contracts with PCM16,
// G.711 and Opus implementations, and the opaque DSP stage contracts
// (echo cancellation, noise suppression, gain) the pipeline drives.
//
// DSP algorithm internals are external collaborators: each stage consumes
// one frame of samples in place within a bounded amount of work and never
// blocks on I/O. The package only defines and enforces those contracts.
package audio
