// Package jitter reorders incoming voice frames for smooth playout and
// conceals the gaps the network leaves behind.
//
// Buffer accepts RTP payloads in arrival order and hands them back in
// sequence order at a steady frame cadence. Each Get either yields the
// expected frame or reports it lost; the playout cursor advances exactly
// one frame either way, so the output clock never stalls on the network.
// In adaptive mode the buffer tracks interarrival jitter, derives a
// percentile-based optimal delay, and walks its current delay toward it
// in small steps. It also publishes a playout-rate hint in [0.85, 1.15]
// that a time-stretching player can use to drain or refill the buffer
// without pitch artifacts.
//
// PLC synthesizes a replacement frame for each loss from the last good
// frame: silence, repetition, fade-out, or a cheap waveform interpolation.
// After too many consecutive losses it outputs silence until the next
// good frame arrives.
package jitter
