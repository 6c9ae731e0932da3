// Package audio holds the frame type and sample-format helpers shared by the
// capture relay and the STT providers.
//
// All PCM handled here is 16-bit signed little-endian. Framing of float
// capture input into PCM windows lives in the pcm sub-package.
package audio

import "time"

// AudioFrame is a chunk of PCM audio moving from a capture session towards
// an STT provider.
type AudioFrame struct {
	// Data is 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT, 48000 for a default browser context).
	SampleRate int

	// Channels is always 1 for capture input.
	Channels int

	// Timestamp marks the start of this frame relative to the start of the stream.
	Timestamp time.Duration
}
