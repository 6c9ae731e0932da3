// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram or a
// local whisper.cpp server) and exposes a uniform streaming interface. The
// central abstraction is SessionHandle: once opened, a session accepts raw PCM
// windows from a capture relay and emits two streams of Transcript values:
// low-latency partials for live captions and authoritative finals for the
// meeting transcript.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by SessionHandle.SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// ErrNotSupported is returned by providers that lack an optional capability,
// such as mid-session keyword updates.
var ErrNotSupported = errors.New("stt: not supported")

// StreamConfig is the audio format and recognition hints of a new session.
type StreamConfig struct {
	// SampleRate in Hz. The capture relay always opens sessions at the
	// configured STT rate, 16000 by default.
	SampleRate int

	// Channels is 1 for capture audio.
	Channels int

	// Language is a BCP-47 tag ("en", "de-DE"). Empty asks the backend to
	// detect it, where it can.
	Language string

	Keywords []KeywordBoost
}

// SessionHandle is one open transcription stream. Close must be called once
// the capture connection is done with it; methods are safe for concurrent
// use.
type SessionHandle interface {
	// SendAudio hands the backend one chunk of 16-bit little-endian mono PCM
	// and takes ownership of it. After Close it returns an error wrapping
	// [ErrSessionClosed].
	SendAudio(chunk []byte) error

	// Partials carries interim results for live captions. They are never
	// stored. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals carries settled results, the ones written to the meeting
	// transcript. Closed when the session ends.
	Finals() <-chan Transcript

	// SetKeywords swaps the boost list mid-stream, or returns an error
	// wrapping [ErrNotSupported].
	SetKeywords(keywords []KeywordBoost) error

	// Close flushes buffered audio, waits for the last results, and closes
	// both channels. Further calls return nil.
	Close() error
}

// Provider opens transcription streams. One provider serves every capture
// connection, so it must be safe for concurrent use.
type Provider interface {
	// StartStream opens a session ready for audio. It fails when the backend
	// is unreachable, rejects the credentials or config, or ctx is done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
