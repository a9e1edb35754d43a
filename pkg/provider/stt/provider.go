// Package stt defines the Provider interface for streaming speech-to-text
// backends.
//
// The streaming recognizer is the assistant's ears: it consumes the
// continuous low-rate microphone stream and emits recognized-text events that
// drive trigger matching and the dialogue state machine. The central
// abstraction is SessionHandle — once opened, a session accepts raw PCM audio
// chunks and emits two streams of Transcript values: low-latency partials and
// authoritative finals.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Transcript represents a speech-to-text result. Both partial (interim) and
// final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report confidence.
	Confidence float64
}

// StreamConfig describes the audio format for a new recognition session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The continuous listening
	// stream runs at 16000.
	SampleRate int

	// Channels is the number of audio channels; 1 (mono) for microphone input.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// Empty lets the backend auto-detect, if supported.
	Language string
}

// SessionHandle represents an open streaming recognition session.
//
// Callers must call Close when the session is no longer needed; failing to do
// so may leak goroutines and network connections inside the implementation.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw 16-bit little-endian PCM audio for
	// recognition. The chunk must match the StreamConfig agreed at open time.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of interim Transcript values,
	// suitable for UI feedback but not for trigger matching. Closed when the
	// session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel of committed Transcript values —
	// the recognized-text events fed to the dialogue state machine. Closed
	// when the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes pending audio, and releases all
	// resources. After Close returns, the Partials and Finals channels will
	// be closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
type Provider interface {
	// StartStream opens a new streaming recognition session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns the
	// handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
