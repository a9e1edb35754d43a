// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local Coqui TTS
// server) and returns a complete WAV-encoded utterance per call. The
// assistant speaks short confirmations and replies, so batch synthesis keeps
// the playback path simple: the voice output layer decodes the WAV and plays
// it through the default output device.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile describes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes.
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech using the given voice and returns the
	// complete WAV-encoded audio. An empty voice.ID selects the provider's
	// default voice where the backend supports one.
	//
	// Returns an error if the backend cannot be reached, rejects the voice,
	// or ctx is cancelled before synthesis completes.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
