// Package transcribe defines the Provider interface for offline (batch)
// speech transcription backends.
//
// Unlike the streaming recognizer that drives trigger matching, an offline
// transcriber receives a finished audio artifact — the WAV file written by a
// recording session — and returns the full text in one shot. The offline pass
// is slower but considerably more accurate than the streaming recognizer, so
// the prompt refiner reconciles the two rather than trusting either alone.
//
// Implementations must be safe for concurrent use.
package transcribe

import "context"

// Task selects the whisper-style processing mode for a transcription request.
type Task string

const (
	// TaskTranscribe transcribes the audio in its spoken language.
	TaskTranscribe Task = "transcribe"

	// TaskTranslate transcribes and translates the audio to English.
	TaskTranslate Task = "translate"
)

// IsValid reports whether t is a recognised task.
func (t Task) IsValid() bool {
	return t == TaskTranscribe || t == TaskTranslate
}

// Result is the outcome of a completed transcription.
type Result struct {
	// Text is the full transcribed (or translated) text, whitespace-trimmed.
	Text string

	// Language is the detected or forced source language code (e.g., "en").
	Language string
}

// Provider is the abstraction over any batch transcription backend.
//
// Implementations must respect ctx cancellation: long-running inference
// should be bounded by the caller via context.WithTimeout, and a cancelled
// context must surface as an error rather than a partial Result.
type Provider interface {
	// TranscribeFile runs the given task over the audio file at path and
	// returns the result. The file must be a mono or stereo PCM WAV; other
	// formats are rejected with an error. The provider never deletes the
	// file — artifact lifetime belongs to the caller.
	TranscribeFile(ctx context.Context, path string, task Task) (Result, error)
}
