package resilience

import (
	"context"

	"github.com/auricvoice/auric/pkg/provider/embeddings"
	"github.com/auricvoice/auric/pkg/provider/transcribe"
	"github.com/auricvoice/auric/pkg/provider/tts"
)

// EmbeddingsFallback implements [embeddings.Provider] with failover across
// several embedding backends. Dimensions and ModelID always come from the
// primary: mixing vector spaces would corrupt similarity scores, so
// fallbacks only make sense between deployments of the same model.
type EmbeddingsFallback struct {
	group *FallbackGroup[embeddings.Provider]
}

var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback creates a fallback with primary as the preferred
// backend.
func NewEmbeddingsFallback(name string, primary embeddings.Provider, cfg Config) *EmbeddingsFallback {
	if cfg.Kind == "" {
		cfg.Kind = "embeddings"
	}
	return &EmbeddingsFallback{group: NewFallbackGroup(name, primary, cfg)}
}

// AddFallback registers another deployment of the same embedding model.
func (f *EmbeddingsFallback) AddFallback(name string, p embeddings.Provider) {
	f.group.Add(name, p)
}

func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return Call(ctx, f.group, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

func (f *EmbeddingsFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return Call(ctx, f.group, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

func (f *EmbeddingsFallback) Dimensions() int { return f.group.Primary().Dimensions() }

func (f *EmbeddingsFallback) ModelID() string { return f.group.Primary().ModelID() }

// TranscribeFallback implements [transcribe.Provider] with failover across
// offline transcription backends.
type TranscribeFallback struct {
	group *FallbackGroup[transcribe.Provider]
}

var _ transcribe.Provider = (*TranscribeFallback)(nil)

// NewTranscribeFallback creates a fallback with primary as the preferred
// backend.
func NewTranscribeFallback(name string, primary transcribe.Provider, cfg Config) *TranscribeFallback {
	if cfg.Kind == "" {
		cfg.Kind = "transcribe"
	}
	return &TranscribeFallback{group: NewFallbackGroup(name, primary, cfg)}
}

// AddFallback registers an additional transcription backend.
func (f *TranscribeFallback) AddFallback(name string, p transcribe.Provider) {
	f.group.Add(name, p)
}

func (f *TranscribeFallback) TranscribeFile(ctx context.Context, path string, task transcribe.Task) (transcribe.Result, error) {
	return Call(ctx, f.group, func(p transcribe.Provider) (transcribe.Result, error) {
		return p.TranscribeFile(ctx, path, task)
	})
}

// TTSFallback implements [tts.Provider] with failover across speech
// synthesis backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a fallback with primary as the preferred backend.
func NewTTSFallback(name string, primary tts.Provider, cfg Config) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{group: NewFallbackGroup(name, primary, cfg)}
}

// AddFallback registers an additional synthesis backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.Add(name, p)
}

func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	return Call(ctx, f.group, func(p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return Call(ctx, f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
