// Package mock provides a test double for the embeddings.Provider interface.
//
// Use Provider to return pre-canned embedding vectors without a live model.
// VectorFor lets a test assign a deterministic vector per input text so that
// matcher tests can construct exact cosine-similarity outcomes.
//
// Example:
//
//	p := &mock.Provider{
//	    VectorFor: map[string][]float32{
//	        "open chrome":  {1, 0, 0},
//	        "open browser": {0.9, 0.1, 0},
//	    },
//	    DimensionsValue: 3,
//	}
package mock

import (
	"context"
	"sync"

	"github.com/auricvoice/auric/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
// The zero value is usable; all fields are optional.
type Provider struct {
	mu sync.Mutex

	// VectorFor maps input text to the vector returned for it. Texts not in
	// the map get DefaultVector.
	VectorFor map[string][]float32

	// DefaultVector is returned for texts absent from VectorFor. If nil, a
	// zero vector of length DimensionsValue is returned.
	DefaultVector []float32

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID. Defaults to "mock-embed".
	ModelIDValue string

	// EmbedTexts records every text passed to Embed or EmbedBatch, in order.
	EmbedTexts []string
}

// Embed records the call and returns the configured vector for text.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedTexts = append(p.EmbedTexts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vectorLocked(text), nil
}

// EmbedBatch records the call and returns one configured vector per text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedTexts = append(p.EmbedTexts, texts...)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vectorLocked(t)
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	return p.DimensionsValue
}

// ModelID returns ModelIDValue, defaulting to "mock-embed".
func (p *Provider) ModelID() string {
	if p.ModelIDValue == "" {
		return "mock-embed"
	}
	return p.ModelIDValue
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedTexts = nil
}

// vectorLocked resolves the vector for text. Must be called with p.mu held.
func (p *Provider) vectorLocked(text string) []float32 {
	if v, ok := p.VectorFor[text]; ok {
		return v
	}
	if p.DefaultVector != nil {
		return p.DefaultVector
	}
	return make([]float32, p.DimensionsValue)
}
