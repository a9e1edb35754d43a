// Package mock provides a test double for the transcribe.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/auricvoice/auric/pkg/provider/transcribe"
)

var _ transcribe.Provider = (*Provider)(nil)

// Call records a single invocation of TranscribeFile.
type Call struct {
	Path string
	Task transcribe.Task
}

// Provider is a mock implementation of transcribe.Provider. The zero value
// returns an empty Result for every call.
type Provider struct {
	mu sync.Mutex

	// Result is returned by TranscribeFile when ResultFor has no entry.
	Result transcribe.Result

	// ResultFor maps an audio file path to its canned result.
	ResultFor map[string]transcribe.Result

	// Err, if non-nil, is returned from every call.
	Err error

	// Delay, if non-zero, makes the mock block until the delay elapses or
	// ctx is cancelled — used to exercise transcription timeout handling.
	Delay func(ctx context.Context) error

	// Calls records every invocation in order.
	Calls []Call
}

// TranscribeFile records the call and returns the configured result.
func (p *Provider) TranscribeFile(ctx context.Context, path string, task transcribe.Task) (transcribe.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Path: path, Task: task})
	delay := p.Delay
	p.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return transcribe.Result{}, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return transcribe.Result{}, p.Err
	}
	if r, ok := p.ResultFor[path]; ok {
		return r, nil
	}
	return p.Result, nil
}
