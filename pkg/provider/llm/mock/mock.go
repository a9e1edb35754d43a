// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider to script chat replies without a live model:
//
//	p := &mock.Provider{Reply: "opening chrome now"}
//	resp, _ := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/auricvoice/auric/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider is a mock implementation of llm.Provider. The zero value returns
// an empty reply for every call.
type Provider struct {
	mu sync.Mutex

	// Reply is the content returned from Complete and streamed (as a single
	// chunk) from StreamCompletion, unless ReplyFunc is set.
	Reply string

	// ReplyFunc, if non-nil, computes the reply from the request. Takes
	// precedence over Reply.
	ReplyFunc func(req llm.CompletionRequest) string

	// Err, if non-nil, is returned from Complete and StreamCompletion.
	Err error

	// Requests records every CompletionRequest passed to Complete or
	// StreamCompletion, in order.
	Requests []llm.CompletionRequest
}

// Complete records the call and returns the scripted reply.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	reply, err := p.record(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: reply}, nil
}

// StreamCompletion records the call and emits the scripted reply as a single
// chunk followed by a "stop" chunk.
func (p *Provider) StreamCompletion(_ context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	reply, err := p.record(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, 2)
	if reply != "" {
		ch <- llm.Chunk{Text: reply}
	}
	ch <- llm.Chunk{FinishReason: "stop"}
	close(ch)
	return ch, nil
}

// CountTokens approximates one token per four characters.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
	}
	return total, nil
}

// LastRequest returns the most recent recorded request, or a zero value if
// none were made. Thread-safe.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return llm.CompletionRequest{}
	}
	return p.Requests[len(p.Requests)-1]
}

// Reset clears all recorded requests. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = nil
}

func (p *Provider) record(req llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return "", p.Err
	}
	if p.ReplyFunc != nil {
		return p.ReplyFunc(req), nil
	}
	return p.Reply, nil
}
