package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/auricvoice/auric/internal/observe"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or
// was behind an open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// FallbackGroup chains instances of one provider type. Entries are tried in
// registration order; each sits behind its own [Breaker] built from the
// group's shared config.
type FallbackGroup[T any] struct {
	cfg     Config
	kind    string
	metrics *observe.Metrics
	entries []entry[T]
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primaryName string, primary T, cfg Config) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg, kind: cfg.Kind, metrics: cfg.Metrics}
	if g.kind == "" {
		g.kind = "provider"
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback provider, tried after everything registered before
// it. Not safe to call once the group is in use.
func (g *FallbackGroup[T]) Add(name string, v T) {
	cfg := g.cfg
	cfg.Name = name
	g.entries = append(g.entries, entry[T]{name: name, value: v, breaker: NewBreaker(cfg)})
}

// Primary returns the first registered provider.
func (g *FallbackGroup[T]) Primary() T {
	return g.entries[0].value
}

// Do tries fn against each healthy entry until one succeeds. Entries behind
// an open breaker are skipped. The last error is wrapped in [ErrAllFailed]
// when nothing succeeds.
func (g *FallbackGroup[T]) Do(ctx context.Context, fn func(T) error) error {
	var lastErr error
	for i := range g.entries {
		e := &g.entries[i]
		err := e.breaker.Do(func() error { return fn(e.value) })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("provider skipped", "provider", e.name)
			continue
		}
		g.metrics.RecordProviderError(ctx, e.name, g.kind)
		slog.Warn("provider failed", "provider", e.name, "kind", g.kind, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Call tries fn against each healthy entry until one returns a result. A
// package-level function because Go methods cannot add type parameters.
func Call[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var out R
	err := g.Do(ctx, func(v T) error {
		var innerErr error
		out, innerErr = fn(v)
		return innerErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}
