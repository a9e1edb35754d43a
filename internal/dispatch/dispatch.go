// Package dispatch resolves a matched action's method reference to a
// registered handler and invokes it with a structured payload.
//
// Handlers are registered once at startup under "<module>.<function>" keys;
// the catalog loader validates every action's method against the registry so
// a bad reference fails at load time instead of at first trigger. A handler
// failure — error or panic — is contained and logged, never propagated to
// the listening loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/auricvoice/auric/internal/catalog"
	"github.com/auricvoice/auric/internal/observe"
)

// ErrHandlerNotFound marks a method reference with no registered handler.
var ErrHandlerNotFound = errors.New("dispatch: no handler registered")

// ExecutionError wraps a failure raised by a handler during dispatch.
type ExecutionError struct {
	Method string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("dispatch: handler %q failed: %v", e.Method, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Payload carries everything a handler needs about one resolved utterance.
type Payload struct {
	// Text is the refined instruction, or the apology substitute when
	// refinement failed and the action requested speech.
	Text string

	// Transcription is the raw offline transcription, when one was made.
	Transcription string

	// TriggerSentences are the live recognizer fragments accumulated while
	// the action was active.
	TriggerSentences []string

	// AudioFile is the path of the recording artifact, when one exists. The
	// dispatcher's caller deletes it after the handler returns.
	AudioFile string
}

// Handler executes one action. Errors are contained by the registry.
type Handler func(ctx context.Context, action *catalog.ActionSpec, payload Payload) error

// Option is a functional option for configuring a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry maps "<module>.<function>" references to handlers. Safe for
// concurrent use; registration normally finishes before dispatching begins.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *slog.Logger
	metrics  *observe.Metrics
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register binds method to h. The method must be of the form
// "<module>.<function>" and not already registered.
func (r *Registry) Register(method string, h Handler) error {
	mod, fn, ok := strings.Cut(method, ".")
	if !ok || mod == "" || fn == "" {
		return fmt.Errorf("dispatch: method %q is not of the form <module>.<function>", method)
	}
	if h == nil {
		return fmt.Errorf("dispatch: nil handler for %q", method)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[method]; dup {
		return fmt.Errorf("dispatch: handler %q already registered", method)
	}
	r.handlers[method] = h
	return nil
}

// Validate reports whether method has a registered handler. It satisfies
// catalog.MethodValidator.
func (r *Registry) Validate(method string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.handlers[method]; !ok {
		return fmt.Errorf("%w for %q", ErrHandlerNotFound, method)
	}
	return nil
}

// Methods returns all registered method references, sorted.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Dispatch resolves and invokes the handler for action.Method. All failure
// modes — unknown method, handler error, handler panic — are logged and
// returned, never propagated as panics; a failed dispatch leaves the caller
// free to return to idle listening.
func (r *Registry) Dispatch(ctx context.Context, action *catalog.ActionSpec, payload Payload) error {
	r.mu.RLock()
	h, ok := r.handlers[action.Method]
	r.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("%w for %q", ErrHandlerNotFound, action.Method)
		r.log.Error("dispatch skipped", "trigger", action.Trigger, "method", action.Method, "error", err)
		return err
	}

	ctx, span := observe.StartSpan(ctx, "dispatch "+action.Method)
	defer span.End()
	log := r.log
	if id := observe.CorrelationID(ctx); id != "" {
		log = log.With("trace_id", id)
	}

	start := time.Now()
	err := r.invoke(ctx, h, action, payload)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		r.metrics.RecordDispatch(ctx, action.Method, "error", elapsed)
		log.Error("action failed", "trigger", action.Trigger, "method", action.Method, "error", err)
		return &ExecutionError{Method: action.Method, Err: err}
	}

	r.metrics.RecordDispatch(ctx, action.Method, "ok", elapsed)
	log.Debug("action completed", "trigger", action.Trigger, "method", action.Method)
	return nil
}

// invoke runs the handler with panic containment.
func (r *Registry) invoke(ctx context.Context, h Handler, action *catalog.ActionSpec, payload Payload) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return h(ctx, action, payload)
}
