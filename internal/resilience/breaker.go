// Package resilience protects the assistant's external speech and language
// backends from cascading failures.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open).
// [FallbackGroup] chains several instances of one provider type, each behind
// its own breaker, so an unhealthy primary is bypassed in favour of the next
// configured backend. Typed wrappers adapt the group back to the provider
// interfaces the rest of the assistant consumes.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/auricvoice/auric/internal/observe"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and its
// cooldown has not elapsed.
var ErrOpen = errors.New("resilience: breaker open")

// State is a breaker's operating mode.
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects every call with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a bounded number of probe calls through. Probes decide
	// whether the breaker closes again or re-opens.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero fields get defaults.
type Config struct {
	// Name labels the breaker in log output.
	Name string

	// Kind labels the provider type (stt, embeddings, tts) in failure
	// metrics emitted by a [FallbackGroup]. Breakers ignore it.
	Kind string

	// Metrics receives provider failure counts from a [FallbackGroup].
	// Nil means observe.DefaultMetrics(). Breakers ignore it.
	Metrics *observe.Metrics

	// FailureLimit is how many consecutive failures trip the breaker.
	// Default: 5.
	FailureLimit int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// ProbeLimit is how many half-open probes must succeed before the
	// breaker closes. Default: 3.
	ProbeLimit int
}

func (c Config) withDefaults() Config {
	if c.FailureLimit <= 0 {
		c.FailureLimit = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.ProbeLimit <= 0 {
		c.ProbeLimit = 3
	}
	return c
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	trippedAt  time.Time
	probes     int
	probeFails int
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: time.Now}
}

// Do runs fn if the breaker allows it, recording the outcome. While open it
// returns [ErrOpen] without calling fn.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()
	b.settle(probe, err)
	return err
}

// admit decides whether a call may proceed, transitioning open → half-open
// when the cooldown has elapsed. It reports whether the call is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.trippedAt) < b.cfg.Cooldown {
			return false, ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("breaker probing", "name", b.cfg.Name)
	case HalfOpen:
		if b.probes >= b.cfg.ProbeLimit {
			return false, ErrOpen
		}
	}

	if b.state == HalfOpen {
		b.probes++
		return true, nil
	}
	return false, nil
}

// settle records a call outcome.
func (b *Breaker) settle(probe bool, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if callErr == nil {
		if !probe {
			b.failures = 0
			return
		}
		if b.probes-b.probeFails >= b.cfg.ProbeLimit {
			b.state = Closed
			b.failures = 0
			slog.Info("breaker closed", "name", b.cfg.Name)
		}
		return
	}

	b.trippedAt = b.now()
	if probe {
		// One failed probe re-opens immediately.
		b.probeFails++
		b.state = Open
		b.failures = b.cfg.FailureLimit
		slog.Warn("breaker re-opened", "name", b.cfg.Name)
		return
	}

	b.failures++
	if b.state == Closed && b.failures >= b.cfg.FailureLimit {
		b.state = Open
		slog.Warn("breaker opened", "name", b.cfg.Name, "failures", b.failures)
	}
}

// State returns the breaker's current mode. An open breaker whose cooldown
// has elapsed reports [HalfOpen]; the transition itself happens on the next
// Do call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.trippedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
