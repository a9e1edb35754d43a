package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auricvoice/auric/internal/resilience"
)

var errBackend = errors.New("backend down")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{Name: "test", FailureLimit: 3})
	fail := func() error { return errBackend }

	for i := 0; i < 3; i++ {
		if err := b.Do(fail); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: got %v, want backend error", i, err)
		}
	}
	if got := b.State(); got != resilience.Open {
		t.Fatalf("state = %v, want open", got)
	}
	if err := b.Do(fail); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("open breaker returned %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{FailureLimit: 2})

	b.Do(func() error { return errBackend })
	b.Do(func() error { return nil })
	b.Do(func() error { return errBackend })

	if got := b.State(); got != resilience.Closed {
		t.Errorf("state = %v, want closed after interleaved success", got)
	}
}

func TestBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{
		FailureLimit: 1,
		Cooldown:     10 * time.Millisecond,
		ProbeLimit:   1,
	})

	b.Do(func() error { return errBackend })
	if got := b.State(); got != resilience.Open {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != resilience.HalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", got)
	}

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if got := b.State(); got != resilience.Closed {
		t.Errorf("state = %v, want closed after successful probe", got)
	}
}

func TestBreaker_ReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{
		FailureLimit: 1,
		Cooldown:     10 * time.Millisecond,
		ProbeLimit:   2,
	})

	b.Do(func() error { return errBackend })
	time.Sleep(20 * time.Millisecond)

	if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe call: %v", err)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("got %v, want ErrOpen after failed probe", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{FailureLimit: 1})
	b.Do(func() error { return errBackend })
	b.Reset()

	if got := b.State(); got != resilience.Closed {
		t.Fatalf("state = %v, want closed after reset", got)
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("call after reset: %v", err)
	}
}

func TestFallbackGroup_PrefersPrimary(t *testing.T) {
	t.Parallel()

	g := resilience.NewFallbackGroup("primary", "a", resilience.Config{})
	g.Add("secondary", "b")

	got, err := resilience.Call(context.Background(), g, func(v string) (string, error) { return v, nil })
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "a" {
		t.Errorf("got %q, want primary result", got)
	}
}

func TestFallbackGroup_FailsOver(t *testing.T) {
	t.Parallel()

	g := resilience.NewFallbackGroup("primary", "a", resilience.Config{})
	g.Add("secondary", "b")

	got, err := resilience.Call(context.Background(), g, func(v string) (string, error) {
		if v == "a" {
			return "", errBackend
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "b" {
		t.Errorf("got %q, want fallback result", got)
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	t.Parallel()

	g := resilience.NewFallbackGroup("primary", "a", resilience.Config{})
	g.Add("secondary", "b")

	_, err := resilience.Call(context.Background(), g, func(string) (string, error) { return "", errBackend })
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("got %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsTrippedPrimary(t *testing.T) {
	t.Parallel()

	g := resilience.NewFallbackGroup("primary", "a", resilience.Config{FailureLimit: 1})
	g.Add("secondary", "b")

	calls := map[string]int{}
	fn := func(v string) (string, error) {
		calls[v]++
		if v == "a" {
			return "", errBackend
		}
		return v, nil
	}

	resilience.Call(context.Background(), g, fn)
	resilience.Call(context.Background(), g, fn)

	if calls["a"] != 1 {
		t.Errorf("primary called %d times, want 1 (breaker open)", calls["a"])
	}
	if calls["b"] != 2 {
		t.Errorf("fallback called %d times, want 2", calls["b"])
	}
}
