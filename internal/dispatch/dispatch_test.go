package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/auricvoice/auric/internal/catalog"
	"github.com/auricvoice/auric/internal/dispatch"
	"github.com/auricvoice/auric/internal/observe"
)

func quietRegistry() *dispatch.Registry {
	return dispatch.NewRegistry(dispatch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	noop := func(context.Context, *catalog.ActionSpec, dispatch.Payload) error { return nil }

	if err := r.Register("apps.open", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("apps.open", noop); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := r.Register("badmethod", noop); err == nil {
		t.Error("expected malformed method to fail")
	}
	if err := r.Register("apps.close", nil); err == nil {
		t.Error("expected nil handler to fail")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	r.Register("apps.open", func(context.Context, *catalog.ActionSpec, dispatch.Payload) error { return nil })

	if err := r.Validate("apps.open"); err != nil {
		t.Errorf("expected registered method to validate, got %v", err)
	}
	if err := r.Validate("apps.teleport"); !errors.Is(err, dispatch.ErrHandlerNotFound) {
		t.Errorf("expected ErrHandlerNotFound, got %v", err)
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	var got dispatch.Payload
	r.Register("apps.open", func(_ context.Context, _ *catalog.ActionSpec, p dispatch.Payload) error {
		got = p
		return nil
	})

	action := &catalog.ActionSpec{Trigger: "open", Method: "apps.open"}
	payload := dispatch.Payload{
		Text:             "open chrome",
		Transcription:    "open chrome please",
		TriggerSentences: []string{"open chrome"},
		AudioFile:        "/tmp/abc.wav",
	}
	if err := r.Dispatch(context.Background(), action, payload); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.Text != "open chrome" || got.AudioFile != "/tmp/abc.wav" {
		t.Errorf("handler received wrong payload: %+v", got)
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	action := &catalog.ActionSpec{Trigger: "open", Method: "apps.open"}

	err := r.Dispatch(context.Background(), action, dispatch.Payload{})
	if !errors.Is(err, dispatch.ErrHandlerNotFound) {
		t.Errorf("expected ErrHandlerNotFound, got %v", err)
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	boom := errors.New("boom")
	r.Register("apps.open", func(context.Context, *catalog.ActionSpec, dispatch.Payload) error {
		return boom
	})

	err := r.Dispatch(context.Background(), &catalog.ActionSpec{Trigger: "open", Method: "apps.open"}, dispatch.Payload{})
	var execErr *dispatch.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecutionError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected wrapped handler error")
	}
}

func TestDispatch_HandlerPanic(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	r.Register("apps.open", func(context.Context, *catalog.ActionSpec, dispatch.Payload) error {
		panic("handler exploded")
	})

	// Must not panic through Dispatch.
	err := r.Dispatch(context.Background(), &catalog.ActionSpec{Trigger: "open", Method: "apps.open"}, dispatch.Payload{})
	var execErr *dispatch.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecutionError from panic, got %v", err)
	}
}

func TestMethods(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	noop := func(context.Context, *catalog.ActionSpec, dispatch.Payload) error { return nil }
	r.Register("chat.converse", noop)
	r.Register("apps.open", noop)

	got := r.Methods()
	if len(got) != 2 || got[0] != "apps.open" || got[1] != "chat.converse" {
		t.Errorf("expected sorted methods, got %v", got)
	}
}

func TestDispatch_RecordsDuration(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	r := dispatch.NewRegistry(
		dispatch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dispatch.WithMetrics(met),
	)
	r.Register("apps.open", func(context.Context, *catalog.ActionSpec, dispatch.Payload) error { return nil })
	r.Register("apps.close", func(context.Context, *catalog.ActionSpec, dispatch.Payload) error {
		return errors.New("boom")
	})

	ctx := context.Background()
	r.Dispatch(ctx, &catalog.ActionSpec{Trigger: "open", Method: "apps.open"}, dispatch.Payload{})
	r.Dispatch(ctx, &catalog.ActionSpec{Trigger: "close", Method: "apps.close"}, dispatch.Payload{})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	counts := make(map[string]uint64) // "method/status" -> histogram count
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "auric.dispatch.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("dispatch duration is %T, want Histogram[float64]", m.Data)
			}
			for _, dp := range hist.DataPoints {
				method, _ := dp.Attributes.Value(attribute.Key("method"))
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				counts[method.AsString()+"/"+status.AsString()] += dp.Count
			}
		}
	}
	if counts["apps.open/ok"] != 1 {
		t.Errorf("apps.open/ok count = %d, want 1", counts["apps.open/ok"])
	}
	if counts["apps.close/error"] != 1 {
		t.Errorf("apps.close/error count = %d, want 1", counts["apps.close/error"])
	}
}
