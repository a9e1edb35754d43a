package resilience_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/auricvoice/auric/internal/observe"
	"github.com/auricvoice/auric/internal/resilience"
	"github.com/auricvoice/auric/pkg/provider/transcribe"
	transcribemock "github.com/auricvoice/auric/pkg/provider/transcribe/mock"
	"github.com/auricvoice/auric/pkg/provider/tts"
	ttsmock "github.com/auricvoice/auric/pkg/provider/tts/mock"
)

func TestTranscribeFallback(t *testing.T) {
	t.Parallel()

	primary := &transcribemock.Provider{Err: errors.New("model crashed")}
	backup := &transcribemock.Provider{Result: transcribe.Result{Text: "buy milk", Language: "en"}}

	f := resilience.NewTranscribeFallback("primary", primary, resilience.Config{})
	f.AddFallback("backup", backup)

	got, err := f.TranscribeFile(context.Background(), "/tmp/a.wav", transcribe.TaskTranscribe)
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}
	if got.Text != "buy milk" {
		t.Errorf("text = %q, want fallback result", got.Text)
	}
	if len(primary.Calls) != 1 || len(backup.Calls) != 1 {
		t.Errorf("calls: primary=%d backup=%d, want 1 each", len(primary.Calls), len(backup.Calls))
	}
}

func TestTTSFallback(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeErr: errors.New("server gone")}
	backup := &ttsmock.Provider{Audio: []byte("RIFFdata")}

	f := resilience.NewTTSFallback("primary", primary, resilience.Config{})
	f.AddFallback("backup", backup)

	audio, err := f.Synthesize(context.Background(), "hello", tts.VoiceProfile{ID: "v1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "RIFFdata" {
		t.Errorf("audio = %q, want fallback audio", audio)
	}
}

func TestTTSFallback_AllFailed(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeErr: errors.New("server gone")}
	f := resilience.NewTTSFallback("primary", primary, resilience.Config{})

	_, err := f.Synthesize(context.Background(), "hello", tts.VoiceProfile{})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("got %v, want ErrAllFailed", err)
	}
}

func TestFallback_CountsProviderErrors(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	primary := &ttsmock.Provider{SynthesizeErr: errors.New("server gone")}
	backup := &ttsmock.Provider{Audio: []byte("RIFFdata")}
	f := resilience.NewTTSFallback("coqui", primary, resilience.Config{Metrics: met})
	f.AddFallback("backup", backup)

	if _, err := f.Synthesize(context.Background(), "hello", tts.VoiceProfile{}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	counts := make(map[string]int64) // "provider/kind" -> count
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "auric.provider.errors" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("provider errors is %T, want Sum[int64]", m.Data)
			}
			for _, dp := range sum.DataPoints {
				provider, _ := dp.Attributes.Value(attribute.Key("provider"))
				kind, _ := dp.Attributes.Value(attribute.Key("kind"))
				counts[provider.AsString()+"/"+kind.AsString()] += dp.Value
			}
		}
	}
	if counts["coqui/tts"] != 1 {
		t.Errorf("coqui/tts errors = %d, want 1", counts["coqui/tts"])
	}
	if counts["backup/tts"] != 0 {
		t.Errorf("backup/tts errors = %d, want 0", counts["backup/tts"])
	}
}
