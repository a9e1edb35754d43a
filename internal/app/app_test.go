package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/auricvoice/auric/internal/app"
	"github.com/auricvoice/auric/internal/config"
	"github.com/auricvoice/auric/pkg/audio"
	audiomock "github.com/auricvoice/auric/pkg/audio/mock"
	llmmock "github.com/auricvoice/auric/pkg/provider/llm/mock"
	sttmock "github.com/auricvoice/auric/pkg/provider/stt/mock"
	transcribemock "github.com/auricvoice/auric/pkg/provider/transcribe/mock"
	ttsmock "github.com/auricvoice/auric/pkg/provider/tts/mock"
)

const testActions = `
actions:
  - trigger: "open chrome"
    method: "apps.open"
  - trigger: "lets chat"
    method: "chat.converse"
    transcribe: true
exit_words:
  - "goodbye assistant"
shortcut_names:
  - "Chrome"
`

// testConfig writes an actions document and returns a config pointing at it.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actions.yaml")
	if err := os.WriteFile(path, []byte(testActions), 0o600); err != nil {
		t.Fatalf("write actions: %v", err)
	}
	return &config.Config{
		Assistant: config.AssistantConfig{
			ActionsFile: path,
			LogLevel:    config.LogInfo,
		},
		Audio: config.AudioConfig{ArtifactDir: t.TempDir()},
	}
}

// testProviders returns providers with mocks for every slot.
func testProviders() *app.Providers {
	return &app.Providers{
		LLM:        &llmmock.Provider{Reply: "hello"},
		STT:        &sttmock.Provider{},
		Transcribe: &transcribemock.Provider{},
		TTS:        &ttsmock.Provider{},
	}
}

// silentMic is a source factory whose sources block until closed.
func silentMic() audio.SourceFactory {
	return func(int, int) (audio.Source, error) {
		return audiomock.NewSource(), nil
	}
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(t), testProviders(),
		app.WithSourceFactory(silentMic()))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
	if application.Machine() == nil {
		t.Fatal("New() built no dialogue machine")
	}
}

func TestNew_BadActionsDocumentDegrades(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Assistant.ActionsFile = filepath.Join(t.TempDir(), "absent.yaml")

	application, err := app.New(context.Background(), cfg, testProviders(),
		app.WithSourceFactory(silentMic()))
	if err != nil {
		t.Fatalf("New() must degrade, got error: %v", err)
	}
	if application.Machine() == nil {
		t.Fatal("machine missing after degraded start")
	}
}

func TestNew_UnknownMethodDegrades(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	doc := `
actions:
  - trigger: "do the thing"
    method: "plugin.unknown"
`
	path := filepath.Join(t.TempDir(), "actions.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write actions: %v", err)
	}
	cfg.Assistant.ActionsFile = path

	application, err := app.New(context.Background(), cfg, testProviders(),
		app.WithSourceFactory(silentMic()))
	if err != nil {
		t.Fatalf("New() must degrade, got error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(t), testProviders(),
		app.WithSourceFactory(silentMic()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestRun_StopsOnExitPhrase(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(t), testProviders(),
		app.WithSourceFactory(silentMic()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	// Give the loops a moment, then speak the exit phrase.
	time.Sleep(50 * time.Millisecond)
	application.Machine().HandleSpeech(ctx, "goodbye assistant")

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after the exit phrase")
	}
}
