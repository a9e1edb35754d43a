package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/auricvoice/auric/internal/config"
)

const validYAML = `
assistant:
  actions_file: actions.yaml
  log_level: debug
  language: en-US
  action_threshold: 0.5
  phrase_threshold: 0.8
  interrupt_threshold: 0.6
audio:
  listen_sample_rate: 16000
  record_sample_rate: 44100
  frame_size: 1024
  noise_gate: 0.02
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  stt:
    name: deepgram
    api_key: dg-test
  transcribe:
    name: whisper-native
    model: ggml-base.en.bin
  tts:
    name: coqui
    base_url: http://localhost:5002
    voice: p225
  embeddings:
    name: ollama
    model: nomic-embed-text
history:
  postgres_dsn: postgres://auric@localhost/auric
metrics:
  listen_addr: ":9090"
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Assistant.ActionsFile != "actions.yaml" {
		t.Errorf("actions_file = %q", cfg.Assistant.ActionsFile)
	}
	if cfg.Assistant.ActionThreshold != 0.5 || cfg.Assistant.InterruptThreshold != 0.6 {
		t.Errorf("thresholds = %+v", cfg.Assistant)
	}
	if cfg.Providers.STT.Name != "deepgram" || cfg.Providers.TTS.Voice != "p225" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Audio.RecordSampleRate != 44100 {
		t.Errorf("record_sample_rate = %d", cfg.Audio.RecordSampleRate)
	}
	if cfg.Audio.NoiseGate != 0.02 {
		t.Errorf("noise_gate = %g", cfg.Audio.NoiseGate)
	}
	if cfg.Metrics.ListenAddr != ":9090" {
		t.Errorf("metrics.listen_addr = %q", cfg.Metrics.ListenAddr)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
assistant:
  actions_file: actions.yaml
  wake_word: computer
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "wake_word") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_MissingActionsFile(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`audio: {}`))
	if err == nil {
		t.Fatal("expected error for missing actions_file, got nil")
	}
	if !strings.Contains(err.Error(), "actions_file") {
		t.Errorf("error should mention actions_file, got: %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
assistant:
  actions_file: actions.yaml
  log_level: loud
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_ThresholdOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
assistant:
  actions_file: actions.yaml
  action_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range threshold, got nil")
	}
	if !strings.Contains(err.Error(), "action_threshold") {
		t.Errorf("error should mention action_threshold, got: %v", err)
	}
}

func TestValidate_NegativeSampleRate(t *testing.T) {
	t.Parallel()
	yaml := `
assistant:
  actions_file: actions.yaml
audio:
  listen_sample_rate: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative sample rate, got nil")
	}
}

func TestValidate_NoiseGateOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
assistant:
  actions_file: actions.yaml
audio:
  noise_gate: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range noise gate, got nil")
	}
	if !strings.Contains(err.Error(), "noise_gate") {
		t.Errorf("error should mention noise_gate, got: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "auric.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.PostgresDSN == "" {
		t.Error("history DSN not loaded")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist, got: %v", err)
	}
}
