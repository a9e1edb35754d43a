package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "mistral", "groq", "anyllm"},
	"stt":        {"deepgram"},
	"transcribe": {"whisper-native"},
	"tts":        {"coqui"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Assistant.ActionsFile == "" {
		errs = append(errs, errors.New("assistant.actions_file is required"))
	}
	if cfg.Assistant.LogLevel != "" && !cfg.Assistant.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("assistant.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Assistant.LogLevel))
	}
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"assistant.action_threshold", cfg.Assistant.ActionThreshold},
		{"assistant.phrase_threshold", cfg.Assistant.PhraseThreshold},
		{"assistant.interrupt_threshold", cfg.Assistant.InterruptThreshold},
	} {
		if t.value < 0 || t.value > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", t.name, t.value))
		}
	}

	if cfg.Audio.ListenSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.listen_sample_rate %d must not be negative", cfg.Audio.ListenSampleRate))
	}
	if cfg.Audio.RecordSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.record_sample_rate %d must not be negative", cfg.Audio.RecordSampleRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must not be negative", cfg.Audio.FrameSize))
	}
	if cfg.Audio.NoiseGate < 0 || cfg.Audio.NoiseGate > 1 {
		errs = append(errs, fmt.Errorf("audio.noise_gate %.2f is out of range [0, 1]", cfg.Audio.NoiseGate))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderEntry("llm", &cfg.Providers.LLM)
	validateProviderEntry("stt", &cfg.Providers.STT)
	validateProviderEntry("transcribe", &cfg.Providers.Transcribe)
	validateProviderEntry("tts", &cfg.Providers.TTS)
	validateProviderEntry("embeddings", &cfg.Providers.Embeddings)

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no streaming recognizer configured; the assistant will not hear anything")
	}
	if cfg.Providers.Transcribe.Name == "" {
		slog.Warn("no offline transcriber configured; free-form captures will rely on the live stream only")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("no embeddings provider configured; matching degrades to lexical scoring")
	}
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; conversations will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderEntry warns about unknown provider names, following the
// entry's fallback chain.
func validateProviderEntry(kind string, entry *ProviderEntry) {
	for e := entry; e != nil; e = e.Fallback {
		validateProviderName(kind, e.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
