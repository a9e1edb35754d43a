// Package config provides the configuration schema, loader, and provider
// registry for the assistant.
package config

// LogLevel controls log verbosity for the assistant process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Assistant AssistantConfig `yaml:"assistant"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AssistantConfig holds the resolution pipeline settings.
type AssistantConfig struct {
	// ActionsFile is the path to the actions document (YAML).
	ActionsFile string `yaml:"actions_file"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Language is the BCP-47 recognition language tag. Empty lets the
	// streaming backend auto-detect.
	Language string `yaml:"language"`

	// ActionThreshold is the minimum blended score for an utterance to match
	// an action. Zero selects the built-in default.
	ActionThreshold float64 `yaml:"action_threshold"`

	// PhraseThreshold is the minimum score for end-word and exit-word
	// phrase checks. Zero selects the built-in default.
	PhraseThreshold float64 `yaml:"phrase_threshold"`

	// InterruptThreshold is the minimum score for stop-speaking phrase
	// checks. Zero selects the built-in default.
	InterruptThreshold float64 `yaml:"interrupt_threshold"`

	// SystemPrompt overrides the chat action's system prompt.
	SystemPrompt string `yaml:"system_prompt"`
}

// AudioConfig holds the capture settings for both microphone streams.
type AudioConfig struct {
	// ListenSampleRate is the continuous recognition stream rate in Hz.
	// Zero selects 16000.
	ListenSampleRate int `yaml:"listen_sample_rate"`

	// RecordSampleRate is the command recording stream rate in Hz. Zero
	// selects 44100.
	RecordSampleRate int `yaml:"record_sample_rate"`

	// FrameSize is the capture frame length in samples. Zero selects 1024.
	FrameSize int `yaml:"frame_size"`

	// NoiseGate is the RMS level below which continuous capture frames are
	// dropped before reaching the recognizer. Zero disables the gate.
	NoiseGate float64 `yaml:"noise_gate"`

	// ArtifactDir is where recording artifacts are written. Empty selects
	// the system temp directory.
	ArtifactDir string `yaml:"artifact_dir"`
}

// ProvidersConfig declares which provider implementation serves each pipeline
// stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	STT        ProviderEntry `yaml:"stt"`
	Transcribe ProviderEntry `yaml:"transcribe"`
	TTS        ProviderEntry `yaml:"tts"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field looks up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "deepgram", "coqui").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// "nova-2", "ggml-base.en.bin").
	Model string `yaml:"model"`

	// Voice is the provider-specific voice identifier, for TTS entries.
	Voice string `yaml:"voice"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallback, when set, names a second provider of the same kind tried
	// when this one's circuit breaker is open.
	Fallback *ProviderEntry `yaml:"fallback"`
}

// HistoryConfig holds settings for the persistent chat record store.
type HistoryConfig struct {
	// PostgresDSN is the PostgreSQL connection string. Empty disables
	// persistence; conversations then live only in memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// MetricsConfig holds settings for the metrics and health endpoint.
type MetricsConfig struct {
	// ListenAddr is the TCP address of the metrics HTTP server (e.g.,
	// ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`
}
