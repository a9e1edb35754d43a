// Package catalog loads and validates the actions document: the static list
// of voice-triggered actions plus the global word lists (exit phrases,
// stop/start-listening phrases, filler words, application shortcuts).
//
// The catalog is read-only after load. A missing or malformed document
// degrades to an empty catalog with a ConfigError so the assistant keeps
// running with no actions available rather than crashing.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSilenceTimeout is the transcription silence cutoff used when an
// action enables silence handling without naming a timer.
const DefaultSilenceTimeout = 4 * time.Second

// ConfigError wraps any failure to load or validate the actions document.
// Callers receiving one should treat the catalog as empty and continue.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("catalog: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SilenceSpec controls the silence cutoff for a transcribing action.
//
// In YAML it accepts three forms:
//
//	silence: true               # enabled, default timer
//	silence: false              # disabled
//	silence: {timer: 6}         # enabled, 6 second timer
type SilenceSpec struct {
	// Enabled reports whether silence force-stops the transcription.
	Enabled bool

	// Timer is the cutoff duration. Zero means use DefaultSilenceTimeout.
	Timer time.Duration
}

var _ yaml.Unmarshaler = (*SilenceSpec)(nil)

// UnmarshalYAML implements yaml.Unmarshaler for the three accepted forms.
func (s *SilenceSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var enabled bool
		if err := value.Decode(&enabled); err != nil {
			return fmt.Errorf("silence must be a boolean or {timer: seconds}: %w", err)
		}
		s.Enabled = enabled
		s.Timer = 0
		return nil
	case yaml.MappingNode:
		var raw struct {
			Timer float64 `yaml:"timer"`
		}
		if err := value.Decode(&raw); err != nil {
			return fmt.Errorf("silence must be a boolean or {timer: seconds}: %w", err)
		}
		if raw.Timer < 0 {
			return fmt.Errorf("silence timer must not be negative, got %g", raw.Timer)
		}
		s.Enabled = true
		s.Timer = time.Duration(raw.Timer * float64(time.Second))
		return nil
	default:
		return errors.New("silence must be a boolean or {timer: seconds}")
	}
}

// EndSpec describes how a free-form capture terminates.
type EndSpec struct {
	// Words are phrases that end the capture when spoken.
	Words []string `yaml:"words"`

	// Silence controls the inactivity cutoff. Defaults to enabled with
	// DefaultSilenceTimeout when the action transcribes and End is present.
	Silence SilenceSpec `yaml:"silence"`

	// silenceSet records whether the silence key appeared in the document,
	// so an omitted key keeps the default while `silence: false` disables.
	silenceSet bool
}

// ActionSpec is one configured voice action. Immutable after load.
type ActionSpec struct {
	// Trigger is the canonical phrase. Non-empty, unique across the catalog.
	Trigger string `yaml:"trigger"`

	// TriggerVariants are alternate phrasings treated as equivalent.
	TriggerVariants []string `yaml:"trigger_variants"`

	// Method references the handler as "<module>.<function>".
	Method string `yaml:"method"`

	// Transcribe starts a recording session on match instead of immediate
	// dispatch.
	Transcribe bool `yaml:"transcribe"`

	// End describes how a transcribing capture terminates. Nil means no end
	// words and default silence handling.
	End *EndSpec `yaml:"end"`

	// StopSpeaking are phrases that interrupt playback while the assistant
	// is speaking.
	StopSpeaking []string `yaml:"stop_speaking"`

	// Params is free-form configuration passed through to the handler.
	Params map[string]any `yaml:"params"`
}

// EndWords returns the action's end-word list, or nil.
func (a *ActionSpec) EndWords() []string {
	if a.End == nil {
		return nil
	}
	return a.End.Words
}

// SilenceTimeout resolves the action's silence cutoff. The second return is
// false when silence handling is disabled for this action.
func (a *ActionSpec) SilenceTimeout() (time.Duration, bool) {
	if a.End == nil {
		return DefaultSilenceTimeout, true
	}
	if !a.End.Silence.Enabled {
		// An omitted silence key keeps the default; `silence: false` disables.
		if a.End.silenceSet {
			return 0, false
		}
		return DefaultSilenceTimeout, true
	}
	if a.End.Silence.Timer <= 0 {
		return DefaultSilenceTimeout, true
	}
	return a.End.Silence.Timer, true
}

type endSpecRaw struct {
	Words   []string  `yaml:"words"`
	Silence yaml.Node `yaml:"silence"`
}

var _ yaml.Unmarshaler = (*EndSpec)(nil)

// UnmarshalYAML decodes the end block, remembering whether silence was
// explicitly present.
func (e *EndSpec) UnmarshalYAML(value *yaml.Node) error {
	var raw endSpecRaw
	if err := value.Decode(&raw); err != nil {
		return err
	}
	e.Words = raw.Words
	if !raw.Silence.IsZero() {
		e.silenceSet = true
		return e.Silence.UnmarshalYAML(&raw.Silence)
	}
	return nil
}

// Document is the raw shape of the actions file.
type Document struct {
	Actions        []ActionSpec `yaml:"actions"`
	ExitWords      []string     `yaml:"exit_words"`
	StopListening  []string     `yaml:"stop_listening"`
	StartListening []string     `yaml:"start_listening"`
	FillerWords    []string     `yaml:"filler_words"`
	ShortcutNames  []string     `yaml:"shortcut_names"`
}

// TriggerPhrase pairs one matchable phrase with its owning action.
type TriggerPhrase struct {
	Phrase string
	Action *ActionSpec
}

// Catalog is the validated, immutable actions catalog.
type Catalog struct {
	doc     Document
	phrases []TriggerPhrase
}

// MethodValidator checks a "<module>.<function>" reference against the
// handler registry at load time.
type MethodValidator func(method string) error

// Option is a functional option for Load.
type Option func(*loadOptions)

type loadOptions struct {
	validateMethod MethodValidator
}

// WithMethodValidator makes Load reject the whole document when any action
// references an unknown handler, so a bad method string fails at startup
// rather than at first trigger.
func WithMethodValidator(v MethodValidator) Option {
	return func(o *loadOptions) {
		o.validateMethod = v
	}
}

// Empty returns a catalog with no actions and no word lists.
func Empty() *Catalog {
	return &Catalog{}
}

// Load reads and validates the actions document at path. On any failure it
// returns an empty catalog and a *ConfigError; the empty catalog is always
// usable.
func Load(path string, opts ...Option) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Empty(), &ConfigError{Err: fmt.Errorf("open %q: %w", path, err)}
	}
	defer f.Close()
	return LoadFromReader(f, opts...)
}

// LoadFromReader reads and validates an actions document from r.
func LoadFromReader(r io.Reader, opts ...Option) (*Catalog, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return Empty(), &ConfigError{Err: fmt.Errorf("decode actions document: %w", err)}
	}

	if err := validate(&doc, o.validateMethod); err != nil {
		return Empty(), &ConfigError{Err: err}
	}

	c := &Catalog{doc: doc}
	for i := range c.doc.Actions {
		a := &c.doc.Actions[i]
		c.phrases = append(c.phrases, TriggerPhrase{Phrase: a.Trigger, Action: a})
		for _, v := range a.TriggerVariants {
			c.phrases = append(c.phrases, TriggerPhrase{Phrase: v, Action: a})
		}
	}
	return c, nil
}

// validate checks every action and the cross-catalog uniqueness invariant.
// All problems are reported together via errors.Join.
func validate(doc *Document, validateMethod MethodValidator) error {
	var errs []error
	seen := make(map[string]string) // lowercased phrase -> owning trigger

	for i := range doc.Actions {
		a := &doc.Actions[i]

		if strings.TrimSpace(a.Trigger) == "" {
			errs = append(errs, fmt.Errorf("action %d: trigger must not be empty", i))
			continue
		}
		if err := validateMethodFormat(a.Method); err != nil {
			errs = append(errs, fmt.Errorf("action %q: %w", a.Trigger, err))
		} else if validateMethod != nil {
			if err := validateMethod(a.Method); err != nil {
				errs = append(errs, fmt.Errorf("action %q: method %q: %w", a.Trigger, a.Method, err))
			}
		}

		for _, phrase := range append([]string{a.Trigger}, a.TriggerVariants...) {
			key := strings.ToLower(strings.TrimSpace(phrase))
			if key == "" {
				errs = append(errs, fmt.Errorf("action %q: empty trigger variant", a.Trigger))
				continue
			}
			if owner, dup := seen[key]; dup {
				errs = append(errs, fmt.Errorf("duplicate trigger phrase %q (already owned by %q)", phrase, owner))
				continue
			}
			seen[key] = a.Trigger
		}
	}

	return errors.Join(errs...)
}

// validateMethodFormat checks the "<module>.<function>" shape.
func validateMethodFormat(method string) error {
	mod, fn, ok := strings.Cut(method, ".")
	if !ok || mod == "" || fn == "" {
		return fmt.Errorf("method %q is not of the form <module>.<function>", method)
	}
	return nil
}

// Actions returns the configured actions in document order. The returned
// slice must not be modified.
func (c *Catalog) Actions() []ActionSpec { return c.doc.Actions }

// AllTriggerPhrases flattens every trigger and variant with its owning
// action, in document order. The returned slice must not be modified.
func (c *Catalog) AllTriggerPhrases() []TriggerPhrase { return c.phrases }

// ExitWords returns the phrases that terminate the whole process.
func (c *Catalog) ExitWords() []string { return c.doc.ExitWords }

// StopListening returns the phrases that disable listening.
func (c *Catalog) StopListening() []string { return c.doc.StopListening }

// StartListening returns the phrases that re-enable listening.
func (c *Catalog) StartListening() []string { return c.doc.StartListening }

// FillerWords returns the tokens stripped from recognized text before any
// transition logic runs.
func (c *Catalog) FillerWords() []string { return c.doc.FillerWords }

// ShortcutNames returns the application names available to the app-launch
// action.
func (c *Catalog) ShortcutNames() []string { return c.doc.ShortcutNames }

// Len returns the number of configured actions.
func (c *Catalog) Len() int { return len(c.doc.Actions) }
