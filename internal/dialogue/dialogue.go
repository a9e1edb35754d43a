// Package dialogue tracks what the assistant is doing with the microphone and
// decides what each recognized utterance means.
//
// A single Machine owns the dialogue state. Recognized text flows in through
// typed events, transitions run under one mutex so no two interleave, and all
// collaborators — matcher, dispatcher, recorder, offline transcriber, speech
// output — are injected as narrow interfaces.
package dialogue

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/auricvoice/auric/internal/catalog"
	"github.com/auricvoice/auric/internal/dispatch"
	"github.com/auricvoice/auric/internal/match"
	"github.com/auricvoice/auric/internal/observe"
	"github.com/auricvoice/auric/internal/refine"
	"github.com/auricvoice/auric/pkg/provider/transcribe"
)

// Mode is the dialogue machine's current activity.
type Mode int

const (
	// IdleWaiting means no action is active; utterances are matched against
	// the catalog.
	IdleWaiting Mode = iota

	// ActiveAction means a matched action is being dispatched.
	ActiveAction

	// Transcribing means a free-form capture is in progress.
	Transcribing

	// Speaking means the assistant's own synthesized audio is playing.
	Speaking

	// Disabled means listening is paused; everything except the
	// start-listening phrase is ignored.
	Disabled
)

func (m Mode) String() string {
	switch m {
	case IdleWaiting:
		return "idle_waiting"
	case ActiveAction:
		return "active_action"
	case Transcribing:
		return "transcribing"
	case Speaking:
		return "speaking"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Apology is spoken in place of the refined prompt when a capture could not
// be understood and the action asked for speech output.
const Apology = "Sorry, I didn't catch that."

const (
	defaultTranscribeTimeout = 30 * time.Second
	defaultWatchdogInterval  = 500 * time.Millisecond
	eventBuffer              = 64
)

// Matcher resolves utterances against the catalog and short phrase lists.
// *match.Matcher satisfies it.
type Matcher interface {
	Match(ctx context.Context, input string, cat *catalog.Catalog) match.MatchResult
	MatchPhrases(ctx context.Context, speech string, words []string, threshold float64) (bool, float64)
}

// Dispatcher invokes action handlers. *dispatch.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, action *catalog.ActionSpec, payload dispatch.Payload) error
}

// Recording is one in-progress free-form capture. *recording.Session
// satisfies it.
type Recording interface {
	Stop(cut bool) (string, error)
}

// RecordFunc opens a fresh capture session.
type RecordFunc func() (Recording, error)

// Speaker is the playback side the machine consults for echo suppression and
// interrupts. May be nil when no speech output is configured.
type Speaker interface {
	// SelfIdentified reports whether audio currently playing is the
	// assistant's own voice.
	SelfIdentified() bool

	// Interrupt stops playback immediately.
	Interrupt()
}

// State is a point-in-time snapshot of the dialogue state.
type State struct {
	Mode           Mode
	CurrentAction  *catalog.ActionSpec
	PreviousAction *catalog.ActionSpec
	Buffer         []string
	LastSpeech     time.Time
}

// Option is a functional option for configuring a Machine.
type Option func(*Machine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithPhraseThreshold overrides the end-word and exit/pause phrase threshold.
// Default: match.DefaultPhraseThreshold.
func WithPhraseThreshold(t float64) Option {
	return func(m *Machine) { m.phraseThreshold = t }
}

// WithInterruptThreshold overrides the stop-speaking phrase threshold.
// Default: match.DefaultInterruptThreshold.
func WithInterruptThreshold(t float64) Option {
	return func(m *Machine) { m.interruptThreshold = t }
}

// WithTranscribeTimeout bounds one offline transcription call.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(m *Machine) { m.transcribeTimeout = d }
}

// WithWatchdogInterval sets how often Run checks the silence cutoff.
func WithWatchdogInterval(d time.Duration) Option {
	return func(m *Machine) { m.watchdogInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithExitFunc sets the callback invoked when an exit phrase is recognized.
func WithExitFunc(fn func()) Option {
	return func(m *Machine) { m.onExit = fn }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Machine) { m.metrics = met }
}

// Machine is the dialogue state machine. Construct with NewMachine; feed it
// recognized text via Recognized (with Run pumping events) or directly via
// HandleSpeech.
type Machine struct {
	cat         *catalog.Catalog
	matcher     Matcher
	disp        Dispatcher
	record      RecordFunc
	transcriber transcribe.Provider
	speaker     Speaker
	log         *slog.Logger
	metrics     *observe.Metrics

	phraseThreshold    float64
	interruptThreshold float64
	transcribeTimeout  time.Duration
	watchdogInterval   time.Duration
	now                func() time.Time
	onExit             func()

	fillers map[string]struct{}
	events  chan string

	mu         sync.Mutex
	mode       Mode
	resumeMode Mode
	current    *catalog.ActionSpec
	previous   *catalog.ActionSpec
	buffer     []string
	lastSpeech time.Time
	recording  Recording
}

// NewMachine wires a Machine. transcriber and speaker may be nil; recording
// then finalizes without an offline pass and echo suppression is skipped.
func NewMachine(cat *catalog.Catalog, matcher Matcher, disp Dispatcher, record RecordFunc, transcriber transcribe.Provider, speaker Speaker, opts ...Option) *Machine {
	m := &Machine{
		cat:                cat,
		matcher:            matcher,
		disp:               disp,
		record:             record,
		transcriber:        transcriber,
		speaker:            speaker,
		log:                slog.Default(),
		metrics:            observe.DefaultMetrics(),
		phraseThreshold:    match.DefaultPhraseThreshold,
		interruptThreshold: match.DefaultInterruptThreshold,
		transcribeTimeout:  defaultTranscribeTimeout,
		watchdogInterval:   defaultWatchdogInterval,
		now:                time.Now,
		fillers:            fillerSet(cat.FillerWords()),
		events:             make(chan string, eventBuffer),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Snapshot returns a copy of the current dialogue state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Mode:           m.mode,
		CurrentAction:  m.current,
		PreviousAction: m.previous,
		Buffer:         append([]string(nil), m.buffer...),
		LastSpeech:     m.lastSpeech,
	}
}

// Recognized enqueues one recognized-text event for Run. Events are dropped
// with a warning when the machine cannot keep up.
func (m *Machine) Recognized(text string) {
	select {
	case m.events <- text:
	default:
		m.log.Warn("speech event dropped", "text", text)
	}
}

// Run pumps queued events through the machine and drives the silence
// watchdog until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text := <-m.events:
			m.HandleSpeech(ctx, text)
		case <-ticker.C:
			m.CheckSilence(ctx)
		}
	}
}

// SpeechStarted tells the machine the assistant began playing audio. The
// prior mode is restored by SpeechEnded or by a barge-in.
func (m *Machine) SpeechStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == Speaking || m.mode == Disabled {
		return
	}
	m.resumeMode = m.mode
	m.mode = Speaking
}

// SpeechEnded tells the machine playback finished on its own.
func (m *Machine) SpeechEnded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != Speaking {
		return
	}
	m.mode = m.resumeMode
}

// HandleSpeech runs one transition for a recognized utterance. Filler words
// are stripped first; an utterance that is nothing but filler is treated as
// silence and discarded.
//
// Dispatch and capture finalization run after the state lock is released, so
// handlers may freely call back into the machine (SpeechStarted, Interrupt).
func (m *Machine) HandleSpeech(ctx context.Context, text string) {
	clean := stripTokens(text, m.fillers)
	if clean == "" {
		m.metrics.RecordUtterance(ctx, "filler")
		return
	}

	m.mu.Lock()
	follow := m.transitionLocked(ctx, clean)
	m.mu.Unlock()
	if follow != nil {
		follow()
	}
}

// transitionLocked applies one utterance to the state and returns the
// follow-up work (dispatch, finalize) to run outside the lock.
func (m *Machine) transitionLocked(ctx context.Context, clean string) func() {
	if m.mode == Disabled {
		if ok, _ := m.matchPhrasesLocked(ctx, clean, m.cat.StartListening(), m.phraseThreshold); ok {
			m.mode = IdleWaiting
			m.log.Info("listening resumed")
		}
		return nil
	}

	// The assistant's own playback must never trigger an exit, pause, or
	// barge-in, so echo suppression runs before any phrase check.
	if m.mode == Speaking && m.speaker != nil && m.speaker.SelfIdentified() {
		m.log.Debug("echo suppressed", "text", clean)
		m.metrics.RecordUtterance(ctx, "suppressed")
		return nil
	}

	if ok, _ := m.matchPhrasesLocked(ctx, clean, m.cat.ExitWords(), m.phraseThreshold); ok {
		m.log.Info("exit phrase recognized", "text", clean)
		m.cutRecordingLocked(ctx)
		m.mode = Disabled
		if m.onExit != nil {
			m.onExit()
		}
		return nil
	}

	if m.mode == IdleWaiting {
		if ok, _ := m.matchPhrasesLocked(ctx, clean, m.cat.StopListening(), m.phraseThreshold); ok {
			m.mode = Disabled
			m.log.Info("listening paused")
			return nil
		}
	}

	m.lastSpeech = m.now()

	switch m.mode {
	case Speaking:
		return m.handleSpeakingLocked(ctx, clean)
	case Transcribing:
		return m.handleTranscribingLocked(ctx, clean)
	case ActiveAction:
		// Speech arriving while a dispatch is in flight is buffered, not
		// dropped.
		m.buffer = append(m.buffer, clean)
		return nil
	default:
		return m.handleIdleLocked(ctx, clean)
	}
}

// CheckSilence force-stops a transcribing capture once the active action's
// silence timeout has elapsed without non-filler speech.
func (m *Machine) CheckSilence(ctx context.Context) {
	m.mu.Lock()
	var follow func()
	if m.mode == Transcribing && m.current != nil {
		if timeout, enabled := m.current.SilenceTimeout(); enabled && m.now().Sub(m.lastSpeech) >= timeout {
			m.log.Info("silence cutoff reached", "trigger", m.current.Trigger, "timeout", timeout)
			follow = m.finalizeLocked(ctx, "silence")
		}
	}
	m.mu.Unlock()
	if follow != nil {
		follow()
	}
}

// handleSpeakingLocked treats speech during playback as barge-in: playback is
// interrupted and the utterance is routed to the resumed mode. Echo of the
// assistant's own voice never reaches this point; transitionLocked suppresses
// it up front.
func (m *Machine) handleSpeakingLocked(ctx context.Context, clean string) func() {
	if m.speaker != nil {
		m.speaker.Interrupt()
	}
	m.mode = m.resumeMode
	m.log.Debug("barge-in", "text", clean)
	if m.mode == Transcribing {
		return m.handleTranscribingLocked(ctx, clean)
	}
	return m.handleIdleLocked(ctx, clean)
}

// handleTranscribingLocked routes an utterance arriving mid-capture: a
// stop-speaking phrase restarts the capture, an end word finalizes it, and
// anything else is buffered.
func (m *Machine) handleTranscribingLocked(ctx context.Context, clean string) func() {
	action := m.current

	if ok, score := m.matchPhrasesLocked(ctx, clean, action.StopSpeaking, m.interruptThreshold); ok {
		m.log.Info("capture restarted", "trigger", action.Trigger, "score", score)
		if m.speaker != nil {
			m.speaker.Interrupt()
		}
		m.cutRecordingLocked(ctx)
		m.buffer = nil
		m.startRecordingLocked(ctx)
		return nil
	}

	if ok, _ := m.matchPhrasesLocked(ctx, clean, action.EndWords(), m.phraseThreshold); ok {
		return m.finalizeLocked(ctx, "finalized")
	}

	m.buffer = append(m.buffer, clean)
	return nil
}

// handleIdleLocked matches an utterance against the catalog and either
// schedules an immediate dispatch or opens a capture.
func (m *Machine) handleIdleLocked(ctx context.Context, clean string) func() {
	start := time.Now()
	res := m.matcher.Match(ctx, clean, m.cat)
	m.metrics.MatchDuration.Record(ctx, time.Since(start).Seconds())
	if !res.Matched() {
		m.metrics.RecordUtterance(ctx, "unmatched")
		m.log.Debug("utterance dropped", "text", clean)
		return nil
	}
	m.metrics.RecordUtterance(ctx, "matched")
	action := res.Action

	if action.Transcribe {
		m.previous, m.current = m.current, action
		m.buffer = []string{clean}
		if !m.startRecordingLocked(ctx) {
			return nil
		}
		m.mode = Transcribing
		m.log.Info("transcription started", "trigger", action.Trigger, "score", res.Score)
		return nil
	}

	m.previous, m.current = m.current, action
	m.mode = ActiveAction
	payload := dispatch.Payload{
		Text:             clean,
		TriggerSentences: []string{clean},
	}
	return func() {
		// Dispatch errors are contained and logged by the registry; the
		// machine returns to idle either way.
		_ = m.disp.Dispatch(ctx, action, payload)
		m.mu.Lock()
		m.resetLocked()
		m.mu.Unlock()
	}
}

// finalizeLocked closes out a capture: the state moves to ActiveAction
// immediately and the returned follow-up runs the slow path — offline
// transcription, refinement, dispatch — outside the lock, then resets the
// machine to IdleWaiting.
func (m *Machine) finalizeLocked(ctx context.Context, result string) func() {
	action := m.current
	buffer := m.buffer
	rec := m.recording
	m.recording = nil
	m.buffer = nil
	m.mode = ActiveAction
	if rec != nil {
		m.metrics.ActiveCaptures.Add(ctx, -1)
	}
	m.metrics.RecordCapture(ctx, result)

	return func() {
		defer func() {
			m.mu.Lock()
			m.resetLocked()
			m.mu.Unlock()
		}()

		artifact := ""
		if rec != nil {
			var err error
			artifact, err = rec.Stop(false)
			if err != nil {
				m.log.Error("capture finalize failed", "trigger", action.Trigger, "error", err)
				return
			}
		}

		transcription := ""
		failed := false
		if artifact != "" && m.transcriber != nil {
			tctx, cancel := context.WithTimeout(ctx, m.transcribeTimeout)
			start := time.Now()
			res, err := m.transcriber.TranscribeFile(tctx, artifact, taskFor(action))
			m.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds())
			cancel()
			if err != nil {
				m.log.Error("offline transcription failed", "trigger", action.Trigger, "error", err)
				failed = true
			} else {
				transcription = res.Text
			}
		}

		text, ok := refine.Refine(action, buffer, transcription, action.EndWords())
		if failed {
			text, ok = "", false
		}
		if !ok {
			if !wantsSpeech(action) {
				m.log.Warn("utterance unrecognized", "trigger", action.Trigger)
				removeArtifact(artifact)
				return
			}
			text = Apology
		}

		_ = m.disp.Dispatch(ctx, action, dispatch.Payload{
			Text:             text,
			Transcription:    transcription,
			TriggerSentences: buffer,
			AudioFile:        artifact,
		})
		removeArtifact(artifact)
	}
}

// startRecordingLocked opens a fresh capture session. On failure the machine
// resets to idle and false is returned.
func (m *Machine) startRecordingLocked(ctx context.Context) bool {
	rec, err := m.record()
	if err != nil {
		m.log.Error("recording start failed", "error", err)
		m.resetLocked()
		return false
	}
	m.recording = rec
	m.metrics.ActiveCaptures.Add(ctx, 1)
	return true
}

// cutRecordingLocked discards any in-progress capture.
func (m *Machine) cutRecordingLocked(ctx context.Context) {
	if m.recording == nil {
		return
	}
	if _, err := m.recording.Stop(true); err != nil {
		m.log.Warn("capture cut failed", "error", err)
	}
	m.recording = nil
	m.metrics.ActiveCaptures.Add(ctx, -1)
	m.metrics.RecordCapture(ctx, "cut")
}

// resetLocked returns the machine to idle, remembering the finished action
// as the previous one.
func (m *Machine) resetLocked() {
	m.cutRecordingLocked(context.Background())
	if m.current != nil {
		m.previous = m.current
	}
	m.current = nil
	m.buffer = nil
	m.mode = IdleWaiting
}

// matchPhrasesLocked guards against empty phrase lists.
func (m *Machine) matchPhrasesLocked(ctx context.Context, speech string, words []string, threshold float64) (bool, float64) {
	if len(words) == 0 {
		return false, 0
	}
	return m.matcher.MatchPhrases(ctx, speech, words, threshold)
}

// wantsSpeech reports whether the action asked for spoken output.
func wantsSpeech(a *catalog.ActionSpec) bool {
	v, ok := a.Params["speak"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// taskFor picks the offline transcription mode from the action params.
func taskFor(a *catalog.ActionSpec) transcribe.Task {
	if v, ok := a.Params["method"]; ok {
		if s, _ := v.(string); s == string(transcribe.TaskTranslate) {
			return transcribe.TaskTranslate
		}
	}
	return transcribe.TaskTranscribe
}

func removeArtifact(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// StripFillers lowercases text, drops every whitespace token found in
// fillers, and rejoins with single spaces. Stripping an already-stripped
// string yields the same string.
func StripFillers(text string, fillers []string) string {
	return stripTokens(text, fillerSet(fillers))
}

func fillerSet(fillers []string) map[string]struct{} {
	set := make(map[string]struct{}, len(fillers))
	for _, f := range fillers {
		set[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}
	return set
}

func stripTokens(text string, fillers map[string]struct{}) string {
	tokens := strings.Fields(strings.ToLower(text))
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, drop := fillers[tok]; drop {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}
