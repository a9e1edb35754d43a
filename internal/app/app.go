// Package app wires all assistant subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the listening and dialogue loops, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithSourceFactory,
// WithHistoryStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/auricvoice/auric/internal/actions"
	"github.com/auricvoice/auric/internal/catalog"
	"github.com/auricvoice/auric/internal/config"
	"github.com/auricvoice/auric/internal/dialogue"
	"github.com/auricvoice/auric/internal/dispatch"
	"github.com/auricvoice/auric/internal/health"
	"github.com/auricvoice/auric/internal/history"
	"github.com/auricvoice/auric/internal/listen"
	"github.com/auricvoice/auric/internal/match"
	"github.com/auricvoice/auric/internal/match/pgindex"
	"github.com/auricvoice/auric/internal/observe"
	"github.com/auricvoice/auric/internal/recording"
	"github.com/auricvoice/auric/internal/voice"
	"github.com/auricvoice/auric/pkg/audio"
	"github.com/auricvoice/auric/pkg/provider/embeddings"
	"github.com/auricvoice/auric/pkg/provider/llm"
	"github.com/auricvoice/auric/pkg/provider/stt"
	"github.com/auricvoice/auric/pkg/provider/transcribe"
	"github.com/auricvoice/auric/pkg/provider/tts"
)

// httpShutdownTimeout bounds the metrics server drain during shutdown.
const httpShutdownTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	Transcribe transcribe.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	catalog  *catalog.Catalog
	matcher  *match.Matcher
	registry *dispatch.Registry
	handlers *actions.Set
	machine  *dialogue.Machine
	listener *listen.Listener
	voice    *voice.Manager
	chats    *history.Store
	checks   *health.Handler

	// Injection points for tests and platform surfaces.
	mic       audio.SourceFactory
	voiceSink voice.Sink
	launcher  actions.AppLauncher
	typist    actions.TypingSink

	// exit is closed when the machine sees an exit phrase.
	exit     chan struct{}
	exitOnce sync.Once

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles
// and the platform-specific surfaces.
type Option func(*App)

// WithSourceFactory injects the microphone factory used for both the
// continuous stream and command recordings.
func WithSourceFactory(f audio.SourceFactory) Option {
	return func(a *App) { a.mic = f }
}

// WithVoiceSink injects a playback sink instead of the system speaker.
func WithVoiceSink(s voice.Sink) Option {
	return func(a *App) { a.voiceSink = s }
}

// WithLauncher injects the application launcher behind the app-open action.
func WithLauncher(l actions.AppLauncher) Option {
	return func(a *App) { a.launcher = l }
}

// WithTypist injects the dictation output sink.
func WithTypist(t actions.TypingSink) Option {
	return func(a *App) { a.typist = t }
}

// WithHistoryStore injects a chat record store instead of opening one from
// the config DSN.
func WithHistoryStore(s *history.Store) Option {
	return func(a *App) { a.chats = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: history store connection,
// handler registration, catalog load and method validation, matcher priming,
// and dialogue machine assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		exit:      make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.mic == nil {
		a.mic = audio.OpenMicrophone
	}

	// ── 1. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Speech output ─────────────────────────────────────────────────
	a.initVoice()

	// ── 3. Handlers + catalog ────────────────────────────────────────────
	if err := a.initCatalog(); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 4. Matcher ───────────────────────────────────────────────────────
	a.initMatcher(ctx)

	// ── 5. Dialogue machine ──────────────────────────────────────────────
	a.initMachine()

	// ── 6. Continuous listener ───────────────────────────────────────────
	if providers.STT != nil {
		listenOpts := []listen.Option{listen.WithLanguage(cfg.Assistant.Language)}
		if cfg.Audio.ListenSampleRate > 0 {
			listenOpts = append(listenOpts, listen.WithSampleRate(cfg.Audio.ListenSampleRate))
		}
		if cfg.Audio.FrameSize > 0 {
			listenOpts = append(listenOpts, listen.WithFrameSize(cfg.Audio.FrameSize))
		}
		if cfg.Audio.NoiseGate > 0 {
			listenOpts = append(listenOpts, listen.WithNoiseGate(cfg.Audio.NoiseGate))
		}
		a.listener = listen.New(providers.STT, a.mic, a.machine.Recognized, listenOpts...)
	} else {
		slog.Warn("no streaming recognizer configured; running deaf")
	}

	// ── 7. Health checks ─────────────────────────────────────────────────
	a.checks = health.New()
	if a.chats != nil {
		a.checks.AddCheck("history", a.chats.Ping)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory connects the PostgreSQL chat store when a DSN is configured.
// No DSN means conversations stay in memory only.
func (a *App) initHistory(ctx context.Context) error {
	if a.chats != nil {
		return nil // injected
	}
	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		return nil
	}

	store, err := history.Open(ctx, dsn)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return err
	}
	a.chats = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initVoice builds the speech output manager when a TTS provider exists. The
// notify callbacks reach the machine through the App so wiring order does not
// matter.
func (a *App) initVoice() {
	if a.providers.TTS == nil {
		return
	}
	voiceOpts := []voice.Option{
		voice.WithVoice(tts.VoiceProfile{ID: a.cfg.Providers.TTS.Voice}),
		voice.WithNotify(
			func() {
				if a.machine != nil {
					a.machine.SpeechStarted()
				}
			},
			func() {
				if a.machine != nil {
					a.machine.SpeechEnded()
				}
			},
		),
	}
	if a.voiceSink != nil {
		voiceOpts = append(voiceOpts, voice.WithSink(a.voiceSink))
	}
	a.voice = voice.New(a.providers.TTS, voiceOpts...)
}

// initCatalog registers the built-in handlers, loads the actions document,
// and validates every action's method reference against the registry. A bad
// document degrades to an empty catalog so the assistant keeps running.
func (a *App) initCatalog() error {
	a.registry = dispatch.NewRegistry()

	cat, err := catalog.Load(a.cfg.Assistant.ActionsFile)
	if err != nil {
		slog.Warn("actions document rejected; no actions available", "err", err)
	}

	setOpts := []actions.Option{
		actions.WithModel(a.providers.LLM),
		actions.WithHistory(a.chats),
	}
	if a.voice != nil {
		setOpts = append(setOpts, actions.WithSpeaker(a.voice))
	}
	if a.launcher != nil {
		setOpts = append(setOpts, actions.WithLauncher(a.launcher))
	}
	if a.typist != nil {
		setOpts = append(setOpts, actions.WithTypist(a.typist))
	}
	if a.cfg.Assistant.SystemPrompt != "" {
		setOpts = append(setOpts, actions.WithSystemPrompt(a.cfg.Assistant.SystemPrompt))
	}
	a.handlers = actions.New(cat, setOpts...)
	if err := a.handlers.Register(a.registry); err != nil {
		return err
	}

	// Method validation runs after registration so a bad reference fails
	// here instead of at first trigger.
	var methodErrs []error
	for _, spec := range cat.Actions() {
		if err := a.registry.Validate(spec.Method); err != nil {
			methodErrs = append(methodErrs, fmt.Errorf("action %q: %w", spec.Trigger, err))
		}
	}
	if err := errors.Join(methodErrs...); err != nil {
		slog.Warn("actions document references unknown handlers; no actions available", "err", err)
		cat = catalog.Empty()
	}

	a.catalog = cat
	return nil
}

// initMatcher builds the trigger matcher and primes the phrase vector cache.
// When the chat store shares a database, persisted phrase embeddings warm the
// cache first so an unchanged catalog never re-embeds. Priming failures
// degrade to lexical scoring, never block startup.
func (a *App) initMatcher(ctx context.Context) {
	matchOpts := []match.Option{}
	if a.cfg.Assistant.ActionThreshold > 0 {
		matchOpts = append(matchOpts, match.WithThreshold(a.cfg.Assistant.ActionThreshold))
	}
	a.matcher = match.New(a.providers.Embeddings, matchOpts...)

	var phrases []string
	for _, tp := range a.catalog.AllTriggerPhrases() {
		phrases = append(phrases, tp.Phrase)
	}
	if len(phrases) == 0 {
		return
	}

	var index *pgindex.Index
	if a.providers.Embeddings != nil && a.chats.Pool() != nil {
		index = a.warmFromIndex(ctx, phrases)
	}

	if err := a.matcher.Prime(ctx, phrases); err != nil {
		slog.Warn("phrase vector priming failed; matching degrades to lexical scoring", "err", err)
		return
	}

	if index != nil {
		a.persistPhrases(ctx, index, phrases)
	}
}

// warmFromIndex seeds the matcher cache with embeddings persisted by earlier
// runs. Returns the index for the follow-up upsert, or nil when the schema
// cannot be prepared.
func (a *App) warmFromIndex(ctx context.Context, phrases []string) *pgindex.Index {
	emb := a.providers.Embeddings
	index := pgindex.New(a.chats.Pool())
	if err := index.EnsureSchema(ctx, emb.Dimensions()); err != nil {
		slog.Warn("phrase index unavailable; embedding full catalog", "err", err)
		return nil
	}

	entries, err := index.LoadAll(ctx, emb.ModelID())
	if err != nil {
		slog.Warn("phrase index load failed; embedding full catalog", "err", err)
		return index
	}

	wanted := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		wanted[p] = true
	}
	seeded := 0
	for _, e := range entries {
		if wanted[e.Phrase] {
			a.matcher.Seed(e.Phrase, e.Embedding)
			seeded++
		}
	}
	if seeded > 0 {
		slog.Info("matcher cache warmed from phrase index", "phrases", seeded, "model", emb.ModelID())
	}
	return index
}

// persistPhrases upserts the primed catalog embeddings so the next start can
// skip the embedding backend entirely.
func (a *App) persistPhrases(ctx context.Context, index *pgindex.Index, phrases []string) {
	entries := make([]pgindex.Entry, 0, len(phrases))
	for _, p := range phrases {
		if vec, ok := a.matcher.Cached(p); ok {
			entries = append(entries, pgindex.Entry{Phrase: p, Embedding: vec})
		}
	}
	if len(entries) == 0 {
		return
	}
	if err := index.Upsert(ctx, a.providers.Embeddings.ModelID(), entries); err != nil {
		slog.Warn("phrase index upsert failed", "err", err)
	}
}

// initMachine assembles the dialogue state machine over the wired parts.
func (a *App) initMachine() {
	recordRate := a.cfg.Audio.RecordSampleRate
	record := func() (dialogue.Recording, error) {
		recOpts := []recording.Option{recording.WithArtifactDir(a.cfg.Audio.ArtifactDir)}
		if recordRate > 0 {
			recOpts = append(recOpts, recording.WithSampleRate(recordRate))
		}
		return recording.Start(a.mic, recOpts...)
	}

	machineOpts := []dialogue.Option{
		dialogue.WithExitFunc(a.requestExit),
	}
	if a.cfg.Assistant.PhraseThreshold > 0 {
		machineOpts = append(machineOpts, dialogue.WithPhraseThreshold(a.cfg.Assistant.PhraseThreshold))
	}
	if a.cfg.Assistant.InterruptThreshold > 0 {
		machineOpts = append(machineOpts, dialogue.WithInterruptThreshold(a.cfg.Assistant.InterruptThreshold))
	}

	var speaker dialogue.Speaker
	if a.voice != nil {
		speaker = a.voice
	}
	a.machine = dialogue.NewMachine(a.catalog, a.matcher, a.registry, record,
		a.providers.Transcribe, speaker, machineOpts...)
}

// requestExit stops Run after an exit phrase. Safe to call more than once.
func (a *App) requestExit() {
	a.exitOnce.Do(func() { close(a.exit) })
}

// Machine exposes the dialogue machine, mainly for tests and the CLI.
func (a *App) Machine() *dialogue.Machine { return a.machine }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the listening loop, the dialogue loop, and the metrics server,
// then blocks until ctx is cancelled or an exit phrase is spoken. The
// returned error is context.Canceled on a clean stop.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-a.exit:
			slog.Info("exit phrase spoken, stopping")
			cancel()
		}
		return ctx.Err()
	})

	g.Go(func() error { return a.machine.Run(ctx) })

	if a.listener != nil {
		g.Go(func() error { return a.listener.Run(ctx) })
	}

	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		srv := a.metricsServer(addr)
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			drainCtx, drainCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer drainCancel()
			return srv.Shutdown(drainCtx)
		})
	}

	slog.Info("assistant running", "actions", a.catalog.Len())
	return g.Wait()
}

// metricsServer builds the HTTP server exposing /metrics, /healthz and
// /readyz, instrumented with the request middleware.
func (a *App) metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	a.checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Cut playback first so the speaker releases cleanly.
		if a.voice != nil {
			a.voice.Interrupt()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
