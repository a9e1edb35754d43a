// Package actions holds the built-in handlers behind the configured voice
// actions: launching applications, dictation, chatting through an LLM, and
// stopping playback.
//
// Handlers depend on narrow interfaces (TypingSink, AppLauncher, Speaker) so
// the platform-specific surfaces stay out of this package. A Set with a
// missing dependency still registers every handler; the affected handler
// reports the missing piece at dispatch time.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/auricvoice/auric/internal/catalog"
	"github.com/auricvoice/auric/internal/dispatch"
	"github.com/auricvoice/auric/internal/history"
	"github.com/auricvoice/auric/internal/match"
	"github.com/auricvoice/auric/internal/refine"
	"github.com/auricvoice/auric/pkg/provider/llm"
)

// defaultHistoryLimit bounds the chat context at twenty exchanges.
const defaultHistoryLimit = 40

// defaultSystemPrompt frames the chat action's replies for speech output.
const defaultSystemPrompt = "You are a helpful voice assistant. Answer briefly " +
	"and conversationally; your replies may be read aloud."

// appNameThreshold is the fuzzy floor for resolving a spoken application name
// against the configured shortcuts.
const appNameThreshold = 0.75

// TypingSink receives dictated text. The GUI automation behind it lives
// outside this package.
type TypingSink interface {
	Type(ctx context.Context, text string) error
}

// AppLauncher opens or focuses an application by its shortcut name.
type AppLauncher interface {
	Open(ctx context.Context, name string) error
}

// Speaker plays a synthesized reply and can cut playback short.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Interrupt()
}

// Option is a functional option for configuring a Set.
type Option func(*Set)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) { s.log = l }
}

// WithLauncher provides the application launcher behind apps.open.
func WithLauncher(l AppLauncher) Option {
	return func(s *Set) { s.launcher = l }
}

// WithTypist provides the dictation output sink.
func WithTypist(t TypingSink) Option {
	return func(s *Set) { s.typist = t }
}

// WithSpeaker provides the speech output used for spoken replies.
func WithSpeaker(sp Speaker) Option {
	return func(s *Set) { s.speaker = sp }
}

// WithModel provides the LLM behind the chat handlers.
func WithModel(p llm.Provider) Option {
	return func(s *Set) { s.model = p }
}

// WithHistory provides the persistent chat record store. A nil store is
// valid; conversation context then lives only in memory.
func WithHistory(h *history.Store) Option {
	return func(s *Set) { s.store = h }
}

// WithSystemPrompt overrides the chat system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(s *Set) { s.systemPrompt = prompt }
}

// WithHistoryLimit caps the number of messages kept as chat context.
func WithHistoryLimit(n int) Option {
	return func(s *Set) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// Set is the wired collection of built-in handlers. Safe for concurrent use.
type Set struct {
	cat      *catalog.Catalog
	launcher AppLauncher
	typist   TypingSink
	speaker  Speaker
	model    llm.Provider
	store    *history.Store
	log      *slog.Logger

	systemPrompt string
	historyLimit int

	mu       sync.Mutex
	messages []llm.Message
	lastID   *int64
}

// New builds a handler set over the loaded catalog.
func New(cat *catalog.Catalog, opts ...Option) *Set {
	s := &Set{
		cat:          cat,
		log:          slog.Default(),
		systemPrompt: defaultSystemPrompt,
		historyLimit: defaultHistoryLimit,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register binds every built-in handler on the registry.
func (s *Set) Register(reg *dispatch.Registry) error {
	return errors.Join(
		reg.Register("apps.open", s.OpenApp),
		reg.Register("transcribe.listen", s.Listen),
		reg.Register("chat.converse", s.Converse),
		reg.Register("sound.stop", s.StopSound),
	)
}

// OpenApp resolves the spoken application name against the configured
// shortcuts and launches it. The params key "app" pins the target directly.
func (s *Set) OpenApp(ctx context.Context, action *catalog.ActionSpec, payload dispatch.Payload) error {
	if s.launcher == nil {
		return errors.New("actions: no application launcher configured")
	}

	name := paramString(action, "app")
	if name == "" {
		name = s.resolveAppName(payload.Text)
	}
	if name == "" {
		return fmt.Errorf("actions: no configured application matches %q", payload.Text)
	}

	if err := s.launcher.Open(ctx, name); err != nil {
		return fmt.Errorf("actions: open %q: %w", name, err)
	}
	s.log.Info("application opened", "app", name)
	return nil
}

// Listen routes a completed capture by the action's method param: dictate
// and translate type the text, speak echoes it through TTS, and anything
// else sends it to the chat model.
func (s *Set) Listen(ctx context.Context, action *catalog.ActionSpec, payload dispatch.Payload) error {
	switch paramString(action, "method") {
	case "dictate", "translate":
		if s.typist == nil {
			return errors.New("actions: no typing sink configured")
		}
		if err := s.typist.Type(ctx, payload.Text); err != nil {
			return fmt.Errorf("actions: dictate: %w", err)
		}
		return nil
	case "speak":
		if s.speaker == nil {
			return errors.New("actions: no speaker configured")
		}
		if err := s.speaker.Speak(ctx, payload.Text); err != nil {
			return fmt.Errorf("actions: speak back: %w", err)
		}
		return nil
	default:
		return s.chatTurn(ctx, payload.Text, wantsSpeech(action))
	}
}

// Converse runs one chat exchange with the model.
func (s *Set) Converse(ctx context.Context, action *catalog.ActionSpec, payload dispatch.Payload) error {
	return s.chatTurn(ctx, payload.Text, wantsSpeech(action))
}

// StopSound cuts current playback.
func (s *Set) StopSound(context.Context, *catalog.ActionSpec, dispatch.Payload) error {
	if s.speaker != nil {
		s.speaker.Interrupt()
	}
	return nil
}

// ResetConversation drops the in-memory chat context. The next exchange
// starts a fresh thread.
func (s *Set) ResetConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.lastID = nil
}

// chatTurn sends text to the model inside the running conversation, persists
// both sides, and optionally speaks the cleaned reply.
func (s *Set) chatTurn(ctx context.Context, text string, speak bool) error {
	if s.model == nil {
		return errors.New("actions: no language model configured")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("actions: empty chat prompt")
	}

	s.mu.Lock()
	// Clone so the request snapshot never shares a backing array with
	// s.messages once the lock is released.
	msgs := append(slices.Clone(trimHistory(s.messages, s.historyLimit-1)), llm.Message{Role: "user", Content: text})
	parentID := s.lastID
	s.mu.Unlock()

	resp, err := s.model.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: s.systemPrompt,
	})
	if err != nil {
		return fmt.Errorf("actions: chat completion: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)

	lastID := s.persistTurn(ctx, parentID, text, reply)

	s.mu.Lock()
	s.messages = trimHistory(append(msgs, llm.Message{Role: "assistant", Content: reply}), s.historyLimit)
	s.lastID = lastID
	s.mu.Unlock()

	if speak && s.speaker != nil {
		if err := s.speaker.Speak(ctx, refine.CleanMarkdown(reply)); err != nil {
			return fmt.Errorf("actions: speak reply: %w", err)
		}
	}
	return nil
}

// persistTurn stores both sides of an exchange, threading them under the
// previous message. Storage failures are logged, never fatal to the turn.
func (s *Set) persistTurn(ctx context.Context, parentID *int64, prompt, reply string) *int64 {
	user, err := s.store.Create(ctx, history.Chat{ParentID: parentID, Role: "user", Content: prompt})
	if err != nil {
		s.log.Warn("chat history write failed", "error", err)
		return parentID
	}
	userID := user.ID
	var userParent *int64
	if userID != 0 {
		userParent = &userID
	}
	assistant, err := s.store.Create(ctx, history.Chat{ParentID: userParent, Role: "assistant", Content: reply})
	if err != nil {
		s.log.Warn("chat history write failed", "error", err)
		return userParent
	}
	if assistant.ID == 0 {
		return nil
	}
	id := assistant.ID
	return &id
}

// resolveAppName finds the configured shortcut best evidenced by the spoken
// text: an exact substring wins, then the closest fuzzy token match.
func (s *Set) resolveAppName(text string) string {
	lower := strings.ToLower(text)
	tokens := strings.Fields(lower)

	var (
		best      string
		bestScore float64
	)
	for _, name := range s.cat.ShortcutNames() {
		candidate := strings.ToLower(name)
		if strings.Contains(lower, candidate) {
			return name
		}
		for _, tok := range tokens {
			if score := match.WordSimilarity(tok, candidate); score > bestScore {
				best, bestScore = name, score
			}
		}
	}
	if bestScore >= appNameThreshold {
		return best
	}
	return ""
}

// trimHistory keeps the most recent limit messages.
func trimHistory(msgs []llm.Message, limit int) []llm.Message {
	if limit <= 0 || len(msgs) <= limit {
		return msgs
	}
	return msgs[len(msgs)-limit:]
}

func paramString(action *catalog.ActionSpec, key string) string {
	if action == nil {
		return ""
	}
	v, _ := action.Params[key].(string)
	return strings.TrimSpace(v)
}

func wantsSpeech(action *catalog.ActionSpec) bool {
	if action == nil {
		return false
	}
	v, _ := action.Params["speak"].(bool)
	return v
}
