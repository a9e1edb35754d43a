// Package match resolves recognized speech against the trigger catalog.
//
// Matching runs in two stages. The exact fast path compares the input (and
// its first token) verbatim against every trigger and variant,
// case-insensitive, and wins with score 1.0 without touching the embedding
// backend. The scored path blends three signals per phrase:
//
//	score = 0.5*semantic + 0.3*fuzzyRatio + 0.2*tokenSortRatio
//
// where semantic is the cosine similarity of sentence embeddings, fuzzyRatio
// absorbs ASR phonetic errors, and tokenSortRatio absorbs word reordering.
// The best phrase wins if its score clears the threshold; otherwise the
// result is the zero MatchResult — no match is a value, not an error.
package match

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/auricvoice/auric/internal/catalog"
	"github.com/auricvoice/auric/pkg/provider/embeddings"
)

const (
	// DefaultActionThreshold gates full-catalog action matching.
	DefaultActionThreshold = 0.5

	// DefaultPhraseThreshold gates end-word matching; higher than the action
	// threshold because a false positive here truncates user speech.
	DefaultPhraseThreshold = 0.8

	// DefaultInterruptThreshold gates stop-speaking matching while playback
	// is active; looser so the user can reliably interrupt.
	DefaultInterruptThreshold = 0.6
)

const (
	semanticWeight  = 0.5
	fuzzyWeight     = 0.3
	tokenSortWeight = 0.2
)

// MatchResult is the outcome of one matching call. The zero value means no
// match.
type MatchResult struct {
	// Phrase is the trigger or variant that won.
	Phrase string

	// Action is the owning action.
	Action *catalog.ActionSpec

	// Score is the confidence in [0, 1]. Exact matches score 1.0.
	Score float64
}

// Matched reports whether an action was selected.
func (r MatchResult) Matched() bool { return r.Action != nil }

// Option is a functional option for configuring a Matcher.
type Option func(*Matcher)

// WithThreshold overrides the action-matching threshold.
// Default: DefaultActionThreshold.
func WithThreshold(t float64) Option {
	return func(m *Matcher) { m.threshold = t }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.log = l }
}

// Matcher scores recognized speech against catalog phrases. Safe for
// concurrent use.
type Matcher struct {
	embedder  embeddings.Provider
	threshold float64
	log       *slog.Logger

	mu    sync.RWMutex
	cache map[string][]float32
}

// New returns a Matcher backed by the given embedding provider.
func New(embedder embeddings.Provider, opts ...Option) *Matcher {
	m := &Matcher{
		embedder:  embedder,
		threshold: DefaultActionThreshold,
		log:       slog.Default(),
		cache:     make(map[string][]float32),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Prime embeds all given phrases in one batch and fills the cache, so the
// first utterance after startup does not pay per-phrase embedding latency.
func (m *Matcher) Prime(ctx context.Context, phrases []string) error {
	missing := make([]string, 0, len(phrases))
	m.mu.RLock()
	for _, p := range phrases {
		if _, ok := m.cache[cacheKey(p)]; !ok {
			missing = append(missing, p)
		}
	}
	m.mu.RUnlock()
	if len(missing) == 0 {
		return nil
	}

	vecs, err := m.embedder.EmbedBatch(ctx, missing)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for i, p := range missing {
		if i < len(vecs) {
			m.cache[cacheKey(p)] = vecs[i]
		}
	}
	m.mu.Unlock()
	return nil
}

// Seed inserts a precomputed embedding for phrase, bypassing the embedding
// backend. Used to warm the cache from a persistent phrase index.
func (m *Matcher) Seed(phrase string, vec []float32) {
	m.mu.Lock()
	m.cache[cacheKey(phrase)] = vec
	m.mu.Unlock()
}

// Cached returns the cached embedding for phrase, if one exists. The
// returned slice must not be mutated.
func (m *Matcher) Cached(phrase string) ([]float32, bool) {
	m.mu.RLock()
	vec, ok := m.cache[cacheKey(phrase)]
	m.mu.RUnlock()
	return vec, ok
}

// Match resolves input against every trigger and variant in cat.
//
// The embedding backend is consulted only on the scored path; if it fails,
// matching degrades to the lexical signals alone rather than erroring, so a
// model outage never stops exact and near-exact commands from working.
func (m *Matcher) Match(ctx context.Context, input string, cat *catalog.Catalog) MatchResult {
	phrases := cat.AllTriggerPhrases()
	if len(phrases) == 0 {
		return MatchResult{}
	}

	norm := strings.ToLower(strings.TrimSpace(input))
	if norm == "" {
		return MatchResult{}
	}
	firstToken, _, _ := strings.Cut(norm, " ")

	// Exact fast path: full text or first token, case-insensitive. Never
	// overridden by the scored path.
	for i := range phrases {
		p := strings.ToLower(strings.TrimSpace(phrases[i].Phrase))
		if p == norm || p == firstToken {
			return MatchResult{Phrase: phrases[i].Phrase, Action: phrases[i].Action, Score: 1.0}
		}
	}

	inputVec := m.embedInput(ctx, norm)

	var best MatchResult
	for i := range phrases {
		score := m.blendScore(ctx, norm, inputVec, phrases[i].Phrase)
		if score > best.Score {
			best = MatchResult{Phrase: phrases[i].Phrase, Action: phrases[i].Action, Score: score}
		}
	}

	if best.Score < m.threshold {
		return MatchResult{}
	}
	return best
}

// MatchPhrases checks speech against a short phrase list (end words or
// stop-speaking words). Exact containment wins with score 1.0; otherwise the
// best blended score must clear threshold.
func (m *Matcher) MatchPhrases(ctx context.Context, speech string, words []string, threshold float64) (bool, float64) {
	norm := strings.ToLower(strings.TrimSpace(speech))
	if norm == "" || len(words) == 0 {
		return false, 0
	}

	for _, w := range words {
		p := strings.ToLower(strings.TrimSpace(w))
		if p == "" {
			continue
		}
		if p == norm || strings.Contains(norm, p) {
			return true, 1.0
		}
	}

	inputVec := m.embedInput(ctx, norm)

	var best float64
	for _, w := range words {
		if score := m.blendScore(ctx, norm, inputVec, w); score > best {
			best = score
		}
	}
	return best >= threshold, best
}

// embedInput returns the input embedding, or nil when the backend fails (the
// semantic term then contributes zero).
func (m *Matcher) embedInput(ctx context.Context, norm string) []float32 {
	vec, err := m.embedder.Embed(ctx, norm)
	if err != nil {
		m.log.Warn("embedding backend unavailable, matching on lexical signals only", "error", err)
		return nil
	}
	return vec
}

// blendScore computes the weighted score of input against one phrase.
func (m *Matcher) blendScore(ctx context.Context, input string, inputVec []float32, phrase string) float64 {
	var semantic float64
	if inputVec != nil {
		if phraseVec := m.phraseVector(ctx, phrase); phraseVec != nil {
			semantic = embeddings.CosineSimilarity(inputVec, phraseVec)
			if semantic < 0 {
				semantic = 0
			}
		}
	}
	return semanticWeight*semantic +
		fuzzyWeight*FuzzyRatio(input, phrase) +
		tokenSortWeight*TokenSortRatio(input, phrase)
}

// phraseVector returns the cached embedding for phrase, embedding on demand.
func (m *Matcher) phraseVector(ctx context.Context, phrase string) []float32 {
	key := cacheKey(phrase)

	m.mu.RLock()
	vec, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return vec
	}

	vec, err := m.embedder.Embed(ctx, phrase)
	if err != nil {
		m.log.Warn("embed catalog phrase", "phrase", phrase, "error", err)
		return nil
	}
	m.mu.Lock()
	m.cache[key] = vec
	m.mu.Unlock()
	return vec
}

func cacheKey(phrase string) string {
	return strings.ToLower(strings.TrimSpace(phrase))
}
