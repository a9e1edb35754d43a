// Package refine reconciles the live recognizer's trigger sentences with the
// offline transcription to produce the clean instruction text handed to
// dictation, the LLM, or TTS.
//
// The live partial results are usually cleaner for the leading trigger phrase
// while the offline pass is more accurate for the body of the utterance, so
// neither is trusted exclusively: sentences from the live stream are kept
// only when the offline transcription corroborates them, and the raw offline
// text is the fallback when nothing aligns.
package refine

import (
	"strings"

	"github.com/auricvoice/auric/internal/catalog"
	"github.com/auricvoice/auric/internal/match"
)

// wordAlignThreshold is the per-word similarity above which a live-stream
// word counts as corroborated by the offline transcription.
const wordAlignThreshold = 0.8

// Refine produces the instruction text for a completed capture. It returns
// ok=false when nothing usable remains — the caller substitutes an apology
// or stays silent, depending on the action.
//
// endWords truncate the result at the rightmost occurrence of the first list
// entry that appears; later entries are not consulted once one hits.
func Refine(action *catalog.ActionSpec, triggerSentences []string, finalTranscription string, endWords []string) (string, bool) {
	var (
		parts []string
		seen  = make(map[string]bool)
	)
	appendOnce := func(s string) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		parts = append(parts, strings.TrimSpace(s))
	}

	// Seed with the first live sentence when it carries the trigger phrase.
	if len(triggerSentences) > 0 && action != nil && startsWithTrigger(triggerSentences[0], action) {
		appendOnce(triggerSentences[0])
	}

	lowerFinal := strings.ToLower(finalTranscription)
	finalTokens := strings.Fields(lowerFinal)

	for _, sentence := range triggerSentences {
		s := strings.TrimSpace(sentence)
		if s == "" {
			continue
		}
		if strings.Contains(lowerFinal, strings.ToLower(s)) {
			appendOnce(s)
			continue
		}
		if mostWordsAlign(s, finalTokens) {
			appendOnce(s)
		}
	}

	if len(parts) == 0 {
		appendOnce(finalTranscription)
	}

	result := strings.Join(parts, " ")
	result = truncateAtEndWord(result, endWords)
	result = strings.TrimSpace(result)
	if result == "" {
		return "", false
	}
	return result, true
}

// startsWithTrigger reports whether sentence begins with the action's trigger
// or any variant, case-insensitive.
func startsWithTrigger(sentence string, action *catalog.ActionSpec) bool {
	s := strings.ToLower(strings.TrimSpace(sentence))
	for _, phrase := range append([]string{action.Trigger}, action.TriggerVariants...) {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// mostWordsAlign reports whether more than half of the sentence's words have
// a close counterpart among the transcription tokens.
func mostWordsAlign(sentence string, finalTokens []string) bool {
	words := strings.Fields(strings.ToLower(sentence))
	if len(words) == 0 || len(finalTokens) == 0 {
		return false
	}
	aligned := 0
	for _, w := range words {
		for _, ft := range finalTokens {
			if match.WordSimilarity(w, ft) > wordAlignThreshold {
				aligned++
				break
			}
		}
	}
	return aligned*2 > len(words)
}

// truncateAtEndWord cuts text before the rightmost occurrence of the first
// end word that appears at all.
func truncateAtEndWord(text string, endWords []string) string {
	lower := strings.ToLower(text)
	for _, w := range endWords {
		needle := strings.ToLower(strings.TrimSpace(w))
		if needle == "" {
			continue
		}
		if idx := strings.LastIndex(lower, needle); idx >= 0 {
			return text[:idx]
		}
	}
	return text
}
