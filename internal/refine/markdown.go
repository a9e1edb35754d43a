package refine

import (
	"regexp"
	"strings"
)

// LLM replies arrive as markdown; speaking asterisks and backticks aloud is
// useless, so everything structural is flattened to plain sentences before
// synthesis.
var (
	fenceRe    = regexp.MustCompile("(?s)```.*?```")
	inlineRe   = regexp.MustCompile("`([^`]*)`")
	boldRe     = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	italicRe   = regexp.MustCompile(`\*([^*]+)\*|_([^_]+)_`)
	headingRe  = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletRe   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedRe = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	linkRe     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	blankRe    = regexp.MustCompile(`\n{2,}`)
)

// CleanMarkdown strips markdown structure from an LLM reply so it reads
// naturally when spoken: code fences are removed entirely, inline emphasis
// and links keep their text, list markers and headings are dropped.
func CleanMarkdown(s string) string {
	s = fenceRe.ReplaceAllString(s, "")
	s = inlineRe.ReplaceAllString(s, "$1")
	s = boldRe.ReplaceAllString(s, "$1$2")
	s = italicRe.ReplaceAllString(s, "$1$2")
	s = headingRe.ReplaceAllString(s, "")
	s = bulletRe.ReplaceAllString(s, "")
	s = numberedRe.ReplaceAllString(s, "")
	s = linkRe.ReplaceAllString(s, "$1")
	s = blankRe.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
