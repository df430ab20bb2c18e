package extract

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Heuristic confidence scoring for extracted text. Four signals, each
// normalized to [0,1], combined with fixed weights. The weights are
// tunable constants; only the output range and the direction (more
// corruption, lower score) are contractual.
const (
	weightLength = 0.25
	weightClean  = 0.30
	weightWords  = 0.30
	weightPunct  = 0.15

	// character count at which the length signal saturates
	lengthCap = 400.0

	minWordLen = 2
	maxWordLen = 15
	// plausible-word ratio band typical of clean prose
	wordRatioLow  = 0.70
	wordRatioHigh = 0.90
)

// Common OCR corruption patterns: repeated pipes, l/1 and o/0 confusion
// runs, long non-alphanumeric garbage runs.
var corruptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\|{2,}`),
	regexp.MustCompile(`[l1]{4,}`),
	regexp.MustCompile(`[oO0]{4,}`),
	regexp.MustCompile(`[^a-zA-Z0-9\s]{4,}`),
}

var (
	reSentenceEnd   = regexp.MustCompile(`[.!?]`)
	reSentenceStart = regexp.MustCompile(`(^|[.!?]\s+)[A-Z]`)
)

// Score computes a deterministic quality estimate in [0,1] for extracted
// text. Empty or whitespace-only input scores 0.
func Score(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0.0
	}

	score := weightLength*lengthSignal(trimmed) +
		weightClean*cleanSignal(trimmed) +
		weightWords*wordSignal(trimmed) +
		weightPunct*punctSignal(trimmed)

	score = math.Max(0.0, math.Min(1.0, score))
	return math.Round(score*1000) / 1000
}

// lengthSignal saturates at lengthCap characters; longer extractions are
// more trustworthy up to that point.
func lengthSignal(s string) float64 {
	n := float64(utf8.RuneCountInString(s))
	if n >= lengthCap {
		return 1.0
	}
	return n / lengthCap
}

// cleanSignal is the fraction of the text not covered by known OCR
// corruption patterns.
func cleanSignal(s string) float64 {
	total := len(s)
	corrupt := 0
	for _, re := range corruptionPatterns {
		for _, m := range re.FindAllStringIndex(s, -1) {
			corrupt += m[1] - m[0]
		}
	}
	frac := float64(corrupt) / float64(total)
	if frac > 1.0 {
		frac = 1.0
	}
	return 1.0 - frac
}

// wordSignal looks at the fraction of whitespace-delimited tokens whose
// length is plausible for a word. Ratios inside the typical prose band
// score 1.0; very low or very high ratios score lower.
func wordSignal(s string) float64 {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return 0.0
	}
	plausible := 0
	for _, tok := range tokens {
		n := utf8.RuneCountInString(tok)
		if n >= minWordLen && n <= maxWordLen {
			plausible++
		}
	}
	ratio := float64(plausible) / float64(len(tokens))
	switch {
	case ratio < wordRatioLow:
		return ratio / wordRatioLow
	case ratio > wordRatioHigh:
		// all-plausible tokens are still decent text, just less
		// prose-like; taper instead of cliff
		return 1.0 - 0.3*(ratio-wordRatioHigh)/(1.0-wordRatioHigh)
	default:
		return 1.0
	}
}

// punctSignal rewards sentence-terminal punctuation and capitalized
// sentence starts, both indicators of structurally intact text.
func punctSignal(s string) float64 {
	sig := 0.0
	if reSentenceEnd.MatchString(s) {
		sig += 0.5
	}
	if reSentenceStart.MatchString(s) {
		sig += 0.5
	}
	return sig
}
