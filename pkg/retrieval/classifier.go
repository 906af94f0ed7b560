package retrieval

import (
	"math"
	"strings"
	"unicode"
)

// ClassifierConfig holds the fixed thresholds that map a resonance value to
// a categorical label.
type ClassifierConfig struct {
	// IdentifierBelow classifies queries with resonance strictly below this
	// value as identifier-like.
	IdentifierBelow float64

	// AbstractAbove classifies queries with resonance strictly above this
	// value as abstract/semantic.
	AbstractAbove float64
}

// DefaultClassifierConfig returns the default classification thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		IdentifierBelow: 0.35,
		AbstractAbove:   0.70,
	}
}

// Classifier computes a query-shape signal ("resonance") that separates
// identifier-like, structured queries from abstract semantic ones. It is
// deterministic and side-effect-free: the same text always yields the same
// classification. No network or storage access.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.IdentifierBelow <= 0 {
		cfg.IdentifierBelow = DefaultClassifierConfig().IdentifierBelow
	}
	if cfg.AbstractAbove <= 0 {
		cfg.AbstractAbove = DefaultClassifierConfig().AbstractAbove
	}
	return &Classifier{cfg: cfg}
}

// Classify derives the resonance value and label for a query text.
//
// Resonance combines a normalized character-entropy statistic with two
// structural cues: the share of identifier-like tokens and the share of
// digit/delimiter characters. High resonance means diffuse, wordy, semantic
// text; low resonance means narrow, structured, identifier-heavy text.
func (c *Classifier) Classify(text string) Classification {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Classification{Resonance: 0, Label: LabelIdentifier}
	}

	idTokens := 0
	for _, tok := range tokens {
		if isIdentifierToken(tok) {
			idTokens++
		}
	}
	idRatio := float64(idTokens) / float64(len(tokens))

	entropy, structuredRatio := charStats(text)
	normEntropy := math.Min(1.0, entropy/6.0)

	// Longer queries lean semantic; the bonus saturates at ten tokens.
	lengthBonus := 0.1 * math.Min(1.0, float64(len(tokens))/10.0)

	resonance := normEntropy*(1.0-0.7*idRatio) - 0.5*structuredRatio + lengthBonus
	resonance = math.Max(0.0, math.Min(1.0, resonance))

	label := LabelFactual
	switch {
	case resonance < c.cfg.IdentifierBelow:
		label = LabelIdentifier
	case resonance > c.cfg.AbstractAbove:
		label = LabelAbstract
	}

	return Classification{Resonance: resonance, Label: label}
}

// isIdentifierToken reports whether a token looks like an identifier:
// it carries digits or ID-style delimiters rather than plain words.
func isIdentifierToken(tok string) bool {
	for _, r := range tok {
		if unicode.IsDigit(r) {
			return true
		}
		switch r {
		case '#', '_', '/', ':', '@':
			return true
		}
	}
	// Hyphenated codes like "ORD-X" count, hyphenated words do not: require
	// an uppercase rune next to the hyphen.
	if i := strings.IndexRune(tok, '-'); i > 0 && i < len(tok)-1 {
		prev := rune(tok[i-1])
		next := rune(tok[i+1])
		if unicode.IsUpper(prev) || unicode.IsUpper(next) {
			return true
		}
	}
	return false
}

// charStats returns the Shannon entropy (bits) of the lowercased non-space
// rune distribution and the fraction of runes that are digits or structural
// delimiters.
func charStats(text string) (entropy float64, structuredRatio float64) {
	freq := make(map[rune]int)
	total := 0
	structured := 0

	for _, r := range strings.ToLower(text) {
		if unicode.IsSpace(r) {
			continue
		}
		freq[r]++
		total++
		if unicode.IsDigit(r) {
			structured++
			continue
		}
		switch r {
		case '#', '_', '/', ':', '-', '@':
			structured++
		}
	}
	if total == 0 {
		return 0, 0
	}

	for _, n := range freq {
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy, float64(structured) / float64(total)
}
