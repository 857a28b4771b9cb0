package scoreconfidence

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	baseScore      = 0.5
	FallbackScore  = 0.2
	detailedLength = 100
	shortLength    = 40

	detailBonus   = 0.1
	termBonus     = 0.05
	termBonusCap  = 0.2
	overlapBonus  = 0.2
	phrasePenalty = 0.2
	shortPenalty  = 0.2
)

var specificTerms = []string{"contact", "portal", "policy", "procedure", "email", "phone", "form", "submit"}

var genericPhrases = []string{
	"unable", "error", "technical issue", "try again", "technical difficulties", "not sure", "cannot help",
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "that": true, "this": true,
	"have": true, "has": true, "had": true, "can": true, "can't": true, "cannot": true, "how": true,
	"what": true, "when": true, "where": true, "why": true, "who": true, "which": true, "are": true,
	"was": true, "were": true, "will": true, "would": true, "should": true, "could": true, "does": true,
	"did": true, "not": true, "you": true, "your": true, "our": true, "any": true, "all": true,
	"per": true, "about": true, "into": true, "been": true, "there": true, "their": true, "they": true,
	"them": true, "its": true, "just": true, "get": true, "got": true, "need": true, "please": true,
	"help": true, "many": true, "much": true, "some": true, "my": true, "i'm": true, "don't": true,
}

// Heuristic scores reply against ticket without calling a model. The result
// is unclamped and unrounded.
func Heuristic(ticket, reply string) float64 {
	lower := strings.ToLower(reply)
	score := baseScore

	length := utf8.RuneCountInString(strings.TrimSpace(reply))
	if length > detailedLength {
		score += detailBonus
	}

	terms := 0.0
	for _, term := range specificTerms {
		if strings.Contains(lower, term) {
			terms += termBonus
		}
	}
	score += math.Min(terms, termBonusCap)

	score += overlapBonus * Overlap(ticket, reply)

	for _, phrase := range genericPhrases {
		if strings.Contains(lower, phrase) {
			score -= phrasePenalty
		}
	}

	if length < shortLength {
		score -= shortPenalty
	}
	return score
}

// Overlap returns the share of the ticket's content words that appear in
// reply, from 0 to 1.
func Overlap(ticket, reply string) float64 {
	words := contentWords(ticket)
	if len(words) == 0 {
		return 0
	}
	lower := strings.ToLower(reply)
	hits := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

func contentWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if utf8.RuneCountInString(f) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
