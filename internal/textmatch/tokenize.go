// Package textmatch isolates the tokenization and set-similarity
// heuristics used for gene deduplication and relevance search. Everything
// here is pure so the scoring rules can be swapped without touching the
// recorder or injector.
package textmatch

import (
	"strings"
	"unicode"
)

// DefaultStopwords is the filler-word set dropped during keyword
// extraction. Treated as configuration, not policy.
var DefaultStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "were": true,
	"when": true, "with": true, "will": true, "you": true, "your": true,
}

// Tokenize lowercases text and splits it on whitespace and punctuation
// (Unicode-aware), discarding empty tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// Keywords tokenizes text and drops stopwords and single-rune tokens.
// A nil stopword set falls back to DefaultStopwords.
func Keywords(text string, stopwords map[string]bool) []string {
	if stopwords == nil {
		stopwords = DefaultStopwords
	}
	var out []string
	for _, tok := range Tokenize(text) {
		if len(tok) < 2 || stopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// TokenSet converts a token list into a membership set.
func TokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// Overlap counts tokens of a present in set b.
func Overlap(a []string, b map[string]bool) int {
	seen := make(map[string]bool, len(a))
	n := 0
	for _, t := range a {
		if seen[t] {
			continue
		}
		seen[t] = true
		if b[t] {
			n++
		}
	}
	return n
}
