package lexical

import (
	"regexp"
	"strings"
)

// DefaultStopWords is the fixed stopword set used by heuristic match
// expression preprocessing: ordinary English function words plus a few
// instruction-like tokens that show up in user queries but never in
// document text ("summarize", "cite", ...). BuildMatch takes the stopword
// list as a parameter; retrieval always passes this default, and no
// configuration key replaces it.
var DefaultStopWords = []string{
	"a", "an", "the", "and", "or", "not", "to", "of", "in", "on", "for",
	"with", "by", "from", "is", "are", "was", "were", "be", "been", "being",
	"as", "at", "it", "this", "that", "these", "those",
	"i", "you", "we", "they", "he", "she", "my", "your", "our", "their",
	"summarize", "summary", "main", "points", "cite", "sources",
	"document", "documents", "uploaded",
}

var wordRe = regexp.MustCompile(`\w+`)

// Mode selects how BuildMatch preprocesses a raw user query.
type Mode string

const (
	// ModeRaw keeps every token, no filtering.
	ModeRaw Mode = "raw"
	// ModeHeuristic drops stopwords and short tokens, dedupes, and caps
	// the term count.
	ModeHeuristic Mode = "heuristic"
)

// BuildMatch builds a match expression from a raw user query. Tokens
// are the maximal \w+ runs of the lower-cased input. It is idempotent:
// BuildMatch(BuildMatch(q, ...), raw, ...) == BuildMatch(q, ...) because
// heuristic output is already lowercase, deduped, stopword-free tokens
// joined by single spaces, and raw mode on such input is a no-op re-split.
func BuildMatch(text string, mode Mode, maxTerms int, stopWords []string) string {
	tokens := tokenize(text)

	if mode == ModeRaw {
		return strings.Join(tokens, " ")
	}

	stop := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		stop[w] = struct{}{}
	}

	seen := make(map[string]struct{}, len(tokens))
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) < 3 {
			continue
		}
		if _, isStop := stop[t]; isStop {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		kept = append(kept, t)
		if maxTerms > 0 && len(kept) >= maxTerms {
			break
		}
	}
	return strings.Join(kept, " ")
}

func tokenize(text string) []string {
	matches := wordRe.FindAllString(strings.ToLower(text), -1)
	return matches
}
