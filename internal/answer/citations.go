// Package answer implements the grounded-answer assembler and its
// citation validator: it drives the chat model over retrieved context,
// checks the citations it produced against the allowed chunk set, and
// deterministically repairs answers that fall short.
package answer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	cidSimple = regexp.MustCompile(`\[cid:(\d+)\]`)
	cidSource = regexp.MustCompile(`\[Source:[^\]]*?\bcid:(\d+)\b[^\]]*\]`)
	blankRun  = regexp.MustCompile(`\n\s*\n+`)
)

// Report is the diagnostic output of Validate .
type Report struct {
	ParagraphCount         int     `json:"paragraph_count"`
	FoundCitations         []int64 `json:"found_citations"`
	UniqueCitationsCount   int     `json:"unique_citations_count"`
	MinUniqueRequired      int     `json:"min_unique_citations_required"`
	InvalidIDs             []int64 `json:"invalid_ids"`
	RequirePerParagraph    bool    `json:"require_citation_per_paragraph"`
	MissingParagraphs      []int   `json:"missing_paragraphs"`
	PerParagraphCitations  [][]int64 `json:"per_paragraph_citations"`
	Reason                 string  `json:"reason"`
}

// SplitParagraphs splits text into paragraphs on blank-line runs.
func SplitParagraphs(text string) []string {
	parts := blankRun.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExtractCitations returns the unique set of cited chunk ids anywhere in
// text, recognizing both [cid:N] and [Source: ... cid:N ...] shapes.
func ExtractCitations(text string) []int64 {
	return extractFrom(text)
}

func extractFrom(text string) []int64 {
	seen := map[int64]struct{}{}
	var out []int64
	add := func(s string) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	for _, m := range cidSimple.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range cidSource.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks text's citations against the allowed set and the
// enforcement flags, returning ok plus a full diagnostic report. It is a
// pure function: same inputs always produce the same report, and an
// already-ok text stays ok on a second call.
func Validate(text string, allowed map[int64]struct{}, minUnique int, requirePerParagraph bool) (bool, Report) {
	paragraphs := SplitParagraphs(text)

	report := Report{
		ParagraphCount:        len(paragraphs),
		MinUniqueRequired:     minUnique,
		RequirePerParagraph:   requirePerParagraph,
		PerParagraphCitations: make([][]int64, len(paragraphs)),
	}

	var missing []int
	foundSet := map[int64]struct{}{}
	for i, p := range paragraphs {
		cids := extractFrom(p)
		report.PerParagraphCitations[i] = cids
		if requirePerParagraph && len(cids) == 0 {
			missing = append(missing, i)
		}
		for _, c := range cids {
			foundSet[c] = struct{}{}
		}
	}
	report.MissingParagraphs = missing

	found := make([]int64, 0, len(foundSet))
	for c := range foundSet {
		found = append(found, c)
	}
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	report.FoundCitations = found
	report.UniqueCitationsCount = len(found)

	var invalid []int64
	for _, c := range found {
		if _, ok := allowed[c]; !ok {
			invalid = append(invalid, c)
		}
	}
	report.InvalidIDs = invalid

	if len(found) < minUnique {
		report.Reason = "not enough unique citations"
		return false, report
	}
	if len(invalid) > 0 {
		report.Reason = "contains invalid citation ids"
		return false, report
	}
	if requirePerParagraph && len(missing) > 0 {
		report.Reason = "some paragraphs are missing citations"
		return false, report
	}
	report.Reason = "ok"
	return true, report
}

// InjectMissingCitations deterministically appends cite token
// tokens[i % len(tokens)] to each paragraph named in missing, and
// reassembles the text.
func InjectMissingCitations(text string, tokens []string, missing []int) string {
	if len(tokens) == 0 {
		return text
	}
	paragraphs := SplitParagraphs(text)
	for _, idx := range missing {
		if idx < len(paragraphs) {
			token := tokens[idx%len(tokens)]
			paragraphs[idx] = strings.TrimRight(paragraphs[idx], " \t\n") + " " + token
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// RewriteInvalidCitations replaces every bracket citing an id outside the
// allowed set with the first token in tokens, leaving valid citations
// untouched. Always substituting the first valid token is simpler than
// picking the nearest valid citation and repairs the same failure mode.
func RewriteInvalidCitations(text string, tokens []string, invalid []int64) string {
	if len(tokens) == 0 || len(invalid) == 0 {
		return text
	}
	replacement := tokens[0]
	out := text
	for _, id := range invalid {
		re := regexp.MustCompile(`\[Source:[^\]]*\bcid:` + strconv.FormatInt(id, 10) + `\b[^\]]*\]`)
		out = re.ReplaceAllString(out, replacement)
		simple := regexp.MustCompile(`\[cid:` + strconv.FormatInt(id, 10) + `\]`)
		out = simple.ReplaceAllString(out, replacement)
	}
	return out
}
