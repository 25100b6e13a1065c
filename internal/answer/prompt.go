package answer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/retrieve"
)

// CiteToken returns the display token for a fused hit, the exact bracket
// form cited in the final answer.
func CiteToken(h retrieve.Hit) string {
	return fmt.Sprintf("[Source: %s | cid:%d]", h.Chunk.Filename(), h.Chunk.ID)
}

// FormatContext concatenates a banner + body for each fused chunk,
// separated by "---" lines, in fused order.
func FormatContext(hits []retrieve.Hit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[cid:%d] from %s:\n%s", h.Chunk.ID, h.Chunk.Filename(), strings.TrimSpace(h.Chunk.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// BuildSystemPrompt states the rules the chat model must follow when
// answering from retrieved context: answer only from the given sources,
// cite each paragraph, no bibliography, no preamble.
func BuildSystemPrompt(allowedIDs []int64) string {
	ids := make([]string, len(allowedIDs))
	for i, id := range allowedIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	cidList := strings.Join(ids, ", ")

	return fmt.Sprintf(`You are a research assistant. Your task is to answer questions using ONLY the provided source documents.

RESPONSE FORMAT:
- Write 2 to 3 concise paragraphs that directly answer the question
- End each paragraph with a citation: [Source: filename | cid:NUMBER]
- Use ONLY these citation IDs: %s

STRICT RULES:
- Start your answer immediately with the content. No introductions.
- Do NOT write phrases like "Here's the answer" or "Based on the context" or "Okay, here's"
- Do NOT copy author names, email addresses, or institutional affiliations
- Do NOT include bibliography entries or reference lists
- Do NOT include movie quotes or unrelated content
- SYNTHESIZE information in your own words, do not copy chunks verbatim
- If you cannot answer from the sources, say "I don't have enough information to answer this question."

Your response should read like a well-written encyclopedia entry, not a collection of copied text.`, cidList)
}

// CleanPatterns are the regexes CleanAnswer strips. Exposed as a variable
// rather than a constant list so a caller can replace this slice before
// calling CleanAnswer.
var CleanPatterns = struct {
	Preamble    []*regexp.Regexp
	Bibliography []*regexp.Regexp
}{
	Preamble: []*regexp.Regexp{
		regexp.MustCompile(`(?im)^(?:Okay|OK|Sure|Certainly|Of course)[,.]?\s*(?:here'?s?|I'?ll|let me)[^.]*[.!]\s*`),
		regexp.MustCompile(`(?im)^(?:Here is|Here's|Below is)[^.]*[.!:]\s*`),
		regexp.MustCompile(`(?im)^(?:Based on|According to) (?:the )?(?:provided |given )?(?:context|documents?|sources?)[,.]?\s*`),
		regexp.MustCompile(`(?im)^(?:The )?(?:corrected |revised |formatted )?(?:text|answer|response)[^.]*[.:]\s*`),
		regexp.MustCompile(`(?im)^I (?:understand|see)[^.]*[.!]\s*`),
	},
	Bibliography: []*regexp.Regexp{
		regexp.MustCompile(`(?is)\n+(?:References|Bibliography|Sources|Works Cited):?\s*\n.*$`),
		regexp.MustCompile(`(?is)\n+\[\d+\][^\[]*$`),
	},
}

var (
	authorLine = regexp.MustCompile(`(?i)^[\d\s]*Department of`)
	emailLine  = regexp.MustCompile(`^[\w\s,]+@[\w.]+$`)
	nameLine   = regexp.MustCompile(`^[A-Z][a-z]+\s+[A-Z][a-z]+\d*$`)
	addrLine   = regexp.MustCompile(`(?i)^(?:Viale|Via|Street|Avenue)\s`)
	blankRuns3 = regexp.MustCompile(`\n{3,}`)
)

// CleanAnswer strips common chat-model artifacts — apologetic/"Here is…"
// preambles, trailing bibliography sections, author-affiliation-looking
// lines — and collapses blank-line runs.
func CleanAnswer(text string) string {
	cleaned := strings.TrimSpace(text)
	for _, re := range CleanPatterns.Preamble {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	for _, re := range CleanPatterns.Bibliography {
		cleaned = re.ReplaceAllString(cleaned, "")
	}

	lines := strings.Split(cleaned, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case authorLine.MatchString(trimmed):
		case emailLine.MatchString(trimmed):
		case nameLine.MatchString(trimmed):
		case addrLine.MatchString(trimmed):
		default:
			filtered = append(filtered, line)
		}
	}
	cleaned = strings.TrimSpace(strings.Join(filtered, "\n"))
	cleaned = blankRuns3.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
