// Package ingest dedupes documents by content hash, extracts text,
// recursively splits it into overlapping chunks, and persists, embeds,
// and indexes the result.
package ingest

import "strings"

// separators is the priority list of split points, from most to least
// preferred: paragraph break, line break, sentence terminator, space,
// character. The
// splitter tries each in turn, only falling through to a lower-priority
// separator (or raw character slicing) when a higher one can't produce a
// piece that fits chunkSize.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// SplitText implements the recursive character splitter: it emits windows
// of at most chunkSize runes that overlap the previous window by at most
// chunkOverlap runes, preferring to break on the highest-priority
// separator available. It never returns an empty chunk for non-empty
// input.
func SplitText(text string, chunkSize, chunkOverlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	pieces := splitRecursive(text, separators, chunkSize)
	return mergeWithOverlap(pieces, chunkSize, chunkOverlap)
}

// splitRecursive breaks text on the first separator in seps that actually
// divides it into pieces, recursing into any piece still over chunkSize
// with the remaining, lower-priority separators.
func splitRecursive(text string, seps []string, chunkSize int) []string {
	if len([]rune(text)) <= chunkSize || len(seps) == 0 {
		return []string{text}
	}

	sep := seps[0]
	rest := seps[1:]

	var parts []string
	if sep == "" {
		parts = splitByRune(text, chunkSize)
	} else {
		parts = strings.Split(text, sep)
		// Re-attach the separator so downstream joins don't lose it, except
		// for the final fragment.
		for i := 0; i < len(parts)-1; i++ {
			parts[i] += sep
		}
	}

	if len(parts) <= 1 {
		// This separator doesn't occur in text at all; fall through.
		return splitRecursive(text, rest, chunkSize)
	}

	var out []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if len([]rune(p)) > chunkSize {
			out = append(out, splitRecursive(p, rest, chunkSize)...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// splitByRune is the final fallback: raw character windows, no regard for
// word boundaries.
func splitByRune(text string, chunkSize int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// mergeWithOverlap packs the small separator-aligned pieces splitRecursive
// produced back into windows of up to chunkSize runes, each overlapping
// the previous window's tail by up to chunkOverlap runes. This mirrors the
// behavior of a recursive character text splitter: small fragments (e.g.
// short lines) are coalesced rather than emitted one per chunk.
func mergeWithOverlap(pieces []string, chunkSize, chunkOverlap int) []string {
	if len(pieces) == 0 {
		return nil
	}

	var windows []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		windows = append(windows, strings.TrimRight(cur.String(), "\n "))
	}

	for _, p := range pieces {
		pl := len([]rune(p))
		if curLen > 0 && curLen+pl > chunkSize {
			flush()
			keep := chunkOverlap
			if keep > chunkSize-pl {
				keep = chunkSize - pl
			}
			overlap := tailRunes(cur.String(), keep)
			cur.Reset()
			cur.WriteString(overlap)
			curLen = len([]rune(overlap))
		}
		cur.WriteString(p)
		curLen += pl
	}
	flush()

	out := windows[:0:0]
	for _, w := range windows {
		if strings.TrimSpace(w) != "" {
			out = append(out, w)
		}
	}
	if len(out) == 0 && len(pieces) > 0 {
		out = []string{strings.Join(pieces, "")}
	}
	return out
}

func tailRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) == 0 {
		return ""
	}
	if n >= len(r) {
		return s
	}
	return string(r[len(r)-n:])
}
