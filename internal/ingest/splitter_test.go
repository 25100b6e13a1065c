package ingest

import (
	"strings"
	"testing"
)

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	got := SplitText("hello world", 100, 10)
	if len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("SplitText short = %#v, want single chunk", got)
	}
}

func TestSplitText_PrefersParagraphBreaks(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40)
	got := SplitText(text, 50, 0)
	if len(got) < 2 {
		t.Fatalf("SplitText paragraph = %#v, want at least 2 chunks", got)
	}
	if strings.Contains(got[0], "b") {
		t.Fatalf("first chunk leaked into second paragraph: %q", got[0])
	}
}

func TestSplitText_FallsBackToCharacterSplit(t *testing.T) {
	text := strings.Repeat("x", 500)
	got := SplitText(text, 100, 0)
	if len(got) < 5 {
		t.Fatalf("SplitText character fallback produced %d chunks, want >= 5", len(got))
	}
	for _, c := range got {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk exceeds chunkSize: %d runes", len([]rune(c)))
		}
	}
}

func TestSplitText_OverlapCarriesTailIntoNextWindow(t *testing.T) {
	text := strings.Repeat("word ", 200)
	chunks := SplitText(text, 100, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	tail := tailRunes(chunks[0], 20)
	preview := chunks[1]
	if len(preview) > 40 {
		preview = preview[:40]
	}
	if !strings.HasPrefix(chunks[1], tail) && !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Fatalf("second chunk does not appear to overlap first: tail=%q next=%q", tail, preview)
	}
}

func TestSplitText_NoEmptyChunks(t *testing.T) {
	text := "one\n\n\n\ntwo\n\n\n\nthree"
	got := SplitText(text, 10, 0)
	for _, c := range got {
		if strings.TrimSpace(c) == "" {
			t.Fatalf("SplitText produced an empty/whitespace-only chunk: %#v", got)
		}
	}
}
