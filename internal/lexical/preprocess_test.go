package lexical

import "testing"

func TestBuildMatch_Raw(t *testing.T) {
	got := BuildMatch("What is the Capital of France?", ModeRaw, 10, DefaultStopWords)
	want := "what is the capital of france"
	if got != want {
		t.Fatalf("BuildMatch raw = %q, want %q", got, want)
	}
}

func TestBuildMatch_Heuristic_DropsStopwordsAndShortTokens(t *testing.T) {
	got := BuildMatch("What is the capital of France and its history?", ModeHeuristic, 10, DefaultStopWords)
	want := "what capital france its history"
	if got != want {
		t.Fatalf("BuildMatch heuristic = %q, want %q", got, want)
	}
}

func TestBuildMatch_Heuristic_DedupesPreservingFirstOccurrence(t *testing.T) {
	got := BuildMatch("summarize summarize the sources sources please please", ModeHeuristic, 10, DefaultStopWords)
	want := "please"
	if got != want {
		t.Fatalf("BuildMatch heuristic dedupe = %q, want %q", got, want)
	}
}

func TestBuildMatch_Heuristic_TruncatesAtMaxTerms(t *testing.T) {
	got := BuildMatch("alpha bravo charlie delta echo foxtrot", ModeHeuristic, 3, DefaultStopWords)
	want := "alpha bravo charlie"
	if got != want {
		t.Fatalf("BuildMatch maxTerms = %q, want %q", got, want)
	}
}

func TestBuildMatch_EmptyInput_ReturnsEmpty(t *testing.T) {
	if got := BuildMatch("", ModeHeuristic, 10, DefaultStopWords); got != "" {
		t.Fatalf("BuildMatch empty input = %q, want empty", got)
	}
	if got := BuildMatch("the a an", ModeHeuristic, 10, DefaultStopWords); got != "" {
		t.Fatalf("BuildMatch all-stopword input = %q, want empty", got)
	}
}
