package keywords

import (
	"testing"
)

func TestExtractRepeatedSubject(t *testing.T) {
	e := NewYakeExtractor(10)
	text := "Python is great. I write python every day. Python makes scripting easy."
	got := e.Extract(text, 10)

	found := false
	for _, kw := range got {
		if kw == "python" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected 'python' in keywords, got %v", got)
	}
}

func TestExtractFiltersNoiseTokens(t *testing.T) {
	e := NewYakeExtractor(10)
	got := e.Extract("go is ok we do ai ml database engineering 42 1234", 10)

	for _, kw := range got {
		if len([]rune(kw)) < 3 {
			t.Fatalf("short token %q leaked into keywords", kw)
		}
		if kw == "42" || kw == "1234" {
			t.Fatalf("numeric token %q leaked into keywords", kw)
		}
	}
}

func TestExtractNoDuplicates(t *testing.T) {
	e := NewYakeExtractor(10)
	got := e.Extract("weather weather weather forecast forecast sunny", 10)

	seen := make(map[string]bool)
	for _, kw := range got {
		if seen[kw] {
			t.Fatalf("duplicate keyword %q", kw)
		}
		seen[kw] = true
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := NewYakeExtractor(5)
	text := "The project deadline moved. The team discussed the deadline and the new schedule."
	first := e.Extract(text, 5)
	for i := 0; i < 5; i++ {
		again := e.Extract(text, 5)
		if len(again) != len(first) {
			t.Fatalf("non-deterministic length: %v vs %v", first, again)
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("non-deterministic order: %v vs %v", first, again)
			}
		}
	}
}

func TestExtractRespectsMaxKeywords(t *testing.T) {
	e := NewYakeExtractor(10)
	text := "apple banana cherry durian elderberry fig grape honeydew kiwi lemon mango nectarine"
	got := e.Extract(text, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 keywords, got %d: %v", len(got), got)
	}
}

func TestExtractEmptyText(t *testing.T) {
	e := NewYakeExtractor(10)
	if got := e.Extract("   ", 10); len(got) != 0 {
		t.Fatalf("expected no keywords, got %v", got)
	}
}
