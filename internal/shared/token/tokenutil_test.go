package tokenutil

import (
	"strings"
	"testing"
)

func TestCountEmpty(t *testing.T) {
	if got := Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
}

func TestCountSimple(t *testing.T) {
	got := Count("hello world")
	if got <= 0 {
		t.Errorf("Count(\"hello world\") = %d, want > 0", got)
	}
	// "hello world" is 2 tokens with cl100k_base
	if encoding != nil && got != 2 {
		t.Errorf("Count(\"hello world\") = %d, want 2", got)
	}
}

func TestCountAll(t *testing.T) {
	a, b := "hello world", "goodbye"
	if got, want := CountAll(a, b), Count(a)+Count(b); got != want {
		t.Errorf("CountAll = %d, want %d", got, want)
	}
	if got := CountAll(); got != 0 {
		t.Errorf("CountAll() = %d, want 0", got)
	}
}

func TestEstimateBlank(t *testing.T) {
	for _, text := range []string{"", "   \n\t  "} {
		if got := Estimate(text); got != 0 {
			t.Errorf("Estimate(%q) = %d, want 0", text, got)
		}
	}
}

func TestEstimateWordFloor(t *testing.T) {
	// 4 words, 7 runes: runes/4 = 1 but the word count wins.
	if got := Estimate("a b c d"); got != 4 {
		t.Errorf("Estimate(\"a b c d\") = %d, want 4", got)
	}
}

func TestTruncateNoop(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("Truncate(\"short\", 100) = %q", got)
	}
	if got := Truncate("anything", 0); got != "anything" {
		t.Errorf("Truncate(\"anything\", 0) = %q, want unchanged for zero budget", got)
	}
}

func TestTruncateCutsLongText(t *testing.T) {
	text := strings.Repeat("hello world ", 100)
	got := Truncate(text, 5)
	if got == text {
		t.Error("Truncate should have shortened the text")
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated text should end with ellipsis, got %q", got[len(got)-20:])
	}
	if Count(got) > 10 {
		t.Errorf("truncated text still counts %d tokens", Count(got))
	}
}
