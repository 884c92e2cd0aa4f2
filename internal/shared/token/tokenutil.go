// Package tokenutil counts prompt tokens with tiktoken-go. The cl100k_base
// encoding is initialized once at startup; when that fails every call degrades
// to a character heuristic instead of erroring.
package tokenutil

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func init() {
	initEncoding()
}

func initEncoding() {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// Count returns the cl100k_base token count of text, or Estimate when the
// encoding is unavailable.
func Count(text string) int {
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// CountAll sums Count over every text.
func CountAll(texts ...string) int {
	total := 0
	for _, text := range texts {
		total += Count(text)
	}
	return total
}

// Estimate returns a fast heuristic count: max(runes/4, word count), at
// least 1 for non-blank text.
func Estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := len([]rune(trimmed))
	words := len(strings.Fields(trimmed))
	estimate := runes / 4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// Truncate cuts text down to roughly maxTokens tokens, appending "..." when
// anything was removed. maxTokens <= 0 leaves the text alone.
func Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if encoding != nil {
		tokens := encoding.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}
		return encoding.Decode(tokens[:maxTokens]) + "..."
	}
	runes := []rune(text)
	limit := maxTokens * 4
	if limit >= len(runes) {
		return text
	}
	return string(runes[:limit]) + "..."
}
