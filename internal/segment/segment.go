// Package segment splits normalized page text into bounded chunks.
package segment

// DefaultSize is the chunk length used when none is configured.
const DefaultSize = 8000

// Split cuts text into consecutive chunks of at most maxLen runes. Chunks
// are taken purely by position; the last one may be shorter. Empty text
// yields no chunks. A non-positive maxLen falls back to DefaultSize.
func Split(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if maxLen <= 0 {
		maxLen = DefaultSize
	}

	// Fast path: byte length bounds rune count.
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	count := 0
	start := 0
	for i := range text {
		if count == maxLen {
			chunks = append(chunks, text[start:i])
			start = i
			count = 0
		}
		count++
	}
	return append(chunks, text[start:])
}

// Count returns the number of chunks Split would produce without
// allocating them.
func Count(text string, maxLen int) int {
	if text == "" {
		return 0
	}
	if maxLen <= 0 {
		maxLen = DefaultSize
	}
	n := 0
	for range text {
		n++
	}
	return (n + maxLen - 1) / maxLen
}
