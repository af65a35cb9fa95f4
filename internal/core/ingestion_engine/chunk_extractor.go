package ingestion_engine

import (
	"fmt"
	"strings"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ValidateChunking checks the window parameters used by Chunk.
func ValidateChunking(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return nil
}

// Chunk splits text into windows of size characters starting every size-overlap
// characters, for as long as the window start lies inside the text. Tail windows
// may be shorter than size. Empty or whitespace-only text yields no chunks.
//
// Positions are counted in runes so multi-byte text is never split mid-character.
// Invalid parameters fall back to the defaults.
func Chunk(text string, size, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if ValidateChunking(size, overlap) != nil {
		size, overlap = DefaultChunkSize, DefaultChunkOverlap
	}

	runes := []rune(text)
	step := size - overlap
	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
