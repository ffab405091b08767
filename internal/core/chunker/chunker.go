// Package chunker splits extracted text into overlapping fixed-size windows.
// Chunking is a pure function: same input, same chunks.
package chunker

import (
	"github.com/markdave123-py/Studya/internal/config"
	"github.com/markdave123-py/Studya/internal/core/aierr"
)

// Validate rejects chunking parameters outside the supported ranges.
// Overlap must stay strictly below size or the window would never advance.
func Validate(size, overlap int) error {
	if size < config.MinChunkSize || size > config.MaxChunkSize {
		return aierr.Validation("chunk size %d outside [%d,%d]", size, config.MinChunkSize, config.MaxChunkSize)
	}
	if overlap < config.MinChunkOverlap || overlap > config.MaxChunkOverlap {
		return aierr.Validation("chunk overlap %d outside [%d,%d]", overlap, config.MinChunkOverlap, config.MaxChunkOverlap)
	}
	if overlap >= size {
		return aierr.Validation("chunk overlap %d must be smaller than size %d", overlap, size)
	}
	return nil
}

// Chunk slices text into windows of size characters, each window starting
// size-overlap after the previous one. The last window may be shorter.
// Empty text yields zero chunks.
//
// Callers validate (size, overlap) first; Chunk still guards against a
// non-advancing step so it always terminates.
func Chunk(text string, size, overlap int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	runes := []rune(text)
	n := len(runes)

	var out []string
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return out
}
