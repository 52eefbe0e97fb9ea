package summarizer

import (
	"cmp"
	"slices"
	"strings"
)

// Split partitions text into chunks of exactly maxWords whitespace-separated
// words; the last chunk holds the remainder. Words are re-joined with single
// spaces, so boundaries depend only on the word sequence and maxWords.
// Empty or whitespace-only text yields zero chunks.
func Split(text string, maxWords int) ([]string, error) {
	if maxWords < 1 {
		return nil, ErrInvalidMaxWords
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	chunks := make([]string, 0, (len(words)+maxWords-1)/maxWords)
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}

	return chunks, nil
}

// Assemble joins chunk summaries by chunk index, never by arrival order.
func Assemble(results []ChunkResult, separator string) string {
	sorted := slices.Clone(results)
	slices.SortFunc(sorted, func(a, b ChunkResult) int { return cmp.Compare(a.Index, b.Index) })

	parts := make([]string, len(sorted))
	for i, r := range sorted {
		parts[i] = r.Summary
	}
	return strings.Join(parts, separator)
}
