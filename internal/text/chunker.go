package text

import "strings"

// SealRatio is the share of maxTokens at which a buffer is sealed into a chunk.
const SealRatio = 0.9

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// Chunk splits text into sentence-accumulated chunks bounded by maxTokens.
// The bound is soft: a single sentence larger than the budget is emitted whole.
func Chunk(text string, maxTokens int, counter TokenCounter) []string {
	chunks, _ := ChunkPages([]string{text}, maxTokens, counter)
	return chunks
}

// ChunkPages chunks multi-page input and returns, alongside each chunk, the
// 1-based page of the sentence that sealed it. A chunk may start on an earlier
// page than the one it is attributed to.
func ChunkPages(pages []string, maxTokens int, counter TokenCounter) ([]string, []int) {
	var (
		chunks   []string
		pageNums []int
		buf      strings.Builder
		lastPage int
	)

	threshold := SealRatio * float64(maxTokens)

	for i, page := range pages {
		for _, unit := range sentences(page) {
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(unit)
			lastPage = i + 1

			if float64(counter.Count(buf.String())) >= threshold {
				chunks = append(chunks, buf.String())
				pageNums = append(pageNums, lastPage)
				buf.Reset()
			}
		}
	}

	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
		pageNums = append(pageNums, lastPage)
	}

	return chunks, pageNums
}

// sentences splits on '.' and normalizes each unit; empty units are dropped.
func sentences(text string) []string {
	parts := strings.Split(text, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ReplaceAll(strings.TrimSpace(p), "\n", " ")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
