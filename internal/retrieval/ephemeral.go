package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
)

type indexEntry struct {
	text   string
	source string
	vec    []float32
}

// ephemeralIndex is an in-memory similarity index over one page's chunks.
// It lives for a single query.
type ephemeralIndex struct {
	entries []indexEntry
}

func buildIndex(ctx context.Context, e Embedder, chunks []string, source string) (*ephemeralIndex, error) {
	vecs, err := embedAll(ctx, e, chunks)
	if err != nil {
		return nil, err
	}

	ix := &ephemeralIndex{entries: make([]indexEntry, len(chunks))}
	for i, c := range chunks {
		ix.entries[i] = indexEntry{text: c, source: source, vec: vecs[i]}
	}
	return ix, nil
}

func embedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if be, ok := e.(BatchEmbedder); ok {
		vecs, err := be.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("batch embed: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("batch embed returned %d vectors for %d texts", len(vecs), len(texts))
		}
		return vecs, nil
	}

	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		vecs[i] = v
	}
	return vecs, nil
}

// topK returns up to k entries ordered by descending cosine similarity.
func (ix *ephemeralIndex) topK(query []float32, k int) []indexEntry {
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(ix.entries))
	for i, e := range ix.entries {
		scores = append(scores, scored{i: i, score: cosine(query, e.vec)})
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]indexEntry, k)
	for j := 0; j < k; j++ {
		out[j] = ix.entries[scores[j].i]
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
