package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/pipeline"
	"quill/internal/retrieval"
)

type unitEmbedder struct{}

func (unitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type library struct{}

func (library) SearchChunks(ctx context.Context, query string, vec []float32, alpha float32, limit int) ([]retrieval.LibraryHit, error) {
	return []retrieval.LibraryHit{{Content: "stored chunk about " + query, ReportTitle: "Annual", ReportSource: "annual.pdf"}}, nil
}

type search struct{}

func (search) Search(ctx context.Context, query string) (*retrieval.SearchResponse, error) {
	if strings.Contains(query, "second") {
		return &retrieval.SearchResponse{Organic: []retrieval.OrganicResult{{Title: "Broken", Link: "https://broken.example"}}}, nil
	}
	return &retrieval.SearchResponse{Organic: []retrieval.OrganicResult{{Title: "Good", Link: "https://good.example"}}}, nil
}

type pages struct{}

func (pages) LoadChunks(ctx context.Context, url string) ([]string, error) {
	if url == "https://broken.example" {
		return nil, errors.New("connection reset")
	}
	return []string{"fresh web fact"}, nil
}

// scriptedGenerator answers by prompt shape.
type scriptedGenerator struct {
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	switch {
	case strings.Contains(prompt, "QUESTIONS:"):
		return "1. first question\n2. second question", nil
	case strings.Contains(prompt, "Source: https://good.example"):
		return "ANSWER: web says yes\nSOURCES: https://good.example", nil
	case strings.Contains(prompt, "LIBRARY CONTEXT:"):
		return "A drafted section.", nil
	default:
		return "library says yes", nil
	}
}

type memOutput struct {
	sections map[int]string
	doc      strings.Builder
}

func (o *memOutput) Reset() error {
	o.doc.Reset()
	return nil
}

func (o *memOutput) WriteSection(index int, prompt, draft string) error {
	o.sections[index] = draft
	return nil
}

func (o *memOutput) Append(draft string) error {
	o.doc.WriteString(draft + "\n\n")
	return nil
}

func TestPipeline_FailingURLInOneQuestion(t *testing.T) {
	gen := &scriptedGenerator{}
	svc := retrieval.NewService(retrieval.Dependencies{
		Embedder:  unitEmbedder{},
		Library:   library{},
		Generator: gen,
		Search:    search{},
		Pages:     pages{},
	})
	out := &memOutput{sections: map[int]string{}}

	res, err := pipeline.New(svc, gen, out).Run(context.Background(), "SECTION:\nWhy it matters")
	require.NoError(t, err)
	require.Len(t, res.Sections, 1)

	sec := res.Sections[0]
	assert.Equal(t, "A drafted section.", sec.Draft)
	assert.Equal(t, []string{"library says yes", "library says yes"}, sec.Library)
	assert.Equal(t, []string{"source: https://good.example\nweb says yes"}, sec.Search)

	require.Len(t, sec.Outcomes, 2)
	assert.Equal(t, retrieval.StatusSuccess, sec.Outcomes[0].Status)
	assert.Equal(t, retrieval.StatusSkipped, sec.Outcomes[1].Status)

	assert.Contains(t, sec.Prompt, "web says yes")
	assert.Contains(t, sec.Prompt, "library says yes")
	assert.Equal(t, "A drafted section.", out.sections[0])
	assert.Equal(t, "A drafted section.\n\n", out.doc.String())
}
