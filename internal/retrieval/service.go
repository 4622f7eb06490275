package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quill/internal/middleware"
	"quill/internal/prompt"
	"quill/internal/settings"
)

var (
	ErrSearchFailed = errors.New("live search failed")
	errNoContent    = errors.New("page produced no text")
)

const notAvailable = "N/A"

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// Dependencies wires the orchestrator. Reranker and Logger are optional.
type Dependencies struct {
	Embedder  Embedder
	Library   LibraryStore
	Generator Generator
	Search    SearchClient
	Pages     PageLoader
	Reranker  Reranker
	Settings  SettingsProvider
	Prompts   *prompt.Set
	Logger    *QueryLogger
}

type Service struct {
	embedder  Embedder
	library   LibraryStore
	generator Generator
	search    SearchClient
	pages     PageLoader
	reranker  Reranker
	settings  SettingsProvider
	prompts   *prompt.Set
	logger    *QueryLogger
}

func NewService(d Dependencies) *Service {
	prompts := d.Prompts
	if prompts == nil {
		prompts = prompt.DefaultSet()
	}
	return &Service{
		embedder:  d.Embedder,
		library:   d.Library,
		generator: d.Generator,
		search:    d.Search,
		pages:     d.Pages,
		reranker:  d.Reranker,
		settings:  d.Settings,
		prompts:   prompts,
		logger:    d.Logger,
	}
}

func (s *Service) config(ctx context.Context) *settings.Settings {
	if s.settings == nil {
		return settings.Defaults()
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load settings, using defaults", "error", err)
		return settings.Defaults()
	}
	return cfg
}

// GetContext gathers library and live search context for one query. A failed
// or empty live search leaves the search part empty; library failures are
// returned.
func (s *Service) GetContext(ctx context.Context, query string) (*ContextBundle, error) {
	start := time.Now()

	lib, err := s.LibraryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	bundle := &ContextBundle{
		Query:      query,
		Library:    lib.Answer,
		Provenance: append([]Provenance(nil), lib.Provenance...),
	}

	sc, err := s.SearchContext(ctx, query)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		slog.WarnContext(ctx, "live search unavailable, continuing with library context", "query", query, "error", err)
		bundle.SearchError = err.Error()
	default:
		bundle.Search = sc.Answers
		bundle.Snippets = sc.Snippets
		bundle.Outcomes = sc.Outcomes
		bundle.Provenance = append(bundle.Provenance, sc.Provenance...)
	}

	s.log(ctx, QueryLogEntry{
		Query:         query,
		Kind:          "context",
		LibraryHits:   len(lib.Hits),
		SearchAnswers: len(bundle.Search),
		SkippedURLs:   countSkipped(bundle.Outcomes),
		Duration:      time.Since(start),
	})
	return bundle, nil
}

// GetSourcedContext returns only the attributed live search answers.
func (s *Service) GetSourcedContext(ctx context.Context, query string) (string, error) {
	sc, err := s.SearchContext(ctx, query)
	if err != nil {
		return "", err
	}
	lines := make([]string, len(sc.Answers))
	for i, a := range sc.Answers {
		lines[i] = a.String()
	}
	return strings.Join(lines, "\n"), nil
}

// LibraryContext answers the query from the top-k stored chunks only.
func (s *Service) LibraryContext(ctx context.Context, query string) (*LibraryAnswer, error) {
	cfg := s.config(ctx)

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.library.SearchChunks(ctx, query, vec, cfg.SearchAlpha, cfg.LibraryTopK)
	if err != nil {
		return nil, fmt.Errorf("library search failed: %w", err)
	}

	hits, err = s.rerank(ctx, query, hits)
	if err != nil {
		return nil, err
	}

	res := &LibraryAnswer{Hits: hits}
	if len(hits) == 0 {
		return res, nil
	}

	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Content
		res.Provenance = append(res.Provenance, libraryProvenance(query, h))
	}

	p, err := s.prompts.LibraryAnswer.Render(map[string]string{
		"context":  strings.Join(parts, "\n\n"),
		"question": query,
	})
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize library answer: %w", err)
	}
	res.Answer = strings.TrimSpace(answer)
	return res, nil
}

func libraryProvenance(query string, h LibraryHit) Provenance {
	p := Provenance{
		Kind:   ProvenanceLibrary,
		Query:  query,
		Title:  h.ReportTitle,
		Source: h.ReportSource,
		URL:    h.ReportURL,
		Page:   h.Page,
	}
	if p.Title == "" {
		p.Title = notAvailable
	}
	if p.Source == "" {
		p.Source = notAvailable
	}
	return p
}

func (s *Service) rerank(ctx context.Context, query string, hits []LibraryHit) ([]LibraryHit, error) {
	if s.reranker == nil || len(hits) == 0 {
		return hits, nil
	}

	contents := make([]string, len(hits))
	for i, h := range hits {
		contents[i] = h.Content
	}

	indices, err := s.reranker.Rerank(ctx, query, contents)
	if err != nil {
		return nil, fmt.Errorf("rerank failed: %w", err)
	}
	if len(indices) == 0 {
		return hits, nil
	}

	reranked := make([]LibraryHit, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(hits) {
			reranked = append(reranked, hits[idx])
		}
	}
	return reranked, nil
}

// SearchContext runs the live search path. Each organic result is loaded into
// its own throwaway index; a URL that fails at any step is recorded as
// skipped and the rest continue.
func (s *Service) SearchContext(ctx context.Context, query string) (*SearchContext, error) {
	cfg := s.config(ctx)

	resp, err := s.search.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	out := &SearchContext{Snippets: collectSnippets(resp, cfg.SearchResults, cfg.RelatedQuestions)}

	organic := resp.Organic
	if len(organic) > cfg.SearchResults {
		organic = organic[:cfg.SearchResults]
	}
	if len(organic) == 0 {
		return out, nil
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	for _, r := range organic {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ans, err := s.answerFromPage(ctx, query, qvec, r.Link, cfg.PageTopK)
		if err != nil {
			slog.WarnContext(ctx, "skipping search result", "url", r.Link, "error", err)
			out.Outcomes = append(out.Outcomes, URLOutcome{URL: r.Link, Status: StatusSkipped, Cause: err.Error()})
			continue
		}

		out.Answers = append(out.Answers, *ans)
		out.Outcomes = append(out.Outcomes, URLOutcome{URL: r.Link, Status: StatusSuccess})
		out.Provenance = append(out.Provenance, Provenance{
			Kind:   ProvenanceSearch,
			Query:  query,
			Title:  r.Title,
			Source: strings.Join(ans.Sources, ", "),
			URL:    r.Link,
		})
	}

	return out, nil
}

func (s *Service) answerFromPage(ctx context.Context, query string, qvec []float32, url string, k int) (*SourcedAnswer, error) {
	if url == "" {
		return nil, errors.New("result has no link")
	}

	chunks, err := s.pages.LoadChunks(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	if len(chunks) == 0 {
		return nil, errNoContent
	}

	ix, err := buildIndex(ctx, s.embedder, chunks, url)
	if err != nil {
		return nil, err
	}

	top := ix.topK(qvec, k)
	summaries := make([]string, len(top))
	for i, e := range top {
		summaries[i] = fmt.Sprintf("Content: %s\nSource: %s", e.text, e.source)
	}

	p, err := s.prompts.SourcedAnswer.Render(map[string]string{
		"summaries": strings.Join(summaries, "\n\n"),
		"question":  query,
	})
	if err != nil {
		return nil, err
	}

	raw, err := s.generator.Generate(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	ans := parseSourcedAnswer(raw, url)
	return &ans, nil
}

// parseSourcedAnswer splits "ANSWER: ... SOURCES: a, b". When the model names
// no sources the page URL is used.
func parseSourcedAnswer(raw, fallback string) SourcedAnswer {
	answer := raw
	var sources []string

	if i := max(strings.LastIndex(raw, "SOURCES:"), strings.LastIndex(raw, "Sources:")); i >= 0 {
		answer = raw[:i]
		for _, src := range strings.Split(raw[i+len("SOURCES:"):], ",") {
			if src = strings.TrimSpace(src); src != "" {
				sources = append(sources, src)
			}
		}
	}

	answer = strings.TrimSpace(answer)
	for _, prefix := range []string{"ANSWER:", "Answer:"} {
		answer = strings.TrimSpace(strings.TrimPrefix(answer, prefix))
	}

	if len(sources) == 0 {
		sources = []string{fallback}
	}
	return SourcedAnswer{Answer: answer, Sources: sources}
}

func collectSnippets(resp *SearchResponse, organicN, relatedN int) []Snippet {
	var out []Snippet

	if kg := resp.KnowledgeGraph; kg != nil && kg.Description != "" {
		out = append(out, Snippet{Kind: SnippetKnowledgeGraph, Text: kg.Description, URL: kg.DescriptionLink})
	}

	if ab := resp.AnswerBox; ab != nil {
		text := ab.Snippet
		if text == "" {
			text = ab.Answer
		}
		if text != "" {
			out = append(out, Snippet{Kind: SnippetAnswerBox, Text: text, URL: ab.Link})
		}
	}

	for i, r := range resp.Organic {
		if i >= organicN {
			break
		}
		if r.Snippet != "" {
			out = append(out, Snippet{Kind: SnippetOrganic, Text: r.Snippet, URL: r.Link})
		}
	}

	for i, q := range resp.PeopleAlsoAsk {
		if i >= relatedN {
			break
		}
		if q.Snippet != "" {
			out = append(out, Snippet{Kind: SnippetRelated, Text: q.Snippet, URL: q.Link})
		}
	}

	return out
}

func countSkipped(outcomes []URLOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == StatusSkipped {
			n++
		}
	}
	return n
}

func (s *Service) log(ctx context.Context, entry QueryLogEntry) {
	if s.logger == nil {
		return
	}
	entry.CorrelationID = middleware.GetCorrelationID(ctx)
	s.logger.Log(entry)
}
