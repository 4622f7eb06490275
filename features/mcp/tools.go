package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"quill/internal/retrieval"
)

type LibraryInput struct {
	Query string `json:"query" jsonschema:"the question to answer from the ingested report library"`
}

type LibraryOutput struct {
	Answer     string                 `json:"answer"`
	Hits       int                    `json:"hits"`
	Provenance []retrieval.Provenance `json:"provenance"`
}

type SearchInput struct {
	Query           string `json:"query" jsonschema:"the question to research on the live web"`
	IncludeSnippets bool   `json:"include_snippets,omitempty" jsonschema:"also return the raw search engine snippets"`
}

type SearchOutput struct {
	Answers    []retrieval.SourcedAnswer `json:"answers"`
	Snippets   []retrieval.Snippet       `json:"snippets,omitempty"`
	Outcomes   []retrieval.URLOutcome    `json:"outcomes"`
	Provenance []retrieval.Provenance    `json:"provenance"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "library_context",
		Description: `Answers a question from the ingested threat intelligence reports only.
Returns a synthesized answer plus the title, source and page of every report chunk used.
An empty answer means nothing relevant is stored.`,
	}, s.handleLibraryContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "search_context",
		Description: `Researches a question on the live web. Each top search result is fetched,
chunked and searched on its own; every answer names the sources it was built from.
Results that could not be fetched are listed as skipped.`,
	}, s.handleSearchContext)
}

func (s *Server) handleLibraryContext(ctx context.Context, _ *mcp.CallToolRequest, input LibraryInput) (*mcp.CallToolResult, LibraryOutput, error) {
	ctx = withCorrelation(ctx)
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, LibraryOutput{}, ErrEmptyQuery
	}

	ans, err := s.retriever.LibraryContext(ctx, query)
	logToolCall(ctx, "library_context", query, err)
	if err != nil {
		return nil, LibraryOutput{}, err
	}

	out := LibraryOutput{
		Answer:     ans.Answer,
		Hits:       len(ans.Hits),
		Provenance: ans.Provenance,
	}
	if out.Provenance == nil {
		out.Provenance = []retrieval.Provenance{}
	}

	text := ans.Answer
	if text == "" {
		text = "No relevant reports found."
	}
	return textResult(text), out, nil
}

func (s *Server) handleSearchContext(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	ctx = withCorrelation(ctx)
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, ErrEmptyQuery
	}

	sc, err := s.retriever.SearchContext(ctx, query)
	logToolCall(ctx, "search_context", query, err)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{
		Answers:    sc.Answers,
		Outcomes:   sc.Outcomes,
		Provenance: sc.Provenance,
	}
	if out.Answers == nil {
		out.Answers = []retrieval.SourcedAnswer{}
	}
	if out.Outcomes == nil {
		out.Outcomes = []retrieval.URLOutcome{}
	}
	if out.Provenance == nil {
		out.Provenance = []retrieval.Provenance{}
	}

	bundle := retrieval.ContextBundle{Search: sc.Answers}
	if input.IncludeSnippets {
		out.Snippets = sc.Snippets
		bundle.Snippets = sc.Snippets
	}

	text := strings.Join(bundle.SearchLines(input.IncludeSnippets), "\n\n")
	if text == "" {
		text = "No search results could be used."
	}
	return textResult(text), out, nil
}
