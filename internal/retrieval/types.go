package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// LibraryHit is a stored chunk returned by similarity search, with whatever
// the chunk's report reference resolved to.
type LibraryHit struct {
	Content      string  `json:"content"`
	Page         int     `json:"page"`
	Score        float32 `json:"score"`
	ReportTitle  string  `json:"reportTitle,omitempty"`
	ReportSource string  `json:"reportSource,omitempty"`
	ReportURL    string  `json:"reportUrl,omitempty"`
}

// SearchResponse is the subset of a live web search the orchestrator uses.
type SearchResponse struct {
	Organic        []OrganicResult   `json:"organic"`
	KnowledgeGraph *KnowledgeGraph   `json:"knowledgeGraph,omitempty"`
	AnswerBox      *AnswerBox        `json:"answerBox,omitempty"`
	PeopleAlsoAsk  []RelatedQuestion `json:"peopleAlsoAsk,omitempty"`
}

type OrganicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type KnowledgeGraph struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DescriptionLink string `json:"descriptionLink"`
}

type AnswerBox struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Answer  string `json:"answer"`
	Link    string `json:"link"`
}

type RelatedQuestion struct {
	Question string `json:"question"`
	Snippet  string `json:"snippet"`
	Link     string `json:"link"`
}

type SnippetKind string

const (
	SnippetKnowledgeGraph SnippetKind = "knowledge_graph"
	SnippetAnswerBox      SnippetKind = "answer_box"
	SnippetOrganic        SnippetKind = "organic"
	SnippetRelated        SnippetKind = "related_question"
)

type Snippet struct {
	Kind SnippetKind `json:"kind"`
	Text string      `json:"text"`
	URL  string      `json:"url"`
}

func (s Snippet) String() string {
	return fmt.Sprintf("source: %s\n%s", s.URL, s.Text)
}

type URLStatus string

const (
	StatusSuccess URLStatus = "success"
	StatusSkipped URLStatus = "skipped"
)

// URLOutcome records what happened to one search result URL.
type URLOutcome struct {
	URL    string    `json:"url"`
	Status URLStatus `json:"status"`
	Cause  string    `json:"cause,omitempty"`
}

// SourcedAnswer is an answer synthesized from one page, with the sources
// the model cited.
type SourcedAnswer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

func (a SourcedAnswer) String() string {
	return fmt.Sprintf("source: %s\n%s", strings.Join(a.Sources, ", "), a.Answer)
}

type ProvenanceKind string

const (
	ProvenanceLibrary ProvenanceKind = "library"
	ProvenanceSearch  ProvenanceKind = "search"
)

// Provenance attributes one piece of context. Title and Source are "N/A"
// when a library chunk has no report reference.
type Provenance struct {
	Kind   ProvenanceKind `json:"kind"`
	Query  string         `json:"query"`
	Title  string         `json:"title"`
	Source string         `json:"source"`
	URL    string         `json:"url,omitempty"`
	Page   int            `json:"page,omitempty"`
}

type LibraryAnswer struct {
	Answer     string       `json:"answer"`
	Hits       []LibraryHit `json:"hits"`
	Provenance []Provenance `json:"provenance"`
}

type SearchContext struct {
	Answers    []SourcedAnswer `json:"answers"`
	Snippets   []Snippet       `json:"snippets"`
	Outcomes   []URLOutcome    `json:"outcomes"`
	Provenance []Provenance    `json:"provenance"`
}

// ContextBundle is the merged library and live search context for one query.
type ContextBundle struct {
	Query       string          `json:"query"`
	Library     string          `json:"library"`
	Search      []SourcedAnswer `json:"search"`
	Snippets    []Snippet       `json:"snippets"`
	Outcomes    []URLOutcome    `json:"outcomes"`
	Provenance  []Provenance    `json:"provenance"`
	SearchError string          `json:"searchError,omitempty"`
}

// SearchLines renders the search answers one per entry, optionally followed
// by the raw snippets.
func (b *ContextBundle) SearchLines(withSnippets bool) []string {
	lines := make([]string, 0, len(b.Search)+len(b.Snippets))
	for _, a := range b.Search {
		lines = append(lines, a.String())
	}
	if withSnippets {
		for _, s := range b.Snippets {
			lines = append(lines, s.String())
		}
	}
	return lines
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is used for ephemeral indexes when the embedder supports it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type LibraryStore interface {
	SearchChunks(ctx context.Context, query string, vector []float32, alpha float32, limit int) ([]LibraryHit, error)
}

type SearchClient interface {
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// PageLoader fetches a URL and returns its text in chunks.
type PageLoader interface {
	LoadChunks(ctx context.Context, url string) ([]string, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}
