package document

import (
	"encoding/json"
	"fmt"
	"io"

	"quill/internal/text"
)

// Document is the chunked form of one report, ready for loading.
// Pages is parallel to Chunks; 0 means the input had no pages.
type Document struct {
	Kind   Kind
	Chunks []string
	Pages  []int
	Meta   Metadata
}

type JSONReport struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

var requiredJSONFields = []string{"content", "title", "author", "date", "url", "source"}

// Builder turns raw inputs into chunked documents.
type Builder struct {
	MaxTokens int
	Counter   text.TokenCounter
}

func NewBuilder(maxTokens int, counter text.TokenCounter) *Builder {
	return &Builder{MaxTokens: maxTokens, Counter: counter}
}

func (b *Builder) FromPDF(r io.ReaderAt, size int64, fileName string) (*Document, error) {
	pages, info, err := ReadPDF(r, size)
	if err != nil {
		return nil, err
	}

	chunks, nums := text.ChunkPages(pages, b.MaxTokens, b.Counter)
	meta := ExtractPDF(info, fileName)

	return &Document{
		Kind:   KindPDF,
		Chunks: Decorate(chunks, meta, fileName),
		Pages:  nums,
		Meta:   meta,
	}, nil
}

func (b *Builder) FromJSON(r io.Reader) (*Document, error) {
	report, err := DecodeJSONReport(r)
	if err != nil {
		return nil, err
	}

	meta := ExtractJSON(*report)
	chunks := text.Chunk(report.Content, b.MaxTokens, b.Counter)

	return &Document{
		Kind:   KindJSON,
		Chunks: Decorate(chunks, meta, ""),
		Pages:  make([]int, len(chunks)),
		Meta:   meta,
	}, nil
}

func (b *Builder) FromPost(p Post) *Document {
	meta := ExtractPost(p)
	chunks := text.Chunk(p.Content, b.MaxTokens, b.Counter)

	return &Document{
		Kind:   KindPost,
		Chunks: Decorate(chunks, meta, ""),
		Pages:  make([]int, len(chunks)),
		Meta:   meta,
	}
}

// DecodeJSONReport reads a JSON report and rejects documents missing any
// required field.
func DecodeJSONReport(r io.Reader) (*JSONReport, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid json report: %w", err)
	}
	for _, f := range requiredJSONFields {
		if _, ok := raw[f]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f)
		}
	}

	var report JSONReport
	for field, dst := range map[string]*string{
		"content": &report.Content,
		"title":   &report.Title,
		"author":  &report.Author,
		"date":    &report.Date,
		"url":     &report.URL,
		"source":  &report.Source,
	} {
		if err := json.Unmarshal(raw[field], dst); err != nil {
			return nil, fmt.Errorf("invalid field %s: %w", field, err)
		}
	}
	return &report, nil
}
