package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"quill/internal/document"
	"quill/internal/scraper"
	"quill/internal/text"
)

// DefaultPageChunkTokens is the chunk size for live search pages.
const DefaultPageChunkTokens = 100

type HTMLFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// WebPageLoader turns a search result URL into chunks. Links ending in .pdf
// are downloaded and read page by page; anything else is fetched as HTML and
// reduced to its visible text.
type WebPageLoader struct {
	fetcher    HTMLFetcher
	downloader Downloader
	counter    text.TokenCounter
	maxTokens  int
}

func NewWebPageLoader(f HTMLFetcher, d Downloader, counter text.TokenCounter, maxTokens int) *WebPageLoader {
	if maxTokens <= 0 {
		maxTokens = DefaultPageChunkTokens
	}
	return &WebPageLoader{fetcher: f, downloader: d, counter: counter, maxTokens: maxTokens}
}

func (l *WebPageLoader) LoadChunks(ctx context.Context, rawURL string) ([]string, error) {
	if isPDF(rawURL) {
		return l.loadPDF(ctx, rawURL)
	}

	page, err := l.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	body, err := scraper.VisibleText(page)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return text.Chunk(body, l.maxTokens, l.counter), nil
}

func (l *WebPageLoader) loadPDF(ctx context.Context, rawURL string) ([]string, error) {
	if l.downloader == nil {
		return nil, fmt.Errorf("no downloader for pdf %s", rawURL)
	}
	raw, err := l.downloader.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	pages, _, err := document.ReadPDF(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}
	chunks, _ := text.ChunkPages(pages, l.maxTokens, l.counter)
	return chunks, nil
}

func isPDF(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
