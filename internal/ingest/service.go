package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"quill/internal/document"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

type DocumentLoader interface {
	Load(ctx context.Context, doc *document.Document) (*LoadResult, error)
}

// Service turns files and scraped posts into loaded reports.
type Service struct {
	builder *document.Builder
	loader  DocumentLoader
}

func NewService(builder *document.Builder, loader DocumentLoader) *Service {
	return &Service{builder: builder, loader: loader}
}

// IngestFile loads a PDF or JSON report from disk. name is the file's original
// name and feeds the report metadata; when empty the base of path is used.
// Uploads live under generated names, so the same file uploaded twice must
// be given the same name to map to the same report.
func (s *Service) IngestFile(ctx context.Context, path, name string) (*LoadResult, error) {
	if name == "" {
		name = filepath.Base(path)
	}

	doc, err := s.readFile(path, name)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "ingesting file", "path", path, "name", name, "kind", doc.Kind, "chunks", len(doc.Chunks))
	return s.loader.Load(ctx, doc)
}

func (s *Service) IngestPost(ctx context.Context, post document.Post) (*LoadResult, error) {
	doc := s.builder.FromPost(post)
	slog.InfoContext(ctx, "ingesting post", "url", post.URL, "source", post.Source, "chunks", len(doc.Chunks))
	return s.loader.Load(ctx, doc)
}

func (s *Service) readFile(path, name string) (*document.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		return s.builder.FromPDF(f, info.Size(), name)
	case ".json":
		return s.builder.FromJSON(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
}
