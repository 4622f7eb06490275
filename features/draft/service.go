package draft

import (
	"context"
	"log/slog"
	"path/filepath"

	"quill/internal/pipeline"
	"quill/internal/prompt"
)

// Service runs the section pipeline for one outline into one output directory.
type Service struct {
	retriever  pipeline.ContextProvider
	generator  pipeline.Generator
	prompts    *prompt.Set
	snippets   bool
	defaultDir string
}

type Options struct {
	Prompts    *prompt.Set
	Snippets   bool
	DefaultDir string
}

func NewService(retriever pipeline.ContextProvider, generator pipeline.Generator, opts Options) *Service {
	return &Service{
		retriever:  retriever,
		generator:  generator,
		prompts:    opts.Prompts,
		snippets:   opts.Snippets,
		defaultDir: opts.DefaultDir,
	}
}

// Draft writes the post for outline under outputDir, or the default
// directory when it is empty. A post already in that directory is replaced;
// sections persisted before a failure stay on disk.
func (s *Service) Draft(ctx context.Context, outline, outputDir string) (*pipeline.RunResult, error) {
	dir := outputDir
	if dir == "" {
		dir = s.defaultDir
	}

	out, err := pipeline.NewFileOutput(dir)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithSnippets(s.snippets)}
	if s.prompts != nil {
		opts = append(opts, pipeline.WithPrompts(s.prompts))
	}

	res, err := pipeline.New(s.retriever, s.generator, out, opts...).Run(ctx, outline)
	if err != nil {
		return res, err
	}
	slog.InfoContext(ctx, "post drafted", "path", out.DocumentPath(), "sections", len(res.Sections))
	return res, nil
}

// DirFor maps a client supplied draft name to a directory under the default
// one. Only the last path element is kept.
func (s *Service) DirFor(name string) string {
	if name == "" {
		return s.defaultDir
	}
	return filepath.Join(s.defaultDir, filepath.Base(filepath.Clean("/"+name)))
}
