// Package pipeline drafts a long-form document section by section from an
// outline, gathering library and live search context for each section.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"quill/internal/prompt"
	"quill/internal/retrieval"
)

const sectionDelimiter = "SECTION:\n"

// questionMarkerLen is the width of the enumeration prefix ("1. ") the model
// puts in front of each question.
const questionMarkerLen = 3

var ErrNoSections = errors.New("outline contains no sections")

type Stage int

const (
	StageDecomposed Stage = iota
	StageQuestionsDrafted
	StageContextGathered
	StageSectionDrafted
	StagePersisted
)

func (s Stage) String() string {
	switch s {
	case StageDecomposed:
		return "decomposed"
	case StageQuestionsDrafted:
		return "questions_drafted"
	case StageContextGathered:
		return "context_gathered"
	case StageSectionDrafted:
		return "section_drafted"
	case StagePersisted:
		return "persisted"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// SectionTask is one outline entry, kept verbatim.
type SectionTask struct {
	Index int
	Text  string
}

type ContextProvider interface {
	GetContext(ctx context.Context, query string) (*retrieval.ContextBundle, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Output persists section records and the cumulative document.
// Output persists a run. Reset is called once before the first section so a
// rerun into the same place starts from an empty document.
type Output interface {
	Reset() error
	WriteSection(index int, prompt, draft string) error
	Append(draft string) error
}

type SectionResult struct {
	Task       SectionTask            `json:"task"`
	Stage      Stage                  `json:"stage"`
	Questions  []string               `json:"questions"`
	Library    []string               `json:"library"`
	Search     []string               `json:"search"`
	Outcomes   []retrieval.URLOutcome `json:"outcomes"`
	Provenance []retrieval.Provenance `json:"provenance"`
	Prompt     string                 `json:"prompt"`
	Draft      string                 `json:"draft"`
}

type RunResult struct {
	Sections []SectionResult `json:"sections"`
}

type Pipeline struct {
	retriever       ContextProvider
	generator       Generator
	prompts         *prompt.Set
	output          Output
	includeSnippets bool
}

type Option func(*Pipeline)

func WithPrompts(set *prompt.Set) Option {
	return func(p *Pipeline) { p.prompts = set }
}

// WithSnippets appends raw search snippets to each question's search context.
func WithSnippets(include bool) Option {
	return func(p *Pipeline) { p.includeSnippets = include }
}

func New(retriever ContextProvider, generator Generator, output Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		retriever: retriever,
		generator: generator,
		output:    output,
		prompts:   prompt.DefaultSet(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decompose splits an outline into sections. Text before the first
// delimiter is discarded.
func Decompose(outline string) []SectionTask {
	parts := strings.Split(outline, sectionDelimiter)
	if len(parts) < 2 {
		return nil
	}
	tasks := make([]SectionTask, 0, len(parts)-1)
	for i, p := range parts[1:] {
		tasks = append(tasks, SectionTask{Index: i, Text: p})
	}
	return tasks
}

// ParseQuestions takes one question per line, dropping the enumeration
// marker and any line left empty.
func ParseQuestions(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		r := []rune(strings.TrimSpace(line))
		if len(r) <= questionMarkerLen {
			continue
		}
		if q := strings.TrimSpace(string(r[questionMarkerLen:])); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// Run drafts every section in outline order. The first section-level error
// stops the run; sections persisted before it stay on disk.
func (p *Pipeline) Run(ctx context.Context, outline string) (*RunResult, error) {
	tasks := Decompose(outline)
	if len(tasks) == 0 {
		return nil, ErrNoSections
	}
	slog.InfoContext(ctx, "outline decomposed", "sections", len(tasks))

	if err := p.output.Reset(); err != nil {
		return nil, fmt.Errorf("reset output: %w", err)
	}

	res := &RunResult{}
	for _, task := range tasks {
		sec, err := p.runSection(ctx, task)
		if err != nil {
			return res, fmt.Errorf("section %d: %w", task.Index, err)
		}
		res.Sections = append(res.Sections, *sec)
	}
	return res, nil
}

func (p *Pipeline) runSection(ctx context.Context, task SectionTask) (*SectionResult, error) {
	sec := &SectionResult{Task: task, Stage: StageDecomposed}

	qPrompt, err := p.prompts.Questions.Render(map[string]string{"input": task.Text})
	if err != nil {
		return nil, err
	}
	raw, err := p.generator.Generate(ctx, qPrompt)
	if err != nil {
		return nil, fmt.Errorf("draft questions: %w", err)
	}
	sec.Questions = ParseQuestions(raw)
	p.advance(ctx, sec, StageQuestionsDrafted, "questions", len(sec.Questions))

	for _, q := range sec.Questions {
		bundle, err := p.retriever.GetContext(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("gather context for %q: %w", q, err)
		}
		if bundle.Library != "" {
			sec.Library = append(sec.Library, bundle.Library)
		}
		sec.Search = append(sec.Search, bundle.SearchLines(p.includeSnippets)...)
		sec.Outcomes = append(sec.Outcomes, bundle.Outcomes...)
		sec.Provenance = append(sec.Provenance, bundle.Provenance...)
	}
	p.advance(ctx, sec, StageContextGathered, "library", len(sec.Library), "search", len(sec.Search))

	sec.Prompt, err = p.prompts.Section.Render(map[string]string{
		"input":   task.Text,
		"library": strings.Join(sec.Library, "\n"),
		"search":  strings.Join(sec.Search, "\n"),
	})
	if err != nil {
		return nil, err
	}
	sec.Draft, err = p.generator.Generate(ctx, sec.Prompt)
	if err != nil {
		return nil, fmt.Errorf("draft section: %w", err)
	}
	p.advance(ctx, sec, StageSectionDrafted, "length", len(sec.Draft))

	if err := p.output.WriteSection(task.Index, sec.Prompt, sec.Draft); err != nil {
		return nil, fmt.Errorf("persist section: %w", err)
	}
	if err := p.output.Append(sec.Draft); err != nil {
		return nil, fmt.Errorf("append draft: %w", err)
	}
	p.advance(ctx, sec, StagePersisted)

	return sec, nil
}

func (p *Pipeline) advance(ctx context.Context, sec *SectionResult, stage Stage, attrs ...any) {
	sec.Stage = stage
	args := append([]any{"section", sec.Task.Index, "stage", stage.String()}, attrs...)
	slog.InfoContext(ctx, "section advanced", args...)
}
