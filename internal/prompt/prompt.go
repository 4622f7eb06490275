package prompt

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// ErrPromptVariables is returned when a render call does not supply exactly
// the variables a template declares.
var ErrPromptVariables = errors.New("prompt variables mismatch")

type Template struct {
	Name string
	Vars []string
	tmpl *template.Template
}

func New(name, text string, vars ...string) (*Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}

	p := &Template{Name: name, Vars: vars, tmpl: t}

	// a template may only reference what it declares
	probe := make(map[string]string, len(vars))
	for _, v := range vars {
		probe[v] = ""
	}
	if _, err := p.Render(probe); err != nil {
		return nil, err
	}
	return p, nil
}

func MustNew(name, text string, vars ...string) *Template {
	t, err := New(name, text, vars...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Render(vars map[string]string) (string, error) {
	if err := t.check(vars); err != nil {
		return "", err
	}

	var b strings.Builder
	if err := t.tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPromptVariables, t.Name, err)
	}
	return b.String(), nil
}

func (t *Template) check(vars map[string]string) error {
	got := make([]string, 0, len(vars))
	for k := range vars {
		got = append(got, k)
	}
	want := append([]string(nil), t.Vars...)
	sort.Strings(got)
	sort.Strings(want)

	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("%w: %s expects [%s], got [%s]",
			ErrPromptVariables, t.Name, strings.Join(want, ", "), strings.Join(got, ", "))
	}
	return nil
}

// Set holds every prompt the drafting flow renders.
type Set struct {
	Questions     *Template
	Section       *Template
	LibraryAnswer *Template
	SourcedAnswer *Template
}

const (
	questionsText = `You are a senior writer preparing to write one section of a long-form article.

Suppose you have been given the following task:
{{.input}}

What questions would you want to ask and answer in order to complete the task?

Please make a numbered list of 1-3 such questions, one per line.

QUESTIONS:
`

	sectionText = `You are a senior writer drafting a long-form article one SECTION at a time.
Below is the SECTION you are writing now. Follow its heading, length and guidance,
but do not repeat them in your response.

Some CONTEXT is provided below. If it is not related to this SECTION, ignore it.

LIBRARY CONTEXT:
{{.library}}

SEARCH CONTEXT:
{{.search}}

Add relevant information the CONTEXT does not capture. Respond using markdown and
cite the sources you reference using footnotes.

SECTION
{{.input}}
`

	libraryAnswerText = `Use only the following pieces of context to answer the question at the end.
If you don't know the answer, say that you don't know.

{{.context}}

Question: {{.question}}
Helpful Answer:`

	sourcedAnswerText = `Given the following extracted parts of a document and a question, write a final
answer and list the sources you used. If you don't know the answer, say so.
Always reply in the form:
ANSWER: <answer>
SOURCES: <comma separated sources>

QUESTION: {{.question}}
=========
{{.summaries}}
=========
`
)

func DefaultSet() *Set {
	return &Set{
		Questions:     MustNew("questions", questionsText, "input"),
		Section:       MustNew("section", sectionText, "library", "search", "input"),
		LibraryAnswer: MustNew("library_answer", libraryAnswerText, "context", "question"),
		SourcedAnswer: MustNew("sourced_answer", sourcedAnswerText, "summaries", "question"),
	}
}

type fileSet struct {
	Questions     string `yaml:"questions"`
	Section       string `yaml:"section"`
	LibraryAnswer string `yaml:"library_answer"`
	SourcedAnswer string `yaml:"sourced_answer"`
}

// LoadSet overrides the default prompt texts with those found in a YAML file.
// Variables are fixed per prompt; a text referencing anything else is rejected.
func LoadSet(path string) (*Set, error) {
	set := DefaultSet()
	if path == "" {
		return set, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var fs fileSet
	if err := yaml.Unmarshal(raw, &fs); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}

	overrides := []struct {
		text string
		dst  **Template
	}{
		{fs.Questions, &set.Questions},
		{fs.Section, &set.Section},
		{fs.LibraryAnswer, &set.LibraryAnswer},
		{fs.SourcedAnswer, &set.SourcedAnswer},
	}
	for _, o := range overrides {
		if o.text == "" {
			continue
		}
		current := *o.dst
		t, err := New(current.Name, o.text, current.Vars...)
		if err != nil {
			return nil, err
		}
		*o.dst = t
	}
	return set, nil
}
