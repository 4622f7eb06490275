package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Render(t *testing.T) {
	tmpl := MustNew("greet", "Hello {{.name}} from {{.place}}", "name", "place")

	t.Run("Success", func(t *testing.T) {
		out, err := tmpl.Render(map[string]string{"name": "Ann", "place": "Oslo"})
		require.NoError(t, err)
		assert.Equal(t, "Hello Ann from Oslo", out)
	})

	t.Run("Missing Variable", func(t *testing.T) {
		_, err := tmpl.Render(map[string]string{"name": "Ann"})
		assert.ErrorIs(t, err, ErrPromptVariables)
	})

	t.Run("Extra Variable", func(t *testing.T) {
		_, err := tmpl.Render(map[string]string{"name": "Ann", "place": "Oslo", "mood": "happy"})
		assert.ErrorIs(t, err, ErrPromptVariables)
	})
}

func TestNew_RejectsUndeclaredReference(t *testing.T) {
	_, err := New("bad", "{{.input}} {{.other}}", "input")
	assert.ErrorIs(t, err, ErrPromptVariables)

	_, err = New("broken", "{{.input", "input")
	assert.Error(t, err)
}

func TestDefaultSet(t *testing.T) {
	set := DefaultSet()

	out, err := set.Section.Render(map[string]string{"library": "LIB", "search": "WEB", "input": "Intro"})
	require.NoError(t, err)
	assert.Contains(t, out, "LIBRARY CONTEXT:\nLIB")
	assert.Contains(t, out, "SEARCH CONTEXT:\nWEB")
	assert.Contains(t, out, "SECTION\nIntro")

	assert.ElementsMatch(t, []string{"input"}, set.Questions.Vars)
	assert.ElementsMatch(t, []string{"summaries", "question"}, set.SourcedAnswer.Vars)
}

func TestLoadSet(t *testing.T) {
	dir := t.TempDir()

	t.Run("Override", func(t *testing.T) {
		path := filepath.Join(dir, "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("questions: |\n  Ask about {{.input}}\n"), 0o644))

		set, err := LoadSet(path)
		require.NoError(t, err)
		out, err := set.Questions.Render(map[string]string{"input": "rates"})
		require.NoError(t, err)
		assert.Equal(t, "Ask about rates\n", out)
		assert.Equal(t, DefaultSet().Section.Name, set.Section.Name)
	})

	t.Run("Rejects Wrong Variables", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("section: \"{{.topic}}\"\n"), 0o644))

		_, err := LoadSet(path)
		assert.ErrorIs(t, err, ErrPromptVariables)
	})

	t.Run("Empty Path", func(t *testing.T) {
		set, err := LoadSet("")
		require.NoError(t, err)
		assert.NotNil(t, set.Questions)
	})
}
