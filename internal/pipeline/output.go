package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	sectionsDir  = "sections"
	DocumentName = "post.md"
)

// FileOutput writes section records under Dir/sections and appends drafts to
// Dir/post.md.
type FileOutput struct {
	Dir string
}

func NewFileOutput(dir string) (*FileOutput, error) {
	if err := os.MkdirAll(filepath.Join(dir, sectionsDir), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileOutput{Dir: dir}, nil
}

// Reset empties post.md and drops section files left by an earlier run.
func (o *FileOutput) Reset() error {
	base := filepath.Join(o.Dir, sectionsDir)
	if err := os.RemoveAll(base); err != nil {
		return err
	}
	if err := os.MkdirAll(base, 0o750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(o.Dir, DocumentName), nil, 0o600)
}

func (o *FileOutput) WriteSection(index int, prompt, draft string) error {
	base := filepath.Join(o.Dir, sectionsDir)
	if err := os.WriteFile(filepath.Join(base, fmt.Sprintf("section_prompt%d.txt", index)), []byte(prompt), 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(base, fmt.Sprintf("section%d.txt", index)), []byte(draft), 0o600)
}

func (o *FileOutput) Append(draft string) error {
	f, err := os.OpenFile(filepath.Join(o.Dir, DocumentName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(draft + "\n\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (o *FileOutput) DocumentPath() string {
	return filepath.Join(o.Dir, DocumentName)
}
