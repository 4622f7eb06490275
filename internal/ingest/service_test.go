package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quill/internal/document"
	"quill/internal/testutils"
	"quill/internal/text"
	"quill/internal/vector"
)

type MockLoader struct{ mock.Mock }

func (m *MockLoader) Load(ctx context.Context, doc *document.Document) (*LoadResult, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*LoadResult), args.Error(1)
}

func newTestService(l DocumentLoader) *Service {
	return NewService(document.NewBuilder(100, text.ApproxCounter{CharsPerToken: 4}), l)
}

func TestService_IngestFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	raw := `{"content":"Body text.","title":"T","author":"A","date":"2023-06-01T10:00:00Z","url":"https://x","source":"S"}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	loader := new(MockLoader)
	loader.On("Load", mock.Anything, mock.MatchedBy(func(d *document.Document) bool {
		return d.Kind == document.KindJSON && d.Meta.Date == "2023-06-01" && len(d.Chunks) == 1
	})).Return(&LoadResult{ReportID: "r1"}, nil)

	res, err := newTestService(loader).IngestFile(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, "r1", res.ReportID)
	loader.AssertExpectations(t)
}

func TestService_IngestFile_Errors(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))

	s := newTestService(new(MockLoader))

	_, err := s.IngestFile(context.Background(), txt, "")
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = s.IngestFile(context.Background(), filepath.Join(dir, "missing.json"), "")
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"content":"x"}`), 0o644))
	_, err = s.IngestFile(context.Background(), bad, "")
	assert.ErrorIs(t, err, document.ErrMissingField)
}

func TestService_IngestFile_SameUploadMapsToSameReport(t *testing.T) {
	dir := t.TempDir()
	raw := testutils.BuildPDF(testutils.PDFInfo{Author: "Intel Team", CreationDate: "D:20230314093015Z"},
		"Initial access came through a phishing lure.")

	first := filepath.Join(dir, "11111111-aaaa_report.pdf")
	second := filepath.Join(dir, "22222222-bbbb_report.pdf")
	require.NoError(t, os.WriteFile(first, raw, 0o644))
	require.NoError(t, os.WriteFile(second, raw, 0o644))

	store := newMemStore()
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)
	s := NewService(document.NewBuilder(100, text.ApproxCounter{CharsPerToken: 4}), NewLoader(store, emb, fastRetry))

	a, err := s.IngestFile(context.Background(), first, "report.pdf")
	require.NoError(t, err)
	b, err := s.IngestFile(context.Background(), second, "report.pdf")
	require.NoError(t, err)

	assert.Equal(t, a.ReportID, b.ReportID)
	assert.Equal(t, a.ChunkIDs, b.ChunkIDs)
	assert.True(t, a.ReportCreated)
	assert.False(t, b.ReportCreated)
	assert.Zero(t, b.ChunksCreated)
	assert.Equal(t, 1, store.count(vector.ReportClass))
	assert.Equal(t, len(a.ChunkIDs), store.count(vector.ChunkClass))

	report := store.objects[vector.ReportClass+"/"+a.ReportID]
	assert.Equal(t, "report.pdf", report.Properties["sourceName"])
	chunk := store.objects[vector.ChunkClass+"/"+a.ChunkIDs[0]]
	assert.Contains(t, chunk.Properties["chunk"], "Title: report.pdf\n")
}

func TestService_IngestFile_DefaultsNameToPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q3.pdf")
	require.NoError(t, os.WriteFile(path, testutils.BuildPDF(testutils.PDFInfo{}, "Body text."), 0o644))

	loader := new(MockLoader)
	loader.On("Load", mock.Anything, mock.MatchedBy(func(d *document.Document) bool {
		return d.Kind == document.KindPDF && d.Meta.Source == "q3.pdf"
	})).Return(&LoadResult{ReportID: "r1"}, nil)

	_, err := newTestService(loader).IngestFile(context.Background(), path, "")
	require.NoError(t, err)
	loader.AssertExpectations(t)
}

func TestService_IngestPost(t *testing.T) {
	loader := new(MockLoader)
	loader.On("Load", mock.Anything, mock.MatchedBy(func(d *document.Document) bool {
		return d.Kind == document.KindPost && d.Meta.Source == "Blog"
	})).Return(&LoadResult{ReportID: "p1"}, nil)

	post := document.Post{
		URL:     "https://blog/p",
		Title:   "Post",
		Author:  "Author",
		Date:    time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Content: "Something happened.",
		Source:  "Blog",
	}
	res, err := newTestService(loader).IngestPost(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, "p1", res.ReportID)
}
