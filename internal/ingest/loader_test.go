package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quill/internal/document"
	"quill/internal/vector"
)

type memStore struct {
	objects map[string]Object
	refs    map[string]int

	createFailures int
	createErr      error
	batchErr       error
	addRefErr      error
	batchCalls     int
	createCalls    int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]Object{}, refs: map[string]int{}}
}

func refKey(r Reference) string {
	return fmt.Sprintf("%s/%s.%s->%s/%s", r.FromClass, r.FromID, r.Property, r.ToClass, r.ToID)
}

func (s *memStore) Exists(ctx context.Context, class, id string) (bool, error) {
	_, ok := s.objects[class+"/"+id]
	return ok, nil
}

func (s *memStore) CreateIfAbsent(ctx context.Context, obj Object) error {
	s.createCalls++
	if s.createFailures > 0 {
		s.createFailures--
		return errors.New("connection reset")
	}
	if s.createErr != nil {
		return s.createErr
	}
	key := obj.Class + "/" + obj.ID
	if _, ok := s.objects[key]; ok {
		return ErrAlreadyExists
	}
	s.objects[key] = obj
	return nil
}

func (s *memStore) HasReference(ctx context.Context, ref Reference) (bool, error) {
	return s.refs[refKey(ref)] > 0, nil
}

func (s *memStore) AddReferences(ctx context.Context, refs []Reference) error {
	s.batchCalls++
	if s.batchErr != nil {
		return s.batchErr
	}
	for _, r := range refs {
		s.refs[refKey(r)]++
	}
	return nil
}

func (s *memStore) AddReference(ctx context.Context, ref Reference) error {
	if s.addRefErr != nil {
		return s.addRefErr
	}
	s.refs[refKey(ref)]++
	return nil
}

func (s *memStore) count(class string) int {
	n := 0
	for _, o := range s.objects {
		if o.Class == class {
			n++
		}
	}
	return n
}

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

var fastRetry = WithRetryPolicy(RetryPolicy{Initial: time.Millisecond, Max: 2 * time.Millisecond, Attempts: 6})

func testDoc() *document.Document {
	return &document.Document{
		Kind:   document.KindJSON,
		Chunks: []string{"chunk one", "chunk two", "chunk three"},
		Pages:  []int{0, 0, 0},
		Meta:   document.Metadata{Title: "T", Author: "A", Date: "2023-06-01", URL: "https://x", Source: "S"},
	}
}

func TestLoader_Load(t *testing.T) {
	store := newMemStore()
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)

	l := NewLoader(store, emb, fastRetry)
	res, err := l.Load(context.Background(), testDoc())
	require.NoError(t, err)

	assert.Equal(t, 3, res.ChunksCreated)
	assert.True(t, res.ReportCreated)
	assert.Equal(t, 3, res.ChunkRefsAdded)
	assert.Equal(t, 3, res.ReportRefsAdded)
	assert.Equal(t, 3, store.count(vector.ChunkClass))
	assert.Equal(t, 1, store.count(vector.ReportClass))
	assert.Equal(t, 1, store.batchCalls)

	report := store.objects[vector.ReportClass+"/"+res.ReportID]
	assert.Equal(t, "S", report.Properties["sourceName"])
	assert.NotEmpty(t, report.Properties["contentHash"])

	for _, id := range res.ChunkIDs {
		assert.Equal(t, 1, store.refs[refKey(Reference{vector.ChunkClass, id, vector.PropFromReport, vector.ReportClass, res.ReportID})])
		assert.Equal(t, 1, store.refs[refKey(Reference{vector.ReportClass, res.ReportID, vector.PropHasChunks, vector.ChunkClass, id})])
	}
}

func TestLoader_Load_Idempotent(t *testing.T) {
	store := newMemStore()
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)

	l := NewLoader(store, emb, fastRetry)
	ctx := context.Background()

	first, err := l.Load(ctx, testDoc())
	require.NoError(t, err)
	second, err := l.Load(ctx, testDoc())
	require.NoError(t, err)

	assert.Equal(t, first.ReportID, second.ReportID)
	assert.Equal(t, first.ChunkIDs, second.ChunkIDs)
	assert.Equal(t, 0, second.ChunksCreated)
	assert.False(t, second.ReportCreated)
	assert.Equal(t, 0, second.ChunkRefsAdded)
	assert.Equal(t, 0, second.ReportRefsAdded)

	assert.Equal(t, 3, store.count(vector.ChunkClass))
	assert.Equal(t, 1, store.count(vector.ReportClass))
	for _, n := range store.refs {
		assert.Equal(t, 1, n)
	}
	// existing chunks are not embedded again
	emb.AssertNumberOfCalls(t, "Embed", 3)
}

func TestLoader_Load_DuplicateChunkText(t *testing.T) {
	store := newMemStore()
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)

	doc := testDoc()
	doc.Chunks = []string{"same", "same"}
	doc.Pages = []int{1, 2}

	res, err := NewLoader(store, emb, fastRetry).Load(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, res.ChunkIDs, 1)
	assert.Equal(t, 1, store.count(vector.ChunkClass))
}

func TestLoader_Load_ResumesAfterInterruptedPass(t *testing.T) {
	store := newMemStore()
	store.addRefErr = ErrInvalidObject
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)

	l := NewLoader(store, emb, fastRetry)
	ctx := context.Background()

	_, err := l.Load(ctx, testDoc())
	require.Error(t, err)
	assert.Len(t, store.refs, 3, "first pass committed")

	store.addRefErr = nil
	res, err := l.Load(ctx, testDoc())
	require.NoError(t, err)
	assert.Equal(t, 0, res.ChunksCreated)
	assert.Equal(t, 0, res.ChunkRefsAdded)
	assert.Equal(t, 3, res.ReportRefsAdded)
	assert.Len(t, store.refs, 6)
}

func TestLoader_Load_RetriesTransientFailures(t *testing.T) {
	store := newMemStore()
	store.createFailures = 2
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)

	res, err := NewLoader(store, emb, fastRetry).Load(context.Background(), testDoc())
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksCreated)
	assert.Equal(t, 6, store.createCalls)
}

func TestLoader_Load_ExhaustsRetries(t *testing.T) {
	store := newMemStore()
	store.createFailures = 100
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)

	_, err := NewLoader(store, emb, fastRetry).Load(context.Background(), testDoc())
	require.Error(t, err)
	assert.Equal(t, 6, store.createCalls)
}

func TestLoader_Load_InvalidObjectNotRetried(t *testing.T) {
	store := newMemStore()
	store.createErr = fmt.Errorf("%w: bad property", ErrInvalidObject)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)

	_, err := NewLoader(store, emb, fastRetry).Load(context.Background(), testDoc())
	require.ErrorIs(t, err, ErrInvalidObject)
	assert.Equal(t, 1, store.createCalls)
}

func TestLoader_Load_Validation(t *testing.T) {
	l := NewLoader(newMemStore(), new(MockEmbedder), fastRetry)

	_, err := l.Load(context.Background(), &document.Document{})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = l.Load(context.Background(), &document.Document{Chunks: []string{"a"}, Pages: nil})
	assert.Error(t, err)
}

func TestIDs_Deterministic(t *testing.T) {
	assert.Equal(t, ChunkID("abc"), ChunkID("abc"))
	assert.NotEqual(t, ChunkID("abc"), ChunkID("abd"))

	m := document.Metadata{Title: "T", Source: "S"}
	assert.Equal(t, ReportID(m), ReportID(m))
	m2 := m
	m2.Date = "2023-01-01"
	assert.NotEqual(t, ReportID(m), ReportID(m2))
}
