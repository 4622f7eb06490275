package app

import (
	"context"
	"sync"

	"quill/internal/ingest"
	"quill/internal/retrieval"
	"quill/internal/vector"
)

// MockVectorStore is an in-memory stand-in for the Weaviate store.
type MockVectorStore struct {
	EnsureSchemaErr error
	Reports         int
	Chunks          int
}

func (m *MockVectorStore) Exists(ctx context.Context, class, id string) (bool, error) {
	return false, nil
}

func (m *MockVectorStore) CreateIfAbsent(ctx context.Context, obj ingest.Object) error {
	return nil
}

func (m *MockVectorStore) HasReference(ctx context.Context, ref ingest.Reference) (bool, error) {
	return false, nil
}

func (m *MockVectorStore) AddReferences(ctx context.Context, refs []ingest.Reference) error {
	return nil
}

func (m *MockVectorStore) AddReference(ctx context.Context, ref ingest.Reference) error {
	return nil
}

func (m *MockVectorStore) SearchChunks(ctx context.Context, query string, vec []float32, alpha float32, limit int) ([]retrieval.LibraryHit, error) {
	return nil, nil
}

func (m *MockVectorStore) ListReports(ctx context.Context, sourceName string, limit, offset int) ([]vector.Report, error) {
	return nil, nil
}

func (m *MockVectorStore) CountReports(ctx context.Context) (int, error) {
	return m.Reports, nil
}

func (m *MockVectorStore) CountChunks(ctx context.Context) (int, error) {
	return m.Chunks, nil
}

func (m *MockVectorStore) EnsureSchema(ctx context.Context) error {
	return m.EnsureSchemaErr
}

type MockPublisher struct {
	mu       sync.Mutex
	Messages map[string][][]byte
}

func (p *MockPublisher) Publish(topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Messages == nil {
		p.Messages = make(map[string][][]byte)
	}
	p.Messages[topic] = append(p.Messages[topic], body)
	return nil
}
