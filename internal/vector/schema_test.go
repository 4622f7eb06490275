package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/weaviate/weaviate/entities/models"
)

type MockSchemaClient struct {
	Classes         map[string]*models.Class
	AddedProperties map[string][]string
	ExistsErr       error
}

func newMockSchemaClient() *MockSchemaClient {
	return &MockSchemaClient{
		Classes:         make(map[string]*models.Class),
		AddedProperties: make(map[string][]string),
	}
}

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	_, ok := m.Classes[className]
	return ok, nil
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	m.Classes[class.Class] = class
	return nil
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return m.Classes[className], nil
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	if _, ok := m.Classes[className]; !ok {
		return errors.New("class not found: " + className)
	}
	m.Classes[className].Properties = append(m.Classes[className].Properties, property)
	m.AddedProperties[className] = append(m.AddedProperties[className], property.Name)
	return nil
}

func propType(class *models.Class, name string) string {
	for _, p := range class.Properties {
		if p.Name == name && len(p.DataType) > 0 {
			return p.DataType[0]
		}
	}
	return ""
}

func TestEnsureSchema_CreatesClassesAndReferences(t *testing.T) {
	client := newMockSchemaClient()
	if err := EnsureSchema(context.Background(), client); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	report, ok := client.Classes[ReportClass]
	if !ok {
		t.Fatal("Report class not created")
	}
	chunk, ok := client.Classes[ChunkClass]
	if !ok {
		t.Fatal("ReportChunk class not created")
	}

	if report.Vectorizer != "none" || chunk.Vectorizer != "none" {
		t.Errorf("expected vectorizer none, got %q and %q", report.Vectorizer, chunk.Vectorizer)
	}

	if got := propType(chunk, PropFromReport); got != ReportClass {
		t.Errorf("fromReport should target Report, got %q", got)
	}
	if got := propType(report, PropHasChunks); got != ChunkClass {
		t.Errorf("hasChunks should target ReportChunk, got %q", got)
	}
	if got := propType(chunk, "page"); got != "int" {
		t.Errorf("page should be int, got %q", got)
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	client := newMockSchemaClient()
	ctx := context.Background()

	if err := EnsureSchema(ctx, client); err != nil {
		t.Fatalf("first EnsureSchema failed: %v", err)
	}
	before := len(client.Classes[ChunkClass].Properties)

	if err := EnsureSchema(ctx, client); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
	if after := len(client.Classes[ChunkClass].Properties); after != before {
		t.Errorf("properties duplicated: %d -> %d", before, after)
	}
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	client := newMockSchemaClient()
	client.Classes[ChunkClass] = &models.Class{
		Class: ChunkClass,
		Properties: []*models.Property{
			{Name: "chunk", DataType: []string{"text"}},
		},
	}

	if err := EnsureSchema(context.Background(), client); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	added := map[string]bool{}
	for _, name := range client.AddedProperties[ChunkClass] {
		added[name] = true
	}
	for _, want := range []string{"page", "contentHash", PropFromReport} {
		if !added[want] {
			t.Errorf("expected property %s to be added", want)
		}
	}
	if added["chunk"] {
		t.Error("existing property should not be re-added")
	}
}

func TestEnsureSchema_PropagatesErrors(t *testing.T) {
	client := newMockSchemaClient()
	client.ExistsErr = errors.New("weaviate down")

	if err := EnsureSchema(context.Background(), client); err == nil {
		t.Fatal("expected error")
	}
}
