package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

const (
	ReportClass = "Report"
	ChunkClass  = "ReportChunk"

	// PropFromReport links a chunk to its owning report.
	PropFromReport = "fromReport"
	// PropHasChunks links a report to every chunk it owns.
	PropHasChunks = "hasChunks"
)

// Report is a stored report without its chunks.
type Report struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	PublishedAt string `json:"publishedAt"`
	URL         string `json:"url"`
	SourceName  string `json:"sourceName"`
}

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

type classSpec struct {
	name        string
	description string
	properties  []*models.Property
}

func reportSpec() classSpec {
	return classSpec{
		name:        ReportClass,
		description: "An ingested report, article or post",
		properties: []*models.Property{
			{Name: "title", DataType: []string{"text"}},
			{Name: "author", DataType: []string{"text"}},
			{Name: "publishedAt", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "url", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "sourceName", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "contentHash", DataType: []string{"text"}, Tokenization: "field"},
		},
	}
}

func chunkSpec() classSpec {
	return classSpec{
		name:        ChunkClass,
		description: "A token bounded fragment of a report",
		properties: []*models.Property{
			{Name: "chunk", DataType: []string{"text"}},
			{Name: "page", DataType: []string{"int"}},
			{Name: "contentHash", DataType: []string{"text"}, Tokenization: "field"},
		},
	}
}

// EnsureSchema creates the Report and ReportChunk classes, adds any missing
// scalar properties, then adds the cross references once both classes exist.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	for _, spec := range []classSpec{reportSpec(), chunkSpec()} {
		if err := ensureClass(ctx, client, spec); err != nil {
			return fmt.Errorf("ensure class %s: %w", spec.name, err)
		}
	}

	refs := map[string]*models.Property{
		ChunkClass:  {Name: PropFromReport, DataType: []string{ReportClass}},
		ReportClass: {Name: PropHasChunks, DataType: []string{ChunkClass}},
	}
	for className, prop := range refs {
		if err := ensureProperties(ctx, client, className, []*models.Property{prop}); err != nil {
			return fmt.Errorf("ensure reference %s.%s: %w", className, prop.Name, err)
		}
	}

	return nil
}

func ensureClass(ctx context.Context, client SchemaClient, spec classSpec) error {
	exists, err := client.ClassExists(ctx, spec.name)
	if err != nil {
		return err
	}

	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       spec.name,
			Description: spec.description,
			Vectorizer:  "none",
			Properties:  spec.properties,
		})
	}

	return ensureProperties(ctx, client, spec.name, spec.properties)
}

func ensureProperties(ctx context.Context, client SchemaClient, className string, props []*models.Property) error {
	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existing := make(map[string]bool)
	if class != nil {
		for _, p := range class.Properties {
			existing[p.Name] = true
		}
	}

	for _, p := range props {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, className, p); err != nil {
			return err
		}
	}
	return nil
}
