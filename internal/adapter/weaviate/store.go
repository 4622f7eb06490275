package weaviate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"quill/internal/ingest"
	"quill/internal/retrieval"
	"quill/internal/vector"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// mapWriteError translates 422 responses into the loader's sentinel errors.
func mapWriteError(err error) error {
	var werr *fault.WeaviateClientError
	if !errors.As(err, &werr) || werr.StatusCode != http.StatusUnprocessableEntity {
		return err
	}
	if strings.Contains(werr.Msg, "already exists") {
		return fmt.Errorf("%w: %s", ingest.ErrAlreadyExists, werr.Msg)
	}
	return fmt.Errorf("%w: %s", ingest.ErrInvalidObject, werr.Msg)
}

func (s *Store) Exists(ctx context.Context, class, id string) (bool, error) {
	return s.client.Data().Checker().WithClassName(class).WithID(id).Do(ctx)
}

func (s *Store) CreateIfAbsent(ctx context.Context, obj ingest.Object) error {
	creator := s.client.Data().Creator().
		WithClassName(obj.Class).
		WithID(obj.ID).
		WithProperties(obj.Properties)
	if len(obj.Vector) > 0 {
		creator = creator.WithVector(obj.Vector)
	}
	_, err := creator.Do(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// HasReference reads the source object and looks for a beacon ending in the
// target id.
func (s *Store) HasReference(ctx context.Context, ref ingest.Reference) (bool, error) {
	objs, err := s.client.Data().ObjectsGetter().
		WithClassName(ref.FromClass).
		WithID(ref.FromID).
		Do(ctx)
	if err != nil {
		var werr *fault.WeaviateClientError
		if errors.As(err, &werr) && werr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	if len(objs) == 0 {
		return false, nil
	}

	props, ok := objs[0].Properties.(map[string]interface{})
	if !ok {
		return false, nil
	}
	beacons, ok := props[ref.Property].([]interface{})
	if !ok {
		return false, nil
	}
	for _, b := range beacons {
		m, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		if beacon, _ := m["beacon"].(string); strings.HasSuffix(beacon, "/"+ref.ToID) {
			return true, nil
		}
	}
	return false, nil
}

// AddReferences sends refs as one batch and fails if any item was rejected.
func (s *Store) AddReferences(ctx context.Context, refs []ingest.Reference) error {
	if len(refs) == 0 {
		return nil
	}

	batch := make([]*models.BatchReference, len(refs))
	for i, r := range refs {
		batch[i] = s.client.Batch().ReferencePayloadBuilder().
			WithFromClassName(r.FromClass).
			WithFromRefProp(r.Property).
			WithFromID(r.FromID).
			WithToClassName(r.ToClass).
			WithToID(r.ToID).
			Payload()
	}

	resp, err := s.client.Batch().ReferencesBatcher().WithReferences(batch...).Do(ctx)
	if err != nil {
		return err
	}

	var msgs []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("batch references rejected: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func (s *Store) AddReference(ctx context.Context, ref ingest.Reference) error {
	payload := s.client.Data().ReferencePayloadBuilder().
		WithClassName(ref.ToClass).
		WithID(ref.ToID).
		Payload()

	err := s.client.Data().ReferenceCreator().
		WithClassName(ref.FromClass).
		WithID(ref.FromID).
		WithReferenceProperty(ref.Property).
		WithReference(payload).
		Do(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Store) SearchChunks(ctx context.Context, query string, vec []float32, alpha float32, limit int) ([]retrieval.LibraryHit, error) {
	hybrid := s.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithVector(vec).
		WithAlpha(alpha)

	fields := []graphql.Field{
		{Name: "chunk"},
		{Name: "page"},
		{Name: vector.PropFromReport, Fields: []graphql.Field{
			{Name: "... on " + vector.ReportClass, Fields: []graphql.Field{
				{Name: "title"},
				{Name: "sourceName"},
				{Name: "url"},
			}},
		}},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ChunkClass).
		WithHybrid(hybrid).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var hits []retrieval.LibraryHit
	for _, props := range getRows(res, vector.ChunkClass) {
		hit := retrieval.LibraryHit{}
		hit.Content, _ = props["chunk"].(string)
		if page, ok := props["page"].(float64); ok {
			hit.Page = int(page)
		}

		if refs, ok := props[vector.PropFromReport].([]interface{}); ok && len(refs) > 0 {
			if report, ok := refs[0].(map[string]interface{}); ok {
				hit.ReportTitle, _ = report["title"].(string)
				hit.ReportSource, _ = report["sourceName"].(string)
				hit.ReportURL, _ = report["url"].(string)
			}
		}

		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			hit.Score = parseScore(additional["score"])
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// parseScore accepts the score as a string or a number; servers differ.
func parseScore(v interface{}) float32 {
	switch score := v.(type) {
	case string:
		var f float64
		fmt.Sscanf(score, "%f", &f)
		return float32(f)
	case float64:
		return float32(score)
	}
	return 0
}

func (s *Store) ListReports(ctx context.Context, sourceName string, limit, offset int) ([]vector.Report, error) {
	fields := []graphql.Field{
		{Name: "title"},
		{Name: "author"},
		{Name: "publishedAt"},
		{Name: "url"},
		{Name: "sourceName"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}

	q := s.client.GraphQL().Get().
		WithClassName(vector.ReportClass).
		WithLimit(limit).
		WithOffset(offset).
		WithFields(fields...)
	if sourceName != "" {
		q = q.WithWhere(filters.Where().
			WithPath([]string{"sourceName"}).
			WithOperator(filters.Equal).
			WithValueText(sourceName))
	}

	res, err := q.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	reports := []vector.Report{}
	for _, props := range getRows(res, vector.ReportClass) {
		r := vector.Report{}
		r.Title, _ = props["title"].(string)
		r.Author, _ = props["author"].(string)
		r.PublishedAt, _ = props["publishedAt"].(string)
		r.URL, _ = props["url"].(string)
		r.SourceName, _ = props["sourceName"].(string)
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			r.ID, _ = additional["id"].(string)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	return s.count(ctx, vector.ChunkClass)
}

func (s *Store) CountReports(ctx context.Context) (int, error) {
	return s.count(ctx, vector.ReportClass)
}

func (s *Store) count(ctx context.Context, class string) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := agg[class].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}

func getRows(res *models.GraphQLResponse, class string) []map[string]interface{} {
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := data[class].([]interface{})
	if !ok {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if props, ok := r.(map[string]interface{}); ok {
			rows = append(rows, props)
		}
	}
	return rows
}

func (s *Store) ClassExists(ctx context.Context, className string) (bool, error) {
	return s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (s *Store) CreateClass(ctx context.Context, class *models.Class) error {
	return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (s *Store) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return s.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (s *Store) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return s.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

// EnsureSchema creates or migrates the report and chunk classes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, s)
}
