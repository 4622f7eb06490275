package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"quill/internal/document"
	"quill/internal/vector"
)

var (
	// ErrAlreadyExists is returned by a Store when the object key is taken.
	ErrAlreadyExists = errors.New("object already exists")
	// ErrInvalidObject marks a write the store rejected for its content.
	ErrInvalidObject = errors.New("invalid object")
	ErrEmptyDocument = errors.New("document has no chunks")
)

var (
	chunkNamespace  = uuid.NewSHA1(uuid.NameSpaceURL, []byte("quill/"+vector.ChunkClass))
	reportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("quill/"+vector.ReportClass))
)

type Object struct {
	ID         string
	Class      string
	Properties map[string]interface{}
	Vector     []float32
}

type Reference struct {
	FromClass string
	FromID    string
	Property  string
	ToClass   string
	ToID      string
}

// Store is the persistent document store. AddReferences returns only once the
// whole batch has been committed.
type Store interface {
	Exists(ctx context.Context, class, id string) (bool, error)
	CreateIfAbsent(ctx context.Context, obj Object) error
	HasReference(ctx context.Context, ref Reference) (bool, error)
	AddReferences(ctx context.Context, refs []Reference) error
	AddReference(ctx context.Context, ref Reference) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type RetryPolicy struct {
	Initial  time.Duration
	Max      time.Duration
	Attempts int
}

var DefaultRetryPolicy = RetryPolicy{Initial: time.Second, Max: 60 * time.Second, Attempts: 6}

type LoadResult struct {
	ReportID        string
	ChunkIDs        []string
	ChunksCreated   int
	ReportCreated   bool
	ChunkRefsAdded  int
	ReportRefsAdded int
}

type Loader struct {
	store    Store
	embedder Embedder
	retry    RetryPolicy
}

type LoaderOption func(*Loader)

func WithRetryPolicy(p RetryPolicy) LoaderOption {
	return func(l *Loader) { l.retry = p }
}

func NewLoader(store Store, embedder Embedder, opts ...LoaderOption) *Loader {
	l := &Loader{store: store, embedder: embedder, retry: DefaultRetryPolicy}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ChunkID is the content-derived key of a chunk.
func ChunkID(text string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(text)).String()
}

// ReportID is the key of a report, derived from its full metadata tuple.
func ReportID(meta document.Metadata) string {
	return uuid.NewSHA1(reportNamespace, metaBytes(meta)).String()
}

func metaBytes(meta document.Metadata) []byte {
	b, _ := json.Marshal(meta)
	return b
}

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Load writes every chunk and the report, then links them in both directions.
// It can be re-run over the same document at any point: existing objects and
// references are left untouched and missing ones are completed.
func (l *Loader) Load(ctx context.Context, doc *document.Document) (*LoadResult, error) {
	if len(doc.Chunks) == 0 {
		return nil, ErrEmptyDocument
	}
	if len(doc.Pages) != len(doc.Chunks) {
		return nil, fmt.Errorf("chunks and pages differ in length: %d != %d", len(doc.Chunks), len(doc.Pages))
	}

	res := &LoadResult{ReportID: ReportID(doc.Meta)}
	seen := make(map[string]bool)

	for i, chunk := range doc.Chunks {
		id := ChunkID(chunk)
		if seen[id] {
			continue
		}
		seen[id] = true
		res.ChunkIDs = append(res.ChunkIDs, id)

		created, err := l.createChunk(ctx, id, chunk, doc.Pages[i])
		if err != nil {
			return nil, fmt.Errorf("failed to load chunk %d: %w", i, err)
		}
		if created {
			res.ChunksCreated++
		}
	}
	slog.InfoContext(ctx, "chunks loaded", "total", len(res.ChunkIDs), "created", res.ChunksCreated)

	created, err := l.createReport(ctx, res.ReportID, doc.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	res.ReportCreated = created
	slog.InfoContext(ctx, "report loaded", "report_id", res.ReportID, "created", created)

	added, err := l.linkChunksToReport(ctx, res.ReportID, res.ChunkIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to attach report to chunks: %w", err)
	}
	res.ChunkRefsAdded = added

	added, err = l.linkReportToChunks(ctx, res.ReportID, res.ChunkIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to attach chunks to report: %w", err)
	}
	res.ReportRefsAdded = added

	slog.InfoContext(ctx, "references attached",
		"report_id", res.ReportID,
		"chunk_refs", res.ChunkRefsAdded,
		"report_refs", res.ReportRefsAdded,
	)
	return res, nil
}

func (l *Loader) createChunk(ctx context.Context, id, chunk string, page int) (bool, error) {
	exists, err := l.exists(ctx, vector.ChunkClass, id)
	if err != nil || exists {
		return false, err
	}

	var vec []float32
	err = l.withRetry(ctx, "embed", func() error {
		v, err := l.embedder.Embed(ctx, chunk)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return false, err
	}

	return l.create(ctx, Object{
		ID:    id,
		Class: vector.ChunkClass,
		Properties: map[string]interface{}{
			"chunk":       chunk,
			"page":        page,
			"contentHash": contentHash([]byte(chunk)),
		},
		Vector: vec,
	})
}

func (l *Loader) createReport(ctx context.Context, id string, meta document.Metadata) (bool, error) {
	exists, err := l.exists(ctx, vector.ReportClass, id)
	if err != nil || exists {
		return false, err
	}

	return l.create(ctx, Object{
		ID:    id,
		Class: vector.ReportClass,
		Properties: map[string]interface{}{
			"title":       meta.Title,
			"author":      meta.Author,
			"publishedAt": meta.Date,
			"url":         meta.URL,
			"sourceName":  meta.Source,
			"contentHash": contentHash(metaBytes(meta)),
		},
	})
}

func (l *Loader) exists(ctx context.Context, class, id string) (bool, error) {
	var exists bool
	err := l.withRetry(ctx, "exists", func() error {
		ok, err := l.store.Exists(ctx, class, id)
		exists = ok
		return err
	})
	return exists, err
}

// create reports whether the object was written by this call.
func (l *Loader) create(ctx context.Context, obj Object) (bool, error) {
	created := false
	err := l.withRetry(ctx, "create", func() error {
		err := l.store.CreateIfAbsent(ctx, obj)
		switch {
		case err == nil:
			created = true
			return nil
		case errors.Is(err, ErrAlreadyExists):
			return nil
		default:
			return err
		}
	})
	return created, err
}

// linkChunksToReport is the first reference pass. Missing references go out
// as a single batch which is committed before the second pass starts.
func (l *Loader) linkChunksToReport(ctx context.Context, reportID string, chunkIDs []string) (int, error) {
	var missing []Reference
	for _, id := range chunkIDs {
		ref := Reference{
			FromClass: vector.ChunkClass,
			FromID:    id,
			Property:  vector.PropFromReport,
			ToClass:   vector.ReportClass,
			ToID:      reportID,
		}
		ok, err := l.hasReference(ctx, ref)
		if err != nil {
			return 0, err
		}
		if !ok {
			missing = append(missing, ref)
		}
	}

	if len(missing) == 0 {
		return 0, nil
	}

	err := l.withRetry(ctx, "batch_references", func() error {
		return l.store.AddReferences(ctx, missing)
	})
	if err != nil {
		return 0, err
	}
	return len(missing), nil
}

func (l *Loader) linkReportToChunks(ctx context.Context, reportID string, chunkIDs []string) (int, error) {
	added := 0
	for _, id := range chunkIDs {
		ref := Reference{
			FromClass: vector.ReportClass,
			FromID:    reportID,
			Property:  vector.PropHasChunks,
			ToClass:   vector.ChunkClass,
			ToID:      id,
		}
		ok, err := l.hasReference(ctx, ref)
		if err != nil {
			return added, err
		}
		if ok {
			continue
		}
		err = l.withRetry(ctx, "add_reference", func() error {
			return l.store.AddReference(ctx, ref)
		})
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func (l *Loader) hasReference(ctx context.Context, ref Reference) (bool, error) {
	var ok bool
	err := l.withRetry(ctx, "has_reference", func() error {
		found, err := l.store.HasReference(ctx, ref)
		ok = found
		return err
	})
	return ok, err
}

// withRetry runs fn with jittered exponential backoff. Invalid objects fail
// immediately.
func (l *Loader) withRetry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retry.Initial
	b.MaxInterval = l.retry.Max
	b.MaxElapsedTime = 0

	attempts := l.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	operation := func() error {
		err := fn()
		if errors.Is(err, ErrInvalidObject) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "store call failed, retrying", "op", op, "error", err, "wait", wait)
	})
}
