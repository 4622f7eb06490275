package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quill/internal/document"
	"quill/internal/ingest"
	"quill/internal/scraper"
)

// Epoch is the checkpoint of a source that has never been ingested.
var Epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

var ErrEmptyURL = errors.New("post url is required")

// Source is the persisted freshness checkpoint of one named source.
type Source struct {
	Name           string    `json:"name"`
	ScraperKind    string    `json:"scraper_kind"`
	LastIngestedAt time.Time `json:"last_ingested_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Repository interface {
	// GetOrCreate inserts the record with the epoch checkpoint when absent
	// and returns the stored row.
	GetOrCreate(ctx context.Context, name, kind string) (*Source, error)
	UpdateLastIngested(ctx context.Context, name string, t time.Time) error
	List(ctx context.Context) ([]Source, error)
	Count(ctx context.Context) (int, error)
}

type ScraperRegistry interface {
	Get(name string) (scraper.Scraper, error)
	Config(name string) (scraper.SourceConfig, bool)
	Names() []string
}

type PostIngester interface {
	IngestPost(ctx context.Context, post document.Post) (*ingest.LoadResult, error)
}

// Decision is the outcome of a freshness check. Novel is false, not an
// error, when the newest post is already ingested.
type Decision struct {
	Novel          bool             `json:"novel"`
	Latest         scraper.PostMeta `json:"latest"`
	LastIngestedAt time.Time        `json:"last_ingested_at"`
}

type Outcome struct {
	Decision Decision           `json:"decision"`
	Result   *ingest.LoadResult `json:"result,omitempty"`
}

// Status is a configured source joined with its checkpoint.
type Status struct {
	scraper.SourceConfig
	LastIngestedAt *time.Time `json:"lastIngestedAt"`
}

type Service struct {
	repo     Repository
	registry ScraperRegistry
	ingester PostIngester
}

func NewService(repo Repository, registry ScraperRegistry, ingester PostIngester) *Service {
	return &Service{repo: repo, registry: registry, ingester: ingester}
}

// ShouldIngest compares the source's newest post with its checkpoint. The
// record is created before the comparison so a first check sees the epoch.
func (s *Service) ShouldIngest(ctx context.Context, name string) (Decision, error) {
	sc, err := s.registry.Get(name)
	if err != nil {
		return Decision{}, err
	}
	cfg, _ := s.registry.Config(name)

	rec, err := s.repo.GetOrCreate(ctx, name, cfg.Kind)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load source %s: %w", name, err)
	}

	latest, err := sc.LatestPost(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read latest post of %s: %w", name, err)
	}

	d := Decision{
		Novel:          latest.Date.After(rec.LastIngestedAt),
		Latest:         latest,
		LastIngestedAt: rec.LastIngestedAt,
	}
	slog.InfoContext(ctx, "freshness checked", "source", name, "novel", d.Novel,
		"latest", latest.Date, "last_ingested_at", rec.LastIngestedAt)
	return d, nil
}

func (s *Service) RecordIngested(ctx context.Context, name string, postDate time.Time) error {
	if err := s.repo.UpdateLastIngested(ctx, name, postDate); err != nil {
		return fmt.Errorf("failed to record checkpoint of %s: %w", name, err)
	}
	return nil
}

// Ingest loads the source's newest post when it is novel and then moves the
// checkpoint to that post's date. A crash between the two is repaired by the
// next run, since loading is idempotent.
func (s *Service) Ingest(ctx context.Context, name string) (*Outcome, error) {
	d, err := s.ShouldIngest(ctx, name)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Decision: d}
	if !d.Novel {
		return out, nil
	}

	sc, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	post, err := sc.ScrapePost(ctx, d.Latest.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", d.Latest.URL, err)
	}
	fillFromListing(&post, d.Latest)

	out.Result, err = s.ingester.IngestPost(ctx, post)
	if err != nil {
		return nil, err
	}

	if err := s.RecordIngested(ctx, name, d.Latest.Date); err != nil {
		return nil, err
	}
	return out, nil
}

// IngestURL loads one specific post of the source. The checkpoint is left
// alone so older posts can be backfilled.
func (s *Service) IngestURL(ctx context.Context, name, url string) (*ingest.LoadResult, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	sc, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	post, err := sc.ScrapePost(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", url, err)
	}
	if post.Source == "" {
		post.Source = name
	}
	return s.ingester.IngestPost(ctx, post)
}

// fillFromListing backfills metadata the post page did not carry.
func fillFromListing(p *document.Post, meta scraper.PostMeta) {
	if p.URL == "" {
		p.URL = meta.URL
	}
	if p.Title == "" {
		p.Title = meta.Title
	}
	if p.Author == "" {
		p.Author = meta.Author
	}
	if p.Date.IsZero() {
		p.Date = meta.Date
	}
}

func (s *Service) List(ctx context.Context) ([]Status, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Source, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}

	names := s.registry.Names()
	out := make([]Status, 0, len(names))
	for _, name := range names {
		cfg, _ := s.registry.Config(name)
		st := Status{SourceConfig: cfg}
		if r, ok := byName[name]; ok {
			t := r.LastIngestedAt
			st.LastIngestedAt = &t
		}
		out = append(out, st)
	}
	return out, nil
}

// Known reports whether name is a configured source.
func (s *Service) Known(name string) bool {
	_, ok := s.registry.Config(name)
	return ok
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
