package worker

import (
	"context"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"quill/internal/ingest"
	"quill/internal/pipeline"
)

type FileIngester interface {
	IngestFile(ctx context.Context, path, name string) (*ingest.LoadResult, error)
}

// SourceIngester loads a source's newest post when it is novel, or one
// specific post.
type SourceIngester interface {
	IngestLatest(ctx context.Context, name string) (bool, error)
	IngestURL(ctx context.Context, name, url string) error
}

type Drafter interface {
	Draft(ctx context.Context, outline, outputDir string) (*pipeline.RunResult, error)
}

type FileConsumer struct {
	ingester FileIngester
	jobs     FailedJobRecorder
}

func NewFileConsumer(i FileIngester, jobs FailedJobRecorder) *FileConsumer {
	return &FileConsumer{ingester: i, jobs: jobs}
}

func (c *FileConsumer) HandleMessage(m *nsq.Message) error {
	var task FileTask
	return process(m, &task, c.jobs, func(ctx context.Context) error {
		res, err := c.ingester.IngestFile(ctx, task.Path, task.FileName)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "report loaded", "path", task.Path, "report_id", res.ReportID,
			"chunks_created", res.ChunksCreated, "report_created", res.ReportCreated)
		return nil
	})
}

type SourceConsumer struct {
	ingester SourceIngester
	jobs     FailedJobRecorder
}

func NewSourceConsumer(i SourceIngester, jobs FailedJobRecorder) *SourceConsumer {
	return &SourceConsumer{ingester: i, jobs: jobs}
}

func (c *SourceConsumer) HandleMessage(m *nsq.Message) error {
	var task SourceTask
	return process(m, &task, c.jobs, func(ctx context.Context) error {
		if task.URL != "" {
			return c.ingester.IngestURL(ctx, task.Source, task.URL)
		}
		novel, err := c.ingester.IngestLatest(ctx, task.Source)
		if err != nil {
			return err
		}
		if !novel {
			slog.InfoContext(ctx, "no new post", "source", task.Source)
		}
		return nil
	})
}

type DraftConsumer struct {
	drafter Drafter
	jobs    FailedJobRecorder
}

func NewDraftConsumer(d Drafter, jobs FailedJobRecorder) *DraftConsumer {
	return &DraftConsumer{drafter: d, jobs: jobs}
}

func (c *DraftConsumer) HandleMessage(m *nsq.Message) error {
	var task DraftTask
	return process(m, &task, c.jobs, func(ctx context.Context) error {
		res, err := c.drafter.Draft(ctx, task.Outline, task.OutputDir)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "draft written", "sections", len(res.Sections))
		return nil
	})
}
