package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"quill/features/job"
	"quill/internal/ingest"
	"quill/internal/pipeline"
)

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

type MockFileIngester struct{ mock.Mock }

func (m *MockFileIngester) IngestFile(ctx context.Context, path, name string) (*ingest.LoadResult, error) {
	args := m.Called(ctx, path, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.LoadResult), args.Error(1)
}

type MockSourceIngester struct{ mock.Mock }

func (m *MockSourceIngester) IngestLatest(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockSourceIngester) IngestURL(ctx context.Context, name, url string) error {
	args := m.Called(ctx, name, url)
	return args.Error(0)
}

type MockDrafter struct{ mock.Mock }

func (m *MockDrafter) Draft(ctx context.Context, outline, outputDir string) (*pipeline.RunResult, error) {
	args := m.Called(ctx, outline, outputDir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.RunResult), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}
