package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrNoTopic = errors.New("job has no topic")

const publishTimeout = 5 * time.Second

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo    Repository
	pub     EventPublisher
	timeout time.Duration
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub, timeout: publishTimeout}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Record(ctx context.Context, j *Job) error {
	return s.repo.Save(ctx, j)
}

// Retry republishes the stored payload to the topic it failed on, then drops
// the record. The record survives a failed publish.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Topic == "" {
		return fmt.Errorf("%w: %s", ErrNoTopic, id)
	}

	done := make(chan error, 1)
	go func() { done <- s.pub.Publish(j.Topic, j.Payload) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to republish job %s: %w", id, err)
		}
	case <-time.After(s.timeout):
		return fmt.Errorf("republish of job %s timed out after %s", id, s.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.InfoContext(ctx, "job retried", "id", id, "topic", j.Topic, "subject", j.Subject)
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
