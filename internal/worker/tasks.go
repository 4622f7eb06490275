package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quill/internal/config"
	"quill/internal/middleware"
)

var ErrInvalidTask = errors.New("invalid task")

// Task is a message body on one of the work topics.
type Task interface {
	Topic() string
	// Subject names what the task is about, for logs and failed job records.
	Subject() string
	Validate() error
}

// FileTask points at a stored report file. FileName is the name it was
// uploaded under; stored files carry a generated prefix.
type FileTask struct {
	Path          string `json:"path"`
	FileName      string `json:"file_name,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (t FileTask) Topic() string   { return config.TopicIngestFile }
func (t FileTask) Subject() string { return t.Path }

func (t FileTask) Validate() error {
	if t.Path == "" {
		return fmt.Errorf("%w: file task without path", ErrInvalidTask)
	}
	return nil
}

// SourceTask checks a source for a new post, or loads URL when set. A URL
// task never moves the source's checkpoint.
type SourceTask struct {
	Source        string `json:"source"`
	URL           string `json:"url,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (t SourceTask) Topic() string { return config.TopicIngestSource }

func (t SourceTask) Subject() string {
	if t.URL != "" {
		return t.Source + " " + t.URL
	}
	return t.Source
}

func (t SourceTask) Validate() error {
	if t.Source == "" {
		return fmt.Errorf("%w: source task without source", ErrInvalidTask)
	}
	return nil
}

type DraftTask struct {
	Outline       string `json:"outline"`
	OutputDir     string `json:"output_dir,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (t DraftTask) Topic() string { return config.TopicDraft }

func (t DraftTask) Subject() string {
	if t.OutputDir != "" {
		return t.OutputDir
	}
	return "outline"
}

func (t DraftTask) Validate() error {
	if t.Outline == "" {
		return fmt.Errorf("%w: draft task without outline", ErrInvalidTask)
	}
	return nil
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// Enqueue validates and publishes a task to its topic.
func Enqueue(pub TaskPublisher, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal %s task: %w", task.Topic(), err)
	}
	if err := pub.Publish(task.Topic(), body); err != nil {
		return fmt.Errorf("failed to publish %s task: %w", task.Topic(), err)
	}
	return nil
}

// CorrelationFrom returns the request's correlation id, or a fresh one
// outside a request.
func CorrelationFrom(ctx context.Context) string {
	if id := middleware.GetCorrelationID(ctx); id != "unknown" {
		return id
	}
	return middleware.NewCorrelationID()
}
