package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"quill/features/job"
	"quill/internal/middleware"
)

// touchInterval keeps long tasks (a draft can take minutes) from hitting the
// nsqd message timeout.
const touchInterval = 30 * time.Second

type FailedJobRecorder interface {
	Save(ctx context.Context, j *job.Job) error
}

// process decodes m into task and runs fn. Malformed or invalid tasks are
// dropped. A failing fn is stored as a failed job and the message finished;
// it is requeued only when the failed job cannot be stored.
func process(m *nsq.Message, task Task, jobs FailedJobRecorder, fn func(ctx context.Context) error) error {
	if len(m.Body) == 0 {
		return nil
	}

	if err := json.Unmarshal(m.Body, task); err != nil {
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := middleware.WithCorrelationID(context.Background(), correlationOf(task))
	log := slog.With("topic", task.Topic(), "subject", task.Subject(), "attempt", m.Attempts)

	if err := task.Validate(); err != nil {
		log.ErrorContext(ctx, "dropping invalid task", "error", err)
		return nil
	}

	stop := keepAlive(m)
	start := time.Now()
	err := fn(ctx)
	stop()

	if err == nil {
		log.InfoContext(ctx, "task completed", "duration", time.Since(start))
		return nil
	}

	log.ErrorContext(ctx, "task failed", "error", err, "duration", time.Since(start))

	failed := &job.Job{
		Topic:   task.Topic(),
		Subject: task.Subject(),
		Payload: json.RawMessage(m.Body),
		Error:   err.Error(),
		Retries: max(int(m.Attempts)-1, 0),
	}
	if saveErr := jobs.Save(ctx, failed); saveErr != nil {
		log.ErrorContext(ctx, "failed to save failed job, requeueing", "error", saveErr)
		return err
	}
	log.InfoContext(ctx, "saved failed job for retry", "job_id", failed.ID)
	return nil
}

func correlationOf(task Task) string {
	var id string
	switch t := task.(type) {
	case *FileTask:
		id = t.CorrelationID
	case *SourceTask:
		id = t.CorrelationID
	case *DraftTask:
		id = t.CorrelationID
	}
	if id == "" {
		id = middleware.NewCorrelationID()
	}
	return id
}

func keepAlive(m *nsq.Message) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(touchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Touch()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
