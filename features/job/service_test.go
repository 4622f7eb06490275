package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/config"
)

type recordingPublisher struct {
	sleep     time.Duration
	err       error
	LastTopic string
	LastBody  []byte
}

func (p *recordingPublisher) Publish(topic string, body []byte) error {
	time.Sleep(p.sleep)
	p.LastTopic = topic
	p.LastBody = body
	return p.err
}

type memRepo struct {
	Repository
	jobs    map[string]*Job
	deleted []string
}

func (m *memRepo) Get(ctx context.Context, id string) (*Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return j, nil
}

func (m *memRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memRepo) Count(ctx context.Context) (int, error) { return len(m.jobs), nil }

func TestRetry_PublishesToStoredTopic(t *testing.T) {
	repo := &memRepo{jobs: map[string]*Job{
		"1": {ID: "1", Topic: config.TopicIngestFile, Payload: []byte(`{"path":"/tmp/report.pdf"}`)},
	}}
	pub := &recordingPublisher{}
	svc := NewService(repo, pub)

	require.NoError(t, svc.Retry(context.Background(), "1"))
	assert.Equal(t, config.TopicIngestFile, pub.LastTopic)
	assert.JSONEq(t, `{"path":"/tmp/report.pdf"}`, string(pub.LastBody))
	assert.Equal(t, []string{"1"}, repo.deleted)
}

func TestRetry_PublishFailureKeepsRecord(t *testing.T) {
	repo := &memRepo{jobs: map[string]*Job{"1": {ID: "1", Topic: config.TopicDraft, Payload: []byte(`{}`)}}}
	svc := NewService(repo, &recordingPublisher{err: errors.New("nsqd unavailable")})

	err := svc.Retry(context.Background(), "1")
	assert.ErrorContains(t, err, "nsqd unavailable")
	assert.Empty(t, repo.deleted)
}

func TestRetry_Timeout(t *testing.T) {
	repo := &memRepo{jobs: map[string]*Job{"1": {ID: "1", Topic: config.TopicDraft, Payload: []byte(`{}`)}}}
	svc := NewService(repo, &recordingPublisher{sleep: 200 * time.Millisecond})
	svc.timeout = 20 * time.Millisecond

	err := svc.Retry(context.Background(), "1")
	assert.ErrorContains(t, err, "timed out")
	assert.Empty(t, repo.deleted)
}

func TestService_Count(t *testing.T) {
	repo := &memRepo{jobs: map[string]*Job{"1": {}, "2": {}}}
	count, err := NewService(repo, nil).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
