package report_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quill/features/report"
	"quill/internal/config"
	"quill/internal/worker"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/reports/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandler_Upload(t *testing.T) {
	dir := t.TempDir()
	pub := new(MockPublisher)
	h := report.NewHandler(dir, 1, pub)

	var queued worker.FileTask
	pub.On("Publish", config.TopicIngestFile, mock.Anything).Run(func(args mock.Arguments) {
		require.NoError(t, json.Unmarshal(args.Get(1).([]byte), &queued))
	}).Return(nil)

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(t, "apt-report.json", []byte(`{"content":"x"}`)))

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, dir, filepath.Dir(queued.Path))
	assert.Contains(t, queued.Path, "apt-report.json")
	assert.NotEqual(t, "apt-report.json", filepath.Base(queued.Path))
	assert.Equal(t, "apt-report.json", queued.FileName)

	saved, err := os.ReadFile(queued.Path)
	require.NoError(t, err)
	assert.Equal(t, `{"content":"x"}`, string(saved))
}

func TestHandler_Upload_RejectsType(t *testing.T) {
	pub := new(MockPublisher)
	h := report.NewHandler(t.TempDir(), 1, pub)

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(t, "notes.txt", []byte("hello")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestHandler_Upload_PublishFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nsqd down"))
	h := report.NewHandler(dir, 1, pub)

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(t, "r.pdf", []byte("%PDF-1.4")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
