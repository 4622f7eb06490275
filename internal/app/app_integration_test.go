package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	wstore "quill/internal/adapter/weaviate"
	"quill/internal/app"
	"quill/internal/testutils"
	"quill/internal/worker"
)

type MockE2EEmbedder struct {
	mock.Mock
}

func (m *MockE2EEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockE2EGenerator struct {
	mock.Mock
}

func (m *MockE2EGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func TestApp_EndToEnd_UploadThenRetrieve(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	cfg := s.GetAppConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	embedder := new(MockE2EEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2, 0.3}, nil)
	generator := new(MockE2EGenerator)
	generator.On("Generate", mock.Anything, mock.Anything).Return("Scattered Spider relies on help desk social engineering.", nil)

	vecStore := wstore.NewStore(s.Weaviate)
	require.NoError(t, app.EnsureSchemaWithRetry(context.Background(), vecStore, 5, time.Second))

	application, err := app.New(cfg, s.DB, vecStore, s.NSQ, logger, &app.Options{
		Embedder:  embedder,
		Generator: generator,
	})
	require.NoError(t, err)
	defer application.Close()

	// 1. Upload a JSON report over HTTP
	report := map[string]string{
		"content": "Scattered Spider calls help desks. They reset MFA for targeted accounts. Then they move laterally.",
		"title":   "Scattered Spider Update",
		"author":  "Intel Team",
		"date":    "2024-05-01",
		"url":     "https://example.com/reports/scattered-spider",
		"source":  "example",
	}
	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "scattered-spider.json")
	require.NoError(t, err)
	_, err = part.Write(raw)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/reports/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	// 2. Let the workers pick up the queued file
	consumers, err := worker.Start(worker.Options{NSQDHost: s.NSQAddr}, application.Bindings...)
	require.NoError(t, err)
	defer worker.Stop(consumers)

	require.Eventually(t, func() bool {
		n, err := vecStore.CountReports(context.Background())
		return err == nil && n == 1
	}, 30*time.Second, 500*time.Millisecond)

	// 3. Ask the library
	ans, err := application.Retrieval.LibraryContext(context.Background(), "how does scattered spider get in?")
	require.NoError(t, err)
	assert.Equal(t, "Scattered Spider relies on help desk social engineering.", ans.Answer)
	require.NotEmpty(t, ans.Provenance)
	assert.Equal(t, "Scattered Spider Update", ans.Provenance[0].Title)

	// 4. Nothing failed along the way
	jobs, err := application.Jobs.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
