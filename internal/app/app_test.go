package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Tokenizer:          "approx",
		LibraryChunkTokens: 100,
		SearchChunkTokens:  100,
		BrowserMode:        config.BrowserHTTP,
		FetchRatePerSecond: 2,
		ServerPort:         8081,
		QueryLogPath:       filepath.Join(dir, "logs", "query.log"),
		UploadDir:          filepath.Join(dir, "uploads"),
		OutputDir:          filepath.Join(dir, "posts"),
		MaxUploadSizeMB:    1,
	}
}

func TestNew(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &MockVectorStore{Reports: 3, Chunks: 42}
	pub := &MockPublisher{}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	app, err := New(testConfig(t), db, store, pub, logger, nil)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Handler)
	assert.NotNil(t, app.Ingest)
	assert.NotNil(t, app.Sources)
	assert.NotNil(t, app.Drafts)
	assert.NotNil(t, app.Retrieval)

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("stats", func(t *testing.T) {
		sqlMock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM sources`)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		sqlMock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM failed_jobs`)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

		var body struct {
			Data map[string]int `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, map[string]int{"sources": 2, "reports": 3, "chunks": 42, "failed_jobs": 1}, body.Data)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("draft is queued", func(t *testing.T) {
		payload := `{"outline":"SECTION: Intro\nSECTION: Findings","name":"weekly"}`
		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/drafts", bytes.NewBufferString(payload)))
		require.Equal(t, http.StatusAccepted, w.Code)
		require.Len(t, pub.Messages[config.TopicDraft], 1)

		var task map[string]interface{}
		require.NoError(t, json.Unmarshal(pub.Messages[config.TopicDraft][0], &task))
		assert.Contains(t, task["output_dir"], "weekly")
	})

	t.Run("unknown source check is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sources/nope/check", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, pub.Messages[config.TopicIngestSource])
	})
}

func TestNew_WorkerBindings(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	app, err := New(testConfig(t), db, &MockVectorStore{}, &MockPublisher{}, slog.Default(), nil)
	require.NoError(t, err)
	defer app.Close()

	var topics []string
	for _, b := range app.Bindings {
		assert.NotNil(t, b.Handler)
		topics = append(topics, b.Topic)
	}
	assert.ElementsMatch(t, config.Topics, topics)
}

func TestNew_BadTokenizer(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig(t)
	cfg.Tokenizer = "no-such-encoding"
	_, err = New(cfg, db, &MockVectorStore{}, &MockPublisher{}, slog.Default(), nil)
	assert.Error(t, err)
}

func TestNew_SeedsKeysFromEnvironment(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig(t)
	cfg.SerperAPIKey = "serper-env"

	cols := []string{"id", "rerank_provider", "rerank_api_key", "gemini_api_key", "serper_api_key", "search_alpha",
		"library_top_k", "search_results", "related_questions", "page_top_k", "temperature"}
	sqlMock.ExpectQuery("SELECT (.+) FROM settings").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "none", "", "", "", 0.5, 4, 3, 5, 4, 1.0))
	sqlMock.ExpectExec("UPDATE settings").WillReturnResult(sqlmock.NewResult(0, 1))

	app, err := New(cfg, db, &MockVectorStore{}, &MockPublisher{}, slog.Default(), nil)
	require.NoError(t, err)
	defer app.Close()

	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
