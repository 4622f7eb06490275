package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"quill/internal/adapter/gemini"
	"quill/internal/settings"
)

type MockSettingsRepo struct {
	mock.Mock
}

func (m *MockSettingsRepo) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func (m *MockSettingsRepo) Update(ctx context.Context, s *settings.Settings) error {
	return m.Called(ctx, s).Error(0)
}

// fakeGemini answers the three REST methods the adapter calls.
func fakeGemini(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":batchEmbedContents"):
			var body struct {
				Requests []json.RawMessage `json:"requests"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			embeddings := make([]map[string]any, len(body.Requests))
			for i := range body.Requests {
				embeddings[i] = map[string]any{"values": []float32{float32(i), 1}}
			}
			json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
		case strings.HasSuffix(r.URL.Path, ":embedContent"):
			json.NewEncoder(w).Encode(map[string]any{
				"embedding": map[string]any{"values": []float32{0.1, 0.2, 0.3}},
			})
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]any{{"text": "ANSWER: yes\n"}, {"text": "SOURCES: a"}},
					},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestEmbedder_Embed(t *testing.T) {
	mockRepo := new(MockSettingsRepo)
	settingsSvc := settings.NewService(mockRepo)

	ts := fakeGemini(t)
	defer ts.Close()

	embedder := gemini.NewEmbedder(settingsSvc, "", "", option.WithEndpoint(ts.URL))
	defer embedder.Close()

	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mockRepo.On("Get", ctx).Return(&settings.Settings{GeminiAPIKey: "test-key"}, nil).Once()

		vec, err := embedder.Embed(ctx, "hello world")
		assert.NoError(t, err)
		if assert.Len(t, vec, 3) {
			assert.Equal(t, float32(0.1), vec[0])
		}
		mockRepo.AssertExpectations(t)
	})

	t.Run("Missing API Key", func(t *testing.T) {
		mockRepo.On("Get", ctx).Return(&settings.Settings{GeminiAPIKey: ""}, nil).Once()

		vec, err := embedder.Embed(ctx, "hello")
		assert.ErrorIs(t, err, gemini.ErrNoAPIKey)
		assert.Nil(t, vec)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Settings Error", func(t *testing.T) {
		mockRepo.On("Get", ctx).Return(nil, assert.AnError).Once()

		_, err := embedder.Embed(ctx, "hello")
		assert.ErrorContains(t, err, "failed to get settings")
	})
}

func TestEmbedder_FallbackKey(t *testing.T) {
	mockRepo := new(MockSettingsRepo)
	ts := fakeGemini(t)
	defer ts.Close()

	embedder := gemini.NewEmbedder(settings.NewService(mockRepo), "env-key", "", option.WithEndpoint(ts.URL))
	defer embedder.Close()

	ctx := context.Background()
	mockRepo.On("Get", ctx).Return(&settings.Settings{}, nil).Once()

	vec, err := embedder.Embed(ctx, "hello")
	assert.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	mockRepo := new(MockSettingsRepo)
	ts := fakeGemini(t)
	defer ts.Close()

	embedder := gemini.NewEmbedder(settings.NewService(mockRepo), "", "", option.WithEndpoint(ts.URL))
	defer embedder.Close()

	ctx := context.Background()
	mockRepo.On("Get", ctx).Return(&settings.Settings{GeminiAPIKey: "k"}, nil).Once()

	vecs, err := embedder.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{2, 1}, vecs[2])
}

func TestGenerator_Generate(t *testing.T) {
	mockRepo := new(MockSettingsRepo)
	ts := fakeGemini(t)
	defer ts.Close()

	gen := gemini.NewGenerator(settings.NewService(mockRepo), "", "", option.WithEndpoint(ts.URL))
	defer gen.Close()

	ctx := context.Background()
	mockRepo.On("Get", ctx).Return(&settings.Settings{GeminiAPIKey: "k", Temperature: 0.2}, nil).Once()

	out, err := gen.Generate(ctx, "is it?")
	require.NoError(t, err)
	assert.Equal(t, "ANSWER: yes\nSOURCES: a", out)
}
