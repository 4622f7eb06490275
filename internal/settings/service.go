package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the runtime knobs of retrieval and generation. A single row
// backs them.
type Settings struct {
	ID               int     `json:"-"`
	RerankProvider   string  `json:"rerank_provider"`
	RerankAPIKey     string  `json:"rerank_api_key"`
	GeminiAPIKey     string  `json:"gemini_api_key"`
	SerperAPIKey     string  `json:"serper_api_key"`
	SearchAlpha      float32 `json:"search_alpha"`
	LibraryTopK      int     `json:"library_top_k"`
	SearchResults    int     `json:"search_results"`
	RelatedQuestions int     `json:"related_questions"`
	PageTopK         int     `json:"page_top_k"`
	Temperature      float32 `json:"temperature"`
}

// Defaults are used whenever the settings row cannot be read.
func Defaults() *Settings {
	return &Settings{
		RerankProvider:   "none",
		SearchAlpha:      0.5,
		LibraryTopK:      4,
		SearchResults:    3,
		RelatedQuestions: 5,
		PageTopK:         4,
		Temperature:      1.0,
	}
}

func (s *Settings) Validate() error {
	if s.SearchAlpha < 0 || s.SearchAlpha > 1 {
		return fmt.Errorf("%w: search_alpha must be within [0,1]", ErrInvalidSettings)
	}
	if s.LibraryTopK < 1 || s.SearchResults < 1 || s.RelatedQuestions < 0 || s.PageTopK < 1 {
		return fmt.Errorf("%w: result counts out of range", ErrInvalidSettings)
	}
	switch s.RerankProvider {
	case "", "none", "jina", "cohere":
	default:
		return fmt.Errorf("%w: unknown rerank provider %q", ErrInvalidSettings, s.RerankProvider)
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}

	// masked keys echoed back by a client keep their stored value
	if isMasked(set.RerankAPIKey) || isMasked(set.GeminiAPIKey) || isMasked(set.SerperAPIKey) {
		current, err := s.repo.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to read current settings: %w", err)
		}
		if isMasked(set.RerankAPIKey) {
			set.RerankAPIKey = current.RerankAPIKey
		}
		if isMasked(set.GeminiAPIKey) {
			set.GeminiAPIKey = current.GeminiAPIKey
		}
		if isMasked(set.SerperAPIKey) {
			set.SerperAPIKey = current.SerperAPIKey
		}
	}
	return s.repo.Update(ctx, set)
}

func isMasked(key string) bool {
	return strings.HasPrefix(key, "****")
}
