package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, rerank_provider, rerank_api_key, gemini_api_key, serper_api_key, search_alpha, library_top_k, search_results, related_questions, page_top_k, temperature FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.ID, &s.RerankProvider, &s.RerankAPIKey, &s.GeminiAPIKey, &s.SerperAPIKey,
		&s.SearchAlpha, &s.LibraryTopK, &s.SearchResults, &s.RelatedQuestions, &s.PageTopK, &s.Temperature,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		UPDATE settings
		SET rerank_provider = $1, rerank_api_key = $2, gemini_api_key = $3, serper_api_key = $4,
			search_alpha = $5, library_top_k = $6, search_results = $7, related_questions = $8,
			page_top_k = $9, temperature = $10, updated_at = NOW()
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query,
		s.RerankProvider, s.RerankAPIKey, s.GeminiAPIKey, s.SerperAPIKey,
		s.SearchAlpha, s.LibraryTopK, s.SearchResults, s.RelatedQuestions,
		s.PageTopK, s.Temperature,
	)
	return err
}
