package source

import (
	"context"
	"database/sql"
	"time"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) GetOrCreate(ctx context.Context, name, kind string) (*Source, error) {
	insert := `INSERT INTO sources (name, scraper_kind) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, name, kind); err != nil {
		return nil, err
	}

	s := &Source{}
	query := `SELECT name, scraper_kind, last_ingested_at, created_at, updated_at FROM sources WHERE name = $1`
	err := r.db.QueryRowContext(ctx, query, name).Scan(&s.Name, &s.ScraperKind, &s.LastIngestedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) UpdateLastIngested(ctx context.Context, name string, t time.Time) error {
	query := `UPDATE sources SET last_ingested_at = $1, updated_at = NOW() WHERE name = $2`
	res, err := r.db.ExecContext(ctx, query, t, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Source, error) {
	query := `SELECT name, scraper_kind, last_ingested_at, created_at, updated_at FROM sources ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.Name, &s.ScraperKind, &s.LastIngestedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, err
}
