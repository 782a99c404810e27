package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/docmeta/internal/types"
)

// PostgresStore keeps results in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool, verifies it and creates the schema.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS extraction_results (
		template_id TEXT NOT NULL,
		document_url TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		processed_at TIMESTAMPTZ NOT NULL,
		data JSONB NOT NULL,
		PRIMARY KEY (template_id, document_url)
	);
	CREATE INDEX IF NOT EXISTS idx_results_processed ON extraction_results(processed_at, document_url);
	`)
	return err
}

// Save inserts or replaces the result for its key.
func (s *PostgresStore) Save(ctx context.Context, r *types.ExtractionResult) error {
	if err := validateKey(r); err != nil {
		return err
	}
	data, err := encodeResult(r)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO extraction_results (template_id, document_url, file_name, processed_at, data)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (template_id, document_url) DO UPDATE SET file_name = $3, processed_at = $4, data = $5`,
		r.TemplateID, r.DocumentURL, r.FileName, r.ProcessedAt.UTC(), data,
	)
	if err != nil {
		return fmt.Errorf("failed to save result for %s: %w", r.DocumentURL, err)
	}
	return nil
}

// List returns stored results, all templates when templateID is empty.
func (s *PostgresStore) List(ctx context.Context, templateID string) ([]types.ExtractionResult, error) {
	query := `SELECT data FROM extraction_results`
	var args []any
	if templateID != "" {
		query += ` WHERE template_id = $1`
		args = append(args, templateID)
	}
	query += ` ORDER BY processed_at, document_url`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []types.ExtractionResult{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r, err := decodeResult(data)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Get returns one result or *NotFoundError.
func (s *PostgresStore) Get(ctx context.Context, templateID, documentURL string) (*types.ExtractionResult, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM extraction_results WHERE template_id = $1 AND document_url = $2`,
		templateID, documentURL,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{TemplateID: templateID, DocumentURL: documentURL}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	r, err := decodeResult(data)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes one result or returns *NotFoundError.
func (s *PostgresStore) Delete(ctx context.Context, templateID, documentURL string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM extraction_results WHERE template_id = $1 AND document_url = $2`,
		templateID, documentURL,
	)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{TemplateID: templateID, DocumentURL: documentURL}
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
