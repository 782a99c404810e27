package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/jonathan/docmeta/internal/types"
)

// SQLiteStore keeps results in a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps pragmas in effect.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: sqlDB, path: path}
	if err := s.configure(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := s.createSchema(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS extraction_results (
		template_id TEXT NOT NULL,
		document_url TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		processed_at INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (template_id, document_url)
	);
	CREATE INDEX IF NOT EXISTS idx_results_processed ON extraction_results(processed_at, document_url);
	`)
	return err
}

// Save inserts or replaces the result for its key.
func (s *SQLiteStore) Save(ctx context.Context, r *types.ExtractionResult) error {
	if err := validateKey(r); err != nil {
		return err
	}
	data, err := encodeResult(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_results (template_id, document_url, file_name, processed_at, data)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (template_id, document_url) DO UPDATE SET
		   file_name = excluded.file_name,
		   processed_at = excluded.processed_at,
		   data = excluded.data`,
		r.TemplateID, r.DocumentURL, r.FileName, r.ProcessedAt.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save result for %s: %w", r.DocumentURL, err)
	}
	return nil
}

// List returns stored results, all templates when templateID is empty.
func (s *SQLiteStore) List(ctx context.Context, templateID string) ([]types.ExtractionResult, error) {
	query := `SELECT data FROM extraction_results`
	var args []any
	if templateID != "" {
		query += ` WHERE template_id = ?`
		args = append(args, templateID)
	}
	query += ` ORDER BY processed_at, document_url`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []types.ExtractionResult{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r, err := decodeResult([]byte(data))
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Get returns one result or *NotFoundError.
func (s *SQLiteStore) Get(ctx context.Context, templateID, documentURL string) (*types.ExtractionResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM extraction_results WHERE template_id = ? AND document_url = ?`,
		templateID, documentURL,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{TemplateID: templateID, DocumentURL: documentURL}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	r, err := decodeResult([]byte(data))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes one result or returns *NotFoundError.
func (s *SQLiteStore) Delete(ctx context.Context, templateID, documentURL string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM extraction_results WHERE template_id = ? AND document_url = ?`,
		templateID, documentURL,
	)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{TemplateID: templateID, DocumentURL: documentURL}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
