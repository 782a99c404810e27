// Package db persists extraction results keyed by (template ID, document URL).
// SQLite is the default backend; a postgres:// DSN selects PostgreSQL.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/docmeta/internal/types"
)

// Store persists extraction results. Saving a result for an existing
// (template ID, document URL) pair replaces it.
type Store interface {
	Save(ctx context.Context, r *types.ExtractionResult) error
	// List returns results for templateID, or for every template when it is
	// empty, ordered by processing time then document URL.
	List(ctx context.Context, templateID string) ([]types.ExtractionResult, error)
	Get(ctx context.Context, templateID, documentURL string) (*types.ExtractionResult, error)
	Delete(ctx context.Context, templateID, documentURL string) error
	Close() error
}

// NotFoundError is returned when no result is stored for a key.
type NotFoundError struct {
	TemplateID  string
	DocumentURL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no result for template %s and document %s", e.TemplateID, e.DocumentURL)
}

// Open connects to the store named by dsn. DSNs starting with postgres:// or
// postgresql:// use PostgreSQL; anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if IsPostgres(dsn) {
		return ConnectPostgres(ctx, dsn)
	}
	return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
}

// IsPostgres reports whether dsn selects the PostgreSQL backend.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func validateKey(r *types.ExtractionResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	if r.TemplateID == "" || r.DocumentURL == "" {
		return fmt.Errorf("template ID and document URL are required")
	}
	return nil
}

func encodeResult(r *types.ExtractionResult) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (types.ExtractionResult, error) {
	var r types.ExtractionResult
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return r, nil
}
