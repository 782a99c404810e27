// Package templates stores extraction templates as one JSON file per template.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/docmeta/internal/schemas"
	"github.com/jonathan/docmeta/internal/types"
	"github.com/rs/zerolog"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store reads and writes templates under a directory. Reads always go to
// disk so edits made outside the process are picked up.
type Store struct {
	dir      string
	logger   zerolog.Logger
	validate *validator.Validate
	now      func() time.Time

	mu sync.Mutex // serializes writes
}

// NewStore creates the directory if needed and returns a Store over it.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("templates directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create templates directory: %w", err)
	}
	return &Store{
		dir:      dir,
		logger:   logger.With().Str("component", "templates").Logger(),
		validate: validator.New(),
		now:      time.Now,
	}, nil
}

// Dir returns the directory the store reads from.
func (s *Store) Dir() string {
	return s.dir
}

// List returns every valid template sorted by ID. Files that fail to parse
// or validate are logged and skipped.
func (s *Store) List() ([]types.Template, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	out := make([]types.Template, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		t, err := s.read(id)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping template file")
			continue
		}
		out = append(out, *t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get reads one template from disk.
func (s *Store) Get(id string) (*types.Template, error) {
	if !idPattern.MatchString(id) {
		return nil, &NotFoundError{ID: id}
	}
	return s.read(id)
}

// Create stores a new template. An empty ID is replaced with the current
// Unix time in milliseconds.
func (s *Store) Create(t types.Template) (*types.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.nextID()
	}
	if err := s.check(&t); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.path(t.ID)); err == nil {
		return nil, &ConflictError{ID: t.ID}
	}

	if err := s.write(&t); err != nil {
		return nil, err
	}
	s.logger.Info().Str("template_id", t.ID).Int("fields", len(t.Fields)).Msg("template created")
	return &t, nil
}

// Update replaces the name, description and fields of an existing template.
func (s *Store) Update(id string, t types.Template) (*types.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	t.ID = id
	if err := s.check(&t); err != nil {
		return nil, err
	}
	if err := s.write(&t); err != nil {
		return nil, err
	}
	s.logger.Info().Str("template_id", id).Msg("template updated")
	return &t, nil
}

// Delete removes a template file.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !idPattern.MatchString(id) {
		return &NotFoundError{ID: id}
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &NotFoundError{ID: id}
		}
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}
	s.logger.Info().Str("template_id", id).Msg("template deleted")
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// nextID returns a millisecond timestamp not already used by a file.
func (s *Store) nextID() string {
	ms := s.now().UnixMilli()
	for {
		id := strconv.FormatInt(ms, 10)
		if _, err := os.Stat(s.path(id)); errors.Is(err, fs.ErrNotExist) {
			return id
		}
		ms++
	}
}

func (s *Store) read(id string) (*types.Template, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to read template %s: %w", id, err)
	}

	var t types.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", id, err)
	}
	// The file name is authoritative for the ID.
	t.ID = id

	normalized, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template %s: %w", id, err)
	}
	if err := schemas.Validate(schemas.TemplateSchema, normalized); err != nil {
		return nil, fmt.Errorf("template %s is invalid: %w", id, err)
	}
	return &t, nil
}

func (s *Store) write(t *types.Template) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmpl-*")
	if err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write template: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(t.ID)); err != nil {
		return fmt.Errorf("failed to save template %s: %w", t.ID, err)
	}
	return nil
}

// check trims names and validates the template before it is written.
func (s *Store) check(t *types.Template) error {
	if !idPattern.MatchString(t.ID) {
		return &ValidationError{Field: "id", Message: "may only contain letters, digits, '-' and '_'"}
	}

	t.Name = strings.TrimSpace(t.Name)
	for i := range t.Fields {
		t.Fields[i].Name = strings.TrimSpace(t.Fields[i].Name)
		t.Fields[i].Description = strings.TrimSpace(t.Fields[i].Description)
	}

	if err := s.validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Field: verrs[0].Namespace(), Message: "failed on '" + verrs[0].Tag() + "'"}
		}
		return &ValidationError{Message: err.Error()}
	}

	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if seen[f.Name] {
			return &ValidationError{Field: "metadataFields", Message: fmt.Sprintf("duplicate field name %q", f.Name)}
		}
		seen[f.Name] = true
	}
	return nil
}
