package templates

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathan/docmeta/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func sampleTemplate() types.Template {
	return types.Template{
		Name:        "Clinical Study",
		Description: "Trial metadata",
		Fields: []types.TemplateField{
			{Name: "Study Title", Description: "Full title of the study"},
			{Name: "Sponsor", Description: "Sponsoring organization"},
			{Name: "Pregnancy/Lactation", Description: "Eligibility notes"},
		},
	}
}

func TestCreateGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create(sampleTemplate())
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", created.ID)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, []string{"Study Title", "Sponsor", "Pregnancy/Lactation"}, got.FieldNames())
}

func TestCreate_AutoIDSkipsTakenTimestamp(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Create(sampleTemplate())
	require.NoError(t, err)
	second, err := s.Create(sampleTemplate())
	require.NoError(t, err)

	assert.Equal(t, "1700000000000", first.ID)
	assert.Equal(t, "1700000000001", second.ID)
}

func TestCreate_DuplicateIDConflicts(t *testing.T) {
	s := newTestStore(t)
	tmpl := sampleTemplate()
	tmpl.ID = "study"

	_, err := s.Create(tmpl)
	require.NoError(t, err)

	_, err = s.Create(tmpl)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "study", conflict.ID)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Template)
		field  string
	}{
		{"empty name", func(t *types.Template) { t.Name = "  " }, "Template.Name"},
		{"no fields", func(t *types.Template) { t.Fields = nil }, "Template.Fields"},
		{"blank field name", func(t *types.Template) { t.Fields[1].Name = "" }, "Template.Fields[1].Name"},
		{"duplicate field", func(t *types.Template) { t.Fields[1].Name = "Study Title" }, "metadataFields"},
		{"path traversal id", func(t *types.Template) { t.ID = "../x" }, "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			tmpl := sampleTemplate()
			tt.mutate(&tmpl)

			_, err := s.Create(tmpl)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("missing")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = s.Get("../../etc/passwd")
	assert.ErrorAs(t, err, &nf)
}

func TestGet_ReadsExternalEdits(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create(sampleTemplate())
	require.NoError(t, err)

	edited := `{"id": "ignored", "name": "Edited", "metadataFields": [{"name": "Only", "description": "d"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), created.ID+".json"), []byte(edited), 0o644))

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Edited", got.Name)
	assert.Equal(t, []string{"Only"}, got.FieldNames())
}

func TestList_SortedAndSkipsInvalid(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"b", "a"} {
		tmpl := sampleTemplate()
		tmpl.ID = id
		_, err := s.Create(tmpl)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "nofields.json"), []byte(`{"name": "x", "metadataFields": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("ignore"), 0o644))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create(sampleTemplate())
	require.NoError(t, err)

	changed := sampleTemplate()
	changed.ID = "something-else"
	changed.Name = "Renamed"
	changed.Fields = changed.Fields[:1]

	updated, err := s.Update(created.ID, changed)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Len(t, got.Fields, 1)

	_, err = s.Update("missing", changed)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create(sampleTemplate())
	require.NoError(t, err)

	require.NoError(t, s.Delete(created.ID))

	_, err = s.Get(created.ID)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, s.Delete(created.ID), &nf)
}
