package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/docmeta/internal/types"
)

func sampleResult(templateID, url string, at time.Time) *types.ExtractionResult {
	return &types.ExtractionResult{
		FileName:    "doc.pdf",
		DocumentURL: url,
		TemplateID:  templateID,
		Fields:      map[string]string{"Title": "Annual Report", "Author": types.NotFound},
		TotalTokens: 120,
		ProcessedAt: at.UTC(),
	}
}

// runStoreTests exercises any Store against the same expectations.
func runStoreTests(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("save and get", func(t *testing.T) {
		r := sampleResult("tpl-a", "https://example.com/a.pdf", base)
		require.NoError(t, s.Save(ctx, r))

		got, err := s.Get(ctx, "tpl-a", "https://example.com/a.pdf")
		require.NoError(t, err)
		assert.Equal(t, "Annual Report", got.Fields["Title"])
		assert.Equal(t, types.NotFound, got.Fields["Author"])
		assert.True(t, base.Equal(got.ProcessedAt))
	})

	t.Run("save replaces existing key", func(t *testing.T) {
		r := sampleResult("tpl-a", "https://example.com/a.pdf", base)
		r.Fields["Title"] = "Revised"
		require.NoError(t, s.Save(ctx, r))

		got, err := s.Get(ctx, "tpl-a", "https://example.com/a.pdf")
		require.NoError(t, err)
		assert.Equal(t, "Revised", got.Fields["Title"])

		list, err := s.List(ctx, "tpl-a")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("list orders by processed time then url", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, sampleResult("tpl-b", "https://example.com/z.pdf", base)))
		require.NoError(t, s.Save(ctx, sampleResult("tpl-b", "https://example.com/m.pdf", base)))
		require.NoError(t, s.Save(ctx, sampleResult("tpl-b", "https://example.com/a.pdf", base.Add(time.Minute))))

		list, err := s.List(ctx, "tpl-b")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "https://example.com/m.pdf", list[0].DocumentURL)
		assert.Equal(t, "https://example.com/z.pdf", list[1].DocumentURL)
		assert.Equal(t, "https://example.com/a.pdf", list[2].DocumentURL)

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 4)
	})

	t.Run("list unknown template is empty", func(t *testing.T) {
		list, err := s.List(ctx, "missing")
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "tpl-a", "https://example.com/none.pdf")
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "tpl-a", nf.TemplateID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "tpl-b", "https://example.com/z.pdf"))
		_, err := s.Get(ctx, "tpl-b", "https://example.com/z.pdf")
		var nf *NotFoundError
		assert.ErrorAs(t, err, &nf)

		err = s.Delete(ctx, "tpl-b", "https://example.com/z.pdf")
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("save rejects incomplete key", func(t *testing.T) {
		assert.Error(t, s.Save(ctx, &types.ExtractionResult{TemplateID: "tpl-a"}))
		assert.Error(t, s.Save(ctx, nil))
	})
}

func TestIsPostgres(t *testing.T) {
	assert.True(t, IsPostgres("postgres://u:p@localhost/db"))
	assert.True(t, IsPostgres("postgresql://localhost/db"))
	assert.False(t, IsPostgres("docmeta.db"))
	assert.False(t, IsPostgres("sqlite://data/docmeta.db"))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
