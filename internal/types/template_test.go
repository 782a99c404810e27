package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_JSONUsesMetadataFieldsKey(t *testing.T) {
	tmpl := Template{
		ID:   "1700000000000",
		Name: "Clinical Study",
		Fields: []TemplateField{
			{Name: "Study Title", Description: "Full title of the study"},
			{Name: "Sponsor", Description: "Sponsoring organization"},
		},
	}

	data, err := json.Marshal(tmpl)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"metadataFields"`)

	var decoded Template
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, tmpl, decoded)
}

func TestTemplate_FieldNames(t *testing.T) {
	tmpl := Template{Fields: []TemplateField{{Name: "B"}, {Name: "A"}, {Name: "C"}}}
	assert.Equal(t, []string{"B", "A", "C"}, tmpl.FieldNames())
}

func TestExtractionResult_Failed(t *testing.T) {
	assert.False(t, (&ExtractionResult{}).Failed())
	assert.True(t, (&ExtractionResult{Error: "download failed"}).Failed())
}
