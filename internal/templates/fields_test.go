package templates

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jonathan/docmeta/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseFieldsFile_CSV(t *testing.T) {
	csvData := "\ufeffName,Description\n" +
		"Study Title,Full title of the study\n" +
		"Sponsor,\n" +
		" Phase , Trial phase \n" +
		"Study Title,duplicate\n"

	fields, err := ParseFieldsFile("fields.csv", strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, []types.TemplateField{
		{Name: "Study Title", Description: "Full title of the study"},
		{Name: "Phase", Description: "Trial phase"},
	}, fields)
}

func TestParseFieldsFile_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"description", "name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Date the study began", "Start Date"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Lead investigator", "Principal Investigator"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	fields, err := ParseFieldsFile("Fields.XLSX", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []types.TemplateField{
		{Name: "Start Date", Description: "Date the study began"},
		{Name: "Principal Investigator", Description: "Lead investigator"},
	}, fields)
}

func TestParseFieldsFile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		wantMsg  string
	}{
		{"empty", "f.csv", "   ", "file is empty"},
		{"unsupported", "f.txt", "name,description\na,b", "unsupported file type"},
		{"missing column", "f.csv", "name,notes\na,b", "'name' and 'description'"},
		{"no rows", "f.csv", "name,description\n,\n", "no valid fields"},
		{"bad xlsx", "f.xlsx", "not a zip", "error reading file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFieldsFile(tt.filename, strings.NewReader(tt.content))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Message, tt.wantMsg)
		})
	}
}
