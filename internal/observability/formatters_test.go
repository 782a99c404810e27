package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jonathan/docmeta/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPrintTemplates(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintTemplates([]types.Template{
		{ID: "100", Name: "Clinical", Fields: []types.TemplateField{{Name: "A"}, {Name: "B"}}},
		{ID: "200", Name: "Invoice", Fields: []types.TemplateField{{Name: "Total"}}},
	})
	output := buf.String()

	assert.Contains(t, output, "TEMPLATES (2)")
	assert.Contains(t, output, "100  Clinical (2 fields)")
	assert.Contains(t, output, "200  Invoice (1 fields)")
}

func TestPrintTemplates_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintTemplates(nil)
	assert.Contains(t, buf.String(), "No templates found")
}

func TestPrintBatchReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	report := &types.BatchReport{
		TemplateID: "t1",
		Location:   "/docs",
		Total:      2,
		Succeeded:  1,
		Failed:     1,
		ExcelPath:  "output/t1.xlsx",
		Results: []types.ExtractionResult{
			{FileName: "a.pdf", TotalTokens: 1200, Fields: map[string]string{"X": "1", "Y": types.NotFound}},
			{FileName: "b.pdf", Error: "no text could be extracted"},
		},
	}

	p.PrintBatchReport(report)
	output := buf.String()

	assert.Contains(t, output, "BATCH REPORT")
	assert.Contains(t, output, "2 total, 1 ok, 1 failed")
	assert.Contains(t, output, "✓ a.pdf (1200 tokens, 1/2 fields)")
	assert.Contains(t, output, "✗ b.pdf: no text could be extracted")
	assert.Contains(t, output, "output/t1.xlsx")
}

func TestPrintBatchReport_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintBatchReport(nil)
	assert.Empty(t, buf.String())
}

func TestPrintResult_SortsFields(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintResult(&types.ExtractionResult{
		FileName: "a.pdf",
		Fields:   map[string]string{"Zeta": "z", "Alpha": "a"},
	})
	output := buf.String()

	assert.Less(t, strings.Index(output, "Alpha: a"), strings.Index(output, "Zeta: z"))
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("T", strings.Repeat("x", 200))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}

func TestPrintTokenStats(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintTokenStats(types.TokenStats{
		TotalTokens:            5000,
		TokensThisMinute:       1200,
		TokensPerMinuteLimit:   1000000,
		DocumentTokenThreshold: 30000,
		DocumentsProcessed:     4,
		AverageTokensPerDoc:    1250,
	})
	output := buf.String()

	assert.Contains(t, output, "TOKEN USAGE")
	assert.Contains(t, output, "1200 / 1000000")
	assert.Contains(t, output, "1250.0")
}
