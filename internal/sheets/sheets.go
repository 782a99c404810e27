// Package sheets writes extraction results to one xlsx workbook per template.
package sheets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/jonathan/docmeta/internal/types"
)

const (
	// MaxHeaderLen is the longest sanitized column header.
	MaxHeaderLen = 31
	columnWidth  = 30
	headerFill   = "4F81BD"
	headerFont   = "FFFFFF"
)

// Fixed columns around the template fields.
var (
	leadingColumns  = []string{"File_Name", "Document_URL"}
	trailingColumns = []string{"Template_ID", "Total_Tokens", "Processed_At"}
)

// NotFoundError is returned by Path when no workbook exists for a template.
type NotFoundError struct {
	TemplateID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no spreadsheet for template %s", e.TemplateID)
}

// Writer owns the output directory. Generation for the same template is serialized.
type Writer struct {
	dir    string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewWriter creates a writer that stores workbooks in dir.
func NewWriter(dir string, logger zerolog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the workbook path for a template, or *NotFoundError.
func (w *Writer) Path(templateID string) (string, error) {
	p := w.path(templateID)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &NotFoundError{TemplateID: templateID}
		}
		return "", err
	}
	return p, nil
}

// Generate rewrites the template's workbook from results and returns its path.
// Rows are ordered by processing time then document URL, so the same results
// always produce the same cells.
func (w *Writer) Generate(t *types.Template, results []types.ExtractionResult) (string, error) {
	if t == nil {
		return "", fmt.Errorf("template is required")
	}

	rows := make([]types.ExtractionResult, len(results))
	copy(rows, results)
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ProcessedAt.Equal(rows[j].ProcessedAt) {
			return rows[i].ProcessedAt.Before(rows[j].ProcessedAt)
		}
		return rows[i].DocumentURL < rows[j].DocumentURL
	})

	f, err := build(t, rows)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("xlsx write: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	dest := w.path(t.ID)
	tmp, err := os.CreateTemp(w.dir, ".xlsx-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp workbook: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to replace workbook: %w", err)
	}

	w.logger.Info().Str("template_id", t.ID).Int("rows", len(rows)).Str("path", dest).Msg("spreadsheet generated")
	return dest, nil
}

// Remove deletes a template's workbook. A missing workbook is not an error.
func (w *Writer) Remove(templateID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.Remove(w.path(templateID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (w *Writer) path(templateID string) string {
	return filepath.Join(w.dir, fileID(templateID)+".xlsx")
}

func build(t *types.Template, rows []types.ExtractionResult) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := SanitizeHeader(t.Name)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sheet name: %w", err)
	}

	names := t.FieldNames()
	raw := make([]string, 0, len(leadingColumns)+len(names)+len(trailingColumns))
	raw = append(raw, leadingColumns...)
	raw = append(raw, names...)
	raw = append(raw, trailingColumns...)
	headers := UniqueHeaders(raw)

	if err := writeRow(f, sheet, 1, toAny(headers)); err != nil {
		_ = f.Close()
		return nil, err
	}

	for i, r := range rows {
		values := make([]any, 0, len(headers))
		values = append(values, r.FileName, r.DocumentURL)
		for _, name := range names {
			v, ok := r.Fields[name]
			if !ok || v == "" {
				v = types.NotFound
			}
			values = append(values, v)
		}
		values = append(values, r.TemplateID, r.TotalTokens, formatTime(r.ProcessedAt))
		if err := writeRow(f, sheet, i+2, values); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if err := style(f, sheet, len(headers), len(rows)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func style(f *excelize.File, sheet string, cols, rows int) error {
	lastCol, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: headerFont},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", header); err != nil {
		return err
	}

	if rows > 0 {
		body, err := f.NewStyle(&excelize.Style{
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		})
		if err != nil {
			return fmt.Errorf("body style: %w", err)
		}
		if err := f.SetCellStyle(sheet, "A2", lastCol+strconv.Itoa(rows+1), body); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheet, "A", lastCol, columnWidth); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// SanitizeHeader keeps ASCII letters and digits, joins the remaining runs with
// a single underscore and caps the result at MaxHeaderLen. An empty result
// becomes "Column".
func SanitizeHeader(s string) string {
	var sb strings.Builder
	pending := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if pending && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pending = false
			sb.WriteRune(r)
			continue
		}
		pending = true
	}

	out := sb.String()
	if len(out) > MaxHeaderLen {
		out = strings.TrimRight(out[:MaxHeaderLen], "_")
	}
	if out == "" {
		return "Column"
	}
	return out
}

// UniqueHeaders sanitizes every name and suffixes repeats with _2, _3, ...
// keeping each header within MaxHeaderLen.
func UniqueHeaders(names []string) []string {
	used := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		h := SanitizeHeader(name)
		candidate := h
		for n := 2; used[strings.ToLower(candidate)]; n++ {
			suffix := "_" + strconv.Itoa(n)
			base := h
			if len(base)+len(suffix) > MaxHeaderLen {
				base = base[:MaxHeaderLen-len(suffix)]
			}
			candidate = base + suffix
		}
		used[strings.ToLower(candidate)] = true
		out[i] = candidate
	}
	return out
}

func fileID(id string) string {
	var sb strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "template"
	}
	return sb.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
