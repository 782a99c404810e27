package templates

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jonathan/docmeta/internal/types"
	"github.com/xuri/excelize/v2"
)

// ParseFieldsFile reads template fields from a .csv or .xlsx upload. The
// header row must name a "name" and a "description" column; rows missing
// either value are skipped.
func ParseFieldsFile(filename string, r io.Reader) ([]types.TemplateField, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ValidationError{Field: "file", Message: "file is empty"}
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSV(data)
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(data)
	default:
		return nil, &ValidationError{Field: "file", Message: "unsupported file type, upload a .csv or .xlsx file"}
	}
	if err != nil {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("error reading file: %v", err)}
	}

	return fieldsFromRows(rows)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func fieldsFromRows(rows [][]string) ([]types.TemplateField, error) {
	if len(rows) == 0 {
		return nil, &ValidationError{Field: "file", Message: "file has no header row"}
	}

	nameCol, descCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			nameCol = i
		case "description":
			descCol = i
		}
	}
	if nameCol < 0 || descCol < 0 {
		return nil, &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("the file must have columns named 'name' and 'description', found %v", rows[0]),
		}
	}

	var fields []types.TemplateField
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		name := cell(row, nameCol)
		desc := cell(row, descCol)
		if name == "" || desc == "" || seen[name] {
			continue
		}
		seen[name] = true
		fields = append(fields, types.TemplateField{Name: name, Description: desc})
	}

	if len(fields) == 0 {
		return nil, &ValidationError{Field: "file", Message: "no valid fields found in the file"}
	}
	return fields, nil
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
