package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/docmeta/internal/prompts"
	"github.com/jonathan/docmeta/internal/types"
)

// BuildExtractionPrompt renders the metadata extraction prompt for fields and
// the extracted document text. The JSON example in the prompt is keyed by the
// field names in declared order.
func BuildExtractionPrompt(fields []types.TemplateField, text string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("at least one field is required")
	}

	var descriptions, searches []string
	for _, f := range fields {
		desc := strings.TrimSpace(f.Description)
		if desc == "" {
			desc = f.Name
		}
		descriptions = append(descriptions, fmt.Sprintf("- %s: %s", f.Name, desc))

		search, err := prompts.Render(prompts.ExtractionFile, prompts.KeyFieldSearch, map[string]string{
			"Name":      f.Name,
			"LowerName": strings.ToLower(f.Name),
			"AltName":   strings.ReplaceAll(f.Name, "/", " or "),
		})
		if err != nil {
			return "", err
		}
		searches = append(searches, search)
	}

	return prompts.Render(prompts.ExtractionFile, prompts.KeyExtractMetadata, map[string]string{
		"SearchInstructions": strings.Join(searches, "\n\n"),
		"FieldDescriptions":  strings.Join(descriptions, "\n"),
		"Text":               text,
		"Example":            exampleObject(fields),
	})
}

// exampleObject writes an indented JSON object with one placeholder value per
// field, preserving field order.
func exampleObject(fields []types.TemplateField) string {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, f := range fields {
		key, _ := json.Marshal(f.Name)
		value, _ := json.Marshal(f.Name + " value from text")
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
		if i < len(fields)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}")
	return buf.String()
}
