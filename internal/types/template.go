// Package types provides type definitions for structured data used throughout the docmeta system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// NotFound is the value recorded for a declared field the model did not return.
const NotFound = "Not found"

// TemplateField describes one value to extract from a document.
type TemplateField struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// Template is a named set of fields that guides extraction.
type Template struct {
	ID          string          `json:"id"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Fields      []TemplateField `json:"metadataFields" validate:"required,min=1,dive"`
}

// FieldNames returns the declared field names in order.
func (t *Template) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}
