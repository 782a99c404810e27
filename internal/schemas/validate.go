// Package schemas validates JSON documents the service reads from disk
// against embedded JSON Schemas.
package schemas

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed *.schema.json
var schemaFiles embed.FS

// TemplateSchema is the schema every template file must satisfy.
const TemplateSchema = "template.schema.json"

// compiled caches parsed schemas by file name.
var compiled sync.Map // string -> *gojsonschema.Schema

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Errors []FieldError
}

// FieldError is one violation at a JSON path.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// SchemaLoadError reports an embedded schema that is missing or does not compile.
type SchemaLoadError struct {
	Name  string
	Cause error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("failed to load schema %s: %v", e.Name, e.Cause)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// Validate checks data against the embedded schema called name. A document
// that is not valid JSON is reported as a *ValidationError at the root.
func Validate(name string, data []byte) error {
	schema, err := load(name)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &ValidationError{Errors: []FieldError{{Field: "(root)", Message: "invalid JSON: " + err.Error()}}}
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return verr
}

func load(name string) (*gojsonschema.Schema, error) {
	if s, ok := compiled.Load(name); ok {
		return s.(*gojsonschema.Schema), nil
	}

	raw, err := schemaFiles.ReadFile(name)
	if err != nil {
		return nil, &SchemaLoadError{Name: name, Cause: err}
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &SchemaLoadError{Name: name, Cause: err}
	}
	actual, _ := compiled.LoadOrStore(name, schema)
	return actual.(*gojsonschema.Schema), nil
}
