package types

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var requestValidator = validator.New()

// ProcessRequest asks for every document at a location to be processed.
type ProcessRequest struct {
	DocumentURL string `json:"document_url" validate:"required"`
	TemplateID  string `json:"template_id" validate:"required"`
}

// Validate checks the required fields.
func (r *ProcessRequest) Validate() error {
	return requestValidator.Struct(r)
}

// GenerateExcelRequest records field values for one document directly.
// Metadata is a JSON object, or an array of objects that are merged in order.
type GenerateExcelRequest struct {
	TemplateID  string          `json:"template_id" validate:"required"`
	DocumentURL string          `json:"document_url" validate:"required"`
	FileName    string          `json:"file_name,omitempty"`
	Metadata    json.RawMessage `json:"metadata"`
}

// Validate checks the required fields.
func (r *GenerateExcelRequest) Validate() error {
	return requestValidator.Struct(r)
}

// MetadataKey identifies one stored result.
type MetadataKey struct {
	TemplateID  string `json:"template_id" validate:"required"`
	DocumentURL string `json:"document_url" validate:"required"`
}

// Validate checks the required fields.
func (r *MetadataKey) Validate() error {
	return requestValidator.Struct(r)
}
