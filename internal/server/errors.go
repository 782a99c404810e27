package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/docmeta/internal/db"
	"github.com/jonathan/docmeta/internal/fetch"
	"github.com/jonathan/docmeta/internal/ingestion"
	"github.com/jonathan/docmeta/internal/parsing"
	"github.com/jonathan/docmeta/internal/pipeline"
	"github.com/jonathan/docmeta/internal/schemas"
	"github.com/jonathan/docmeta/internal/sheets"
	"github.com/jonathan/docmeta/internal/templates"
)

// ErrValidation indicates request validation failure.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// HTTPStatus returns the HTTP status code for an error, looking through
// wrapped errors.
func HTTPStatus(err error) int {
	var (
		tplNotFound   *templates.NotFoundError
		sheetNotFound *sheets.NotFoundError
		rowNotFound   *db.NotFoundError
		conflict      *templates.ConflictError
		tplInvalid    *templates.ValidationError
		schemaInvalid *schemas.ValidationError
		reqInvalid    *ErrValidation
		fieldErrs     validator.ValidationErrors
		fetchErr      *fetch.Error
		maxBytes      *http.MaxBytesError
		parseErr      *parsing.ParseError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &tplNotFound), errors.As(err, &sheetNotFound), errors.As(err, &rowNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &tplInvalid), errors.As(err, &schemaInvalid), errors.As(err, &reqInvalid),
		errors.As(err, &fieldErrs), errors.As(err, &fetchErr), errors.As(err, &parseErr),
		errors.Is(err, ingestion.ErrNotPDF), errors.Is(err, ingestion.ErrNoText),
		errors.Is(err, pipeline.ErrNoDocuments):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
