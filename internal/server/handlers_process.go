package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/docmeta/internal/fetch"
	"github.com/jonathan/docmeta/internal/pipeline"
	"github.com/jonathan/docmeta/internal/types"
)

// uploadPrefix marks document URLs of results produced from uploads.
const uploadPrefix = "upload://"

// processRequest reads a ProcessRequest from the JSON body, falling back to
// query parameters for fields the body leaves empty.
func processRequest(w http.ResponseWriter, r *http.Request) (*types.ProcessRequest, error) {
	var req types.ProcessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	q := r.URL.Query()
	if req.DocumentURL == "" {
		req.DocumentURL = q.Get("document_url")
	}
	if req.TemplateID == "" {
		req.TemplateID = q.Get("template_id")
	}
	req.DocumentURL = strings.TrimSpace(req.DocumentURL)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// handleProcessDocument runs every document at the location as one batch.
func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	req, err := processRequest(w, r)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	report, err := s.processor.Process(r.Context(), req.DocumentURL, req.TemplateID)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// handleProcessDocumentStream runs a batch and streams progress as
// Server-Sent Events, ending with a "complete" or "error" event.
func (s *Server) handleProcessDocumentStream(w http.ResponseWriter, r *http.Request) {
	req, err := processRequest(w, r)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	if _, err := s.processor.Template(req.TemplateID); err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := pipeline.WithProgress(r.Context(), func(e pipeline.ProgressEvent) {
		if err := sse.WriteEvent("progress", e); err != nil {
			s.logger.Debug().Err(err).Msg("progress event dropped")
		}
	})
	report, err := s.processor.Process(ctx, req.DocumentURL, req.TemplateID)
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	_ = sse.WriteEvent("complete", report)
}

// handleProcessLocalPDF processes one uploaded PDF, stores the result and
// regenerates the template's workbook.
func (s *Server) handleProcessLocalPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorFromErr(w, r, uploadError(err))
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		s.errorFromErr(w, r, &ErrValidation{Field: "file", Message: "only PDF files are supported"})
		return
	}
	templateID := r.FormValue("template_id")
	if templateID == "" {
		s.errorFromErr(w, r, &ErrValidation{Field: "template_id", Message: "is required"})
		return
	}
	t, err := s.processor.Template(templateID)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	path, err := s.saveUpload(file)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	defer func() { _ = os.Remove(path) }()

	name := fetch.SanitizeFileName(filepath.Base(header.Filename))
	d := types.DocumentDescriptor{Name: name, Location: path, Kind: types.SourceLocal}
	result, err := s.processor.ProcessDocument(r.Context(), d, t)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	result.DocumentURL = uploadPrefix + name

	if err := s.processor.Save(r.Context(), result); err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	excelPath, err := s.processor.Regenerate(r.Context(), t)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"result":     result,
		"excel_path": excelPath,
	})
}

// saveUpload copies an upload to a uniquely named PDF in the temp directory.
func (s *Server) saveUpload(src io.Reader) (string, error) {
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	out, err := os.CreateTemp(s.tempDir, "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	_, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(out.Name())
		if copyErr != nil {
			return "", uploadError(copyErr)
		}
		return "", fmt.Errorf("failed to write upload: %w", closeErr)
	}
	return out.Name(), nil
}

// uploadError classifies multipart read failures.
func uploadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return maxErr
	}
	if errors.Is(err, http.ErrMissingFile) {
		return &ErrValidation{Field: "file", Message: "is required"}
	}
	return &ErrValidation{Field: "file", Message: err.Error()}
}
