package server

import (
	"net/http"

	"github.com/jonathan/docmeta/internal/templates"
	"github.com/jonathan/docmeta/internal/types"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.templates.List()
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, list)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t types.Template
	if err := decodeJSON(w, r, &t); err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	created, err := s.templates.Create(t)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, created)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.Get(r.PathValue("id"))
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var t types.Template
	if err := decodeJSON(w, r, &t); err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	updated, err := s.templates.Update(r.PathValue("id"), t)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.templates.Delete(id); err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	if err := s.sheets.Remove(id); err != nil {
		s.logger.Warn().Err(err).Str("template_id", id).Msg("failed to remove workbook")
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "template deleted", "id": id})
}

// handleUploadFields parses a .csv or .xlsx upload into template fields
// without storing anything.
func (s *Server) handleUploadFields(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorFromErr(w, r, uploadError(err))
		return
	}
	defer func() { _ = file.Close() }()

	fields, err := templates.ParseFieldsFile(header.Filename, file)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"fields": fields})
}
