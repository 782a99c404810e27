package server

import (
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/jonathan/docmeta/internal/parsing"
	"github.com/jonathan/docmeta/internal/types"
)

// handleGenerateExcel stores a record supplied by the client and regenerates
// the template's workbook.
func (s *Server) handleGenerateExcel(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateExcelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	t, err := s.processor.Template(req.TemplateID)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	values, err := parsing.ParseRecord(req.Metadata)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	name := req.FileName
	if name == "" {
		name = path.Base(req.DocumentURL)
	}
	result := &types.ExtractionResult{
		FileName:    name,
		DocumentURL: req.DocumentURL,
		TemplateID:  t.ID,
		Fields:      parsing.FillFields(values, t.Fields),
		ProcessedAt: time.Now().UTC(),
	}
	if err := s.processor.Save(r.Context(), result); err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	excelPath, err := s.processor.Regenerate(r.Context(), t)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"excel_path": excelPath})
}

// handleDownloadExcel serves the template's workbook as an attachment.
func (s *Server) handleDownloadExcel(w http.ResponseWriter, r *http.Request) {
	templateID, err := requireQuery(r, "template_id")
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	p, err := s.sheets.Path(templateID)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(path.Base(p)))
	http.ServeFile(w, r, p)
}

// handleListMetadata lists stored results, optionally for one template.
func (s *Server) handleListMetadata(w http.ResponseWriter, r *http.Request) {
	results, err := s.results.List(r.Context(), r.URL.Query().Get("template_id"))
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, results)
}

func metadataKey(r *http.Request) (*types.MetadataKey, error) {
	q := r.URL.Query()
	key := &types.MetadataKey{TemplateID: q.Get("template_id"), DocumentURL: q.Get("document_url")}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return key, nil
}

// handleGetMetadata returns one stored result.
func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	key, err := metadataKey(r)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	result, err := s.results.Get(r.Context(), key.TemplateID, key.DocumentURL)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleDeleteMetadata deletes one stored result and regenerates the
// workbook when the template still exists.
func (s *Server) handleDeleteMetadata(w http.ResponseWriter, r *http.Request) {
	key, err := metadataKey(r)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	if err := s.results.Delete(r.Context(), key.TemplateID, key.DocumentURL); err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	resp := map[string]string{"message": "metadata deleted"}
	if t, err := s.templates.Get(key.TemplateID); err == nil {
		excelPath, err := s.processor.Regenerate(r.Context(), t)
		if err != nil {
			s.errorFromErr(w, r, err)
			return
		}
		resp["excel_path"] = excelPath
	}
	s.jsonResponse(w, http.StatusOK, resp)
}
