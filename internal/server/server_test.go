package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/docmeta/internal/config"
	"github.com/jonathan/docmeta/internal/db"
	"github.com/jonathan/docmeta/internal/fetch"
	"github.com/jonathan/docmeta/internal/llm"
	"github.com/jonathan/docmeta/internal/pipeline"
	"github.com/jonathan/docmeta/internal/server/ratelimit"
	"github.com/jonathan/docmeta/internal/sheets"
	"github.com/jonathan/docmeta/internal/templates"
	"github.com/jonathan/docmeta/internal/types"
)

type stubLLM struct {
	reply string
	calls atomic.Int32
}

func (s *stubLLM) Generate(_ context.Context, _ string) (*llm.Generation, error) {
	s.calls.Add(1)
	reply := s.reply
	if reply == "" {
		reply = `{"Title": "Quarterly Report", "Owner": "Finance"}`
	}
	return &llm.Generation{Text: reply, Model: "stub", PromptTokens: 50, ResponseTokens: 10, TotalTokens: 60}, nil
}

func (s *stubLLM) Model() string { return "stub" }
func (s *stubLLM) Close() error  { return nil }

// readText stands in for PDF extraction: the test documents are plain text.
func readText(path string) (string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	return string(data), 1, nil
}

type harness struct {
	srv     *Server
	handler http.Handler
	results db.Store
	model   *stubLLM
	docs    string
}

type harnessOption func(*Config)

func withJWT(secret string) harnessOption {
	return func(c *Config) {
		c.JWT = &config.JWTConfig{Secret: secret, Issuer: "docmeta", ExpirationHours: 1}
	}
}

func withRateLimit(rl *ratelimit.Config) harnessOption {
	return func(c *Config) { c.RateLimit = rl }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	root := t.TempDir()
	logger := zerolog.Nop()

	tpls, err := templates.NewStore(filepath.Join(root, "templates"), logger)
	require.NoError(t, err)
	_, err = tpls.Create(types.Template{
		ID:   "contracts",
		Name: "Contracts",
		Fields: []types.TemplateField{
			{Name: "Title", Description: "Document title"},
			{Name: "Owner", Description: "Responsible team"},
			{Name: "Expiry", Description: "Expiry date"},
		},
	})
	require.NoError(t, err)

	results, err := db.OpenSQLite(context.Background(), filepath.Join(root, "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = results.Close() })

	writer := sheets.NewWriter(filepath.Join(root, "excel"), logger)
	model := &stubLLM{}

	proc, err := pipeline.New(pipeline.Options{
		Templates: tpls,
		Source:    fetch.New(fetch.Config{}),
		Extract:   readText,
		LLM:       model,
		Store:     results,
		Sheets:    writer,
		TempDir:   filepath.Join(root, "tmp"),
		Logger:    logger,
	})
	require.NoError(t, err)

	docs := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	for _, name := range []string{"a.pdf", "b.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(docs, name), []byte("contract text for "+name), 0o644))
	}

	cfg := Config{
		TempDir:   filepath.Join(root, "uploads"),
		RateLimit: &ratelimit.Config{Enabled: false},
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := New(cfg, Deps{Templates: tpls, Processor: proc, Results: results, Sheets: writer})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return &harness{srv: srv, handler: srv.Handler(), results: results, model: model, docs: docs}
}

func (h *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *harness) upload(t *testing.T, target, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, withJWT("preflight-secret"))

	w := h.do(t, http.MethodOptions, "/process-document", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestTemplateCRUD(t *testing.T) {
	h := newHarness(t)

	tpl := map[string]any{
		"id":             "invoices",
		"name":           "Invoices",
		"metadataFields": []map[string]string{{"name": "Vendor", "description": "Who billed"}},
	}
	w := h.do(t, http.MethodPost, "/templates", tpl)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "invoices", decode[types.Template](t, w).ID)

	w = h.do(t, http.MethodPost, "/templates", tpl)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Template](t, w), 2)

	w = h.do(t, http.MethodGet, "/templates/invoices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Invoices", decode[types.Template](t, w).Name)

	tpl["name"] = "Supplier invoices"
	w = h.do(t, http.MethodPut, "/templates/invoices", tpl)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Supplier invoices", decode[types.Template](t, w).Name)

	w = h.do(t, http.MethodDelete, "/templates/invoices", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/templates/invoices", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, http.MethodDelete, "/templates/invoices", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTemplate_Invalid(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/templates", map[string]any{"name": "No fields"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/templates", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/templates", map[string]any{
		"id":             "../escape",
		"name":           "Bad",
		"metadataFields": []map[string]string{{"name": "A"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadFields(t *testing.T) {
	h := newHarness(t)

	csv := "name,description\nVendor,Who billed\nAmount,Total due\n"
	w := h.upload(t, "/templates/upload-fields", "fields.csv", []byte(csv), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[map[string][]types.TemplateField](t, w)
	assert.Equal(t, []types.TemplateField{
		{Name: "Vendor", Description: "Who billed"},
		{Name: "Amount", Description: "Total due"},
	}, resp["fields"])

	w = h.upload(t, "/templates/upload-fields", "fields.txt", []byte(csv), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.upload(t, "/templates/upload-fields", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessDocument(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/process-document", types.ProcessRequest{DocumentURL: h.docs, TemplateID: "contracts"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	report := decode[types.BatchReport](t, w)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.NotEmpty(t, report.ExcelPath)
	require.Len(t, report.Results, 2)
	for _, r := range report.Results {
		assert.Equal(t, "Quarterly Report", r.Fields["Title"])
		assert.Equal(t, types.NotFound, r.Fields["Expiry"])
	}

	stored, err := h.results.List(context.Background(), "contracts")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	w = h.do(t, http.MethodGet, "/token-statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[types.TokenStats](t, w)
	assert.Equal(t, int64(120), stats.TotalTokens)
	assert.Equal(t, int64(2), stats.DocumentsProcessed)
}

func TestProcessDocument_QueryParams(t *testing.T) {
	h := newHarness(t)

	target := "/process-document?template_id=contracts&document_url=" + filepath.Join(h.docs, "a.pdf")
	w := h.do(t, http.MethodPost, target, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[types.BatchReport](t, w).Total)
}

func TestProcessDocument_Errors(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/process-document", types.ProcessRequest{TemplateID: "contracts"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/process-document", types.ProcessRequest{DocumentURL: h.docs, TemplateID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, "/process-document", types.ProcessRequest{DocumentURL: filepath.Join(h.docs, "nope"), TemplateID: "contracts"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/process-document", types.ProcessRequest{DocumentURL: t.TempDir(), TemplateID: "contracts"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no documents found")
	assert.Zero(t, h.model.calls.Load())
}

func TestProcessDocumentStream(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/process-document/stream", types.ProcessRequest{DocumentURL: h.docs, TemplateID: "contracts"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "event: complete")
	assert.NotContains(t, body, "event: error")

	w = h.do(t, http.MethodPost, "/process-document/stream", types.ProcessRequest{DocumentURL: h.docs, TemplateID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessLocalPDF(t *testing.T) {
	h := newHarness(t)

	w := h.upload(t, "/process-local-pdf", "My Contract.pdf", []byte("uploaded contract"), map[string]string{"template_id": "contracts"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result    types.ExtractionResult `json:"result"`
		ExcelPath string                 `json:"excel_path"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Result.DocumentURL, uploadPrefix))
	assert.Equal(t, "Finance", resp.Result.Fields["Owner"])
	assert.FileExists(t, resp.ExcelPath)

	got, err := h.results.Get(context.Background(), "contracts", resp.Result.DocumentURL)
	require.NoError(t, err)
	assert.Equal(t, resp.Result.Fields, got.Fields)
}

func TestProcessLocalPDF_Rejects(t *testing.T) {
	h := newHarness(t)

	w := h.upload(t, "/process-local-pdf", "notes.txt", []byte("x"), map[string]string{"template_id": "contracts"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.upload(t, "/process-local-pdf", "doc.pdf", []byte("x"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.upload(t, "/process-local-pdf", "doc.pdf", []byte("x"), map[string]string{"template_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.upload(t, "/process-local-pdf", "", nil, map[string]string{"template_id": "contracts"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, h.model.calls.Load())
}

func TestGenerateExcel(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/generate-excel", map[string]any{
		"template_id":  "contracts",
		"document_url": "https://example.com/docs/lease.pdf",
		"metadata":     map[string]string{"Title": "Lease", "Unknown": "dropped"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.FileExists(t, decode[map[string]string](t, w)["excel_path"])

	got, err := h.results.Get(context.Background(), "contracts", "https://example.com/docs/lease.pdf")
	require.NoError(t, err)
	assert.Equal(t, "lease.pdf", got.FileName)
	assert.Equal(t, map[string]string{"Title": "Lease", "Owner": types.NotFound, "Expiry": types.NotFound}, got.Fields)

	w = h.do(t, http.MethodPost, "/generate-excel", map[string]any{
		"template_id":  "contracts",
		"document_url": "https://example.com/docs/lease.pdf",
		"file_name":    "Lease 2026",
		"metadata":     []map[string]string{{"Title": "Lease"}, {"Owner": "Legal"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, err = h.results.Get(context.Background(), "contracts", "https://example.com/docs/lease.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Lease 2026", got.FileName)
	assert.Equal(t, "Legal", got.Fields["Owner"])
}

func TestGenerateExcel_Invalid(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/generate-excel", map[string]any{"template_id": "contracts"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/generate-excel", map[string]any{
		"template_id":  "contracts",
		"document_url": "u",
		"metadata":     "just a string",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/generate-excel", map[string]any{
		"template_id":  "missing",
		"document_url": "u",
		"metadata":     map[string]string{},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadExcel(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/download-excel?template_id=contracts", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet, "/download-excel", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/process-document", types.ProcessRequest{DocumentURL: h.docs, TemplateID: "contracts"})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/download-excel?template_id=contracts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestMetadataEndpoints(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/process-document", types.ProcessRequest{DocumentURL: h.docs, TemplateID: "contracts"})
	require.Equal(t, http.StatusOK, w.Code)
	docURL := filepath.Join(h.docs, "a.pdf")

	w = h.do(t, http.MethodGet, "/metadata?template_id=contracts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.ExtractionResult](t, w), 2)

	w = h.do(t, http.MethodGet, "/metadata/lookup?template_id=contracts&document_url="+url.QueryEscape(docURL), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "a.pdf", decode[types.ExtractionResult](t, w).FileName)

	w = h.do(t, http.MethodGet, "/metadata/lookup?template_id=contracts", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodDelete, "/metadata?template_id=contracts&document_url="+url.QueryEscape(docURL), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[map[string]string](t, w)["excel_path"])

	w = h.do(t, http.MethodGet, "/metadata/lookup?template_id=contracts&document_url="+url.QueryEscape(docURL), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, http.MethodDelete, "/metadata?template_id=contracts&document_url="+url.QueryEscape(docURL), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet, "/metadata", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.ExtractionResult](t, w), 1)
}

func TestJWTAuth(t *testing.T) {
	h := newHarness(t, withJWT("test-secret-key-for-auth"))

	w := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/templates", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	token, err := h.srv.jwtService.GenerateToken("tester")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/templates", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/templates", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, withRateLimit(&ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{
			{Path: "/templates", Method: "GET", Limit: 2, Window: time.Minute, Burst: 2},
		},
	}))

	for i := 0; i < 2; i++ {
		w := h.do(t, http.MethodGet, "/templates", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := h.do(t, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decode[map[string]any](t, w)["error"])

	w = h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
