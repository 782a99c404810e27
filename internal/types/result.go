package types

import "time"

// ExtractionResult is the flat record produced for one document.
// Fields holds a value (or NotFound) for every field the template declares.
type ExtractionResult struct {
	FileName       string            `json:"file_name"`
	DocumentURL    string            `json:"document_url"`
	TemplateID     string            `json:"template_id"`
	Fields         map[string]string `json:"fields"`
	PromptTokens   int               `json:"prompt_tokens"`
	ResponseTokens int               `json:"response_tokens"`
	TotalTokens    int               `json:"total_tokens"`
	PageCount      int               `json:"page_count,omitempty"`
	DurationMS     int64             `json:"duration_ms"`
	ProcessedAt    time.Time         `json:"processed_at"`
	Error          string            `json:"error,omitempty"`
}

// Failed reports whether the document could not be processed.
func (r *ExtractionResult) Failed() bool {
	return r.Error != ""
}

// BatchReport summarizes one batch run.
type BatchReport struct {
	TemplateID string             `json:"template_id"`
	Location   string             `json:"location"`
	Total      int                `json:"total"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Results    []ExtractionResult `json:"results"`
	ExcelPath  string             `json:"excel_path,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// TokenStats is a snapshot of the token-budget tracker.
type TokenStats struct {
	TotalTokens            int64     `json:"total_tokens"`
	TokensThisMinute       int64     `json:"tokens_this_minute"`
	TokensPerMinuteLimit   int64     `json:"tokens_per_minute_limit"`
	DocumentTokenThreshold int64     `json:"document_token_threshold"`
	DocumentsProcessed     int64     `json:"documents_processed"`
	DocumentsOverThreshold int64     `json:"documents_over_threshold"`
	LimitExceededCount     int64     `json:"limit_exceeded_count"`
	AverageTokensPerDoc    float64   `json:"average_tokens_per_document"`
	WindowStart            time.Time `json:"window_start"`
}
