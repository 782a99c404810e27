// Package pipeline runs documents through download, text extraction, model
// extraction and parsing, and collects the results.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/docmeta/internal/cache"
	"github.com/jonathan/docmeta/internal/llm"
	"github.com/jonathan/docmeta/internal/parsing"
	"github.com/jonathan/docmeta/internal/tokens"
	"github.com/jonathan/docmeta/internal/types"
)

// DefaultWorkers is the batch pool size.
const DefaultWorkers = 4

// TemplateSource resolves template IDs.
type TemplateSource interface {
	Get(id string) (*types.Template, error)
}

// Source lists and downloads documents.
type Source interface {
	List(ctx context.Context, location string) ([]types.DocumentDescriptor, error)
	Download(ctx context.Context, d types.DocumentDescriptor, dir string) (string, error)
}

// TextExtractor returns the text and page count of a downloaded document.
type TextExtractor func(path string) (string, int, error)

// ResultStore persists results and lists them back.
type ResultStore interface {
	Save(ctx context.Context, r *types.ExtractionResult) error
	List(ctx context.Context, templateID string) ([]types.ExtractionResult, error)
}

// SheetWriter regenerates the workbook for a template.
type SheetWriter interface {
	Generate(t *types.Template, results []types.ExtractionResult) (string, error)
}

// Options wires a Processor. Templates, Source, Extract and LLM are required.
type Options struct {
	Templates TemplateSource
	Source    Source
	Extract   TextExtractor
	LLM       llm.Client
	Tracker   *tokens.Tracker
	// Cache and CacheTTL enable reply memoization when both are set.
	Cache    cache.Client
	CacheTTL time.Duration
	Store    ResultStore
	Sheets   SheetWriter
	Workers  int
	TempDir  string
	Logger   zerolog.Logger
	Progress ProgressCallback
	Now      func() time.Time
}

// Processor is the document metadata extraction pipeline.
type Processor struct {
	opts Options

	mu      sync.Mutex
	results []types.ExtractionResult
}

// New validates opts and returns a Processor.
func New(opts Options) (*Processor, error) {
	switch {
	case opts.Templates == nil:
		return nil, errors.New("template source is required")
	case opts.Source == nil:
		return nil, errors.New("document source is required")
	case opts.Extract == nil:
		return nil, errors.New("text extractor is required")
	case opts.LLM == nil:
		return nil, errors.New("LLM client is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Tracker == nil {
		opts.Tracker = tokens.NewTracker(tokens.DefaultTokensPerMinute, tokens.DefaultDocumentThreshold,
			tokens.WithLogger(opts.Logger))
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Processor{opts: opts}, nil
}

// Tracker returns the token tracker.
func (p *Processor) Tracker() *tokens.Tracker {
	return p.opts.Tracker
}

// Workers returns the batch pool size.
func (p *Processor) Workers() int {
	return p.opts.Workers
}

// Results returns a copy of every result recorded so far. Results are only
// kept in memory when no Store is configured.
func (p *Processor) Results() []types.ExtractionResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.ExtractionResult, len(p.results))
	copy(out, p.results)
	return out
}

// Template loads a template and checks it declares fields.
func (p *Processor) Template(id string) (*types.Template, error) {
	t, err := p.opts.Templates.Get(id)
	if err != nil {
		return nil, err
	}
	if len(t.Fields) == 0 {
		return nil, fmt.Errorf("template %s declares no metadata fields", id)
	}
	return t, nil
}

// ProcessDocument downloads d, extracts its text, asks the model for the
// template's fields and returns the parsed record. The downloaded file is
// removed before returning.
func (p *Processor) ProcessDocument(ctx context.Context, d types.DocumentDescriptor, t *types.Template) (*types.ExtractionResult, error) {
	start := p.opts.Now()
	log := p.opts.Logger.With().Str("document", d.Name).Str("template_id", t.ID).Logger()

	p.emit(ctx, ProgressEvent{Stage: StageDownload, Document: d.Name})
	path, err := p.opts.Source.Download(ctx, d, p.opts.TempDir)
	if err != nil {
		return nil, &StageError{Stage: StageDownload, Document: d.Name, Cause: err}
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove temp file")
		}
	}()

	p.emit(ctx, ProgressEvent{Stage: StageExtract, Document: d.Name})
	text, pages, err := p.opts.Extract(path)
	if err != nil {
		return nil, &StageError{Stage: StageExtract, Document: d.Name, Cause: err}
	}
	log.Debug().Int("chars", len(text)).Int("pages", pages).Msg("extracted text")

	prompt, err := llm.BuildExtractionPrompt(t.Fields, text)
	if err != nil {
		return nil, &StageError{Stage: StagePrompt, Document: d.Name, Cause: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageGenerate, Document: d.Name, Cause: err}
	}
	p.emit(ctx, ProgressEvent{Stage: StageGenerate, Document: d.Name})
	gen, cached, err := p.generate(ctx, prompt)
	if err != nil {
		return nil, &StageError{Stage: StageGenerate, Document: d.Name, Cause: err}
	}

	p.emit(ctx, ProgressEvent{Stage: StageParse, Document: d.Name})
	parsed := parsing.ParseResponse(gen.Text)
	if len(parsed) == 0 {
		log.Warn().Msg("model reply could not be parsed, all fields marked not found")
	}

	if !cached {
		p.opts.Tracker.Record(gen.TotalTokens)
	}

	result := &types.ExtractionResult{
		FileName:       d.Name,
		DocumentURL:    d.Location,
		TemplateID:     t.ID,
		Fields:         parsing.FillFields(parsed, t.Fields),
		PromptTokens:   gen.PromptTokens,
		ResponseTokens: gen.ResponseTokens,
		TotalTokens:    gen.TotalTokens,
		PageCount:      pages,
		DurationMS:     p.opts.Now().Sub(start).Milliseconds(),
		ProcessedAt:    p.opts.Now().UTC(),
	}
	log.Info().
		Int("total_tokens", result.TotalTokens).
		Bool("cached", cached).
		Int64("duration_ms", result.DurationMS).
		Msg("processed document")
	return result, nil
}

// generate calls the model, consulting the cache first when configured.
func (p *Processor) generate(ctx context.Context, prompt string) (*llm.Generation, bool, error) {
	if p.opts.Cache == nil || p.opts.CacheTTL <= 0 {
		gen, err := p.opts.LLM.Generate(ctx, prompt)
		return gen, false, err
	}

	key := cache.Key(p.opts.LLM.Model(), prompt)
	if data, err := p.opts.Cache.Get(ctx, key); err == nil {
		var gen llm.Generation
		if jsonErr := json.Unmarshal(data, &gen); jsonErr == nil {
			return &gen, true, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		p.opts.Logger.Warn().Err(err).Msg("cache lookup failed")
	}

	gen, err := p.opts.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, false, err
	}
	if data, err := json.Marshal(gen); err == nil {
		if err := p.opts.Cache.Set(ctx, key, data, p.opts.CacheTTL); err != nil {
			p.opts.Logger.Warn().Err(err).Msg("cache store failed")
		}
	}
	return gen, false, nil
}

// failedResult is the record kept for a document that could not be processed.
func (p *Processor) failedResult(d types.DocumentDescriptor, t *types.Template, err error) types.ExtractionResult {
	return types.ExtractionResult{
		FileName:    d.Name,
		DocumentURL: d.Location,
		TemplateID:  t.ID,
		Fields:      parsing.FillFields(nil, t.Fields),
		ProcessedAt: p.opts.Now().UTC(),
		Error:       err.Error(),
	}
}

// record keeps r for Regenerate when there is no Store to read back from.
func (p *Processor) record(r types.ExtractionResult) {
	if p.opts.Store != nil {
		return
	}
	p.mu.Lock()
	p.results = append(p.results, r)
	p.mu.Unlock()
}

func (p *Processor) emit(ctx context.Context, e ProgressEvent) {
	if p.opts.Progress != nil {
		p.opts.Progress(e)
	}
	if cb, ok := ctx.Value(progressKey{}).(ProgressCallback); ok {
		cb(e)
	}
}
