package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/docmeta/internal/types"
)

// ProcessBatch runs descriptors through a pool of workers and returns exactly
// one result per descriptor, in completion order. A document that fails
// yields an error record instead of aborting the batch. Once ctx is done no
// further documents are dispatched and each remaining one gets an error
// record carrying the context error.
func (p *Processor) ProcessBatch(ctx context.Context, docs []types.DocumentDescriptor, templateID string) ([]types.ExtractionResult, error) {
	t, err := p.Template(templateID)
	if err != nil {
		return nil, err
	}
	return p.runBatch(ctx, docs, t), nil
}

func (p *Processor) runBatch(ctx context.Context, docs []types.DocumentDescriptor, t *types.Template) []types.ExtractionResult {
	var (
		mu      sync.Mutex
		results = make([]types.ExtractionResult, 0, len(docs))
	)
	collect := func(r types.ExtractionResult) {
		p.record(r)
		mu.Lock()
		results = append(results, r)
		done := len(results)
		mu.Unlock()

		stage := StageDone
		if r.Failed() {
			stage = StageFailed
		}
		p.emit(ctx, ProgressEvent{Stage: stage, Document: r.FileName, Message: r.Error, Done: done, Total: len(docs)})
	}

	p.opts.Logger.Info().
		Str("template_id", t.ID).
		Int("documents", len(docs)).
		Int("workers", p.opts.Workers).
		Msg("starting batch")

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)

	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			for _, rest := range docs[i:] {
				collect(p.failedResult(rest, t, fmt.Errorf("not dispatched: %w", err)))
			}
			break
		}
		g.Go(func() error {
			r, err := p.ProcessDocument(ctx, d, t)
			if err != nil {
				p.opts.Logger.Error().Err(err).Str("document", d.Name).Msg("document failed")
				collect(p.failedResult(d, t, err))
				return nil
			}
			collect(*r)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Process lists the documents at location, runs them as one batch, persists
// successful results and regenerates the template's workbook.
func (p *Processor) Process(ctx context.Context, location, templateID string) (*types.BatchReport, error) {
	start := p.opts.Now()
	t, err := p.Template(templateID)
	if err != nil {
		return nil, err
	}

	docs, err := p.opts.Source.List(ctx, location)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w at %s", ErrNoDocuments, location)
	}
	p.opts.Logger.Info().Str("location", location).Int("documents", len(docs)).Msg("listed documents")

	results := p.runBatch(ctx, docs, t)

	report := &types.BatchReport{
		TemplateID: t.ID,
		Location:   location,
		Total:      len(results),
		Results:    results,
	}
	var succeeded []types.ExtractionResult
	for i := range results {
		if results[i].Failed() {
			report.Failed++
			continue
		}
		report.Succeeded++
		succeeded = append(succeeded, results[i])
	}

	// Persisting uses a fresh context so a cancelled batch still keeps the
	// documents that did finish.
	persistCtx := context.WithoutCancel(ctx)
	if err := p.persist(persistCtx, succeeded); err != nil {
		return report, err
	}
	if report.Succeeded > 0 {
		path, err := p.Regenerate(persistCtx, t)
		if err != nil {
			return report, err
		}
		report.ExcelPath = path
	}

	report.DurationMS = p.opts.Now().Sub(start).Milliseconds()
	p.opts.Logger.Info().
		Str("template_id", t.ID).
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int64("duration_ms", report.DurationMS).
		Msg("batch finished")
	return report, nil
}

// Save persists one result, for records produced outside a batch.
func (p *Processor) Save(ctx context.Context, r *types.ExtractionResult) error {
	if p.opts.Store == nil {
		p.record(*r)
		return nil
	}
	if err := p.opts.Store.Save(ctx, r); err != nil {
		return &StageError{Stage: StageStore, Document: r.DocumentURL, Cause: err}
	}
	return nil
}

func (p *Processor) persist(ctx context.Context, results []types.ExtractionResult) error {
	if p.opts.Store == nil {
		return nil
	}
	for i := range results {
		if err := p.opts.Store.Save(ctx, &results[i]); err != nil {
			return &StageError{Stage: StageStore, Document: results[i].DocumentURL, Cause: err}
		}
	}
	return nil
}

// Regenerate rewrites the workbook for t from every successful result known
// for it and returns the workbook path. It returns "" when no sheet writer is
// configured.
func (p *Processor) Regenerate(ctx context.Context, t *types.Template) (string, error) {
	if p.opts.Sheets == nil {
		return "", nil
	}

	var rows []types.ExtractionResult
	if p.opts.Store != nil {
		stored, err := p.opts.Store.List(ctx, t.ID)
		if err != nil {
			return "", err
		}
		rows = stored
	} else {
		rows = p.latest(t.ID)
	}

	path, err := p.opts.Sheets.Generate(t, rows)
	if err != nil {
		return "", fmt.Errorf("failed to generate spreadsheet for %s: %w", t.ID, err)
	}
	return path, nil
}

// latest returns the most recent successful in-memory result per document URL.
func (p *Processor) latest(templateID string) []types.ExtractionResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	index := make(map[string]int)
	var out []types.ExtractionResult
	for _, r := range p.results {
		if r.TemplateID != templateID || r.Failed() {
			continue
		}
		if i, ok := index[r.DocumentURL]; ok {
			out[i] = r
			continue
		}
		index[r.DocumentURL] = len(out)
		out = append(out, r)
	}
	return out
}
