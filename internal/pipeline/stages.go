package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoDocuments is returned when a location lists no documents.
var ErrNoDocuments = errors.New("no documents found")

// Stage names one step of document processing.
type Stage string

const (
	StageDownload Stage = "download"
	StageExtract  Stage = "extract"
	StagePrompt   Stage = "prompt"
	StageGenerate Stage = "generate"
	StageParse    Stage = "parse"
	StageStore    Stage = "store"
	StageDone     Stage = "done"
	StageFailed   Stage = "failed"
)

// StageError records which stage failed for a document.
type StageError struct {
	Stage    Stage
	Document string
	Cause    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Document, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// ProgressEvent is emitted as documents move through the pipeline.
type ProgressEvent struct {
	Stage    Stage  `json:"stage"`
	Document string `json:"document"`
	Message  string `json:"message,omitempty"`
	Done     int    `json:"done,omitempty"`
	Total    int    `json:"total,omitempty"`
}

// ProgressCallback receives progress events. It may be called from several
// goroutines at once.
type ProgressCallback func(event ProgressEvent)

type progressKey struct{}

// WithProgress returns a context whose batches also report to cb.
func WithProgress(ctx context.Context, cb ProgressCallback) context.Context {
	return context.WithValue(ctx, progressKey{}, cb)
}
