// Package pipeline sequences the re-processing batch: select due documents,
// refresh their text artifacts, then rasterize and OCR each one in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/echoma/occ-info-memo/internal/rasterize"
	"github.com/echoma/occ-info-memo/internal/record"
)

// DocumentSource yields the ordered batch of documents due for processing.
type DocumentSource interface {
	FindDue(window time.Duration) ([]record.Dir, error)
}

// TextExtractor refreshes the text artifacts of a source document.
type TextExtractor interface {
	Extract(dir record.Dir) error
}

// PageRasterizer regenerates the page images of a document.
type PageRasterizer interface {
	Rasterize(ctx context.Context, dir record.Dir) error
}

// PageRecognizer runs OCR over every page image of a document.
type PageRecognizer interface {
	RecognizeAll(ctx context.Context, dir record.Dir) error
}

// Archiver mirrors a document's artifacts after a successful pass. Optional.
type Archiver interface {
	ArchiveDocument(ctx context.Context, dir record.Dir) error
}

// RunRecorder persists batch run outcomes. Optional.
type RunRecorder interface {
	StartRun(ctx context.Context, id string, window time.Duration) error
	FinishRun(ctx context.Context, id string, status string, documentsDone int) error
}

// Run statuses written by the RunRecorder.
const (
	StatusDone    = "done"
	StatusAborted = "aborted"
)

// Pipeline drives one batch. Strictly sequential: no two documents, and no
// two pages, are ever processed concurrently. Running two pipeline instances
// against the same store is unsafe (the page purge races the page upload).
type Pipeline struct {
	source     DocumentSource
	extractor  TextExtractor
	rasterizer PageRasterizer
	recognizer PageRecognizer
	archiver   Archiver    // may be nil
	runs       RunRecorder // may be nil

	pace   time.Duration
	sleep  func(time.Duration)
	logger *slog.Logger
}

// New wires the pipeline stages. archiver and runs may be nil.
func New(source DocumentSource, extractor TextExtractor, rasterizer PageRasterizer, recognizer PageRecognizer, archiver Archiver, runs RunRecorder, pace time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		source:     source,
		extractor:  extractor,
		rasterizer: rasterizer,
		recognizer: recognizer,
		archiver:   archiver,
		runs:       runs,
		pace:       pace,
		sleep:      time.Sleep,
		logger:     logger,
	}
}

// Run processes every document modified inside the window. Text extraction
// failures are tolerated per document. Rasterizer failures skip the document
// but keep the batch going. Any OCR failure aborts the batch immediately and
// is returned to the caller, since it will recur for every remaining page.
func (p *Pipeline) Run(ctx context.Context, window time.Duration) error {
	runID := uuid.NewString()
	logger := p.logger.With("run", runID)

	docs, err := p.source.FindDue(window)
	if err != nil {
		return fmt.Errorf("select due documents: %w", err)
	}
	logger.Info("batch selected", "window", window, "documents", len(docs))
	p.startRun(ctx, logger, runID, window)

	for _, dir := range docs {
		if err := p.extractor.Extract(dir); err != nil {
			// Best-effort: scanned memos without a text layer land here.
			logger.Warn("text extraction failed", "document", dir.Path, "error", err)
		}
	}

	done := 0
	for i, dir := range docs {
		if err := ctx.Err(); err != nil {
			p.finishRun(ctx, logger, runID, StatusAborted, done)
			return err
		}
		if i > 0 {
			p.sleep(p.pace)
		}
		docLogger := logger.With("document", dir.Path)
		docLogger.Info("processing document")

		if err := p.rasterizer.Rasterize(ctx, dir); err != nil {
			var toolErr *rasterize.ToolError
			if errors.As(err, &toolErr) {
				docLogger.Error("rasterization failed, skipping document", "exit_code", toolErr.ExitCode, "stderr", toolErr.Stderr)
			} else {
				docLogger.Error("rasterization failed, skipping document", "error", err)
			}
			continue
		}
		if err := p.recognizer.RecognizeAll(ctx, dir); err != nil {
			docLogger.Error("ocr failed, aborting batch", "error", err)
			p.finishRun(ctx, logger, runID, StatusAborted, done)
			return fmt.Errorf("ocr for %s: %w", dir.Path, err)
		}
		done++
		if p.archiver != nil {
			if err := p.archiver.ArchiveDocument(ctx, dir); err != nil {
				docLogger.Warn("archive failed", "error", err)
			}
		}
	}

	logger.Info("batch complete", "documents", done)
	p.finishRun(ctx, logger, runID, StatusDone, done)
	return nil
}

func (p *Pipeline) startRun(ctx context.Context, logger *slog.Logger, id string, window time.Duration) {
	if p.runs == nil {
		return
	}
	if err := p.runs.StartRun(ctx, id, window); err != nil {
		logger.Warn("record run start failed", "error", err)
	}
}

func (p *Pipeline) finishRun(ctx context.Context, logger *slog.Logger, id, status string, done int) {
	if p.runs == nil {
		return
	}
	if err := p.runs.FinishRun(ctx, id, status, done); err != nil {
		logger.Warn("record run finish failed", "error", err)
	}
}
