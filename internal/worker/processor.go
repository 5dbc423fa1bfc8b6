// Package worker plugs the re-processing pipeline into the asynq task loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/echoma/occ-info-memo/internal/queue"
)

// BatchRunner is the pipeline surface the worker needs.
type BatchRunner interface {
	Run(ctx context.Context, window time.Duration) error
}

// Processor handles queued re-processing requests.
type Processor struct {
	runner BatchRunner
	logger *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(runner BatchRunner, logger *slog.Logger) *Processor {
	return &Processor{runner: runner, logger: logger}
}

// Handler registers the reprocess task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeReprocess, p.handleReprocess)
	return mux
}

func (p *Processor) handleReprocess(ctx context.Context, task *asynq.Task) error {
	var payload queue.ReprocessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.WindowSeconds <= 0 {
		return fmt.Errorf("reprocess window must be positive, got %d", payload.WindowSeconds)
	}
	window := time.Duration(payload.WindowSeconds) * time.Second
	p.logger.Info("queued batch starting", "window", window)
	if err := p.runner.Run(ctx, window); err != nil {
		p.logger.Error("queued batch aborted", "error", err)
		return err
	}
	return nil
}
