// Package queue defines the Redis-backed task that triggers a re-processing
// batch, letting runs be scheduled away from an interactive shell.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeReprocess triggers one windowed re-processing batch.
const TypeReprocess = "memo:reprocess"

// ReprocessPayload carries the window for the batch.
type ReprocessPayload struct {
	WindowSeconds int64 `json:"window_seconds"`
}

// NewReprocessTask builds the task for a window.
func NewReprocessTask(window time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(ReprocessPayload{WindowSeconds: int64(window / time.Second)})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	// No automatic retries: an aborted batch usually means exhausted quota
	// or broken credentials, and retrying would burn more of both.
	return asynq.NewTask(TypeReprocess, data, asynq.MaxRetry(0)), nil
}

// EnqueueReprocess publishes a batch run request.
func EnqueueReprocess(ctx context.Context, client *asynq.Client, window time.Duration) error {
	task, err := NewReprocessTask(window)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue reprocess task: %w", err)
	}
	return nil
}
