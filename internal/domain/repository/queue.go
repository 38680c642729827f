package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// RenderTask asks a worker to render the avatar video for an answer.
type RenderTask struct {
	ID         uuid.UUID `json:"id"`
	Text       string    `json:"text"`
	CacheKey   string    `json:"cache_key"`
	RetryCount int       `json:"retry_count"`
	// TalkID is set when a render was interrupted after the provider job was
	// created; the next attempt waits for that job instead of starting another.
	TalkID string `json:"talk_id,omitempty"`
}

// ErrRenderInterrupted is returned by a render handler that was stopped
// before its job settled. The task is requeued without counting a retry.
var ErrRenderInterrupted = errors.New("render interrupted")

// InterruptedError reports an interrupted render together with the provider
// job it was waiting for, if one was created.
type InterruptedError struct {
	TalkID string
}

func (e *InterruptedError) Error() string {
	if e.TalkID == "" {
		return ErrRenderInterrupted.Error()
	}
	return ErrRenderInterrupted.Error() + ": talk " + e.TalkID
}

func (e *InterruptedError) Unwrap() error {
	return ErrRenderInterrupted
}

// RenderQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type RenderQueue interface {
	// PublishRenderTask sends a render task to the queue.
	// Used by the API server when avatar rendering runs asynchronously.
	PublishRenderTask(ctx context.Context, task RenderTask) error

	// ConsumeRenderTasks starts consuming render tasks from the queue.
	// The handler function is called for each received task.
	// Blocks until ctx is cancelled or the delivery channel closes.
	ConsumeRenderTasks(ctx context.Context, handler func(task RenderTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
