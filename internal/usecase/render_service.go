package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/metrics"
)

const (
	// DefaultMaxRetries is the default number of attempts before a render task is dropped.
	DefaultMaxRetries = 3
)

// ErrRenderFailed is returned for render attempts that may succeed when retried.
var ErrRenderFailed = errors.New("avatar render failed")

// RenderServiceConfig holds configuration for RenderService.
type RenderServiceConfig struct {
	// MaxRetries is the number of redeliveries after which a task is dropped.
	MaxRetries int
}

// DefaultRenderServiceConfig returns the default configuration.
func DefaultRenderServiceConfig() RenderServiceConfig {
	return RenderServiceConfig{MaxRetries: DefaultMaxRetries}
}

// RenderService defines the interface for asynchronous avatar rendering.
type RenderService interface {
	// ProcessTask renders the avatar video for a queued answer.
	// Returns nil on success or permanent failure (dropped task).
	// Returns an error for transient failures that should trigger a retry, or a
	// *repository.InterruptedError when ctx ended before the render settled.
	ProcessTask(ctx context.Context, task repository.RenderTask) error
}

type renderService struct {
	avatar AvatarService
	cache  *ResponseCache

	maxRetries int
}

// NewRenderService creates a new RenderService.
func NewRenderService(avatar AvatarService, cache *ResponseCache, cfg RenderServiceConfig) RenderService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &renderService{
		avatar:     avatar,
		cache:      cache,
		maxRetries: cfg.MaxRetries,
	}
}

func (s *renderService) ProcessTask(ctx context.Context, task repository.RenderTask) error {
	if task.RetryCount >= s.maxRetries {
		s.drop(task, "max retries exceeded")
		return nil
	}

	existing, err := s.cache.LookupVideo(ctx, task.Text)
	if err != nil {
		slog.Warn("video cache lookup failed", "task_id", task.ID, "error", err)
	}
	if existing != nil && existing.VideoURL != "" {
		slog.Info("avatar video already cached",
			"task_id", task.ID,
			"talk_id", existing.TalkID,
		)
		metrics.RenderTasksTotal.WithLabelValues(metrics.RenderSuccess).Inc()
		return nil
	}

	var res *VideoResult
	if task.TalkID != "" {
		res, err = s.avatar.AwaitVideo(ctx, task.TalkID)
	} else {
		res, err = s.avatar.GenerateVideo(ctx, task.Text)
	}
	if err != nil {
		// Invalid text and missing configuration will not improve on redelivery.
		s.drop(task, err.Error())
		return nil
	}

	switch {
	case res.Outcome == model.ResultSuccess:
	case res.Interrupted() || ctx.Err() != nil:
		slog.Info("avatar render interrupted, requeueing",
			"task_id", task.ID,
			"talk_id", res.TalkID,
		)
		return &repository.InterruptedError{TalkID: res.TalkID}
	case res.Permanent():
		s.drop(task, res.Reason)
		return nil
	default:
		metrics.RenderTasksTotal.WithLabelValues(metrics.RenderRetry).Inc()
		slog.Warn("avatar render will be retried",
			"task_id", task.ID,
			"retry_count", task.RetryCount,
			"reason", res.Reason,
		)
		return fmt.Errorf("%w: %s", ErrRenderFailed, res.Reason)
	}

	// The video is paid for; record it even if shutdown began meanwhile.
	if err := s.cache.RecordVideo(context.WithoutCancel(ctx), task.Text, res.VideoURL, res.TalkID); err != nil {
		metrics.RenderTasksTotal.WithLabelValues(metrics.RenderRetry).Inc()
		return fmt.Errorf("record video: %w", err)
	}

	metrics.RenderTasksTotal.WithLabelValues(metrics.RenderSuccess).Inc()
	slog.Info("avatar video rendered",
		"task_id", task.ID,
		"talk_id", res.TalkID,
		"cache_key", task.CacheKey,
	)
	return nil
}

func (s *renderService) drop(task repository.RenderTask, reason string) {
	metrics.RenderTasksTotal.WithLabelValues(metrics.RenderDropped).Inc()
	slog.Error("avatar render task dropped",
		"task_id", task.ID,
		"retry_count", task.RetryCount,
		"cache_key", task.CacheKey,
		"reason", reason,
	)
}
