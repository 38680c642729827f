package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/metrics"
	"github.com/hszk-dev/avatarrelay/internal/poller"
)

var (
	// ErrAvatarNotConfigured is returned when no avatar provider credentials are set.
	ErrAvatarNotConfigured = errors.New("avatar provider is not configured")
)

// VideoResult describes the outcome of one avatar video generation.
type VideoResult struct {
	TalkID   string
	VideoURL string
	Outcome  model.ResultKind
	// PollOutcome is empty when the job could not be created.
	PollOutcome poller.Outcome
	// Reason is a short operator-facing description of a non-success outcome.
	Reason string
}

// Permanent reports whether retrying the same text is pointless.
func (r *VideoResult) Permanent() bool {
	return r.Outcome == model.ResultFatal || r.PollOutcome == poller.OutcomeFailed
}

// Interrupted reports whether the wait ended because the caller gave up,
// leaving the provider job (if any) running.
func (r *VideoResult) Interrupted() bool {
	return r.PollOutcome == poller.OutcomeCancelled
}

// AvatarService defines the interface for talking-avatar video generation.
type AvatarService interface {
	// GenerateVideo renders a video of the avatar speaking text and waits for it.
	// Provider failures are reported through VideoResult.Outcome, not as errors.
	// Errors are returned only for invalid text and missing configuration.
	GenerateVideo(ctx context.Context, text string) (*VideoResult, error)

	// AwaitVideo waits for a video job that was created earlier.
	AwaitVideo(ctx context.Context, talkID string) (*VideoResult, error)

	// Credits returns the provider's raw account credit report.
	Credits(ctx context.Context) ([]byte, error)
}

// AvatarServiceConfig holds configuration for AvatarService.
type AvatarServiceConfig struct {
	Poll      poller.Config
	VoiceID   string
	SourceURL string
}

// DefaultAvatarServiceConfig returns the default configuration.
func DefaultAvatarServiceConfig() AvatarServiceConfig {
	return AvatarServiceConfig{Poll: poller.DefaultConfig()}
}

type avatarService struct {
	provider repository.AvatarProvider
	cfg      AvatarServiceConfig
}

// NewAvatarService creates a new AvatarService. A nil provider yields a
// service whose calls fail with ErrAvatarNotConfigured.
func NewAvatarService(provider repository.AvatarProvider, cfg AvatarServiceConfig) AvatarService {
	return &avatarService{
		provider: provider,
		cfg:      cfg,
	}
}

func (s *avatarService) GenerateVideo(ctx context.Context, text string) (*VideoResult, error) {
	if s.provider == nil {
		return &VideoResult{Outcome: model.ResultFatal, Reason: "not configured"}, ErrAvatarNotConfigured
	}

	text, err := model.NormalizeText(text)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	talkID, err := s.provider.CreateTalk(ctx, repository.TalkRequest{
		Text:      text,
		VoiceID:   s.cfg.VoiceID,
		SourceURL: s.cfg.SourceURL,
	})
	metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderDID, metrics.ProviderOpCreateTalk, metrics.ProviderStatus(err)).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(metrics.ProviderDID, metrics.ProviderOpCreateTalk).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("avatar video creation failed",
			"error", err,
			"text_length", len(text),
		)
		return &VideoResult{Outcome: model.ResultFallback, Reason: creationReason(err)}, nil
	}

	slog.Info("avatar video started", "talk_id", talkID)
	return s.await(ctx, talkID), nil
}

func (s *avatarService) AwaitVideo(ctx context.Context, talkID string) (*VideoResult, error) {
	if s.provider == nil {
		return &VideoResult{TalkID: talkID, Outcome: model.ResultFatal, Reason: "not configured"}, ErrAvatarNotConfigured
	}
	if talkID == "" {
		return nil, repository.ErrTalkNotFound
	}
	return s.await(ctx, talkID), nil
}

func (s *avatarService) await(ctx context.Context, talkID string) *VideoResult {
	res := poller.Wait(ctx, talkID, s.provider, s.cfg.Poll)
	metrics.PollOutcomesTotal.WithLabelValues(res.Outcome.String()).Inc()
	metrics.PollDuration.Observe(res.Elapsed.Seconds())

	out := &VideoResult{
		TalkID:      talkID,
		PollOutcome: res.Outcome,
	}

	switch res.Outcome {
	case poller.OutcomeDone:
		out.Outcome = model.ResultSuccess
		out.VideoURL = res.URL
		slog.Info("avatar video ready",
			"talk_id", talkID,
			"attempts", res.Attempts,
			"elapsed", res.Elapsed.Round(time.Millisecond),
		)
	case poller.OutcomeFailed:
		out.Outcome = model.ResultFallback
		out.Reason = fmt.Sprintf("provider error: %s", res.ProviderError)
		slog.Warn("avatar video failed",
			"talk_id", talkID,
			"provider_error", res.ProviderError,
		)
	default:
		out.Outcome = model.ResultFallback
		out.Reason = res.Outcome.String()
		slog.Warn("avatar video not ready",
			"talk_id", talkID,
			"outcome", res.Outcome.String(),
			"last_status", res.LastStatus.String(),
			"attempts", res.Attempts,
			"last_error", res.LastErr,
		)
	}

	return out
}

func (s *avatarService) Credits(ctx context.Context) ([]byte, error) {
	if s.provider == nil {
		return nil, ErrAvatarNotConfigured
	}
	return s.provider.Credits(ctx)
}

func creationReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrProviderUnauthorized):
		return "invalid API key"
	case errors.Is(err, repository.ErrInsufficientCredits):
		return "no credits left"
	case errors.Is(err, repository.ErrTalkNotFound):
		return "avatar source not found"
	default:
		return "creation failed"
	}
}
