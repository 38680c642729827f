package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/metrics"
)

var (
	// ErrLanguageModelNotConfigured is returned when no language model credentials are set.
	ErrLanguageModelNotConfigured = errors.New("language model is not configured")

	// ErrLanguageModelUnavailable is returned when the language model call fails.
	ErrLanguageModelUnavailable = errors.New("language model unavailable")
)

// DefaultSystemPrompt instructs the model to act as a short-spoken bilingual
// sales assistant.
const DefaultSystemPrompt = "Du bist ein hilfreicher Verkaufsassistent. " +
	"Antworte in der gleichen Sprache wie der Benutzer. " +
	"Du sprichst Deutsch und Englisch. " +
	"Halte Antworten kurz und prägnant (max 2 Sätze)."

// DefaultAnswerTimeout bounds one shared answer: the language model call plus,
// in sync mode, the avatar render.
const DefaultAnswerTimeout = 5 * time.Minute

// AvatarMode selects how a fresh answer gets its avatar video.
type AvatarMode string

const (
	// AvatarModeSync renders the video within the chat request.
	AvatarModeSync AvatarMode = "sync"
	// AvatarModeAsync queues the video for the render worker.
	AvatarModeAsync AvatarMode = "async"
	// AvatarModeOff never renders videos.
	AvatarModeOff AvatarMode = "off"
)

// ParseAvatarMode converts a configuration value to an AvatarMode.
func ParseAvatarMode(s string) (AvatarMode, error) {
	switch m := AvatarMode(s); m {
	case AvatarModeSync, AvatarModeAsync, AvatarModeOff:
		return m, nil
	case "":
		return AvatarModeSync, nil
	default:
		return "", fmt.Errorf("unknown avatar mode %q", s)
	}
}

// ChatReply is the answer to one chat message.
type ChatReply struct {
	Reply        string
	Cached       bool
	VideoURL     string
	AvatarStatus model.AvatarStatus
}

// ChatService defines the interface for answering chat messages.
type ChatService interface {
	// Reply answers message from the cache or the language model.
	// It returns model.ErrEmptyText or model.ErrTextTooLong for invalid input.
	Reply(ctx context.Context, message string) (*ChatReply, error)
}

// ChatServiceConfig holds configuration for ChatService.
type ChatServiceConfig struct {
	TenantID     string
	SystemPrompt string
	AvatarMode   AvatarMode
	// AnswerTimeout bounds the work shared by concurrent misses for one key.
	// It replaces the callers' own deadlines, which do not apply to the
	// shared work.
	AnswerTimeout time.Duration
}

// DefaultChatServiceConfig returns the default configuration.
func DefaultChatServiceConfig() ChatServiceConfig {
	return ChatServiceConfig{
		TenantID:      model.DefaultTenantID,
		SystemPrompt:  DefaultSystemPrompt,
		AvatarMode:    AvatarModeSync,
		AnswerTimeout: DefaultAnswerTimeout,
	}
}

type chatService struct {
	cache  *ResponseCache
	llm    repository.LanguageModel
	avatar AvatarService
	queue  repository.RenderQueue

	sfGroup singleflight.Group
	cfg     ChatServiceConfig
}

// NewChatService creates a new ChatService.
// llm, avatar and queue may be nil; the corresponding feature is then off.
func NewChatService(
	cache *ResponseCache,
	llm repository.LanguageModel,
	avatar AvatarService,
	queue repository.RenderQueue,
	cfg ChatServiceConfig,
) ChatService {
	if cfg.TenantID == "" {
		cfg.TenantID = model.DefaultTenantID
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.AvatarMode == "" {
		cfg.AvatarMode = AvatarModeSync
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = DefaultAnswerTimeout
	}
	return &chatService{
		cache:  cache,
		llm:    llm,
		avatar: avatar,
		queue:  queue,
		cfg:    cfg,
	}
}

func (s *chatService) Reply(ctx context.Context, message string) (*ChatReply, error) {
	text, err := model.NormalizeText(message)
	if err != nil {
		return nil, err
	}

	key := model.ChatKey(s.cfg.TenantID, text)

	if reply := s.fromCache(ctx, key); reply != nil {
		return reply, nil
	}

	if s.llm == nil {
		return nil, ErrLanguageModelNotConfigured
	}

	// Concurrent misses for the same key share one provider call. The call
	// runs detached from the initiating request so that request going away
	// does not fail the others; each caller still stops waiting on its own ctx.
	ch := s.sfGroup.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AnswerTimeout)
		defer cancel()
		return s.answer(flightCtx, key, text)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.Shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if res.Err != nil {
		return nil, res.Err
	}

	// Copy so callers sharing a flight never alias one reply.
	reply := *res.Val.(*ChatReply)
	return &reply, nil
}

// fromCache returns the cached reply for key, or nil on a miss.
// Cache failures are logged and treated as a miss.
func (s *chatService) fromCache(ctx context.Context, key string) *ChatReply {
	entry, err := s.cache.Lookup(ctx, key)
	if err != nil {
		slog.Warn("cache lookup failed, asking language model", "key", key, "error", err)
		return nil
	}
	if entry == nil {
		return nil
	}

	if touched, err := s.cache.Touch(ctx, key); err != nil {
		slog.Warn("failed to update cache usage", "key", key, "error", err)
	} else if touched != nil {
		entry = touched
	}

	reply := &ChatReply{Reply: entry.Answer, Cached: true}

	video, err := s.cache.LookupVideo(ctx, entry.Answer)
	if err != nil {
		slog.Warn("video cache lookup failed", "key", key, "error", err)
	} else if video != nil && video.VideoURL != "" {
		reply.VideoURL = video.VideoURL
		reply.AvatarStatus = model.AvatarStatusSuccess
	}

	slog.Debug("chat cache hit", "key", key, "usage_count", entry.UsageCount)
	return reply
}

// answer asks the language model, records the answer and attaches the avatar video.
func (s *chatService) answer(ctx context.Context, key, text string) (*ChatReply, error) {
	start := time.Now()
	answer, err := s.llm.Complete(ctx, repository.CompletionRequest{
		SystemPrompt: s.cfg.SystemPrompt,
		Messages:     []repository.Message{{Role: repository.RoleUser, Content: text}},
	})
	metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderOpenAI, metrics.ProviderOpComplete, metrics.ProviderStatus(err)).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(metrics.ProviderOpenAI, metrics.ProviderOpComplete).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("language model call failed", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLanguageModelUnavailable, err)
	}

	entry := model.NewChatEntry(s.cfg.TenantID, text, answer, time.Now())
	if err := s.cache.Record(ctx, key, entry); err != nil {
		slog.Warn("failed to cache answer", "key", key, "error", err)
	}

	reply := &ChatReply{Reply: answer}
	s.attachAvatar(ctx, key, reply)
	return reply, nil
}

func (s *chatService) attachAvatar(ctx context.Context, key string, reply *ChatReply) {
	if s.avatar == nil || s.cfg.AvatarMode == AvatarModeOff {
		return
	}

	if s.cfg.AvatarMode == AvatarModeAsync {
		s.enqueueRender(ctx, key, reply)
		return
	}

	res, err := s.avatar.GenerateVideo(ctx, reply.Reply)
	if err != nil {
		if errors.Is(err, ErrAvatarNotConfigured) {
			return
		}
		slog.Warn("avatar video skipped", "key", key, "error", err)
		reply.AvatarStatus = model.AvatarStatusFailed
		return
	}

	reply.AvatarStatus = model.AvatarStatusFor(res.Outcome)
	if res.Outcome != model.ResultSuccess {
		return
	}

	reply.VideoURL = res.VideoURL
	if err := s.cache.RecordVideo(ctx, reply.Reply, res.VideoURL, res.TalkID); err != nil {
		slog.Warn("failed to cache video", "talk_id", res.TalkID, "error", err)
	}
}

func (s *chatService) enqueueRender(ctx context.Context, key string, reply *ChatReply) {
	if s.queue == nil {
		return
	}

	task := repository.RenderTask{
		ID:       uuid.New(),
		Text:     reply.Reply,
		CacheKey: key,
	}
	if err := s.queue.PublishRenderTask(ctx, task); err != nil {
		slog.Warn("failed to queue avatar render", "key", key, "error", err)
		reply.AvatarStatus = model.AvatarStatusFailed
		return
	}

	metrics.RenderTasksTotal.WithLabelValues(metrics.RenderPublished).Inc()
	reply.AvatarStatus = model.AvatarStatusPending
}
