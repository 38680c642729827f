package repository

import (
	"context"
	"io"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
)

// Role tags a message in a completion request.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged chat message.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is the input to a language model.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
}

// LanguageModel produces a single text completion.
type LanguageModel interface {
	// Complete returns the model's reply for the request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SpeechRequest is the input to a speech synthesizer.
type SpeechRequest struct {
	Text    string
	VoiceID string
	ModelID string
}

// SpeechSynthesizer converts text to audio.
type SpeechSynthesizer interface {
	// Synthesize returns the audio stream for the request.
	// Caller is responsible for closing the returned ReadCloser.
	Synthesize(ctx context.Context, req SpeechRequest) (io.ReadCloser, error)
}

// TalkRequest is the input for creating an avatar video job.
type TalkRequest struct {
	Text      string
	VoiceID   string
	SourceURL string
}

// AvatarProvider creates and inspects talking-avatar video jobs.
type AvatarProvider interface {
	// CreateTalk starts a video job and returns its provider-assigned ID.
	CreateTalk(ctx context.Context, req TalkRequest) (string, error)

	// GetTalk returns the current state of a video job.
	// This is a read-only query and safe to repeat.
	GetTalk(ctx context.Context, talkID string) (*model.Talk, error)

	// Credits returns the raw account credit report.
	Credits(ctx context.Context) ([]byte, error)
}
