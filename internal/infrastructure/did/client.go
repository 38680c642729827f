// Package did is a client for the D-ID talking-avatar API.
package did

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
)

const (
	DefaultBaseURL   = "https://api.d-id.com"
	DefaultVoiceID   = "de-DE-KatjaNeural"
	DefaultSourceURL = "https://cdn.d-id.com/avatars/ao2SpNz3eUf2lwn6/7O5wjLQ3bRoaRrZz.png"

	maxErrorBody = 4 << 10
)

// Config holds configuration for the D-ID client.
type Config struct {
	APIKey    string
	BaseURL   string
	VoiceID   string
	SourceURL string
	Timeout   time.Duration
}

// Client implements repository.AvatarProvider against the D-ID REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	voiceID    string
	sourceURL  string
}

var _ repository.AvatarProvider = (*Client)(nil)

// NewClient creates a D-ID client. Requests authenticate with HTTP Basic,
// using the API key as user name and an empty password.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey+":")),
		voiceID:    cfg.VoiceID,
		sourceURL:  cfg.SourceURL,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.voiceID == "" {
		c.voiceID = DefaultVoiceID
	}
	if c.sourceURL == "" {
		c.sourceURL = DefaultSourceURL
	}
	return c
}

type createTalkRequest struct {
	Script    script     `json:"script"`
	Config    talkConfig `json:"config"`
	SourceURL string     `json:"source_url"`
}

type script struct {
	Type     string         `json:"type"`
	Input    string         `json:"input"`
	Provider scriptProvider `json:"provider"`
}

type scriptProvider struct {
	Type    string `json:"type"`
	VoiceID string `json:"voice_id"`
}

type talkConfig struct {
	Fluent   string `json:"fluent"`
	PadAudio string `json:"pad_audio"`
}

type talkResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	ResultURL string          `json:"result_url"`
	Error     json.RawMessage `json:"error"`
}

// CreateTalk starts rendering a video of the avatar speaking req.Text.
func (c *Client) CreateTalk(ctx context.Context, req repository.TalkRequest) (string, error) {
	voice := req.VoiceID
	if voice == "" {
		voice = c.voiceID
	}
	source := req.SourceURL
	if source == "" {
		source = c.sourceURL
	}

	payload := createTalkRequest{
		Script: script{
			Type:     "text",
			Input:    req.Text,
			Provider: scriptProvider{Type: "microsoft", VoiceID: voice},
		},
		Config:    talkConfig{Fluent: "false", PadAudio: "0.0"},
		SourceURL: source,
	}

	var out talkResponse
	if err := c.do(ctx, http.MethodPost, "/talks", payload, &out, http.StatusCreated, http.StatusOK); err != nil {
		return "", fmt.Errorf("create talk: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("create talk: %w: response has no id", repository.ErrProviderUnavailable)
	}
	return out.ID, nil
}

// GetTalk returns the current state of a talk.
func (c *Client) GetTalk(ctx context.Context, talkID string) (*model.Talk, error) {
	if talkID == "" {
		return nil, model.ErrEmptyTalkID
	}

	var out talkResponse
	if err := c.do(ctx, http.MethodGet, "/talks/"+url.PathEscape(talkID), nil, &out, http.StatusOK); err != nil {
		return nil, fmt.Errorf("get talk %s: %w", talkID, err)
	}

	id := out.ID
	if id == "" {
		id = talkID
	}
	return &model.Talk{
		ID:        id,
		Status:    model.TalkStatus(out.Status),
		ResultURL: out.ResultURL,
		Error:     errorText(out.Error),
	}, nil
}

// Credits returns the raw credit report of the account.
func (c *Client) Credits(ctx context.Context) ([]byte, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/credits", nil, &raw, http.StatusOK); err != nil {
		return nil, fmt.Errorf("get credits: %w", err)
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, okStatus ...int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", repository.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	for _, s := range okStatus {
		if resp.StatusCode == s {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("%w: decode response: %w", repository.ErrProviderUnavailable, err)
			}
			return nil
		}
	}

	return newStatusError(method, path, resp)
}

// errorText flattens the provider's error field, which is either a string
// or an object with a description.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Kind        string `json:"kind"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Description != "" {
		return obj.Description
	}
	return string(raw)
}

// StatusError is returned for responses with an unexpected HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("d-id status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

func newStatusError(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	e := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	var hint string
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		e.kind = repository.ErrProviderUnauthorized
		hint = "API key is invalid"
	case resp.StatusCode == http.StatusPaymentRequired:
		e.kind = repository.ErrInsufficientCredits
		hint = "account has no credits left"
	case resp.StatusCode == http.StatusNotFound:
		e.kind = repository.ErrTalkNotFound
		hint = "talk or avatar source not found"
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		e.kind = repository.ErrProviderUnavailable
	}

	slog.Warn("d-id request failed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"hint", hint,
		"body", e.Body,
	)
	return e
}
