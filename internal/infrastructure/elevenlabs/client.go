// Package elevenlabs is a client for the ElevenLabs text-to-speech API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultModelID = "eleven_multilingual_v2"

	maxErrorBody = 4 << 10
)

// VoiceSettings tunes the synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// DefaultVoiceSettings returns the settings used when none are configured.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
}

// Config holds configuration for the ElevenLabs client.
type Config struct {
	APIKey   string
	BaseURL  string
	Settings VoiceSettings
	// Timeout bounds the whole request including reading the audio stream.
	Timeout time.Duration
}

// Client implements repository.SpeechSynthesizer with the streaming endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	settings   VoiceSettings
}

var _ repository.SpeechSynthesizer = (*Client)(nil)

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	settings := cfg.Settings
	if settings == (VoiceSettings{}) {
		settings = DefaultVoiceSettings()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		settings:   settings,
	}
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize starts a streaming synthesis and returns the audio body.
// The caller must close it.
func (c *Client) Synthesize(ctx context.Context, req repository.SpeechRequest) (io.ReadCloser, error) {
	if req.VoiceID == "" {
		return nil, fmt.Errorf("synthesize: voice id is required")
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}

	data, err := json.Marshal(speechRequest{
		Text:          req.Text,
		ModelID:       modelID,
		VoiceSettings: c.settings,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(req.VoiceID) + "/stream"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: elevenlabs: %w", repository.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Warn("elevenlabs request failed",
			"status", resp.StatusCode,
			"voice_id", req.VoiceID,
			"body", string(body),
		)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: elevenlabs status %d", repository.ErrProviderUnauthorized, resp.StatusCode)
		case http.StatusPaymentRequired:
			return nil, fmt.Errorf("%w: elevenlabs status %d", repository.ErrInsufficientCredits, resp.StatusCode)
		default:
			return nil, fmt.Errorf("%w: elevenlabs status %d", repository.ErrProviderUnavailable, resp.StatusCode)
		}
	}

	return resp.Body, nil
}
