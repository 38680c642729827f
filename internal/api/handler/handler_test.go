package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/poller"
	"github.com/hszk-dev/avatarrelay/internal/usecase"
	"github.com/hszk-dev/avatarrelay/internal/validation"
)

// Mock services

type mockChatService struct {
	replyFn func(ctx context.Context, message string) (*usecase.ChatReply, error)
	calls   int
}

func (m *mockChatService) Reply(ctx context.Context, message string) (*usecase.ChatReply, error) {
	m.calls++
	if m.replyFn != nil {
		return m.replyFn(ctx, message)
	}
	return &usecase.ChatReply{Reply: "Hallo!"}, nil
}

type mockAvatarService struct {
	generateVideoFn func(ctx context.Context, text string) (*usecase.VideoResult, error)
}

func (m *mockAvatarService) GenerateVideo(ctx context.Context, text string) (*usecase.VideoResult, error) {
	if m.generateVideoFn != nil {
		return m.generateVideoFn(ctx, text)
	}
	return nil, nil
}

func (m *mockAvatarService) AwaitVideo(ctx context.Context, talkID string) (*usecase.VideoResult, error) {
	return nil, nil
}

func (m *mockAvatarService) Credits(ctx context.Context) ([]byte, error) {
	return nil, nil
}

type mockSpeechService struct {
	synthesizeFn func(ctx context.Context, text string) (io.ReadCloser, string, error)
}

func (m *mockSpeechService) Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error) {
	if m.synthesizeFn != nil {
		return m.synthesizeFn(ctx, text)
	}
	return io.NopCloser(strings.NewReader("")), usecase.SpeechContentType, nil
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestChatHandler_Reply(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(m *mockChatService)
		wantStatusCode int
		wantCalled     bool
		checkResponse  func(t *testing.T, resp ChatResponse)
	}{
		{
			name: "fresh answer with video",
			body: `{"message":"Hallo"}`,
			setupMock: func(m *mockChatService) {
				m.replyFn = func(ctx context.Context, message string) (*usecase.ChatReply, error) {
					if message != "Hallo" {
						t.Errorf("message = %q", message)
					}
					return &usecase.ChatReply{
						Reply:        "Hallo! Wie kann ich helfen?",
						VideoURL:     "https://cdn.example/v.mp4",
						AvatarStatus: model.AvatarStatusSuccess,
					}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
			checkResponse: func(t *testing.T, resp ChatResponse) {
				if resp.Reply != "Hallo! Wie kann ich helfen?" || resp.Cached {
					t.Errorf("unexpected response: %+v", resp)
				}
				if resp.VideoURL != "https://cdn.example/v.mp4" || resp.AvatarStatus != "success" {
					t.Errorf("unexpected avatar fields: %+v", resp)
				}
			},
		},
		{
			name: "cached answer",
			body: `{"message":"Hallo"}`,
			setupMock: func(m *mockChatService) {
				m.replyFn = func(ctx context.Context, message string) (*usecase.ChatReply, error) {
					return &usecase.ChatReply{Reply: "Hallo!", Cached: true}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
			checkResponse: func(t *testing.T, resp ChatResponse) {
				if !resp.Cached || resp.AvatarStatus != "" {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name:           "empty message",
			body:           `{"message":""}`,
			setupMock:      func(m *mockChatService) {},
			wantStatusCode: http.StatusBadRequest,
			checkResponse: func(t *testing.T, resp ChatResponse) {
				if resp.Reply != msgEnterMessage || resp.Error != "invalid_message" {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name:           "whitespace message",
			body:           `{"message":"   "}`,
			setupMock:      func(m *mockChatService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "message too long",
			body:           `{"message":"` + strings.Repeat("a", 2001) + `"}`,
			setupMock:      func(m *mockChatService) {},
			wantStatusCode: http.StatusBadRequest,
			checkResponse: func(t *testing.T, resp ChatResponse) {
				if resp.Reply != msgMessageTooLong || resp.Error != "invalid_message" {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name:           "missing message",
			body:           `{}`,
			setupMock:      func(m *mockChatService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON body",
			body:           `not json`,
			setupMock:      func(m *mockChatService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "language model unavailable",
			body: `{"message":"Hallo"}`,
			setupMock: func(m *mockChatService) {
				m.replyFn = func(ctx context.Context, message string) (*usecase.ChatReply, error) {
					return nil, errors.Join(usecase.ErrLanguageModelUnavailable, repository.ErrProviderUnavailable)
				}
			},
			wantStatusCode: http.StatusInternalServerError,
			wantCalled:     true,
			checkResponse: func(t *testing.T, resp ChatResponse) {
				if resp.Error != "llm_unavailable" || resp.Reply == "" {
					t.Errorf("unexpected response: %+v", resp)
				}
				if strings.Contains(resp.Reply, "provider unavailable") {
					t.Error("provider details must not leak to the client")
				}
			},
		},
		{
			name: "language model not configured",
			body: `{"message":"Hallo"}`,
			setupMock: func(m *mockChatService) {
				m.replyFn = func(ctx context.Context, message string) (*usecase.ChatReply, error) {
					return nil, usecase.ErrLanguageModelNotConfigured
				}
			},
			wantStatusCode: http.StatusInternalServerError,
			wantCalled:     true,
			checkResponse: func(t *testing.T, resp ChatResponse) {
				if resp.Error != "llm_not_configured" {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockChatService{}
			tt.setupMock(mock)
			h := NewChatHandler(mock, validation.New())

			rec := httptest.NewRecorder()
			h.Reply(rec, postJSON("/chat", tt.body))

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}
			if (mock.calls > 0) != tt.wantCalled {
				t.Errorf("service called = %v, want %v", mock.calls > 0, tt.wantCalled)
			}

			if tt.checkResponse != nil {
				var resp ChatResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				tt.checkResponse(t, resp)
			}
		})
	}
}

func TestAvatarHandler_Generate(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(m *mockAvatarService)
		wantStatusCode int
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name: "video ready",
			body: `{"text":"Hallo!"}`,
			setupMock: func(m *mockAvatarService) {
				m.generateVideoFn = func(ctx context.Context, text string) (*usecase.VideoResult, error) {
					return &usecase.VideoResult{
						TalkID:      "tlk_1",
						VideoURL:    "https://cdn.example/tlk_1.mp4",
						Outcome:     model.ResultSuccess,
						PollOutcome: poller.OutcomeDone,
					}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body []byte) {
				var resp VideoResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				want := VideoResponse{VideoURL: "https://cdn.example/tlk_1.mp4", Status: "success", TalkID: "tlk_1"}
				if resp != want {
					t.Errorf("response = %+v, want %+v", resp, want)
				}
			},
		},
		{
			name: "video timed out",
			body: `{"text":"Hallo!"}`,
			setupMock: func(m *mockAvatarService) {
				m.generateVideoFn = func(ctx context.Context, text string) (*usecase.VideoResult, error) {
					return &usecase.VideoResult{TalkID: "tlk_1", Outcome: model.ResultFallback, PollOutcome: poller.OutcomeTimeout, Reason: "timeout"}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body []byte) {
				var resp VideoFallbackResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.Reply != "Hallo!" || resp.AvatarStatus != "failed" || resp.Fallback != "text_only" || resp.Cached {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name:           "empty text",
			body:           `{"text":" "}`,
			setupMock:      func(m *mockAvatarService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON body",
			body:           `{`,
			setupMock:      func(m *mockAvatarService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "not configured",
			body: `{"text":"Hallo!"}`,
			setupMock: func(m *mockAvatarService) {
				m.generateVideoFn = func(ctx context.Context, text string) (*usecase.VideoResult, error) {
					return &usecase.VideoResult{Outcome: model.ResultFatal}, usecase.ErrAvatarNotConfigured
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockAvatarService{}
			tt.setupMock(mock)
			h := NewAvatarHandler(mock, validation.New())

			rec := httptest.NewRecorder()
			h.Generate(rec, postJSON("/did_video", tt.body))

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, rec.Body.Bytes())
			}
		})
	}
}

func TestSpeechHandler_Synthesize(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(m *mockSpeechService)
		wantStatusCode int
		wantType       string
		wantBody       string
	}{
		{
			name: "audio",
			body: `{"text":"Hallo"}`,
			setupMock: func(m *mockSpeechService) {
				m.synthesizeFn = func(ctx context.Context, text string) (io.ReadCloser, string, error) {
					return io.NopCloser(strings.NewReader("ID3-audio")), usecase.SpeechContentType, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantType:       "audio/mpeg",
			wantBody:       "ID3-audio",
		},
		{
			name:           "empty text",
			body:           `{"text":""}`,
			setupMock:      func(m *mockSpeechService) {},
			wantStatusCode: http.StatusBadRequest,
			wantType:       "application/json",
		},
		{
			name: "provider failure",
			body: `{"text":"Hallo"}`,
			setupMock: func(m *mockSpeechService) {
				m.synthesizeFn = func(ctx context.Context, text string) (io.ReadCloser, string, error) {
					return nil, "", usecase.ErrSpeechUnavailable
				}
			},
			wantStatusCode: http.StatusBadGateway,
			wantType:       "application/json",
		},
		{
			name: "not configured",
			body: `{"text":"Hallo"}`,
			setupMock: func(m *mockSpeechService) {
				m.synthesizeFn = func(ctx context.Context, text string) (io.ReadCloser, string, error) {
					return nil, "", usecase.ErrSpeechNotConfigured
				}
			},
			wantStatusCode: http.StatusInternalServerError,
			wantType:       "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSpeechService{}
			tt.setupMock(mock)
			h := NewSpeechHandler(mock, validation.New())

			rec := httptest.NewRecorder()
			h.Synthesize(rec, postJSON("/speech", tt.body))

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.wantType)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestTextHandlers_TooLong(t *testing.T) {
	body := `{"text":"` + strings.Repeat("a", 2001) + `"}`

	tests := []struct {
		name  string
		serve func(w http.ResponseWriter, r *http.Request)
	}{
		{name: "did_video", serve: NewAvatarHandler(&mockAvatarService{}, validation.New()).Generate},
		{name: "speech", serve: NewSpeechHandler(&mockSpeechService{}, validation.New()).Synthesize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.serve(rec, postJSON("/"+tt.name, body))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Error != "invalid_text" || resp.Message != "Text exceeds maximum length" {
				t.Errorf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestHealthHandler_Health(t *testing.T) {
	h := NewHealthHandler("redis", "async", Features{Chat: true, Avatar: true})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "ok" || resp.CacheBackend != "redis" || resp.AvatarMode != "async" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !resp.Features.Chat || !resp.Features.Avatar || resp.Features.Speech {
		t.Errorf("Features = %+v", resp.Features)
	}
}
