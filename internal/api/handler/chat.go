package handler

import (
	"errors"
	"log/slog"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/usecase"
	"github.com/hszk-dev/avatarrelay/internal/validation"
)

const (
	msgEnterMessage   = "Please enter a message."
	msgNotConfigured  = "The assistant is not configured. Please check the language model API key."
	msgUnavailable    = "Sorry, the assistant is currently unavailable. Please try again later."
	msgMessageTooLong = "Your message is too long."
)

type ChatResponse struct {
	Reply        string `json:"reply"`
	Cached       bool   `json:"cached"`
	VideoURL     string `json:"video_url,omitempty"`
	AvatarStatus string `json:"avatar_status,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ChatHandler handles chat requests.
type ChatHandler struct {
	svc      usecase.ChatService
	validate *validatorv10.Validate
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc usecase.ChatService, validate *validatorv10.Validate) *ChatHandler {
	return &ChatHandler{svc: svc, validate: validate}
}

// Reply handles POST /chat
func (h *ChatHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req validation.ChatRequest
	if err := validation.BindAndValidate(r, &req, h.validate); err != nil {
		if errors.Is(err, validation.ErrInvalidBody) {
			Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
		if exceedsMax(err, "message") {
			JSON(w, http.StatusBadRequest, ChatResponse{Reply: msgMessageTooLong, Error: "invalid_message"})
			return
		}
		JSON(w, http.StatusBadRequest, ChatResponse{Reply: msgEnterMessage, Error: "invalid_message"})
		return
	}

	reply, err := h.svc.Reply(r.Context(), req.Message)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, ChatResponse{
		Reply:        reply.Reply,
		Cached:       reply.Cached,
		VideoURL:     reply.VideoURL,
		AvatarStatus: string(reply.AvatarStatus),
	})
}

func (h *ChatHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrEmptyText):
		JSON(w, http.StatusBadRequest, ChatResponse{Reply: msgEnterMessage, Error: "invalid_message"})
	case errors.Is(err, model.ErrTextTooLong):
		JSON(w, http.StatusBadRequest, ChatResponse{Reply: msgMessageTooLong, Error: "invalid_message"})
	case errors.Is(err, usecase.ErrLanguageModelNotConfigured):
		JSON(w, http.StatusInternalServerError, ChatResponse{Reply: msgNotConfigured, Error: "llm_not_configured"})
	case errors.Is(err, usecase.ErrLanguageModelUnavailable):
		JSON(w, http.StatusInternalServerError, ChatResponse{Reply: msgUnavailable, Error: "llm_unavailable"})
	default:
		slog.Error("chat request failed", "error", err)
		JSON(w, http.StatusInternalServerError, ChatResponse{Reply: msgUnavailable, Error: "internal_error"})
	}
}
