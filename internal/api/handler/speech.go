package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/usecase"
	"github.com/hszk-dev/avatarrelay/internal/validation"
)

// SpeechHandler handles text-to-speech requests.
type SpeechHandler struct {
	svc      usecase.SpeechService
	validate *validatorv10.Validate
}

// NewSpeechHandler creates a new SpeechHandler.
func NewSpeechHandler(svc usecase.SpeechService, validate *validatorv10.Validate) *SpeechHandler {
	return &SpeechHandler{svc: svc, validate: validate}
}

// Synthesize handles POST /speech
func (h *SpeechHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req validation.TextRequest
	if err := validation.BindAndValidate(r, &req, h.validate); err != nil {
		if errors.Is(err, validation.ErrInvalidBody) {
			Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
		if exceedsMax(err, "text") {
			Error(w, http.StatusBadRequest, "invalid_text", "Text exceeds maximum length")
			return
		}
		Error(w, http.StatusBadRequest, "invalid_text", "Text is required")
		return
	}

	audio, contentType, err := h.svc.Synthesize(r.Context(), req.Text)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio); err != nil {
		slog.Warn("failed to stream speech audio", "error", err)
	}
}

func (h *SpeechHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrEmptyText):
		Error(w, http.StatusBadRequest, "invalid_text", "Text is required")
	case errors.Is(err, model.ErrTextTooLong):
		Error(w, http.StatusBadRequest, "invalid_text", "Text exceeds maximum length")
	case errors.Is(err, usecase.ErrSpeechNotConfigured):
		Error(w, http.StatusInternalServerError, "speech_not_configured", "Speech provider API key is not set")
	case errors.Is(err, usecase.ErrSpeechUnavailable):
		Error(w, http.StatusBadGateway, "speech_unavailable", "Speech synthesis failed")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
