package handler

import (
	"errors"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/usecase"
	"github.com/hszk-dev/avatarrelay/internal/validation"
)

type VideoResponse struct {
	VideoURL string `json:"video_url"`
	Status   string `json:"status"`
	TalkID   string `json:"talk_id"`
}

// VideoFallbackResponse tells the front end to show the text without a video.
type VideoFallbackResponse struct {
	Reply        string `json:"reply"`
	Cached       bool   `json:"cached"`
	AvatarStatus string `json:"avatar_status"`
	Fallback     string `json:"fallback"`
	Error        string `json:"error,omitempty"`
}

// AvatarHandler handles avatar video requests.
type AvatarHandler struct {
	svc      usecase.AvatarService
	validate *validatorv10.Validate
}

// NewAvatarHandler creates a new AvatarHandler.
func NewAvatarHandler(svc usecase.AvatarService, validate *validatorv10.Validate) *AvatarHandler {
	return &AvatarHandler{svc: svc, validate: validate}
}

// Generate handles POST /did_video
func (h *AvatarHandler) Generate(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.svc.GenerateVideo(r.Context(), req.Text)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if res.Outcome != model.ResultSuccess {
		JSON(w, http.StatusOK, VideoFallbackResponse{
			Reply:        req.Text,
			Cached:       false,
			AvatarStatus: string(model.AvatarStatusFailed),
			Fallback:     "text_only",
			Error:        res.Reason,
		})
		return
	}

	JSON(w, http.StatusOK, VideoResponse{
		VideoURL: res.VideoURL,
		Status:   string(model.ResultSuccess),
		TalkID:   res.TalkID,
	})
}

func (h *AvatarHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrEmptyText):
		Error(w, http.StatusBadRequest, "invalid_text", "Text is required")
	case errors.Is(err, model.ErrTextTooLong):
		Error(w, http.StatusBadRequest, "invalid_text", "Text exceeds maximum length")
	case errors.Is(err, usecase.ErrAvatarNotConfigured):
		Error(w, http.StatusInternalServerError, "avatar_not_configured", "Avatar provider API key is not set")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
