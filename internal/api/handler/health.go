package handler

import (
	"net/http"
)

// Features reports which provider-backed routes are configured.
type Features struct {
	Chat   bool `json:"chat"`
	Avatar bool `json:"avatar"`
	Speech bool `json:"speech"`
}

type HealthResponse struct {
	Status       string   `json:"status"`
	CacheBackend string   `json:"cache_backend,omitempty"`
	AvatarMode   string   `json:"avatar_mode,omitempty"`
	Features     Features `json:"features"`
}

// HealthHandler reports liveness and the relay's configured features.
type HealthHandler struct {
	resp HealthResponse
}

// NewHealthHandler creates a HealthHandler with a fixed feature report.
func NewHealthHandler(cacheBackend, avatarMode string, features Features) *HealthHandler {
	return &HealthHandler{resp: HealthResponse{
		Status:       "ok",
		CacheBackend: cacheBackend,
		AvatarMode:   avatarMode,
		Features:     features,
	}}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.resp)
}
