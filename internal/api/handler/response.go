package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hszk-dev/avatarrelay/internal/validation"
)

// JSON writes data as a JSON response with the given status.
// The status line is already sent when encoding fails, so failures are only logged.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode response", "status", status, "error", err)
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Error writes a JSON error body with a machine-readable code and a human message.
func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// exceedsMax reports whether err is field failing its max length rule.
func exceedsMax(err error, field string) bool {
	var fe validation.FieldErrors
	return errors.As(err, &fe) && fe.Failed(field, "max")
}
