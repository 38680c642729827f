package validation

import "strings"

// ChatRequest is the payload for POST /chat.
type ChatRequest struct {
	Message string `json:"message" validate:"required,max=2000"` // user text, trimmed before validation
}

// Normalize trims surrounding whitespace.
func (r *ChatRequest) Normalize() {
	r.Message = strings.TrimSpace(r.Message)
}

// TextRequest is the payload for POST /did_video and POST /speech.
type TextRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// Normalize trims surrounding whitespace.
func (r *TextRequest) Normalize() {
	r.Text = strings.TrimSpace(r.Text)
}
