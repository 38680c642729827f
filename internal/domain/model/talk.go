package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// TalkStatus represents the state of an avatar video job at the provider.
type TalkStatus string

const (
	TalkStatusCreated TalkStatus = "created"
	TalkStatusStarted TalkStatus = "started"
	TalkStatusDone    TalkStatus = "done"
	TalkStatusError   TalkStatus = "error"
)

func (s TalkStatus) IsValid() bool {
	switch s {
	case TalkStatusCreated, TalkStatusStarted, TalkStatusDone, TalkStatusError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further state change will occur.
// Unknown statuses are treated as still running.
func (s TalkStatus) IsTerminal() bool {
	return s == TalkStatusDone || s == TalkStatusError
}

func (s TalkStatus) String() string {
	return string(s)
}

var (
	ErrEmptyTalkID = errors.New("talk ID cannot be empty")
	ErrEmptyText   = errors.New("text cannot be empty")
	ErrTextTooLong = errors.New("text exceeds maximum length")
)

// MaxTextLength bounds the text accepted for chat, speech and avatar requests.
const MaxTextLength = 2000

// NormalizeText trims surrounding whitespace and validates the result.
func NormalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", ErrTextTooLong
	}
	return text, nil
}

// Talk is a snapshot of an avatar video job as reported by the provider.
type Talk struct {
	ID        string
	Status    TalkStatus
	ResultURL string
	Error     string
}

// IsDone returns true when the video is rendered and downloadable.
func (t *Talk) IsDone() bool {
	return t.Status == TalkStatusDone && t.ResultURL != ""
}

// IsFailed returns true when the provider gave up on the job.
func (t *Talk) IsFailed() bool {
	return t.Status == TalkStatusError
}
