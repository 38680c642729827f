package model

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// DefaultTenantID is the single tenant the relay serves today.
	DefaultTenantID = "default_shop"

	// DefaultTTL is how long an entry survives without being refreshed.
	DefaultTTL = 24 * time.Hour

	videoKeyPrefix = "video:"
)

// naiveTimestampLayout matches ISO-8601 timestamps written without a zone,
// which is how older cache files store them.
const naiveTimestampLayout = "2006-01-02T15:04:05.999999999"

// Entry is a single record of the response cache.
// Chat entries use Question/Answer/UsageCount/TenantID; video entries use
// VideoURL/TalkID. Both carry Timestamp.
type Entry struct {
	Question   string
	Answer     string
	Timestamp  time.Time
	UsageCount int
	TenantID   string
	VideoURL   string
	TalkID     string
}

// entryJSON is the persisted representation of an Entry.
type entryJSON struct {
	Question   string `json:"question,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Timestamp  string `json:"timestamp"`
	UsageCount int    `json:"usage_count,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	ShopID     string `json:"shop_id,omitempty"`
	VideoURL   string `json:"video_url,omitempty"`
	TalkID     string `json:"talk_id,omitempty"`
}

// NewChatEntry creates a chat entry for a freshly answered question.
func NewChatEntry(tenantID, question, answer string, now time.Time) *Entry {
	return &Entry{
		Question:   question,
		Answer:     answer,
		Timestamp:  now,
		UsageCount: 1,
		TenantID:   tenantID,
	}
}

// NewVideoEntry creates a video entry for a rendered answer.
func NewVideoEntry(videoURL, talkID string, now time.Time) *Entry {
	return &Entry{
		VideoURL:  videoURL,
		TalkID:    talkID,
		Timestamp: now,
	}
}

// Touch records a cache hit.
func (e *Entry) Touch(now time.Time) {
	e.UsageCount++
	e.Timestamp = now
}

// ExpiredAt reports whether the entry is older than ttl at the given time.
// Entries without a usable timestamp are always expired.
func (e *Entry) ExpiredAt(now time.Time, ttl time.Duration) bool {
	if e.Timestamp.IsZero() {
		return true
	}
	return e.Timestamp.Before(now.Add(-ttl))
}

// IsVideo reports whether the entry belongs to the video namespace.
func (e *Entry) IsVideo() bool {
	return e.VideoURL != ""
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	v := entryJSON{
		Question:   e.Question,
		Answer:     e.Answer,
		UsageCount: e.UsageCount,
		TenantID:   e.TenantID,
		VideoURL:   e.VideoURL,
		TalkID:     e.TalkID,
	}
	if !e.Timestamp.IsZero() {
		v.Timestamp = e.Timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
// An unparsable timestamp leaves Timestamp zero so the entry expires on the next cleanup.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var v entryJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	tenantID := v.TenantID
	if tenantID == "" {
		tenantID = v.ShopID
	}

	*e = Entry{
		Question:   v.Question,
		Answer:     v.Answer,
		Timestamp:  parseTimestamp(v.Timestamp),
		UsageCount: v.UsageCount,
		TenantID:   tenantID,
		VideoURL:   v.VideoURL,
		TalkID:     v.TalkID,
	}
	return nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(naiveTimestampLayout, s, time.Local); err == nil {
		return t
	}
	return time.Time{}
}

// ChatKey builds the cache key for a tenant's message.
// Keys are case-insensitive so "Hello" and "hello" share an entry.
func ChatKey(tenantID, message string) string {
	return strings.ToLower(tenantID + ":" + strings.TrimSpace(message))
}

// VideoKey builds the cache key for the rendered video of an answer.
func VideoKey(answer string) string {
	return videoKeyPrefix + answer
}

// IsVideoKey reports whether key belongs to the video namespace.
func IsVideoKey(key string) bool {
	return strings.HasPrefix(key, videoKeyPrefix)
}
