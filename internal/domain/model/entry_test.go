package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestChatKey(t *testing.T) {
	tests := []struct {
		name    string
		tenant  string
		message string
		want    string
	}{
		{"lowercases message", DefaultTenantID, "Hello", "default_shop:hello"},
		{"trims whitespace", DefaultTenantID, "  hello \n", "default_shop:hello"},
		{"keeps inner spacing", DefaultTenantID, "Wie  geht's?", "default_shop:wie  geht's?"},
		{"lowercases tenant", "Shop_A", "Hi", "shop_a:hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChatKey(tt.tenant, tt.message); got != tt.want {
				t.Errorf("ChatKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChatKey_CaseInsensitive(t *testing.T) {
	if ChatKey(DefaultTenantID, "Hello") != ChatKey(DefaultTenantID, "hello") {
		t.Error("expected messages differing only in case to share a key")
	}
	if ChatKey(DefaultTenantID, "HELLO WORLD") != ChatKey(DefaultTenantID, "hello world") {
		t.Error("expected messages differing only in case to share a key")
	}
}

func TestVideoKey(t *testing.T) {
	key := VideoKey("Guten Tag!")
	if key != "video:Guten Tag!" {
		t.Errorf("VideoKey() = %q", key)
	}
	if !IsVideoKey(key) {
		t.Error("expected IsVideoKey to be true")
	}
	if IsVideoKey(ChatKey(DefaultTenantID, "hi")) {
		t.Error("expected chat key not to be a video key")
	}
}

func TestEntry_Touch(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	e := NewChatEntry(DefaultTenantID, "q", "a", created)

	if e.UsageCount != 1 {
		t.Fatalf("UsageCount = %d, want 1", e.UsageCount)
	}

	now := time.Now()
	e.Touch(now)

	if e.UsageCount != 2 {
		t.Errorf("UsageCount = %d, want 2", e.UsageCount)
	}
	if !e.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp, now)
	}
}

func TestEntry_ExpiredAt(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		timestamp time.Time
		want      bool
	}{
		{"fresh entry", now.Add(-time.Minute), false},
		{"just inside TTL", now.Add(-DefaultTTL + time.Second), false},
		{"just outside TTL", now.Add(-DefaultTTL - time.Second), true},
		{"zero timestamp", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Timestamp: tt.timestamp}
			if got := e.ExpiredAt(now, DefaultTTL); got != tt.want {
				t.Errorf("ExpiredAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_JSONLayout(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	e := NewChatEntry(DefaultTenantID, "Hallo", "Hallo! Wie kann ich helfen?", ts)

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, field := range []string{"question", "answer", "timestamp", "usage_count", "tenant_id"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("expected field %q in %s", field, data)
		}
	}
	if _, ok := raw["video_url"]; ok {
		t.Errorf("did not expect video_url in chat entry: %s", data)
	}
	if raw["timestamp"] != "2025-03-01T12:30:00Z" {
		t.Errorf("timestamp = %v", raw["timestamp"])
	}
}

func TestEntry_UnmarshalLegacy(t *testing.T) {
	data := []byte(`{
		"question": "hallo",
		"answer": "Hallo!",
		"timestamp": "2025-03-01T12:30:00.123456",
		"usage_count": 4,
		"shop_id": "default_shop"
	}`)

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	want := time.Date(2025, 3, 1, 12, 30, 0, 123456000, time.Local)
	if !e.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp, want)
	}
	if e.TenantID != DefaultTenantID {
		t.Errorf("TenantID = %q, want %q", e.TenantID, DefaultTenantID)
	}
	if e.UsageCount != 4 {
		t.Errorf("UsageCount = %d, want 4", e.UsageCount)
	}
}

func TestEntry_UnmarshalBadTimestamp(t *testing.T) {
	var e Entry
	if err := json.Unmarshal([]byte(`{"answer":"x","timestamp":"yesterday"}`), &e); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !e.Timestamp.IsZero() {
		t.Errorf("expected zero timestamp, got %v", e.Timestamp)
	}
	if !e.ExpiredAt(time.Now(), DefaultTTL) {
		t.Error("expected entry with bad timestamp to be expired")
	}
}

func TestSnapshot_Prune(t *testing.T) {
	now := time.Now()
	snap := NewSnapshot()
	snap.Put("default_shop:fresh", NewChatEntry(DefaultTenantID, "fresh", "a", now.Add(-time.Hour)))
	snap.Put("default_shop:stale", NewChatEntry(DefaultTenantID, "stale", "b", now.Add(-25*time.Hour)))
	snap.Put(VideoKey("b"), NewVideoEntry("https://cdn/b.mp4", "tlk_1", now.Add(-48*time.Hour)))
	snap.Put("default_shop:nil", nil)

	removed := snap.Prune(now, DefaultTTL)

	if len(removed) != 3 {
		t.Errorf("removed %d entries, want 3: %v", len(removed), removed)
	}
	if _, ok := snap.Get("default_shop:fresh"); !ok {
		t.Error("expected fresh entry to survive")
	}
	if len(snap) != 1 {
		t.Errorf("len(snap) = %d, want 1", len(snap))
	}
}

func TestSnapshot_Counts(t *testing.T) {
	now := time.Now()
	snap := NewSnapshot()
	snap.Put(ChatKey(DefaultTenantID, "a"), NewChatEntry(DefaultTenantID, "a", "x", now))
	snap.Put(ChatKey(DefaultTenantID, "b"), NewChatEntry(DefaultTenantID, "b", "y", now))
	snap.Put(VideoKey("x"), NewVideoEntry("https://cdn/x.mp4", "tlk_x", now))

	chat, video := snap.Counts()
	if chat != 2 || video != 1 {
		t.Errorf("Counts() = (%d, %d), want (2, 1)", chat, video)
	}
}

func TestSnapshot_EncodeDecode(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	snap := NewSnapshot()
	snap.Put(ChatKey(DefaultTenantID, "hi"), NewChatEntry(DefaultTenantID, "hi", "Hello!", now))
	snap.Put(VideoKey("Hello!"), NewVideoEntry("https://cdn/v.mp4", "tlk_1", now))

	data, err := snap.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"") {
		t.Errorf("expected indented output, got %s", data)
	}

	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}

	e, ok := got.Get(VideoKey("Hello!"))
	if !ok {
		t.Fatal("expected video entry")
	}
	if e.TalkID != "tlk_1" || !e.IsVideo() {
		t.Errorf("unexpected video entry: %+v", e)
	}
}

func TestDecodeSnapshot_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		wantLen int
	}{
		{"empty input", "", false, 0},
		{"null", "null", false, 0},
		{"empty object", "{}", false, 0},
		{"truncated json", `{"default_shop:hi": {"answer": "x"`, true, 0},
		{"array", `[1,2,3]`, true, 0},
		{"garbage", "not json at all", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSnapshot([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeSnapshot() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}
