package model

import (
	"encoding/json"
	"time"
)

// Snapshot is the whole persisted cache mapping: cache key to entry.
// It is loaded at the start of every operation and rewritten on every mutation.
type Snapshot map[string]*Entry

// NewSnapshot returns an empty snapshot.
func NewSnapshot() Snapshot {
	return make(Snapshot)
}

// Get returns the entry stored under key.
func (s Snapshot) Get(key string) (*Entry, bool) {
	e, ok := s[key]
	if !ok || e == nil {
		return nil, false
	}
	return e, true
}

// Put stores entry under key, replacing any previous entry.
func (s Snapshot) Put(key string, entry *Entry) {
	s[key] = entry
}

// Prune deletes every entry that has expired at now and returns the removed keys.
func (s Snapshot) Prune(now time.Time, ttl time.Duration) []string {
	var removed []string
	for key, e := range s {
		if e == nil || e.ExpiredAt(now, ttl) {
			removed = append(removed, key)
		}
	}
	for _, key := range removed {
		delete(s, key)
	}
	return removed
}

// Counts returns the number of chat and video entries.
func (s Snapshot) Counts() (chat, video int) {
	for key := range s {
		if IsVideoKey(key) {
			video++
		} else {
			chat++
		}
	}
	return chat, video
}

// Encode serializes the snapshot in the on-disk layout.
func (s Snapshot) Encode() ([]byte, error) {
	if s == nil {
		s = NewSnapshot()
	}
	return json.MarshalIndent(s, "", "  ")
}

// DecodeSnapshot parses the on-disk layout.
// Empty input yields an empty snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	snap := NewSnapshot()
	if len(data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap == nil {
		snap = NewSnapshot()
	}
	return snap, nil
}
