package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
)

// MemoryStore keeps the encoded snapshot in process memory.
// Data is lost on restart. Storing the encoded form keeps callers from
// sharing entry pointers with the store.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

var _ repository.SnapshotStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := model.DecodeSnapshot(s.data)
	if err != nil {
		return model.NewSnapshot(), fmt.Errorf("%w: %v", repository.ErrCorruptSnapshot, err)
	}
	return snap, nil
}

func (s *MemoryStore) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}
