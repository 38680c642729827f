package repository

import (
	"context"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
)

// SnapshotStore persists the whole response cache mapping.
// Implementations should be provided by the infrastructure layer (file, Redis, PostgreSQL, SQLite).
type SnapshotStore interface {
	// Load reads the persisted mapping.
	// Returns an empty snapshot and nil if nothing has been stored yet.
	// Returns an empty snapshot and an error wrapping ErrCorruptSnapshot if the content is unparsable.
	Load(ctx context.Context) (model.Snapshot, error)

	// Save replaces the persisted mapping with snap.
	Save(ctx context.Context, snap model.Snapshot) error
}
