package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
)

// DefaultSnapshotName is the row name used when none is configured.
const DefaultSnapshotName = "default"

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SnapshotRepository implements repository.SnapshotStore using a single
// JSONB row in PostgreSQL.
type SnapshotRepository struct {
	db   DBTX
	name string
	now  func() time.Time
}

// Compile-time verification that SnapshotRepository implements repository.SnapshotStore.
var _ repository.SnapshotStore = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a new SnapshotRepository instance.
// name selects the row, so several relays can share one table.
func NewSnapshotRepository(db DBTX, name string) *SnapshotRepository {
	if name == "" {
		name = DefaultSnapshotName
	}
	return &SnapshotRepository{db: db, name: name, now: time.Now}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (r *SnapshotRepository) EnsureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS cache_snapshots (
			name       TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`

	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create cache_snapshots table: %w", err)
	}
	return nil
}

// Load reads the snapshot row.
// A missing row yields an empty snapshot without error.
func (r *SnapshotRepository) Load(ctx context.Context) (model.Snapshot, error) {
	const query = `SELECT data FROM cache_snapshots WHERE name = $1`

	var data []byte
	if err := r.db.QueryRow(ctx, query, r.name).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.NewSnapshot(), nil
		}
		return model.NewSnapshot(), fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap, err := model.DecodeSnapshot(data)
	if err != nil {
		return model.NewSnapshot(), fmt.Errorf("%w: row %s: %v", repository.ErrCorruptSnapshot, r.name, err)
	}
	return snap, nil
}

// Save upserts the snapshot row.
func (r *SnapshotRepository) Save(ctx context.Context, snap model.Snapshot) error {
	const query = `
		INSERT INTO cache_snapshots (name, data, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (name) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`

	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, r.name, string(data), r.now()); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
