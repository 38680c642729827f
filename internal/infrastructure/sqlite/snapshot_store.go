// Package sqlite persists the response cache in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
)

const createSnapshotTable = `
CREATE TABLE IF NOT EXISTS cache_snapshots (
	name TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// SnapshotStore keeps the whole cache snapshot in one row.
type SnapshotStore struct {
	db   *sql.DB
	name string
}

var _ repository.SnapshotStore = (*SnapshotStore)(nil)

// Open opens (or creates) the database at path and migrates it.
func Open(path, name string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createSnapshotTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate snapshot db: %w", err)
	}

	if name == "" {
		name = "default"
	}
	return &SnapshotStore{db: db, name: name}, nil
}

// Close closes the database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

func (s *SnapshotStore) Load(ctx context.Context) (model.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM cache_snapshots WHERE name = ?`, s.name,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewSnapshot(), nil
		}
		return model.NewSnapshot(), fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := model.DecodeSnapshot(data)
	if err != nil {
		return model.NewSnapshot(), fmt.Errorf("%w: sqlite row %s: %v", repository.ErrCorruptSnapshot, s.name, err)
	}
	return snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_snapshots (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.name, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
