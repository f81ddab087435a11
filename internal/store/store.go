// Package store persists the last good notification snapshot to a local
// SQLite database. The cache itself is in-memory; the store only exists
// so a restart (or an offline start) can render the previous snapshot
// instead of an empty screen until the first fetch completes.
package store

import (
	"context"

	"github.com/nhle/notification-sync/internal/model"
)

// Store defines the snapshot persistence interface.
type Store interface {
	// SaveSnapshot replaces the persisted snapshot with the given
	// records.
	SaveSnapshot(ctx context.Context, records []model.Notification) error

	// LoadSnapshot returns the persisted snapshot, newest first.
	// An empty database yields an empty slice, not an error.
	LoadSnapshot(ctx context.Context) ([]model.Notification, error)

	// Close releases the underlying database.
	Close() error
}
