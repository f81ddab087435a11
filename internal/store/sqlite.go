package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/notification-sync/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// snapshotRow is the database shape of a persisted notification.
// The list position is stored explicitly so LoadSnapshot reproduces the
// exact server-given order rather than re-sorting.
type snapshotRow struct {
	ID        string     `db:"id"`
	Title     string     `db:"title"`
	Body      string     `db:"body"`
	Kind      string     `db:"kind"`
	Read      bool       `db:"read"`
	ReadAt    *time.Time `db:"read_at"`
	CreatedAt time.Time  `db:"created_at"`
	ActionURL string     `db:"action_url"`
	Scope     string     `db:"scope"`
	Position  int        `db:"position"`
}

// SaveSnapshot replaces the persisted snapshot with the given records.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, records []model.Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	const query = `
		INSERT INTO notifications (
			id, title, body, kind, read, read_at,
			created_at, action_url, scope, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Title, r.Body, string(r.Kind), r.Read, r.ReadAt,
			r.CreatedAt, r.ActionURL, string(r.Scope), i,
		)
		if err != nil {
			return fmt.Errorf("inserting notification %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the persisted snapshot in its original order.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]model.Notification, error) {
	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, title, body, kind, read, read_at, created_at, action_url, scope, position FROM notifications ORDER BY position ASC",
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return []model.Notification{}, nil
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	records := make([]model.Notification, 0, len(rows))
	for _, row := range rows {
		records = append(records, model.Notification{
			ID:        row.ID,
			Title:     row.Title,
			Body:      row.Body,
			Kind:      model.Kind(row.Kind),
			Read:      row.Read,
			ReadAt:    row.ReadAt,
			CreatedAt: row.CreatedAt,
			ActionURL: row.ActionURL,
			Scope:     model.Scope(row.Scope),
		})
	}
	return records, nil
}
