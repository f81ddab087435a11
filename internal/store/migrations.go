package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	body        TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT 'info',
	read        INTEGER NOT NULL DEFAULT 0,
	read_at     DATETIME,
	created_at  DATETIME NOT NULL,
	action_url  TEXT NOT NULL DEFAULT '',
	scope       TEXT NOT NULL DEFAULT 'personal',
	position    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_unread
	ON notifications(read) WHERE read = 0;

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
