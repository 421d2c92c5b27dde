package storage

import (
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Schema version for migrations
const SchemaVersion = 1

// SessionConfig holds session persistence configuration
type SessionConfig struct {
	Enabled     bool
	MaxSessions int
	MaxAgeDays  int
}

// SessionData contains the persistable session fields. The runtime Session
// type in the main package carries the backend client and notify hook, which
// are not persisted.
type SessionData struct {
	ID           string
	CreatedAt    time.Time
	LastUpdated  time.Time
	FirstPrompt  string
	Provider     string
	Model        string
	WorkingDir   string
	Branch       string
	MessageCount int
	Messages     []llms.MessageContent
}

// Message represents a single message in a conversation
type Message struct {
	ID        int64     `db:"id"`
	SessionID string    `db:"session_id"`
	Sequence  int       `db:"sequence"`
	Role      string    `db:"role"`
	Content   string    `db:"content"` // JSON-encoded llms.MessageContent
	CreatedAt time.Time `db:"created_at"`
}

// Schema is the SQL DDL for creating all tables
const Schema = `
-- Sessions table
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    last_updated INTEGER NOT NULL,
    first_prompt TEXT NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    working_dir TEXT NOT NULL,
    branch TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(last_updated DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_dir ON sessions(working_dir, last_updated DESC);

-- Messages table
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, sequence);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, unixepoch());
`
