package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// SessionStore handles session persistence
type SessionStore struct {
	db  *DB
	cfg *SessionConfig
}

// NewSessionStore creates a new session store
func NewSessionStore(db *DB, cfg *SessionConfig) *SessionStore {
	return &SessionStore{
		db:  db,
		cfg: cfg,
	}
}

// SaveSession saves or updates a session with all its messages
func (s *SessionStore) SaveSession(session *SessionData) error {
	tx, err := s.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	session.LastUpdated = time.Now()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO sessions
		(id, created_at, last_updated, first_prompt, provider, model, working_dir, branch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.CreatedAt.Unix(),
		session.LastUpdated.Unix(),
		session.FirstPrompt,
		session.Provider,
		session.Model,
		session.WorkingDir,
		session.Branch,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	// Replace the message set wholesale. Compaction rewrites history, so
	// incremental appends would drift from the in-memory ledger.
	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", session.ID); err != nil {
		return fmt.Errorf("failed to delete old messages: %w", err)
	}

	for i, msg := range session.Messages {
		contentJSON, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message content: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO messages (session_id, sequence, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			session.ID,
			i,
			string(msg.Role),
			string(contentJSON),
			time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("Session saved", "id", session.ID, "messages", len(session.Messages))
	return nil
}

// LoadSession loads a session by ID with all its messages
func (s *SessionStore) LoadSession(sessionID string) (*SessionData, error) {
	var session SessionData
	var createdAt, lastUpdated int64

	err := s.db.conn.QueryRow(`
		SELECT id, created_at, last_updated, first_prompt,
		       provider, model, working_dir, branch
		FROM sessions
		WHERE id = ?`,
		sessionID,
	).Scan(
		&session.ID,
		&createdAt,
		&lastUpdated,
		&session.FirstPrompt,
		&session.Provider,
		&session.Model,
		&session.WorkingDir,
		&session.Branch,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.LastUpdated = time.Unix(lastUpdated, 0)

	rows, err := s.db.conn.Query(`
		SELECT content
		FROM messages
		WHERE session_id = ?
		ORDER BY sequence`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var contentJSON string
		if err := rows.Scan(&contentJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		var msg llms.MessageContent
		if err := json.Unmarshal([]byte(contentJSON), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message content: %w", err)
		}
		session.Messages = append(session.Messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	session.MessageCount = len(session.Messages)
	slog.Debug("Session loaded", "id", sessionID, "messages", len(session.Messages))
	return &session, nil
}

// ListSessions lists sessions newest first, optionally filtered by working
// directory. A limit of 0 means no limit.
func (s *SessionStore) ListSessions(workingDir string, limit int) ([]SessionData, error) {
	query := `
		SELECT s.id, s.created_at, s.last_updated, s.first_prompt,
		       s.provider, s.model, s.working_dir, s.branch,
		       COUNT(m.id) as message_count
		FROM sessions s
		LEFT JOIN messages m ON s.id = m.session_id`

	var args []any
	if workingDir != "" {
		query += " WHERE s.working_dir = ?"
		args = append(args, workingDir)
	}
	query += `
		GROUP BY s.id
		ORDER BY s.last_updated DESC`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionData
	for rows.Next() {
		var session SessionData
		var createdAt, lastUpdated int64

		err := rows.Scan(
			&session.ID,
			&createdAt,
			&lastUpdated,
			&session.FirstPrompt,
			&session.Provider,
			&session.Model,
			&session.WorkingDir,
			&session.Branch,
			&session.MessageCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		session.CreatedAt = time.Unix(createdAt, 0)
		session.LastUpdated = time.Unix(lastUpdated, 0)
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// DeleteSession deletes a session and all its messages
func (s *SessionStore) DeleteSession(sessionID string) error {
	result, err := s.db.conn.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// CleanupOldSessions deletes sessions older than MaxAgeDays and trims the
// total count to MaxSessions, newest first.
func (s *SessionStore) CleanupOldSessions() error {
	if s.cfg == nil {
		return nil
	}

	if s.cfg.MaxAgeDays > 0 {
		cutoffTime := time.Now().AddDate(0, 0, -s.cfg.MaxAgeDays).Unix()
		result, err := s.db.conn.Exec(
			"DELETE FROM sessions WHERE last_updated < ?",
			cutoffTime,
		)
		if err != nil {
			return fmt.Errorf("failed to delete old sessions: %w", err)
		}

		if deleted, _ := result.RowsAffected(); deleted > 0 {
			slog.Info("Deleted old sessions", "count", deleted, "max_age_days", s.cfg.MaxAgeDays)
		}
	}

	if s.cfg.MaxSessions > 0 {
		_, err := s.db.conn.Exec(`
			DELETE FROM sessions
			WHERE id NOT IN (
				SELECT id FROM sessions
				ORDER BY last_updated DESC
				LIMIT ?
			)`,
			s.cfg.MaxSessions,
		)
		if err != nil {
			return fmt.Errorf("failed to limit session count: %w", err)
		}
	}

	return nil
}
