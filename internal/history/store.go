package history

import (
	"context"
	"database/sql"
	"fmt"

	// Import the libSQL driver — registers "libsql" with database/sql.
	// Handles remote URLs (libsql://, https://, wss://).
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	// Import the pure-Go SQLite driver for local file: URLs.
	// libsql-client-go delegates file: URLs to this driver.
	_ "modernc.org/sqlite"

	"voicecart/internal/domain"
)

// driverName is the database/sql driver to use. Package-level so tests can
// swap it; production always uses "libsql".
var driverName = "libsql"

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id);
`

// Store persists completed transcript lines per session.
type Store struct {
	db *sql.DB
}

// Open connects to the transcript database and ensures the schema exists.
//
// Supported URL schemes:
//
//	Local file:   "file:path/to/db.db"
//	Remote Turso: "libsql://[db-name].turso.io?authToken=[token]"
func Open(dbURL string) (*Store, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure transcript schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one transcript line. It satisfies the relay's recorder
// contract and must tolerate concurrent sessions.
func (s *Store) Append(sessionID, role, content string) error {
	if sessionID == "" || role == "" {
		return fmt.Errorf("session id and role must not be empty")
	}
	_, err := s.db.Exec(
		`INSERT INTO transcripts (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content)
	if err != nil {
		return fmt.Errorf("failed to append transcript line: %w", err)
	}
	return nil
}

// BySession returns a session's transcript lines in insertion order.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, role, content, created_at FROM transcripts WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var entries []domain.TranscriptEntry
	for rows.Next() {
		var e domain.TranscriptEntry
		if err := rows.Scan(&e.SessionID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript rows: %w", err)
	}
	return entries, nil
}

// Sessions returns the distinct session ids with stored transcripts, most
// recent first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM transcripts GROUP BY session_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session rows: %w", err)
	}
	return ids, nil
}
