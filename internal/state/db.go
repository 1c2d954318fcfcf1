// Package state persists conversations: sessions keyed by chat, message
// history, and planning audit records.
package state

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn *sql.DB
}

func Connect(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		chat_id TEXT UNIQUE,
		surface TEXT,
		last_used_tool TEXT,
		created_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		tokens_used INTEGER,
		created_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
	CREATE TABLE IF NOT EXISTS plan_audits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		request TEXT,
		multi_step INTEGER,
		fallback INTEGER,
		step_count INTEGER,
		created_at DATETIME
	);`
	_, err := db.Exec(schema)
	return err
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Session is one conversation, keyed by the chat surface's identifier.
type Session struct {
	ID           string
	ChatID       string
	Surface      string
	LastUsedTool string
	CreatedAt    time.Time
}
