package state

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// DefaultHistoryLimit caps how many messages of one session feed back into
// the model context.
const DefaultHistoryLimit = 40

type Message struct {
	ID         int64
	SessionID  string
	Role       string
	Content    string
	TokensUsed int
	CreatedAt  time.Time
}

func genID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// SessionForChat returns the session for a chat identifier, creating it on
// first contact.
func (db *DB) SessionForChat(ctx context.Context, chatID, surface string) (*Session, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, errors.New("chat id is empty")
	}

	var s Session
	var lastTool sql.NullString
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, chat_id, surface, last_used_tool, created_at FROM sessions WHERE chat_id = ?", chatID,
	).Scan(&s.ID, &s.ChatID, &s.Surface, &lastTool, &s.CreatedAt)
	if err == nil {
		s.LastUsedTool = lastTool.String
		return &s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	s = Session{ID: genID(), ChatID: chatID, Surface: surface, CreatedAt: time.Now()}
	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO sessions (id, chat_id, surface, last_used_tool, created_at) VALUES (?, ?, ?, '', ?)",
		s.ID, s.ChatID, s.Surface, s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, chat_id, surface, last_used_tool, created_at FROM sessions ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var lastTool sql.NullString
		if err := rows.Scan(&s.ID, &s.ChatID, &s.Surface, &lastTool, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.LastUsedTool = lastTool.String
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SetLastUsedTool records the tool of the most recent executed step, so the
// chat surface can offer it as a follow-up default.
func (db *DB) SetLastUsedTool(ctx context.Context, sessionID, tool string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sessions SET last_used_tool = ? WHERE id = ?", strings.TrimSpace(tool), sessionID)
	return err
}

func (db *DB) SaveMessage(ctx context.Context, sessionID, role, content string, tokens int) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, tokens_used, created_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, role, content, tokens, time.Now())
	return err
}

// RecentMessages returns the newest messages of a session in chronological
// order, capped at limit.
func (db *DB) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, session_id, role, content, tokens_used, created_at
		FROM (
			SELECT id, session_id, role, content, tokens_used, created_at
			FROM messages
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// TrimHistory deletes everything older than the newest keep messages.
func (db *DB) TrimHistory(ctx context.Context, sessionID string, keep int) error {
	if keep <= 0 {
		keep = DefaultHistoryLimit
	}
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM messages
		WHERE session_id = ?
		  AND id NOT IN (
			SELECT id FROM messages
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		  )
	`, sessionID, sessionID, keep)
	return err
}
