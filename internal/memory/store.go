// Package memory gives the agent long-range recall: conversation turns are
// embedded and stored in sqlite, and relevant prior turns are retrieved for
// each new request.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB

	mu         sync.RWMutex
	vecEnabled bool
}

var ErrStoreNotReady = errors.New("memory store is not initialized")

const (
	defaultRecallLimit       = 4
	defaultDistanceThreshold = 0.85
	sqliteVecDimensions      = 768
)

var sqliteVecAutoOnce sync.Once

// Turn is one remembered conversation exchange.
type Turn struct {
	ID        string
	SessionID string
	Role      string
	Content   string
}

func enableSQLiteVec() {
	sqliteVecAutoOnce.Do(func() {
		// Registers sqlite-vec as an auto-extension for new sqlite3 connections.
		sqlite_vec.Auto()
	})
}

func (s *Store) isVecEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vecEnabled
}

func (s *Store) setVecEnabled(enabled bool) {
	s.mu.Lock()
	s.vecEnabled = enabled
	s.mu.Unlock()
}

func NewStore(dbPath string) (*Store, error) {
	enableSQLiteVec()

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store %q: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect memory store %q: %w", dbPath, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize memory schema: %w", err)
	}

	store := &Store{db: db}

	// Prefer sqlite-vec when available; keep the cosine fallback path when
	// vec initialization fails.
	vecSchema := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS vec_turns USING vec0(embedding float[%d]);", sqliteVecDimensions)
	if _, err := db.Exec(vecSchema); err == nil {
		store.setVecEnabled(true)
	}

	return store, nil
}

func normalizeContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (s *Store) EnsureReady(ctx context.Context) error {
	ctx = normalizeContext(ctx)
	if s == nil || s.db == nil {
		return ErrStoreNotReady
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("memory store connection is not ready: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveTurn(ctx context.Context, turn Turn, embedding []float32) error {
	ctx = normalizeContext(ctx)

	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(turn.ID) == "" {
		return errors.New("turn id is required")
	}
	if len(embedding) == 0 {
		return errors.New("embedding is required")
	}

	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	if s.isVecEnabled() && len(embedding) == sqliteVecDimensions {
		if err := s.saveTurnWithVec(ctx, turn, embedding, string(embJSON)); err == nil {
			return nil
		}
		s.setVecEnabled(false)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO turns (id, session_id, role, content, embedding) VALUES (?, ?, ?, ?, ?)",
		turn.ID, turn.SessionID, turn.Role, turn.Content, string(embJSON),
	)
	return err
}

func (s *Store) saveTurnWithVec(ctx context.Context, turn Turn, embedding []float32, embJSON string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingRowID sql.NullInt64
	_ = tx.QueryRowContext(ctx, "SELECT rowid FROM turns WHERE id = ?", turn.ID).Scan(&existingRowID)
	if existingRowID.Valid {
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_turns WHERE rowid = ?", existingRowID.Int64); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE rowid = ?", existingRowID.Int64); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO turns (id, session_id, role, content, embedding) VALUES (?, ?, ?, ?, ?)",
		turn.ID, turn.SessionID, turn.Role, turn.Content, embJSON,
	)
	if err != nil {
		return err
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return err
	}

	vecBlob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("serialize vector: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO vec_turns (rowid, embedding) VALUES (?, ?)", rowid, vecBlob); err != nil {
		return err
	}
	return tx.Commit()
}

// ForgetSession drops every remembered turn of one session.
func (s *Store) ForgetSession(ctx context.Context, sessionID string) error {
	ctx = normalizeContext(ctx)

	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	if s.isVecEnabled() {
		if err := s.forgetSessionWithVec(ctx, sessionID); err == nil {
			return nil
		}
		s.setVecEnabled(false)
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID)
	return err
}

func (s *Store) forgetSessionWithVec(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM vec_turns WHERE rowid IN (
			SELECT rowid FROM turns WHERE session_id = ?
		)
	`, sessionID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// Recall returns the remembered turns of a session closest to the query
// embedding, nearest first.
func (s *Store) Recall(ctx context.Context, sessionID string, embedding []float32, limit int) ([]Turn, error) {
	ctx = normalizeContext(ctx)

	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, errors.New("query embedding is required")
	}
	if limit <= 0 {
		limit = defaultRecallLimit
	}

	if s.isVecEnabled() && len(embedding) == sqliteVecDimensions {
		if turns, err := s.recallWithVec(ctx, sessionID, embedding, limit); err == nil {
			return turns, nil
		}
		s.setVecEnabled(false)
	}

	return s.recallFallback(ctx, sessionID, embedding, limit)
}

func (s *Store) recallWithVec(ctx context.Context, sessionID string, embedding []float32, limit int) ([]Turn, error) {
	vecBlob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	query := `
	SELECT id, session_id, role, content
	FROM (
		SELECT
			t.id AS id,
			t.session_id AS session_id,
			t.role AS role,
			t.content AS content,
			distance AS distance
		FROM vec_turns
		JOIN turns t ON t.rowid = vec_turns.rowid
		WHERE vec_turns.embedding MATCH ?
		  AND t.session_id = ?
	)
	WHERE distance <= ?
	ORDER BY distance ASC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, vecBlob, sessionID, defaultDistanceThreshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]Turn, 0, limit)
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) recallFallback(ctx context.Context, sessionID string, embedding []float32, limit int) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, role, content, embedding FROM turns WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scoredTurn struct {
		turn     Turn
		distance float64
	}
	scored := make([]scoredTurn, 0, limit)
	for rows.Next() {
		var t Turn
		var embeddingJSON string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &embeddingJSON); err != nil {
			return nil, err
		}
		var candidate []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &candidate); err != nil {
			return nil, fmt.Errorf("decode embedding for turn %q: %w", t.ID, err)
		}
		distance, err := cosineDistance(embedding, candidate)
		if err != nil {
			continue
		}
		if distance > defaultDistanceThreshold {
			continue
		}
		scored = append(scored, scoredTurn{turn: t, distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].distance < scored[j].distance
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	turns := make([]Turn, 0, len(scored))
	for _, item := range scored {
		turns = append(turns, item.turn)
	}
	return turns, nil
}

func cosineDistance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errors.New("embedding cannot be empty")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding length mismatch: query=%d candidate=%d", len(a), len(b))
	}

	var dot, aNorm, bNorm float64
	for idx := range a {
		av := float64(a[idx])
		bv := float64(b[idx])
		dot += av * bv
		aNorm += av * av
		bNorm += bv * bv
	}
	if aNorm == 0 || bNorm == 0 {
		return 1, nil
	}

	similarity := dot / (math.Sqrt(aNorm) * math.Sqrt(bNorm))
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return 1 - similarity, nil
}
