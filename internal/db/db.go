package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"vesper/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no session matches the requested id.
var ErrNotFound = errors.New("session not found")

// MaxRetainedSessions is the default retention cap enforced by Cleanup.
const MaxRetainedSessions = 50

// SessionStore persists sessions in a SQLite file, one row per session
// keyed by the session id. Persistence is best-effort: callers are
// expected to swallow save failures rather than interrupt the
// interaction loop.
type SessionStore struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates (or opens) the session database under dir.
func Open(dir string, log *zap.Logger) (*SessionStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", filepath.Join(dir, "vesper.db"))
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			messages TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);`,
	}
	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return &SessionStore{db: conn, log: log}, nil
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Save upserts the session keyed by its id and advances UpdatedAt.
// Timestamps are normalized to millisecond precision so a following
// Load returns an equal session.
func (s *SessionStore) Save(sess *models.Session) error {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return errors.New("missing session id")
	}

	sess.UpdatedAt = time.UnixMilli(time.Now().UnixMilli())
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = sess.UpdatedAt
	} else {
		sess.CreatedAt = time.UnixMilli(sess.CreatedAt.UnixMilli())
	}

	msgs := sess.Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions(id, title, model, created_at, updated_at, messages)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			updated_at = excluded.updated_at,
			messages = excluded.messages`,
		sess.ID,
		sess.Title,
		sess.Model,
		sess.CreatedAt.UnixMilli(),
		sess.UpdatedAt.UnixMilli(),
		string(payload),
	)
	return err
}

// Load returns the session with the exact id, or ErrNotFound.
func (s *SessionStore) Load(id string) (*models.Session, error) {
	row := s.db.QueryRow(
		"SELECT id, title, model, created_at, updated_at, messages FROM sessions WHERE id = ?",
		id,
	)
	sess, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// List returns up to limit sessions ordered by updated_at descending.
// A limit <= 0 returns all sessions. Rows whose message payload does
// not parse are skipped silently.
func (s *SessionStore) List(limit int) ([]*models.Session, error) {
	query := "SELECT id, title, model, created_at, updated_at, messages FROM sessions ORDER BY updated_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			s.log.Debug("skipping unreadable session row", zap.Error(err))
			continue
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Resolve finds a session whose id starts with idOrPrefix, falling
// back to an exact lookup.
func (s *SessionStore) Resolve(idOrPrefix string) (*models.Session, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return nil, ErrNotFound
	}
	if sessions, err := s.List(0); err == nil {
		for _, sess := range sessions {
			if strings.HasPrefix(sess.ID, idOrPrefix) {
				return sess, nil
			}
		}
	}
	return s.Load(idOrPrefix)
}

// Delete removes the session with the given id. Deleting a missing id
// is not an error.
func (s *SessionStore) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

// Cleanup keeps only the maxRetained most recently updated sessions.
// Individual deletion failures are ignored; remaining candidates are
// still attempted.
func (s *SessionStore) Cleanup(maxRetained int) error {
	if maxRetained <= 0 {
		maxRetained = MaxRetainedSessions
	}

	rows, err := s.db.Query("SELECT id FROM sessions ORDER BY updated_at ASC")
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	excess := len(ids) - maxRetained
	for i := 0; i < excess; i++ {
		if err := s.Delete(ids[i]); err != nil {
			s.log.Warn("session cleanup delete failed", zap.String("id", ids[i]), zap.Error(err))
		}
	}
	return nil
}

func scanSession(scan func(dest ...any) error) (*models.Session, error) {
	var (
		sess               models.Session
		createdMS, updated int64
		payload            string
	)
	if err := scan(&sess.ID, &sess.Title, &sess.Model, &createdMS, &updated, &payload); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &sess.Messages); err != nil {
		return nil, err
	}
	if sess.Messages == nil {
		sess.Messages = []models.Message{}
	}
	sess.CreatedAt = time.UnixMilli(createdMS)
	sess.UpdatedAt = time.UnixMilli(updated)
	return &sess, nil
}
