// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.SessionStore = (*Store)(nil)
	_ store.PrefStore    = (*Store)(nil)
)

// Store implements store.SessionStore and store.PrefStore backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath and initialises the
// sessions, messages, and prefs tables.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "opening sqlite db %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "pinging sqlite db %s", dbPath)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "migrating sqlite db %s", dbPath)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL DEFAULT '',
	model            TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	last_modified_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_modified ON sessions(last_modified_at);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	position         INTEGER NOT NULL,
	role             TEXT NOT NULL,
	responses        TEXT NOT NULL DEFAULT '[]',
	current_response INTEGER NOT NULL DEFAULT 0,
	is_generating    INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, position);

CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	rec := store.EncodeSession(sess)

	const q = `INSERT INTO sessions (id, title, model, created_at, last_modified_at)
VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.Title,
		rec.Model,
		formatTime(rec.CreatedAt),
		formatTime(rec.LastModifiedAt),
	)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "creating session %s", rec.ID)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `SELECT id, title, model, created_at, last_modified_at FROM sessions WHERE id = ?`

	var rec store.SessionRecord
	var createdAt, modifiedAt string

	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID,
		&rec.Title,
		&rec.Model,
		&createdAt,
		&modifiedAt,
	)
	if err == sql.ErrNoRows {
		return nil, parleyerr.Errorf(parleyerr.CodeStoreSessionNotFound, "session %s not found", id)
	}
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "getting session %s", id)
	}

	rec.CreatedAt = parseTime(createdAt)
	rec.LastModifiedAt = parseTime(modifiedAt)

	msgs, err := s.loadMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Messages = msgs

	return store.DecodeSession(rec), nil
}

func (s *Store) loadMessages(ctx context.Context, sessionID string) ([]store.MessageRecord, error) {
	const q = `SELECT id, role, responses, current_response, is_generating, created_at
FROM messages WHERE session_id = ? ORDER BY position ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "loading messages for session %s", sessionID)
	}
	defer rows.Close()

	var msgs []store.MessageRecord
	for rows.Next() {
		var rec store.MessageRecord
		var responsesJSON, createdAt string
		var generating int
		if err := rows.Scan(
			&rec.ID,
			&rec.Role,
			&responsesJSON,
			&rec.CurrentResponse,
			&generating,
			&createdAt,
		); err != nil {
			return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "scanning message row")
		}
		if err := json.Unmarshal([]byte(responsesJSON), &rec.Responses); err != nil {
			return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "unmarshalling responses for message %s", rec.ID)
		}
		rec.IsGenerating = generating != 0
		rec.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, rec)
	}

	return msgs, rows.Err()
}

func (s *Store) ListSessions(ctx context.Context) ([]*store.Session, error) {
	const q = `SELECT id, title, model, created_at, last_modified_at
FROM sessions ORDER BY last_modified_at DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "listing sessions")
	}
	defer rows.Close()

	var sessions []*store.Session
	for rows.Next() {
		var rec store.SessionRecord
		var createdAt, modifiedAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.Title,
			&rec.Model,
			&createdAt,
			&modifiedAt,
		); err != nil {
			return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "scanning session row")
		}
		rec.CreatedAt = parseTime(createdAt)
		rec.LastModifiedAt = parseTime(modifiedAt)
		sessions = append(sessions, store.DecodeSession(rec))
	}

	return sessions, rows.Err()
}

func (s *Store) UpdateTitle(ctx context.Context, sessionID, title string) error {
	return s.updateSessionField(ctx, sessionID, `UPDATE sessions SET title = ?, last_modified_at = ? WHERE id = ?`, title)
}

func (s *Store) SetModel(ctx context.Context, sessionID, model string) error {
	return s.updateSessionField(ctx, sessionID, `UPDATE sessions SET model = ?, last_modified_at = ? WHERE id = ?`, model)
}

func (s *Store) updateSessionField(ctx context.Context, sessionID, q, value string) error {
	result, err := s.db.ExecContext(ctx, q, value, formatTime(time.Now()), sessionID)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "updating session %s", sessionID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "checking rows affected for session %s", sessionID)
	}
	if rows == 0 {
		return parleyerr.Errorf(parleyerr.CodeStoreSessionNotFound, "session %s not found", sessionID)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "deleting session %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "checking rows affected for session %s", id)
	}
	if rows == 0 {
		return parleyerr.Errorf(parleyerr.CodeStoreSessionNotFound, "session %s not found", id)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, sessionID string, m *store.Message) error {
	rec := store.EncodeMessage(m)

	responses, err := json.Marshal(rec.Responses)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "marshalling responses for message %s", rec.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "beginning append transaction")
	}
	defer tx.Rollback()

	const insert = `INSERT INTO messages (id, session_id, position, role, responses, current_response, is_generating, created_at)
VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?, ?, ?)`

	if _, err := tx.ExecContext(ctx, insert,
		rec.ID,
		sessionID,
		sessionID,
		string(rec.Role),
		string(responses),
		rec.CurrentResponse,
		boolToInt(rec.IsGenerating),
		formatTime(rec.CreatedAt),
	); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "appending message %s to session %s", rec.ID, sessionID)
	}

	if err := bumpModified(ctx, tx, sessionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "committing append for session %s", sessionID)
	}
	return nil
}

func (s *Store) UpdateMessage(ctx context.Context, sessionID string, m *store.Message) error {
	rec := store.EncodeMessage(m)

	responses, err := json.Marshal(rec.Responses)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "marshalling responses for message %s", rec.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "beginning update transaction")
	}
	defer tx.Rollback()

	const q = `UPDATE messages SET responses = ?, current_response = ?, is_generating = ?
WHERE id = ? AND session_id = ?`

	result, err := tx.ExecContext(ctx, q,
		string(responses),
		rec.CurrentResponse,
		boolToInt(rec.IsGenerating),
		rec.ID,
		sessionID,
	)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "updating message %s", rec.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "checking rows affected for message %s", rec.ID)
	}
	if rows == 0 {
		return parleyerr.Errorf(parleyerr.CodeStoreMessageNotFound, "message %s not found in session %s", rec.ID, sessionID)
	}

	if err := bumpModified(ctx, tx, sessionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "committing update for message %s", rec.ID)
	}
	return nil
}

func (s *Store) TruncateAfter(ctx context.Context, sessionID, messageID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "beginning truncate transaction")
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRowContext(ctx,
		`SELECT position FROM messages WHERE id = ? AND session_id = ?`,
		messageID, sessionID,
	).Scan(&position)
	if err == sql.ErrNoRows {
		return parleyerr.Errorf(parleyerr.CodeStoreMessageNotFound, "message %s not found in session %s", messageID, sessionID)
	}
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "locating message %s", messageID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND position > ?`,
		sessionID, position,
	); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "truncating session %s after message %s", sessionID, messageID)
	}

	if err := bumpModified(ctx, tx, sessionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "committing truncate for session %s", sessionID)
	}
	return nil
}

func bumpModified(ctx context.Context, tx *sql.Tx, sessionID string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_modified_at = ? WHERE id = ?`,
		formatTime(time.Now()), sessionID,
	); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "bumping modified time for session %s", sessionID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
