// Package store persists transcripts and executed venue actions to a
// per-user SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pitline/pitline/schema"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Store is a SQLite-backed message and action history.
type Store struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, id);

CREATE TABLE IF NOT EXISTS actions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	action     TEXT NOT NULL,
	params     TEXT NOT NULL,
	result     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_user ON actions(user_id, id);
`

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// The driver serializes access per connection; a single connection
	// avoids SQLITE_BUSY on concurrent writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMessage appends one transcript message.
func (s *Store) SaveMessage(ctx context.Context, userID schema.UserID, msg schema.ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		string(userID), string(msg.Role), msg.Content, msg.Time.UTC())
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// Messages returns the user's most recent messages in chronological
// order. limit <= 0 returns everything.
func (s *Store) Messages(ctx context.Context, userID schema.UserID, limit int) ([]schema.ChatMessage, error) {
	query := `SELECT id, role, content, created_at FROM messages WHERE user_id = ? ORDER BY id DESC`
	args := []any{string(userID)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var messages []schema.ChatMessage
	for rows.Next() {
		var msg schema.ChatMessage
		var role string
		var created time.Time
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = schema.Role(role)
		msg.Time = created
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	// Reverse the DESC scan back to chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ClearMessages drops the user's transcript.
func (s *Store) ClearMessages(ctx context.Context, userID schema.UserID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE user_id = ?`, string(userID)); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// RecordAction appends one executed venue action.
func (s *Store) RecordAction(ctx context.Context, userID schema.UserID, rec schema.ActionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (user_id, action, params, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(userID), string(rec.Action), rec.Params, rec.Result, rec.Time.UTC())
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

// Actions returns the user's most recent executed actions, newest
// first. limit <= 0 returns everything.
func (s *Store) Actions(ctx context.Context, userID schema.UserID, limit int) ([]schema.ActionRecord, error) {
	query := `SELECT action, params, result, created_at FROM actions WHERE user_id = ? ORDER BY id DESC`
	args := []any{string(userID)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	defer rows.Close()

	var records []schema.ActionRecord
	for rows.Next() {
		var rec schema.ActionRecord
		var action string
		if err := rows.Scan(&action, &rec.Params, &rec.Result, &rec.Time); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		rec.Action = schema.Action(action)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	return records, nil
}
