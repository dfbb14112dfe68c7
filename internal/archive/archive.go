// Package archive keeps a local SQLite copy of accepted chat histories so a
// conversation can be shown before the first poll of a session returns.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/five82/buddy/internal/filmbuddy"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	peer_id   INTEGER NOT NULL,
	seq       INTEGER NOT NULL,
	from_user INTEGER NOT NULL,
	to_user   INTEGER NOT NULL,
	text      TEXT    NOT NULL,
	ts        TEXT    NOT NULL,
	PRIMARY KEY (peer_id, seq)
);`

// Archive is a SQLite-backed history store.
type Archive struct {
	db *sql.DB
}

// Open creates or opens the archive at path.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=2000")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// SaveHistory replaces the stored conversation with peerID.
func (a *Archive) SaveHistory(ctx context.Context, peerID int64, messages []filmbuddy.ChatMessage) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE peer_id = ?`, peerID); err != nil {
		return fmt.Errorf("clear archived history: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (peer_id, seq, from_user, to_user, text, ts) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare archive insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range messages {
		if _, err := stmt.ExecContext(ctx, peerID, i, m.FromUserID, m.ToUserID, m.Text, m.Timestamp); err != nil {
			return fmt.Errorf("archive message %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// LoadHistory returns the stored conversation with peerID in saved order.
func (a *Archive) LoadHistory(ctx context.Context, peerID int64) ([]filmbuddy.ChatMessage, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT from_user, to_user, text, ts FROM chat_messages WHERE peer_id = ? ORDER BY seq`, peerID)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var messages []filmbuddy.ChatMessage
	for rows.Next() {
		var m filmbuddy.ChatMessage
		if err := rows.Scan(&m.FromUserID, &m.ToUserID, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return messages, nil
}
