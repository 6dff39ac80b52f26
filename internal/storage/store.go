package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	_ "modernc.org/sqlite"

	intrnl "relaychat/internal"
)

const defaultBusyTimeout = 5000

// Store is the SQLite-backed message log.
type Store struct {
	db *sql.DB
}

// messageRow mirrors one row of the messages table.
type messageRow struct {
	ID        int64
	Kind      string
	Body      string
	MediaURL  string
	Sender    string
	CreatedAt int64
}

func (row messageRow) toMessage() intrnl.Message {
	return intrnl.Message{
		ID:        strconv.FormatInt(row.ID, 10),
		Kind:      intrnl.Kind(row.Kind),
		Body:      row.Body,
		MediaURL:  row.MediaURL,
		Sender:    row.Sender,
		CreatedAt: row.CreatedAt,
	}
}

// NewStore opens the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "relaychat.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	// a single writer keeps append order equal to commit order
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

// Migrate creates the messages table and its ordering index.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			media_url TEXT NOT NULL DEFAULT '',
			sender TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at, id);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Append inserts msg and sets its ID to the new row id.
func (s *Store) Append(ctx context.Context, msg *intrnl.Message) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(kind, body, media_url, sender, created_at) VALUES(?, ?, ?, ?, ?)`,
		string(msg.Kind), msg.Body, msg.MediaURL, msg.Sender, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert message id: %w", err)
	}
	msg.ID = strconv.FormatInt(id, 10)
	return nil
}

// QueryRecent returns the first limit messages of the log in ascending
// created_at order. It is a prefix of the history, not its tail.
func (s *Store) QueryRecent(ctx context.Context, limit int) ([]intrnl.Message, error) {
	if limit <= 0 {
		return []intrnl.Message{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, body, media_url, sender, created_at
		FROM messages
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []messageRow
	for rows.Next() {
		var row messageRow
		if err := rows.Scan(&row.ID, &row.Kind, &row.Body, &row.MediaURL, &row.Sender, &row.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lo.Map(records, func(row messageRow, _ int) intrnl.Message {
		return row.toMessage()
	}), nil
}
