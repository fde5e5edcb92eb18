package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var defaultSchema string

const messageColumns = `message.message_id, message.author_id, message.text, message.pub_date,
	message.flagged, user.username, user.email`

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory '%s': %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	return NewSQLStore(db), nil
}

// InitSchema executes the schema file at path, or the built-in schema when path is empty.
func (s *SQLStore) InitSchema(ctx context.Context, path string) error {
	schema := defaultSchema
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read schema %s: %w", path, err)
		}
		schema = string(b)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) UserID(ctx context.Context, username string) (int64, error) {
	v, err := queryScalar(ctx, s.db, "SELECT user_id FROM user WHERE username = ?", username)
	if err != nil {
		return 0, err
	}
	return asInt64(v)
}

func (s *SQLStore) UserByID(ctx context.Context, userID int64) (*User, error) {
	return s.userWhere(ctx, "user_id = ?", userID)
}

func (s *SQLStore) UserByName(ctx context.Context, username string) (*User, error) {
	return s.userWhere(ctx, "username = ?", username)
}

func (s *SQLStore) userWhere(ctx context.Context, cond string, arg any) (*User, error) {
	rows, err := queryDB(ctx, s.db, true, "SELECT user_id, username, email, pw_hash FROM user WHERE "+cond, arg)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	r := rows[0]
	return &User{
		UserID:   r.Int64("user_id"),
		Username: r.String("username"),
		Email:    r.String("email"),
		PwHash:   r.String("pw_hash"),
	}, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, username, email, pwHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO user (username, email, pw_hash) VALUES (?, ?, ?)", username, email, pwHash)
	if isUniqueViolation(err) {
		return 0, ErrUserExists
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLStore) Follow(ctx context.Context, whoID, whomID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO follower (who_id, whom_id) VALUES (?, ?)", whoID, whomID)
	if err != nil {
		return fmt.Errorf("failed to follow: %w", err)
	}
	return nil
}

func (s *SQLStore) Unfollow(ctx context.Context, whoID, whomID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM follower WHERE who_id = ? AND whom_id = ?", whoID, whomID)
	if err != nil {
		return fmt.Errorf("failed to unfollow: %w", err)
	}
	return nil
}

func (s *SQLStore) IsFollowing(ctx context.Context, whoID, whomID int64) (bool, error) {
	_, err := queryScalar(ctx, s.db,
		"SELECT 1 FROM follower WHERE who_id = ? AND whom_id = ?", whoID, whomID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) Following(ctx context.Context, whoID int64, limit int) ([]string, error) {
	rows, err := queryDB(ctx, s.db, false, `
		SELECT user.username FROM user
		INNER JOIN follower ON follower.whom_id = user.user_id
		WHERE follower.who_id = ?
		ORDER BY user.username
		LIMIT ?`, whoID, limit)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.String("username"))
	}
	return names, nil
}

func (s *SQLStore) AddMessage(ctx context.Context, authorID int64, text string, pubDate int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO message (author_id, text, pub_date, flagged) VALUES (?, ?, ?, 0)",
		authorID, text, pubDate)
	if err != nil {
		return 0, fmt.Errorf("failed to add message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLStore) PublicTimeline(ctx context.Context, limit int) ([]Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM message, user
		WHERE message.flagged = 0 AND message.author_id = user.user_id
		ORDER BY message.pub_date DESC, message.message_id DESC LIMIT ?`, limit)
}

func (s *SQLStore) UserTimeline(ctx context.Context, userID int64, limit int) ([]Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM message, user
		WHERE message.flagged = 0 AND user.user_id = message.author_id AND user.user_id = ?
		ORDER BY message.pub_date DESC, message.message_id DESC LIMIT ?`, userID, limit)
}

func (s *SQLStore) HomeTimeline(ctx context.Context, userID int64, limit int) ([]Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM message, user
		WHERE message.flagged = 0 AND message.author_id = user.user_id AND (
			user.user_id = ? OR
			user.user_id IN (SELECT whom_id FROM follower WHERE who_id = ?))
		ORDER BY message.pub_date DESC, message.message_id DESC LIMIT ?`,
		userID, userID, limit)
}

func (s *SQLStore) AllMessages(ctx context.Context) ([]Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM message, user
		WHERE message.author_id = user.user_id
		ORDER BY message.message_id`)
}

func (s *SQLStore) FlagMessage(ctx context.Context, messageID int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE message SET flagged = 1 WHERE message_id = ?", messageID)
	if err != nil {
		return fmt.Errorf("failed to flag message %d: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to flag message %d: %w", messageID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.MessageID, &m.AuthorID, &m.Text, &m.PubDate,
			&m.Flagged, &m.Username, &m.Email); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
