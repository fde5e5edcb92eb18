// Package storage persists minitwit users, messages and follower relations.
package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("username already taken")
)

// User represents a registered user.
type User struct {
	UserID   int64
	Username string
	Email    string
	PwHash   string
}

// Message represents a message joined with its author.
type Message struct {
	MessageID int64
	AuthorID  int64
	Text      string
	PubDate   int64
	Flagged   bool
	Username  string
	Email     string
}

// Store is implemented by SQLStore (database/sql) and GormStore.
type Store interface {
	UserID(ctx context.Context, username string) (int64, error)
	UserByID(ctx context.Context, userID int64) (*User, error)
	UserByName(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, username, email, pwHash string) (int64, error)

	Follow(ctx context.Context, whoID, whomID int64) error
	Unfollow(ctx context.Context, whoID, whomID int64) error
	IsFollowing(ctx context.Context, whoID, whomID int64) (bool, error)
	Following(ctx context.Context, whoID int64, limit int) ([]string, error)

	AddMessage(ctx context.Context, authorID int64, text string, pubDate int64) (int64, error)
	PublicTimeline(ctx context.Context, limit int) ([]Message, error)
	UserTimeline(ctx context.Context, userID int64, limit int) ([]Message, error)
	HomeTimeline(ctx context.Context, userID int64, limit int) ([]Message, error)
	AllMessages(ctx context.Context) ([]Message, error)
	FlagMessage(ctx context.Context, messageID int64) error

	Close() error
}
