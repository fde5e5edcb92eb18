package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type gormUser struct {
	UserID   int64  `gorm:"column:user_id;primaryKey;autoIncrement"`
	Username string `gorm:"uniqueIndex;not null"`
	Email    string `gorm:"not null"`
	PwHash   string `gorm:"column:pw_hash;not null"`
}

func (gormUser) TableName() string { return "users" }

type gormMessage struct {
	MessageID int64  `gorm:"column:message_id;primaryKey;autoIncrement"`
	AuthorID  int64  `gorm:"not null;index"`
	Text      string `gorm:"not null"`
	PubDate   int64  `gorm:"not null;index"`
	Flagged   bool   `gorm:"not null;default:false"`
}

func (gormMessage) TableName() string { return "messages" }

type gormFollower struct {
	WhoID  int64 `gorm:"column:who_id;primaryKey;autoIncrement:false"`
	WhomID int64 `gorm:"column:whom_id;primaryKey;autoIncrement:false"`
}

func (gormFollower) TableName() string { return "followers" }

// GormStore implements Store on gorm, backed by PostgreSQL or SQLite.
type GormStore struct {
	db *gorm.DB
}

// OpenGormPostgres connects to PostgreSQL using dsn and migrates the schema.
func OpenGormPostgres(ctx context.Context, dsn string) (*GormStore, error) {
	return openGorm(ctx, postgres.Open(dsn))
}

// OpenGormSQLite opens the SQLite file at path through gorm and migrates the schema.
func OpenGormSQLite(ctx context.Context, path string) (*GormStore, error) {
	return openGorm(ctx, sqlite.Open(path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"))
}

func openGorm(ctx context.Context, dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&gormUser{}, &gormMessage{}, &gormFollower{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *GormStore) UserID(ctx context.Context, username string) (int64, error) {
	u, err := g.UserByName(ctx, username)
	if err != nil {
		return 0, err
	}
	return u.UserID, nil
}

func (g *GormStore) UserByID(ctx context.Context, userID int64) (*User, error) {
	return g.userWhere(ctx, "user_id = ?", userID)
}

func (g *GormStore) UserByName(ctx context.Context, username string) (*User, error) {
	return g.userWhere(ctx, "username = ?", username)
}

func (g *GormStore) userWhere(ctx context.Context, cond string, arg any) (*User, error) {
	var u gormUser
	err := g.db.WithContext(ctx).Where(cond, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &User{UserID: u.UserID, Username: u.Username, Email: u.Email, PwHash: u.PwHash}, nil
}

func (g *GormStore) CreateUser(ctx context.Context, username, email, pwHash string) (int64, error) {
	u := gormUser{Username: username, Email: email, PwHash: pwHash}
	err := g.db.WithContext(ctx).Create(&u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return 0, ErrUserExists
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add user: %w", err)
	}
	return u.UserID, nil
}

func (g *GormStore) Follow(ctx context.Context, whoID, whomID int64) error {
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&gormFollower{WhoID: whoID, WhomID: whomID}).Error
	if err != nil {
		return fmt.Errorf("failed to follow: %w", err)
	}
	return nil
}

func (g *GormStore) Unfollow(ctx context.Context, whoID, whomID int64) error {
	err := g.db.WithContext(ctx).
		Where("who_id = ? AND whom_id = ?", whoID, whomID).
		Delete(&gormFollower{}).Error
	if err != nil {
		return fmt.Errorf("failed to unfollow: %w", err)
	}
	return nil
}

func (g *GormStore) IsFollowing(ctx context.Context, whoID, whomID int64) (bool, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&gormFollower{}).
		Where("who_id = ? AND whom_id = ?", whoID, whomID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to query follower: %w", err)
	}
	return n > 0, nil
}

func (g *GormStore) Following(ctx context.Context, whoID int64, limit int) ([]string, error) {
	names := []string{}
	err := g.db.WithContext(ctx).
		Table("users").
		Joins("INNER JOIN followers ON followers.whom_id = users.user_id").
		Where("followers.who_id = ?", whoID).
		Order("users.username").
		Limit(limit).
		Pluck("users.username", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query followers: %w", err)
	}
	return names, nil
}

func (g *GormStore) AddMessage(ctx context.Context, authorID int64, text string, pubDate int64) (int64, error) {
	m := gormMessage{AuthorID: authorID, Text: text, PubDate: pubDate}
	if err := g.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, fmt.Errorf("failed to add message: %w", err)
	}
	return m.MessageID, nil
}

func (g *GormStore) messages(ctx context.Context) *gorm.DB {
	return g.db.WithContext(ctx).
		Table("messages").
		Select("messages.message_id, messages.author_id, messages.text, messages.pub_date, " +
			"messages.flagged, users.username, users.email").
		Joins("JOIN users ON users.user_id = messages.author_id")
}

func (g *GormStore) timeline(q *gorm.DB, limit int) ([]Message, error) {
	var out []Message
	err := q.Where("messages.flagged = ?", false).
		Order("messages.pub_date DESC, messages.message_id DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return out, nil
}

func (g *GormStore) PublicTimeline(ctx context.Context, limit int) ([]Message, error) {
	return g.timeline(g.messages(ctx), limit)
}

func (g *GormStore) UserTimeline(ctx context.Context, userID int64, limit int) ([]Message, error) {
	return g.timeline(g.messages(ctx).Where("users.user_id = ?", userID), limit)
}

func (g *GormStore) HomeTimeline(ctx context.Context, userID int64, limit int) ([]Message, error) {
	q := g.messages(ctx).Where(
		"users.user_id = ? OR users.user_id IN (SELECT whom_id FROM followers WHERE who_id = ?)",
		userID, userID)
	return g.timeline(q, limit)
}

func (g *GormStore) AllMessages(ctx context.Context) ([]Message, error) {
	var out []Message
	if err := g.messages(ctx).Order("messages.message_id").Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return out, nil
}

func (g *GormStore) FlagMessage(ctx context.Context, messageID int64) error {
	res := g.db.WithContext(ctx).Model(&gormMessage{}).
		Where("message_id = ?", messageID).
		Update("flagged", true)
	if res.Error != nil {
		return fmt.Errorf("failed to flag message %d: %w", messageID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
