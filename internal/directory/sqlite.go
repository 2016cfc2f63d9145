package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/Raincor5/tacmap/internal/game"
)

// sessionRecord is the gorm model. The session itself is stored as a JSON
// blob; the store is a lookup table, not a query surface.
type sessionRecord struct {
	Code      string `gorm:"primaryKey"`
	Name      string
	HostID    string
	Payload   []byte
	UpdatedAt time.Time
}

func (sessionRecord) TableName() string { return "sessions" }

// SQLite persists sessions across process restarts using the pure-Go sqlite
// driver, so offline runs keep their sessions without any external service.
type SQLite struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("directory: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("directory: migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Store(ctx context.Context, sess *game.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("directory: marshal session %s: %w", sess.Code, err)
	}
	rec := sessionRecord{
		Code:      sess.Code,
		Name:      sess.Name,
		HostID:    sess.HostID,
		Payload:   payload,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *SQLite) Find(ctx context.Context, code string) (*game.Session, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).First(&rec, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess game.Session
	if err := json.Unmarshal(rec.Payload, &sess); err != nil {
		return nil, fmt.Errorf("directory: decode session %s: %w", code, err)
	}
	return &sess, nil
}

func (s *SQLite) Remove(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Delete(&sessionRecord{}, "code = ?", code).Error
}
