// Package gormstore implements store.Store on top of gorm, backed by
// PostgreSQL in production and SQLite for single-node setups.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scaipass/ai-pass/backend/internal/config"
	"github.com/scaipass/ai-pass/backend/internal/model/application"
	"github.com/scaipass/ai-pass/backend/internal/model/chat"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	"github.com/scaipass/ai-pass/backend/internal/store"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects with the configured driver and migrates the schema.
func Open(cfg config.StoreConfig, log logger.ILogger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.StorePostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.StoreSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if cfg.Driver == config.StoreSQLite {
		// a single connection avoids "database is locked" and keeps :memory: shared
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return New(db), nil
}

// New wraps an already migrated connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&SessionRecord{},
		&MessageRecord{},
		&ApplicationRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateSession(ctx context.Context, ownerID string) (chat.Session, error) {
	now := s.now()
	rec := SessionRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     chat.DefaultSessionTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}
	return rec.toModel(), nil
}

func (s *Store) GetSession(ctx context.Context, id string) (chat.Session, error) {
	var rec SessionRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return chat.Session{}, notFound(err)
	}
	return rec.toModel(), nil
}

func (s *Store) ListSessions(ctx context.Context, ownerID string) ([]chat.Session, error) {
	var recs []SessionRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at desc, created_at desc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]chat.Session, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

func (s *Store) UpdateSessionMeta(ctx context.Context, ownerID, id, title, preview string) (chat.Session, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			return notFound(err)
		}
		if rec.OwnerID != ownerID {
			return store.ErrNotOwner
		}

		rec.Title = title
		rec.FirstMessage = preview
		rec.UpdatedAt = latest(s.now(), rec.UpdatedAt)
		return tx.Model(&SessionRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
			"title":         rec.Title,
			"first_message": rec.FirstMessage,
			"updated_at":    rec.UpdatedAt,
		}).Error
	})
	if err != nil {
		return chat.Session{}, err
	}
	return rec.toModel(), nil
}

func (s *Store) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, bool, error) {
	var (
		rec   MessageRecord
		first bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session SessionRecord
		if err := tx.Where("id = ?", msg.SessionID).First(&session).Error; err != nil {
			return notFound(err)
		}
		if msg.Type == chat.MessageUser && msg.AuthorID != session.OwnerID {
			return store.ErrNotOwner
		}

		createdAt := s.now()
		var last MessageRecord
		res := tx.Where("session_id = ?", msg.SessionID).Order("created_at desc, seq desc").Limit(1).Find(&last)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			createdAt = latest(createdAt, last.CreatedAt)
		}

		rec = MessageRecord{
			ID:        uuid.NewString(),
			SessionID: msg.SessionID,
			Type:      string(msg.Type),
			Text:      msg.Text,
			AuthorID:  msg.AuthorID,
			CreatedAt: createdAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}

		if msg.Type != chat.MessageUser {
			return nil
		}
		flip := tx.Model(&SessionRecord{}).
			Where("id = ? AND has_messages = ?", msg.SessionID, false).
			UpdateColumn("has_messages", true)
		if flip.Error != nil {
			return flip.Error
		}
		first = flip.RowsAffected == 1
		return nil
	})
	if err != nil {
		return chat.Message{}, false, err
	}
	return rec.toModel(), first, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&SessionRecord{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if count == 0 {
		return nil, store.ErrNotFound
	}

	var recs []MessageRecord
	if err := db.Where("session_id = ?", sessionID).Order("created_at asc, seq asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]chat.Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	app.ID = uuid.NewString()
	app.CreatedAt = s.now()
	rec := applicationRecord(app)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return application.Application{}, fmt.Errorf("create application: %w", err)
	}
	return rec.toModel(), nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	var rec ApplicationRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return application.Application{}, notFound(err)
	}
	return rec.toModel(), nil
}

func (s *Store) ListApplications(ctx context.Context, filter store.ApplicationFilter) ([]application.Application, error) {
	q := s.db.WithContext(ctx).Model(&ApplicationRecord{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var recs []ApplicationRecord
	if err := q.Order("created_at asc, id asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	out := make([]application.Application, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

func (s *Store) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	var rec ApplicationRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ApplicationRecord{}).
			Where("id = ? AND status = ?", app.ID, string(application.StatusPending)).
			Updates(map[string]interface{}{
				"status":      string(app.Status),
				"reviewer_id": app.ReviewerID,
				"review_note": app.ReviewNote,
				"reviewed_at": app.ReviewedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.Where("id = ?", app.ID).First(&rec).Error; err != nil {
			return notFound(err)
		}
		if res.RowsAffected == 0 {
			return store.ErrNotPending
		}
		return nil
	})
	if err != nil {
		return application.Application{}, err
	}
	return rec.toModel(), nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func latest(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}

// newGormLogger routes gorm's SQL log through the application logger.
func newGormLogger(l logger.ILogger) gormlogger.Interface {
	return gormlogger.New(
		log.New(gormWriter{l}, "", 0),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}

type gormWriter struct {
	log logger.ILogger
}

func (w gormWriter) Write(p []byte) (int, error) {
	w.log.Warn("Database", string(p), nil)
	return len(p), nil
}
