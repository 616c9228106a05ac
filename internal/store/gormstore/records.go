package gormstore

import (
	"time"

	"github.com/scaipass/ai-pass/backend/internal/model/application"
	"github.com/scaipass/ai-pass/backend/internal/model/chat"
)

type SessionRecord struct {
	ID           string    `gorm:"primaryKey;size:36"`
	OwnerID      string    `gorm:"size:128;index;not null"`
	Title        string    `gorm:"not null"`
	FirstMessage string    `gorm:"type:text"`
	HasMessages  bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false;index"`
}

func (SessionRecord) TableName() string { return "chat_sessions" }

func (r SessionRecord) toModel() chat.Session {
	return chat.Session{
		ID:           r.ID,
		Title:        r.Title,
		FirstMessage: r.FirstMessage,
		OwnerID:      r.OwnerID,
		HasMessages:  r.HasMessages,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

// MessageRecord keeps an autoincrement Seq so that messages sharing a
// timestamp still list in insertion order.
type MessageRecord struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"uniqueIndex;size:36;not null"`
	SessionID string    `gorm:"size:36;index:idx_chat_messages_session_created,priority:1;not null"`
	Type      string    `gorm:"size:16;not null"`
	Text      string    `gorm:"type:text"`
	AuthorID  string    `gorm:"size:128;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false;index:idx_chat_messages_session_created,priority:2"`
}

func (MessageRecord) TableName() string { return "chat_messages" }

func (r MessageRecord) toModel() chat.Message {
	return chat.Message{
		ID:        r.ID,
		SessionID: r.SessionID,
		Type:      chat.MessageType(r.Type),
		Text:      r.Text,
		AuthorID:  r.AuthorID,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type ApplicationRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	UserID         string    `gorm:"size:128;index;not null"`
	UserName       string
	Email          string
	Department     string
	CurrentLevel   string `gorm:"size:8"`
	RequestedLevel string `gorm:"size:8"`
	TasksCompleted int
	HoursUsed      int
	TimeSaved      int
	Status         string    `gorm:"size:16;index;not null"`
	ReviewerID     string    `gorm:"size:128"`
	ReviewNote     string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false;index"`
	ReviewedAt     *time.Time
}

func (ApplicationRecord) TableName() string { return "tier_applications" }

func applicationRecord(app application.Application) ApplicationRecord {
	return ApplicationRecord{
		ID:             app.ID,
		UserID:         app.UserID,
		UserName:       app.UserName,
		Email:          app.Email,
		Department:     app.Department,
		CurrentLevel:   app.CurrentLevel,
		RequestedLevel: app.RequestedLevel,
		TasksCompleted: app.TasksCompleted,
		HoursUsed:      app.HoursUsed,
		TimeSaved:      app.TimeSaved,
		Status:         string(app.Status),
		ReviewerID:     app.ReviewerID,
		ReviewNote:     app.ReviewNote,
		CreatedAt:      app.CreatedAt,
		ReviewedAt:     app.ReviewedAt,
	}
}

func (r ApplicationRecord) toModel() application.Application {
	app := application.Application{
		ID:             r.ID,
		UserID:         r.UserID,
		UserName:       r.UserName,
		Email:          r.Email,
		Department:     r.Department,
		CurrentLevel:   r.CurrentLevel,
		RequestedLevel: r.RequestedLevel,
		TasksCompleted: r.TasksCompleted,
		HoursUsed:      r.HoursUsed,
		TimeSaved:      r.TimeSaved,
		Status:         application.Status(r.Status),
		ReviewerID:     r.ReviewerID,
		ReviewNote:     r.ReviewNote,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.ReviewedAt != nil {
		reviewed := r.ReviewedAt.UTC()
		app.ReviewedAt = &reviewed
	}
	return app
}
