package store

import (
	"context"
	"errors"

	"github.com/scaipass/ai-pass/backend/internal/model/application"
	"github.com/scaipass/ai-pass/backend/internal/model/chat"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrNotOwner = errors.New("caller does not own the session")
	// ErrNotPending is returned when a review targets an application that
	// has already left the pending state.
	ErrNotPending = errors.New("application is no longer pending")
)

// SessionStore persists conversation threads.
type SessionStore interface {
	CreateSession(ctx context.Context, ownerID string) (chat.Session, error)
	GetSession(ctx context.Context, id string) (chat.Session, error)
	// ListSessions returns every session of ownerID, most recently updated first.
	ListSessions(ctx context.Context, ownerID string) ([]chat.Session, error)
	// UpdateSessionMeta overwrites title and preview and bumps UpdatedAt.
	// Only the owner may update a session.
	UpdateSessionMeta(ctx context.Context, ownerID, id, title, preview string) (chat.Session, error)
}

// MessageStore persists session logs.
type MessageStore interface {
	// AppendMessage assigns ID and CreatedAt and appends msg to its session.
	// User messages must be authored by the session owner. For user messages
	// the session's HasMessages flag is set in the same write, and first
	// reports whether this append flipped it.
	AppendMessage(ctx context.Context, msg chat.Message) (stored chat.Message, first bool, err error)
	// ListMessages returns the session log in CreatedAt order.
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
}

// ApplicationFilter narrows ListApplications. Zero fields match everything.
type ApplicationFilter struct {
	UserID string
	Status application.Status
}

// ApplicationStore persists tier-upgrade applications.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app application.Application) (application.Application, error)
	GetApplication(ctx context.Context, id string) (application.Application, error)
	// ListApplications returns matches oldest first.
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]application.Application, error)
	// UpdateApplication records the review fields of app (status, reviewer,
	// note, reviewed-at). It applies only while the stored application is
	// pending, checked in the same write, and returns ErrNotPending otherwise.
	UpdateApplication(ctx context.Context, app application.Application) (application.Application, error)
}

// Store is the document store used by the services.
type Store interface {
	SessionStore
	MessageStore
	ApplicationStore
	Close() error
}
