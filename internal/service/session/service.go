// Package session is the registry of conversation threads per owner.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/live"
	"github.com/scaipass/ai-pass/backend/internal/model/chat"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	"github.com/scaipass/ai-pass/backend/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotOwner is an authorization failure and matches auth.ErrAuthRequired.
	ErrNotOwner = fmt.Errorf("%w: caller does not own the session", auth.ErrAuthRequired)
)

// Service manages session lifecycle and metadata.
type Service struct {
	store store.SessionStore
	feed  live.Feed
	log   logger.ILogger
}

func NewService(st store.SessionStore, feed live.Feed, log logger.ILogger) *Service {
	return &Service{store: st, feed: feed, log: log}
}

// CreateSession provisions an empty session owned by ownerID.
func (s *Service) CreateSession(ctx context.Context, ownerID string) (chat.Session, error) {
	if ownerID == "" {
		return chat.Session{}, auth.ErrAuthRequired
	}

	session, err := s.store.CreateSession(ctx, ownerID)
	if err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}

	s.log.Info("Session", "session created", map[string]interface{}{
		"session_id": session.ID,
		"owner_id":   ownerID,
	})
	return session, nil
}

// Sessions returns the listed sessions of ownerID, most recent first.
// Sessions without a preview are not listed.
func (s *Service) Sessions(ctx context.Context, ownerID string) ([]chat.Session, error) {
	if ownerID == "" {
		return nil, auth.ErrAuthRequired
	}

	all, err := s.store.ListSessions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	listed := make([]chat.Session, 0, len(all))
	for _, session := range all {
		if session.Listed() {
			listed = append(listed, session)
		}
	}
	return listed, nil
}

// ListSessions opens a live view of Sessions. Every change to the owner's
// sessions re-delivers the full snapshot until the subscription is closed.
func (s *Service) ListSessions(ctx context.Context, ownerID string) (*live.Subscription[[]chat.Session], error) {
	if ownerID == "" {
		return nil, auth.ErrAuthRequired
	}

	return live.Watch(ctx, s.feed, store.SessionsTopic(ownerID), func(ctx context.Context) ([]chat.Session, error) {
		return s.Sessions(ctx, ownerID)
	})
}

// GetSession returns one session of ownerID.
func (s *Service) GetSession(ctx context.Context, ownerID, id string) (chat.Session, error) {
	if ownerID == "" {
		return chat.Session{}, auth.ErrAuthRequired
	}

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return chat.Session{}, MapStoreError(err)
	}
	if session.OwnerID != ownerID {
		return chat.Session{}, ErrNotOwner
	}
	return session, nil
}

// SetTitleAndPreview overwrites both fields and bumps UpdatedAt.
// Ownership is enforced by the store.
func (s *Service) SetTitleAndPreview(ctx context.Context, ownerID, id, title, preview string) (chat.Session, error) {
	if ownerID == "" {
		return chat.Session{}, auth.ErrAuthRequired
	}

	session, err := s.store.UpdateSessionMeta(ctx, ownerID, id, title, preview)
	if err != nil {
		return chat.Session{}, MapStoreError(err)
	}
	return session, nil
}

// MapStoreError translates store sentinels into registry errors.
func MapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, store.ErrNotOwner):
		return ErrNotOwner
	default:
		return err
	}
}
