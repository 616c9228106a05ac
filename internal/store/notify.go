package store

import (
	"context"

	"github.com/scaipass/ai-pass/backend/internal/live"
	"github.com/scaipass/ai-pass/backend/internal/model/application"
	"github.com/scaipass/ai-pass/backend/internal/model/chat"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
)

// SessionsTopic carries changes to the session list of one owner.
func SessionsTopic(ownerID string) string { return "sessions." + ownerID }

// MessagesTopic carries changes to the log of one session.
func MessagesTopic(sessionID string) string { return "messages." + sessionID }

// ApplicationsTopic carries changes to any tier-upgrade application.
const ApplicationsTopic = "applications"

// WithFeed wraps st so that every successful write publishes the matching
// topic on feed. Publish failures are logged; the write itself stands.
func WithFeed(st Store, feed live.Feed, log logger.ILogger) Store {
	return &notifyingStore{Store: st, feed: feed, log: log}
}

type notifyingStore struct {
	Store
	feed live.Feed
	log  logger.ILogger
}

func (s *notifyingStore) publish(ctx context.Context, topic string) {
	if err := s.feed.Publish(context.WithoutCancel(ctx), topic); err != nil {
		s.log.Warn("Store", "change notification failed", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
	}
}

func (s *notifyingStore) CreateSession(ctx context.Context, ownerID string) (chat.Session, error) {
	session, err := s.Store.CreateSession(ctx, ownerID)
	if err != nil {
		return session, err
	}
	s.publish(ctx, SessionsTopic(session.OwnerID))
	return session, nil
}

func (s *notifyingStore) UpdateSessionMeta(ctx context.Context, ownerID, id, title, preview string) (chat.Session, error) {
	session, err := s.Store.UpdateSessionMeta(ctx, ownerID, id, title, preview)
	if err != nil {
		return session, err
	}
	s.publish(ctx, SessionsTopic(session.OwnerID))
	return session, nil
}

func (s *notifyingStore) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, bool, error) {
	stored, first, err := s.Store.AppendMessage(ctx, msg)
	if err != nil {
		return stored, first, err
	}
	s.publish(ctx, MessagesTopic(stored.SessionID))
	if first {
		s.publish(ctx, SessionsTopic(stored.AuthorID))
	}
	return stored, first, nil
}

func (s *notifyingStore) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	created, err := s.Store.CreateApplication(ctx, app)
	if err != nil {
		return created, err
	}
	s.publish(ctx, ApplicationsTopic)
	return created, nil
}

func (s *notifyingStore) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	updated, err := s.Store.UpdateApplication(ctx, app)
	if err != nil {
		return updated, err
	}
	s.publish(ctx, ApplicationsTopic)
	return updated, nil
}
