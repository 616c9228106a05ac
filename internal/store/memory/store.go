// Package memory is an in-process implementation of store.Store, used by
// tests and single-instance development setups.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scaipass/ai-pass/backend/internal/model/application"
	"github.com/scaipass/ai-pass/backend/internal/model/chat"
	"github.com/scaipass/ai-pass/backend/internal/store"
)

// Store keeps sessions, messages and applications in maps guarded by one lock.
type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	sessions     map[string]chat.Session
	messages     map[string][]chat.Message
	applications map[string]application.Application
	appOrder     []string
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:          func() time.Time { return time.Now().UTC() },
		sessions:     make(map[string]chat.Session),
		messages:     make(map[string][]chat.Message),
		applications: make(map[string]application.Application),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreateSession(_ context.Context, ownerID string) (chat.Session, error) {
	now := s.now()
	session := chat.Session{
		ID:        uuid.NewString(),
		Title:     chat.DefaultSessionTitle,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

func (s *Store) GetSession(_ context.Context, id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, store.ErrNotFound
	}
	return session, nil
}

func (s *Store) ListSessions(_ context.Context, ownerID string) ([]chat.Session, error) {
	s.mu.RLock()
	out := make([]chat.Session, 0)
	for _, session := range s.sessions {
		if session.OwnerID == ownerID {
			out = append(out, session)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) UpdateSessionMeta(_ context.Context, ownerID, id, title, preview string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, store.ErrNotFound
	}
	if session.OwnerID != ownerID {
		return chat.Session{}, store.ErrNotOwner
	}

	session.Title = title
	session.FirstMessage = preview
	session.UpdatedAt = latest(s.now(), session.UpdatedAt)
	s.sessions[id] = session
	return session, nil
}

func (s *Store) AppendMessage(_ context.Context, msg chat.Message) (chat.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[msg.SessionID]
	if !ok {
		return chat.Message{}, false, store.ErrNotFound
	}
	if msg.Type == chat.MessageUser && msg.AuthorID != session.OwnerID {
		return chat.Message{}, false, store.ErrNotOwner
	}

	log := s.messages[msg.SessionID]
	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now()
	if n := len(log); n > 0 {
		msg.CreatedAt = latest(msg.CreatedAt, log[n-1].CreatedAt)
	}
	s.messages[msg.SessionID] = append(log, msg)

	first := false
	if msg.Type == chat.MessageUser && !session.HasMessages {
		session.HasMessages = true
		s.sessions[session.ID] = session
		first = true
	}
	return msg, first, nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *Store) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	app.ID = uuid.NewString()
	app.CreatedAt = s.now()

	s.mu.Lock()
	s.applications[app.ID] = app
	s.appOrder = append(s.appOrder, app.ID)
	s.mu.Unlock()

	return app, nil
}

func (s *Store) GetApplication(_ context.Context, id string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[id]
	if !ok {
		return application.Application{}, store.ErrNotFound
	}
	return app, nil
}

func (s *Store) ListApplications(_ context.Context, filter store.ApplicationFilter) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]application.Application, 0)
	for _, id := range s.appOrder {
		app := s.applications[id]
		if filter.UserID != "" && app.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		out = append(out, app)
	}
	return out, nil
}

func (s *Store) UpdateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.applications[app.ID]
	if !ok {
		return application.Application{}, store.ErrNotFound
	}
	if existing.Status != application.StatusPending {
		return application.Application{}, store.ErrNotPending
	}
	existing.Status = app.Status
	existing.ReviewerID = app.ReviewerID
	existing.ReviewNote = app.ReviewNote
	existing.ReviewedAt = app.ReviewedAt
	s.applications[app.ID] = existing
	return existing, nil
}

func (s *Store) Close() error { return nil }

func latest(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
