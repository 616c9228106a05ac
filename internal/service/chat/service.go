// Package chat runs message exchanges: user message, session metadata,
// assistant reply, in that order.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/live"
	"github.com/scaipass/ai-pass/backend/internal/model/chat"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	"github.com/scaipass/ai-pass/backend/internal/service/ai"
	"github.com/scaipass/ai-pass/backend/internal/service/session"
	"github.com/scaipass/ai-pass/backend/internal/store"
)

var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrBusy         = errors.New("an exchange is already running for this view")
	ErrShuttingDown = errors.New("chat service is shutting down")
)

// Replier produces the assistant's answer to one user message.
type Replier interface {
	RequestAssistantReply(ctx context.Context, text string) ai.Reply
}

// Result is the outcome of CompleteExchange.
type Result struct {
	User      chat.Message `json:"user"`
	Assistant chat.Message `json:"assistant"`
	Outcome   string       `json:"outcome"`
}

// Service encapsulates the message exchange.
type Service struct {
	store    store.MessageStore
	sessions *session.Service
	replier  Replier
	feed     live.Feed
	busy     *cache.Cache
	log      logger.ILogger

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

func NewService(st store.MessageStore, sessions *session.Service, replier Replier, feed live.Feed, log logger.ILogger) *Service {
	return &Service{
		store:    st,
		sessions: sessions,
		replier:  replier,
		feed:     feed,
		// entries are removed explicitly when an exchange ends
		busy: cache.New(cache.NoExpiration, 0),
		log:  log,
	}
}

// SendUserMessage appends text as a user message. When it is the first
// message of the session the session title and preview are derived from it;
// that update is best-effort and never undoes the append.
func (s *Service) SendUserMessage(ctx context.Context, ownerID, sessionID, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	if ownerID == "" {
		return chat.Message{}, auth.ErrAuthRequired
	}

	stored, first, err := s.store.AppendMessage(ctx, chat.Message{
		SessionID: sessionID,
		Type:      chat.MessageUser,
		Text:      text,
		AuthorID:  ownerID,
	})
	if err != nil {
		return chat.Message{}, session.MapStoreError(err)
	}

	if first {
		if _, err := s.sessions.SetTitleAndPreview(ctx, ownerID, sessionID, session.DeriveTitle(text), text); err != nil {
			s.log.Warn("Chat", "failed to set session title", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}
	return stored, nil
}

// RequestAssistantReply delegates to the generation adapter. It never fails.
func (s *Service) RequestAssistantReply(ctx context.Context, text string) ai.Reply {
	return s.replier.RequestAssistantReply(ctx, text)
}

// CompleteExchange appends the user message, obtains a reply and appends it.
// Only one exchange may run per (viewID, sessionID); a concurrent call gets
// ErrBusy without touching the store. The exchange is detached from ctx
// cancellation so a late reply is still appended after the caller leaves.
func (s *Service) CompleteExchange(ctx context.Context, viewID, ownerID, sessionID, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyMessage
	}
	if ownerID == "" {
		return Result{}, auth.ErrAuthRequired
	}

	key := busyKey(viewID, sessionID)
	if err := s.busy.Add(key, struct{}{}, cache.NoExpiration); err != nil {
		return Result{}, ErrBusy
	}
	defer s.busy.Delete(key)

	if !s.track() {
		return Result{}, ErrShuttingDown
	}
	defer s.inflight.Done()

	ctx = context.WithoutCancel(ctx)

	userMsg, err := s.SendUserMessage(ctx, ownerID, sessionID, text)
	if err != nil {
		return Result{}, err
	}

	reply := s.RequestAssistantReply(ctx, text)

	assistantMsg, _, err := s.store.AppendMessage(ctx, chat.Message{
		SessionID: sessionID,
		Type:      chat.MessageAssistant,
		Text:      reply.Text,
		AuthorID:  chat.AssistantAuthorID,
	})
	if err != nil {
		return Result{User: userMsg}, fmt.Errorf("append reply: %w", session.MapStoreError(err))
	}

	s.log.Info("Chat", "exchange completed", map[string]interface{}{
		"session_id": sessionID,
		"view_id":    viewID,
		"outcome":    reply.Outcome.String(),
	})
	return Result{User: userMsg, Assistant: assistantMsg, Outcome: reply.Outcome.String()}, nil
}

func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.inflight.Add(1)
	return true
}

// Drain stops accepting exchanges and waits for running ones to finish or
// for ctx to end. Call it before closing the store.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Draining reports whether Drain has been called.
func (s *Service) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

// Busy reports whether an exchange is running for (viewID, sessionID).
func (s *Service) Busy(viewID, sessionID string) bool {
	_, found := s.busy.Get(busyKey(viewID, sessionID))
	return found
}

// Messages returns the ordered log of a session owned by ownerID.
func (s *Service) Messages(ctx context.Context, ownerID, sessionID string) ([]chat.Message, error) {
	if _, err := s.sessions.GetSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, session.MapStoreError(err)
	}
	return messages, nil
}

// WatchMessages opens a live view of the session log.
func (s *Service) WatchMessages(ctx context.Context, ownerID, sessionID string) (*live.Subscription[[]chat.Message], error) {
	if _, err := s.sessions.GetSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}

	return live.Watch(ctx, s.feed, store.MessagesTopic(sessionID), func(ctx context.Context) ([]chat.Message, error) {
		messages, err := s.store.ListMessages(ctx, sessionID)
		if err != nil {
			return nil, session.MapStoreError(err)
		}
		return messages, nil
	})
}

func busyKey(viewID, sessionID string) string {
	return viewID + "/" + sessionID
}
