package chat_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/live"
	"github.com/scaipass/ai-pass/backend/internal/model/chat"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	"github.com/scaipass/ai-pass/backend/internal/service/ai"
	chatService "github.com/scaipass/ai-pass/backend/internal/service/chat"
	"github.com/scaipass/ai-pass/backend/internal/service/session"
	"github.com/scaipass/ai-pass/backend/internal/store"
	"github.com/scaipass/ai-pass/backend/internal/store/memory"
)

type stubReplier struct {
	text    string
	outcome ai.Outcome
	gate    chan struct{}
	calls   atomic.Int32
}

func (r *stubReplier) RequestAssistantReply(_ context.Context, _ string) ai.Reply {
	r.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	return ai.Reply{Text: r.text, Outcome: r.outcome}
}

// countingStore counts writes that reach the underlying store.
type countingStore struct {
	store.Store
	appends     atomic.Int32
	metaUpdates atomic.Int32
	failMeta    bool
}

func (c *countingStore) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, bool, error) {
	c.appends.Add(1)
	return c.Store.AppendMessage(ctx, msg)
}

func (c *countingStore) UpdateSessionMeta(ctx context.Context, ownerID, id, title, preview string) (chat.Session, error) {
	c.metaUpdates.Add(1)
	if c.failMeta {
		return chat.Session{}, errors.New("metadata write rejected")
	}
	return c.Store.UpdateSessionMeta(ctx, ownerID, id, title, preview)
}

type fixture struct {
	chat     *chatService.Service
	sessions *session.Service
	store    *countingStore
	feed     *live.MemoryFeed
	replier  *stubReplier
}

func newFixture(t *testing.T, replier *stubReplier) *fixture {
	t.Helper()
	feed := live.NewMemoryFeed()
	t.Cleanup(func() { _ = feed.Close() })

	counting := &countingStore{Store: memory.New()}
	st := store.WithFeed(counting, feed, logger.NewNop())
	sessions := session.NewService(st, feed, logger.NewNop())
	return &fixture{
		chat:     chatService.NewService(st, sessions, replier, feed, logger.NewNop()),
		sessions: sessions,
		store:    counting,
		feed:     feed,
		replier:  replier,
	}
}

func TestCompleteExchangeEndToEnd(t *testing.T) {
	f := newFixture(t, &stubReplier{text: "I'm well!", outcome: ai.Success})
	ctx := context.Background()

	created, err := f.sessions.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, created.FirstMessage)

	listed, err := f.sessions.Sessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, listed)

	res, err := f.chat.CompleteExchange(ctx, "view-1", "user-1", created.ID, "Hello there, how are you?")
	require.NoError(t, err)
	assert.Equal(t, ai.Success.String(), res.Outcome)

	updated, err := f.sessions.GetSession(ctx, "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello there, how are you?", updated.Title)
	assert.Equal(t, "Hello there, how are you?", updated.FirstMessage)
	assert.True(t, updated.HasMessages)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	listed, err = f.sessions.Sessions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	messages, err := f.chat.Messages(ctx, "user-1", created.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chat.MessageUser, messages[0].Type)
	assert.Equal(t, "Hello there, how are you?", messages[0].Text)
	assert.Equal(t, "user-1", messages[0].AuthorID)
	assert.Equal(t, chat.MessageAssistant, messages[1].Type)
	assert.Equal(t, "I'm well!", messages[1].Text)
	assert.Equal(t, chat.AssistantAuthorID, messages[1].AuthorID)
	assert.False(t, messages[1].CreatedAt.Before(messages[0].CreatedAt))
}

func TestCompleteExchangeRejectsEmptyTextWithoutWrites(t *testing.T) {
	f := newFixture(t, &stubReplier{text: "unused"})
	ctx := context.Background()
	created, _ := f.sessions.CreateSession(ctx, "user-1")

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.chat.CompleteExchange(ctx, "view-1", "user-1", created.ID, text)
		assert.ErrorIs(t, err, chatService.ErrEmptyMessage)
	}
	assert.Zero(t, f.store.appends.Load())
	assert.Zero(t, f.store.metaUpdates.Load())
	assert.Zero(t, f.replier.calls.Load())
}

func TestCompleteExchangeRequiresOwner(t *testing.T) {
	f := newFixture(t, &stubReplier{text: "unused"})
	_, err := f.chat.CompleteExchange(context.Background(), "view-1", "", "s", "hi")
	assert.ErrorIs(t, err, auth.ErrAuthRequired)
	assert.Zero(t, f.store.appends.Load())
}

func TestCompleteExchangeUnknownSession(t *testing.T) {
	f := newFixture(t, &stubReplier{text: "unused"})
	_, err := f.chat.CompleteExchange(context.Background(), "view-1", "user-1", "missing", "hi")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Zero(t, f.replier.calls.Load())
}

func TestCompleteExchangeBusyFlag(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, &stubReplier{text: "done", gate: gate})
	ctx := context.Background()
	created, _ := f.sessions.CreateSession(ctx, "user-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.chat.CompleteExchange(ctx, "view-1", "user-1", created.ID, "first")
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return f.replier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.chat.Busy("view-1", created.ID))

	_, err := f.chat.CompleteExchange(ctx, "view-1", "user-1", created.ID, "second")
	assert.ErrorIs(t, err, chatService.ErrBusy)
	assert.Equal(t, int32(1), f.store.appends.Load(), "only the first user message was appended")

	close(gate)
	wg.Wait()
	assert.False(t, f.chat.Busy("view-1", created.ID))

	_, err = f.chat.CompleteExchange(ctx, "view-1", "user-1", created.ID, "third")
	require.NoError(t, err)
}

func TestCompleteExchangeOtherViewsAreNotBlocked(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, &stubReplier{text: "done", gate: gate})
	ctx := context.Background()
	created, _ := f.sessions.CreateSession(ctx, "user-1")

	var wg sync.WaitGroup
	for _, view := range []string{"tab-a", "tab-b"} {
		wg.Add(1)
		go func(view string) {
			defer wg.Done()
			_, err := f.chat.CompleteExchange(ctx, view, "user-1", created.ID, "from "+view)
			assert.NoError(t, err)
		}(view)
	}

	require.Eventually(t, func() bool { return f.replier.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	messages, err := f.chat.Messages(ctx, "user-1", created.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}

func TestCompleteExchangeKeepsFallbackReply(t *testing.T) {
	fallback := ai.FallbackText(ai.QuotaExceeded)
	f := newFixture(t, &stubReplier{text: fallback, outcome: ai.QuotaExceeded})
	ctx := context.Background()
	created, _ := f.sessions.CreateSession(ctx, "user-1")

	res, err := f.chat.CompleteExchange(ctx, "view-1", "user-1", created.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, fallback, res.Assistant.Text)
	assert.Equal(t, ai.QuotaExceeded.String(), res.Outcome)
}

func TestSendUserMessageMetadataFailureIsNotRolledBack(t *testing.T) {
	f := newFixture(t, &stubReplier{text: "ok"})
	f.store.failMeta = true
	ctx := context.Background()
	created, _ := f.sessions.CreateSession(ctx, "user-1")

	msg, err := f.chat.SendUserMessage(ctx, "user-1", created.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, int32(1), f.store.metaUpdates.Load())

	messages, err := f.chat.Messages(ctx, "user-1", created.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestSendUserMessageSetsTitleOnlyOnce(t *testing.T) {
	f := newFixture(t, &stubReplier{text: "ok"})
	ctx := context.Background()
	created, _ := f.sessions.CreateSession(ctx, "user-1")

	_, err := f.chat.SendUserMessage(ctx, "user-1", created.ID, "first question")
	require.NoError(t, err)
	_, err = f.chat.SendUserMessage(ctx, "user-1", created.ID, "second question")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.store.metaUpdates.Load())
	got, _ := f.sessions.GetSession(ctx, "user-1", created.ID)
	assert.Equal(t, "first question", got.Title)
}

func TestSendUserMessageForeignSession(t *testing.T) {
	f := newFixture(t, &stubReplier{text: "ok"})
	ctx := context.Background()
	created, _ := f.sessions.CreateSession(ctx, "user-1")

	_, err := f.chat.SendUserMessage(ctx, "user-2", created.ID, "hi")
	assert.ErrorIs(t, err, session.ErrNotOwner)
}

func TestExchangeSurvivesCallerCancellation(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, &stubReplier{text: "late reply", gate: gate})
	created, _ := f.sessions.CreateSession(context.Background(), "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.chat.CompleteExchange(ctx, "view-1", "user-1", created.ID, "hi")
		done <- err
	}()

	require.Eventually(t, func() bool { return f.replier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	close(gate)
	require.NoError(t, <-done)

	messages, err := f.chat.Messages(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "late reply", messages[1].Text)
}

func TestDrainWaitsForRunningExchange(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, &stubReplier{text: "late reply", gate: gate})
	ctx := context.Background()
	created, _ := f.sessions.CreateSession(ctx, "user-1")

	done := make(chan error, 1)
	go func() {
		_, err := f.chat.CompleteExchange(ctx, "view-1", "user-1", created.ID, "hi")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.replier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	drained := make(chan error, 1)
	go func() { drained <- f.chat.Drain(ctx) }()

	require.Eventually(t, f.chat.Draining, time.Second, 5*time.Millisecond)
	_, err := f.chat.CompleteExchange(ctx, "view-2", "user-1", created.ID, "too late")
	assert.ErrorIs(t, err, chatService.ErrShuttingDown)

	select {
	case <-drained:
		t.Fatal("drain returned while an exchange was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-done)
	require.NoError(t, <-drained)

	messages, err := f.chat.Messages(ctx, "user-1", created.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "late reply", messages[1].Text)
}

func TestDrainHonorsDeadline(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, &stubReplier{text: "slow", gate: gate})
	created, _ := f.sessions.CreateSession(context.Background(), "user-1")

	done := make(chan error, 1)
	go func() {
		_, err := f.chat.CompleteExchange(context.Background(), "view-1", "user-1", created.ID, "hi")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.replier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.chat.Drain(ctx), context.DeadlineExceeded)

	close(gate)
	require.NoError(t, <-done)
}

func TestWatchMessagesDeliversOrderedLog(t *testing.T) {
	f := newFixture(t, &stubReplier{text: "pong"})
	ctx := context.Background()
	created, _ := f.sessions.CreateSession(ctx, "user-1")

	sub, err := f.chat.WatchMessages(ctx, "user-1", created.ID)
	require.NoError(t, err)
	defer sub.Close()

	first := <-sub.Updates()
	assert.Empty(t, first)

	_, err = f.chat.CompleteExchange(ctx, "view-1", "user-1", created.ID, "ping")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case snap := <-sub.Updates():
			if len(snap) != 2 {
				return false
			}
			return snap[0].Type == chat.MessageUser && snap[1].Type == chat.MessageAssistant
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	_, err = f.chat.WatchMessages(ctx, "user-2", created.ID)
	assert.ErrorIs(t, err, session.ErrNotOwner)
}
