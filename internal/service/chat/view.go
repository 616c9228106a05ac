package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/live"
	"github.com/scaipass/ai-pass/backend/internal/model/chat"
)

var (
	ErrViewFailed = errors.New("chat view failed")
	ErrViewClosed = errors.New("chat view closed")
)

// ViewState is the send state of one open view.
type ViewState int

const (
	ViewIdle ViewState = iota
	ViewSending
	ViewFailed
)

func (s ViewState) String() string {
	switch s {
	case ViewIdle:
		return "idle"
	case ViewSending:
		return "sending"
	case ViewFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// View is one open window onto a session: a live message log plus a send
// action guarded by its own busy flag. A view that fails stays failed;
// open a new one to recover.
type View struct {
	id        string
	svc       *Service
	ownerID   string
	sessionID string

	updates chan []chat.Message
	stop    chan struct{}
	done    chan struct{}
	sub     *live.Subscription[[]chat.Message]

	mu       sync.Mutex
	state    ViewState
	err      error
	closed   bool
	messages []chat.Message
}

// OpenView subscribes to the session log on behalf of ownerID. Failures
// are not returned; they put the view into ViewFailed.
func (s *Service) OpenView(ctx context.Context, ownerID, sessionID string) *View {
	v := &View{
		id:        uuid.NewString(),
		svc:       s,
		ownerID:   ownerID,
		sessionID: sessionID,
		updates:   make(chan []chat.Message),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if ownerID == "" {
		v.fail(auth.ErrAuthRequired)
		v.finish()
		return v
	}

	sub, err := s.WatchMessages(ctx, ownerID, sessionID)
	if err != nil {
		v.fail(err)
		v.finish()
		return v
	}
	v.sub = sub
	go v.forward()
	return v
}

func (v *View) forward() {
	defer v.finish()

	for snapshot := range v.sub.Updates() {
		v.mu.Lock()
		v.messages = snapshot
		v.mu.Unlock()

		select {
		case v.updates <- snapshot:
		case <-v.stop:
			return
		}
	}

	if err := v.sub.Err(); err != nil {
		v.fail(err)
		v.svc.log.Warn("Chat", "view subscription failed", map[string]interface{}{
			"view_id":    v.id,
			"session_id": v.sessionID,
			"error":      err.Error(),
		})
	}
}

func (v *View) finish() {
	close(v.updates)
	close(v.done)
}

func (v *View) fail(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = ViewFailed
	v.err = err
}

// ID identifies the view; it scopes the exchange busy flag.
func (v *View) ID() string { return v.id }

func (v *View) SessionID() string { return v.sessionID }

func (v *View) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err returns the cause of ViewFailed.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Messages returns the most recently delivered log.
func (v *View) Messages() []chat.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]chat.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Updates delivers log snapshots. It is closed when the view closes or fails.
func (v *View) Updates() <-chan []chat.Message {
	return v.updates
}

// Done is closed once the view stops delivering.
func (v *View) Done() <-chan struct{} {
	return v.done
}

// Send runs one exchange from this view.
func (v *View) Send(ctx context.Context, text string) (Result, error) {
	v.mu.Lock()
	switch {
	case v.closed:
		v.mu.Unlock()
		return Result{}, ErrViewClosed
	case v.state == ViewFailed:
		err := v.err
		v.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %v", ErrViewFailed, err)
	case strings.TrimSpace(text) == "":
		v.mu.Unlock()
		return Result{}, ErrEmptyMessage
	case v.state == ViewSending:
		v.mu.Unlock()
		return Result{}, ErrBusy
	}
	v.state = ViewSending
	v.mu.Unlock()

	res, err := v.svc.CompleteExchange(ctx, v.id, v.ownerID, v.sessionID, text)

	v.mu.Lock()
	if v.state == ViewSending {
		v.state = ViewIdle
	}
	v.mu.Unlock()
	return res, err
}

// Close detaches the live log. An exchange already running is not
// cancelled. No snapshot is delivered after Close returns.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		<-v.done
		return
	}
	v.closed = true
	v.mu.Unlock()

	close(v.stop)
	if v.sub != nil {
		v.sub.Close()
	}
	<-v.done
}
