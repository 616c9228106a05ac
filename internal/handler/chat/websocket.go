package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	chatService "github.com/scaipass/ai-pass/backend/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	ViewID    string      `json:"viewId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn serialises writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg outgoingMessage) error {
	msg.Timestamp = time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) sendError(sessionID, message string) error {
	return c.send(outgoingMessage{
		Type:      "error",
		SessionID: sessionID,
		Data:      map[string]string{"message": message},
	})
}

// handleWebSocket opens a chat view for the connection. The view pushes
// every log snapshot; the client sends {"type":"send","text":"..."}.
// A view that cannot be opened reports an error frame and closes.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	// a missing principal is reported on the socket as a failed view
	ownerID, _ := auth.OwnerID(r.Context())

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket", "upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	view := h.chatSvc.OpenView(ctx, ownerID, sessionID)
	defer view.Close()

	h.log.Info("WebSocket", "view opened", map[string]interface{}{
		"session_id": sessionID,
		"view_id":    view.ID(),
		"state":      view.State().String(),
	})

	raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.pushSnapshots(ctx, conn, view)
	}()
	go h.pingLoop(ctx, conn)

	var sends sync.WaitGroup
	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("WebSocket", "read error", map[string]interface{}{"error": err.Error()})
			}
			break
		}
		raw.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case "send":
			sends.Add(1)
			go func(text string) {
				defer sends.Done()
				h.send(ctx, conn, view, text)
			}(msg.Text)
		default:
			conn.sendError(sessionID, "unsupported message type: "+msg.Type)
		}
	}

	cancel()
	view.Close()
	<-writerDone
	sends.Wait()
}

func (h *Handler) pushSnapshots(ctx context.Context, conn *wsConn, view *chatService.View) {
	for snapshot := range view.Updates() {
		if err := conn.send(outgoingMessage{
			Type:      "messages",
			SessionID: view.SessionID(),
			ViewID:    view.ID(),
			Data:      snapshot,
		}); err != nil {
			return
		}
	}

	if view.State() != chatService.ViewFailed {
		return
	}
	message := "view failed"
	if err := view.Err(); err != nil {
		message = err.Error()
	}
	conn.sendError(view.SessionID(), message)

	conn.mu.Lock()
	conn.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, truncateReason(message)),
		time.Now().Add(writeWait))
	conn.mu.Unlock()
	// unblocks the read loop
	conn.conn.Close()
}

func (h *Handler) send(ctx context.Context, conn *wsConn, view *chatService.View, text string) {
	result, err := view.Send(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		conn.sendError(view.SessionID(), err.Error())
		return
	}

	conn.send(outgoingMessage{
		Type:      "sent",
		SessionID: view.SessionID(),
		ViewID:    view.ID(),
		Data:      result,
	})
}

func (h *Handler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

// close reasons are limited to 123 bytes
func truncateReason(s string) string {
	const max = 123
	if len(s) <= max {
		return s
	}
	return s[:max]
}
