// Package stream pushes live snapshots to browsers over Server-Sent Events.
package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/handler/httperr"
	"github.com/scaipass/ai-pass/backend/internal/live"
	model "github.com/scaipass/ai-pass/backend/internal/model/application"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	applicationService "github.com/scaipass/ai-pass/backend/internal/service/application"
	chatService "github.com/scaipass/ai-pass/backend/internal/service/chat"
	sessionService "github.com/scaipass/ai-pass/backend/internal/service/session"
	"github.com/scaipass/ai-pass/backend/pkg/utils"
)

// HeartbeatInterval is how often an idle stream sends a keep-alive comment.
var HeartbeatInterval = 15 * time.Second

// Handler manages live snapshot streams.
type Handler struct {
	sessions     *sessionService.Service
	chat         *chatService.Service
	applications *applicationService.Service
	log          logger.ILogger
}

func New(sessions *sessionService.Service, chat *chatService.Service, applications *applicationService.Service, log logger.ILogger) *Handler {
	return &Handler{
		sessions:     sessions,
		chat:         chat,
		applications: applications,
		log:          log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/stream", h.handleSessions)
	r.Get("/sessions/{sessionID}/messages/stream", h.handleMessages)
}

// RegisterAdminRoutes expects r to be restricted to administrators.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/admin/applications/stream", h.handleApplications)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	sub, err := h.sessions.ListSessions(r.Context(), ownerID)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	serve(w, r, sub, "sessions", h.log)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	sub, err := h.chat.WatchMessages(r.Context(), ownerID, chi.URLParam(r, "sessionID"))
	if err != nil {
		httperr.Write(w, err)
		return
	}
	serve(w, r, sub, "messages", h.log)
}

func (h *Handler) handleApplications(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))

	sub, err := h.applications.Watch(r.Context(), status)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	serve(w, r, sub, "applications", h.log)
}

// serve writes every snapshot of sub as an SSE event until the client goes
// away or the subscription ends. A failed subscription is reported with an
// "error" event before the stream closes.
func serve[T any](w http.ResponseWriter, r *http.Request, sub *live.Subscription[T], event string, log logger.ILogger) {
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					log.Warn("Stream", "subscription ended", map[string]interface{}{
						"event": event,
						"error": err.Error(),
					})
					utils.SendSSEEvent(w, flusher, "error", map[string]string{"message": err.Error()})
				}
				return
			}
			if err := utils.SendSSEEvent(w, flusher, event, snapshot); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
