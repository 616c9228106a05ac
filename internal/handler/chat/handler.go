package chat

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/handler/httperr"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	chatService "github.com/scaipass/ai-pass/backend/internal/service/chat"
	"github.com/scaipass/ai-pass/backend/pkg/utils"
)

// ViewIDHeader names the client view a send originates from. Sends from
// the same view are serialised; different views may run concurrently.
const ViewIDHeader = "X-View-ID"

// Handler serves message routes and the WebSocket view.
type Handler struct {
	chatSvc  *chatService.Service
	log      logger.ILogger
	upgrader websocket.Upgrader
}

// New builds a Handler whose upgrader accepts allowedOrigins.
func New(chatSvc *chatService.Service, allowedOrigins []string, log logger.ILogger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the message and WebSocket routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
	r.Post("/sessions/{sessionID}/messages", h.handleCompleteExchange)
	r.Get("/ws/sessions/{sessionID}", h.handleWebSocket)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	messages, err := h.chatSvc.Messages(r.Context(), ownerID, chi.URLParam(r, "sessionID"))
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleCompleteExchange stores the user message and the generated reply.
func (h *Handler) handleCompleteExchange(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	viewID := strings.TrimSpace(r.Header.Get(ViewIDHeader))
	if viewID == "" {
		viewID = ownerID
	}

	result, err := h.chatSvc.CompleteExchange(r.Context(), viewID, ownerID, chi.URLParam(r, "sessionID"), payload.Text)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, result)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
