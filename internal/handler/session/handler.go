package session

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/handler/httperr"
	sessionService "github.com/scaipass/ai-pass/backend/internal/service/session"
	"github.com/scaipass/ai-pass/backend/pkg/utils"
)

// Handler exposes the session registry over HTTP.
type Handler struct {
	sessions *sessionService.Service
}

func New(sessions *sessionService.Service) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Put("/sessions/{sessionID}/meta", h.handleSetMeta)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), ownerID)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	sessions, err := h.sessions.Sessions(r.Context(), ownerID)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), ownerID, chi.URLParam(r, "sessionID"))
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleSetMeta overwrites title and preview. A missing title is derived
// from the preview.
func (h *Handler) handleSetMeta(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title        string `json:"title"`
		FirstMessage string `json:"firstMessage"`
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

	if strings.TrimSpace(payload.FirstMessage) == "" {
		utils.RespondError(w, http.StatusBadRequest, "firstMessage is required")
		return
	}
	title := payload.Title
	if strings.TrimSpace(title) == "" {
		title = sessionService.DeriveTitle(payload.FirstMessage)
	}

	session, err := h.sessions.SetTitleAndPreview(r.Context(), ownerID, chi.URLParam(r, "sessionID"), title, payload.FirstMessage)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}
