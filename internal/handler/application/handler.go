package application

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/handler/httperr"
	model "github.com/scaipass/ai-pass/backend/internal/model/application"
	applicationService "github.com/scaipass/ai-pass/backend/internal/service/application"
	"github.com/scaipass/ai-pass/backend/pkg/utils"
)

// Handler serves tier-upgrade applications and their review queue.
type Handler struct {
	applications *applicationService.Service
}

func New(applications *applicationService.Service) *Handler {
	return &Handler{applications: applications}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/applications", h.handleSubmit)
	r.Get("/applications", h.handleListMine)
}

// RegisterAdminRoutes expects r to be restricted to administrators.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/admin/applications", h.handleList)
	r.Post("/admin/applications/{applicationID}/review", h.handleReview)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var form applicationService.Form
	if err := utils.DecodeJSON(r, &form); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	app, err := h.applications.Submit(r.Context(), ownerID, form)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, app)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	apps, err := h.applications.ListMine(r.Context(), ownerID)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, apps)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	apps, err := h.applications.List(r.Context(), model.Status(r.URL.Query().Get("status")))
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, apps)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Decision applicationService.Decision `json:"decision"`
		Note     string                      `json:"note"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reviewerID, err := auth.OwnerID(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}

	app, err := h.applications.Review(r.Context(), reviewerID, chi.URLParam(r, "applicationID"), payload.Decision, payload.Note)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, app)
}
