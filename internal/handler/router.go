package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/handler/application"
	"github.com/scaipass/ai-pass/backend/internal/handler/chat"
	"github.com/scaipass/ai-pass/backend/internal/handler/session"
	"github.com/scaipass/ai-pass/backend/internal/handler/stream"
	middlewarePkg "github.com/scaipass/ai-pass/backend/internal/middleware"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	aiService "github.com/scaipass/ai-pass/backend/internal/service/ai"
	applicationService "github.com/scaipass/ai-pass/backend/internal/service/application"
	chatService "github.com/scaipass/ai-pass/backend/internal/service/chat"
	sessionService "github.com/scaipass/ai-pass/backend/internal/service/session"
	"github.com/scaipass/ai-pass/backend/pkg/utils"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Auth           *auth.Service
	Sessions       *sessionService.Service
	Chat           *chatService.Service
	Applications   *applicationService.Service
	AI             *aiService.Service
	AllowedOrigins []string
	Log            logger.ILogger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"aiEnabled": deps.AI != nil && deps.AI.Enabled(),
		})
	})

	sessionHandler := session.New(deps.Sessions)
	chatHandler := chat.New(deps.Chat, deps.AllowedOrigins, deps.Log)
	streamHandler := stream.New(deps.Sessions, deps.Chat, deps.Applications, deps.Log)
	applicationHandler := application.New(deps.Applications)

	r.Route("/api", func(api chi.Router) {
		api.Use(deps.Auth.Middleware)

		// static segments win over {sessionID}, so /sessions/stream is safe here
		streamHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		applicationHandler.RegisterRoutes(api)

		api.Group(func(admin chi.Router) {
			admin.Use(auth.RequireAdmin)
			applicationHandler.RegisterAdminRoutes(admin)
			streamHandler.RegisterAdminRoutes(admin)
		})
	})

	return r
}
