package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/mindful/backend/internal/handler/admin"
	"github.com/zhouzirui/mindful/backend/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/mindful/backend/internal/middleware"
	sessionService "github.com/zhouzirui/mindful/backend/internal/service/session"
	"github.com/zhouzirui/mindful/backend/pkg/utils"
)

// Options carries the tunables the HTTP layer needs from configuration.
type Options struct {
	EvaluationInterval int
	AllowedOrigins     []string
}

// NewRouter wires HTTP routes to core services.
// replies and evaluator may be nil when no AI provider is configured.
func NewRouter(sessions *sessionService.Store, replies chat.ReplyGenerator, evaluator chat.Evaluator, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.AllowedOrigins))
	r.Use(middlewarePkg.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"aiEnabled":  replies != nil,
			"evaluation": evaluator != nil,
		})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	chatHandler := chat.New(sessions, replies, evaluator, chat.Config{
		EvaluationInterval: opts.EvaluationInterval,
		AllowedOrigins:     opts.AllowedOrigins,
	})
	adminHandler := admin.New(sessions)

	// 业务路由统一挂在 /api 下：POST /api/session/create、POST /api/session/message、
	// GET /api/session/{sessionID}/ws、/api/admin/sessions[/{sessionID}]。
	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		adminHandler.RegisterRoutes(api)
	})

	return r
}
