package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authHandler "github.com/skynetai/skynet/backend/internal/handler/auth"
	"github.com/skynetai/skynet/backend/internal/handler/chat"
	"github.com/skynetai/skynet/backend/internal/handler/summarizer"
	middlewarePkg "github.com/skynetai/skynet/backend/internal/middleware"
	authService "github.com/skynetai/skynet/backend/internal/service/auth"
	chatService "github.com/skynetai/skynet/backend/internal/service/chat"
	summarizerService "github.com/skynetai/skynet/backend/internal/service/summarizer"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

// Pinger is a dependency whose health /healthz reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Registry       *chatService.Registry
	Summarizer     *summarizerService.Service
	Auth           *authService.Service
	Verifier       authService.Verifier
	AllowOrigins   []string
	MaxUploadBytes int64
	Health         map[string]Pinger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowOrigins))
	r.Use(middlewarePkg.Auth(deps.Verifier, middlewarePkg.DefaultPublicPaths))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"Hello": "World"})
	})
	r.Get("/healthz", healthz(deps.Health))

	chat.New(deps.Registry).RegisterRoutes(r)
	summarizer.New(deps.Summarizer, deps.MaxUploadBytes).RegisterRoutes(r)
	if deps.Auth != nil {
		authHandler.New(deps.Auth).RegisterRoutes(r)
	}

	return r
}

func healthz(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				utils.GetLogger().Warn("health check failed", "dependency", name, "error", err)
				checks[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		result := utils.StatusSuccess
		if status != http.StatusOK {
			result = utils.StatusError
		}
		utils.RespondJSON(w, status, map[string]any{"status": result, "checks": checks})
	}
}
