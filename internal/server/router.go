package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/memoria-ai/memoria/internal/api"
	"github.com/memoria-ai/memoria/internal/api/handlers"
	"github.com/memoria-ai/memoria/internal/api/middleware"
)

type RouterConfig struct {
	ServiceToken    string
	MaxBodyBytes    int64
	BasesHandler    *handlers.BasesHandler
	IngestHandler   *handlers.IngestHandler
	QueryHandler    *handlers.QueryHandler
	CondenseHandler *handlers.CondenseHandler
	LogsHandler     *handlers.LogsHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 5 * 1024 * 1024
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBody))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.ServiceToken))

		r.Route("/bases", func(r chi.Router) {
			r.Post("/", cfg.BasesHandler.Create)
			r.Get("/", cfg.BasesHandler.List)
			r.Get("/{id}", cfg.BasesHandler.Get)
			r.Delete("/{id}", cfg.BasesHandler.Delete)
			r.Post("/{id}/toggle", cfg.BasesHandler.Toggle)
			r.Post("/{id}/rename", cfg.BasesHandler.Rename)
			r.Post("/{id}/move", cfg.BasesHandler.Move)
		})

		r.Post("/ingest", cfg.IngestHandler.Ingest)
		r.Get("/jobs/{id}", cfg.IngestHandler.JobStatus)

		r.Post("/query", cfg.QueryHandler.Query)
		r.Get("/logs", cfg.LogsHandler.List)

		r.Post("/condense", cfg.CondenseHandler.Trigger)
		r.Get("/condense/{chat_id}", cfg.CondenseHandler.Progress)

		r.Post("/session/lock", cfg.CondenseHandler.LockSession)
		r.Delete("/session/lock", cfg.CondenseHandler.UnlockSession)
	})

	return r
}
