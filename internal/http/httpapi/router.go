package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"toonbot/internal/http/handlers"
	"toonbot/internal/infra"
	"toonbot/internal/middleware"
)

// NewRouter wires the ops endpoints.
func NewRouter(app *handlers.App, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	// Middlewares dasar
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)

	r.Get("/healthz", app.Health)
	r.Get("/status", app.Status)

	return r
}
