// Package api serves the fitted model, diagnostics and descriptive
// statistics as read-only JSON.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins is the local document renderer's dev server
var DefaultAllowedOrigins = []string{"http://localhost:5173"}

// NewRouter wires the routes. An empty origin list falls back to
// DefaultAllowedOrigins.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", h.GetSummary)
		r.Get("/diagnostics", h.GetDiagnostics)
		r.Get("/descriptives", h.GetDescriptives)
		r.Get("/trace/{param}", h.GetTrace)
	})
	return r
}
