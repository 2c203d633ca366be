package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codenav-io/codenav/internal/adapter/ws"
)

// NewRouter assembles the API: navigation queries, server status, the
// event stream, and a health probe.
func NewRouter(h *Handlers, hub *ws.Hub, corsOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger)
	r.Use(SecurityHeaders)
	r.Use(CORS(corsOrigin))

	r.Get("/healthz", h.Health)
	r.Get("/ws", hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/lsp/hover", h.Hover)
		r.Post("/lsp/definition", h.Definition)
		r.Post("/lsp/references", h.References)
		r.Get("/lsp/status", h.Status)
	})

	return r
}
