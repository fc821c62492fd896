package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all triage routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Post("/query", h.HandleQuery) // Process one chat query
	})
}
