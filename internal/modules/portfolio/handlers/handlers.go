// Package handlers provides HTTP handlers for portfolio reads.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests. Mutations only flow through the
// chat pipeline; these endpoints are read-only.
type Handler struct {
	users  portfolio.Store
	guests portfolio.Store
	log    zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(users, guests portfolio.Store, log zerolog.Logger) *Handler {
	return &Handler{
		users:  users,
		guests: guests,
		log:    log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetPortfolio returns the owner's resolved portfolio with positions
// and total value. Query params: userId or sessionId, plus optional name.
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	sessionID := r.URL.Query().Get("sessionId")
	name := r.URL.Query().Get("name")

	var store portfolio.Store
	var ownerKey string
	switch {
	case userID != "":
		store, ownerKey = h.users, userID
	case sessionID != "":
		store, ownerKey = h.guests, sessionID
	default:
		h.writeError(w, http.StatusBadRequest, "userId or sessionId is required")
		return
	}

	resolved, err := store.ResolvePortfolio(ownerKey, name)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	loaded, err := store.ListPositions(ownerKey, resolved.Portfolio.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := map[string]interface{}{
		"portfolio": loaded,
	}
	if resolved.FallbackNotice != "" {
		response["fallbackNotice"] = resolved.FallbackNotice
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetPositions returns only the position rows for the owner's
// resolved portfolio. Same query params as HandleGetPortfolio.
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	sessionID := r.URL.Query().Get("sessionId")
	name := r.URL.Query().Get("name")

	var store portfolio.Store
	var ownerKey string
	switch {
	case userID != "":
		store, ownerKey = h.users, userID
	case sessionID != "":
		store, ownerKey = h.guests, sessionID
	default:
		h.writeError(w, http.StatusBadRequest, "userId or sessionId is required")
		return
	}

	resolved, err := store.ResolvePortfolio(ownerKey, name)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	loaded, err := store.ListPositions(ownerKey, resolved.Portfolio.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": loaded.Positions,
		"count":     len(loaded.Positions),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
