// Package handlers provides HTTP handlers for the chat triage pipeline.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/domain"
	"github.com/quantive/chatfolio/internal/modules/triage"
)

// QueryRequest is the inbound chat payload. Exactly one of userId or
// sessionId identifies the owner.
type QueryRequest struct {
	Query     string `json:"query"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	GuestMode bool   `json:"isGuestMode,omitempty"`
}

// Handler handles chat triage HTTP requests
type Handler struct {
	processor *triage.Processor
	log       zerolog.Logger
}

// NewHandler creates a new triage handler
func NewHandler(processor *triage.Processor, log zerolog.Logger) *Handler {
	return &Handler{
		processor: processor,
		log:       log.With().Str("handler", "triage").Logger(),
	}
}

// HandleQuery processes one chat query and returns the structured result.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	var owner domain.OwnerRef
	if req.GuestMode {
		owner = domain.NewGuestOwner(req.SessionID)
	} else {
		owner = domain.NewUserOwner(req.UserID)
	}
	if err := owner.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.processor.ProcessQuery(r.Context(), req.Query, owner)
	h.writeJSON(w, http.StatusOK, result)
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
