package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/quantive/chatfolio/internal/modules/analytics"
)

// TracesHandler exposes recorded triage traces over HTTP and websocket.
type TracesHandler struct {
	recorder *analytics.Recorder
	log      zerolog.Logger
}

// NewTracesHandler creates a traces handler
func NewTracesHandler(recorder *analytics.Recorder, log zerolog.Logger) *TracesHandler {
	return &TracesHandler{
		recorder: recorder,
		log:      log.With().Str("handler", "traces").Logger(),
	}
}

// HandleRecent returns the in-memory trace ring, newest first.
// GET /api/traces/recent
func (h *TracesHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	traces := h.recorder.Recent()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"traces": traces,
		"count":  len(traces),
	}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode traces")
	}
}

// HandleStream pushes finalized traces to the client as they are recorded.
// GET /api/traces/stream (websocket)
func (h *TracesHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The dashboard may be served from a different origin in development.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	traces, cancel := h.recorder.Subscribe()
	defer cancel()

	h.log.Debug().Msg("Trace stream subscriber connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client gone")
			return
		case trace, ok := <-traces:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "recorder closed")
				return
			}
			writeCtx, done := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, trace)
			done()
			if err != nil {
				h.log.Debug().Err(err).Msg("Trace stream subscriber dropped")
				return
			}
		}
	}
}
