package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantive/chatfolio/internal/modules/portfolio"
)

func setupTestRouter(t *testing.T) (*chi.Mux, *portfolio.SessionStore) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	sessions := portfolio.NewSessionStore(log)
	r := chi.NewRouter()
	NewHandler(sessions, sessions, log).RegisterRoutes(r)
	return r, sessions
}

func seedPosition(t *testing.T, store *portfolio.SessionStore, sessionID string) string {
	t.Helper()
	resolved, err := store.ResolvePortfolio(sessionID, "")
	require.NoError(t, err)

	avgCost := 150.0
	outcome, err := store.AddPositions(sessionID, resolved.Portfolio.ID, []portfolio.Position{
		{Symbol: "AAPL", Quantity: 10, AvgCost: &avgCost, AssetType: "stock"},
	})
	require.NoError(t, err)
	require.Empty(t, outcome.Errors)
	return resolved.Portfolio.ID
}

func getJSON(t *testing.T, r http.Handler, target string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHandleGetPortfolio(t *testing.T) {
	r, store := setupTestRouter(t)
	seedPosition(t, store, "session-1")

	code, body := getJSON(t, r, "/portfolio?sessionId=session-1")

	require.Equal(t, http.StatusOK, code)
	p, ok := body["portfolio"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Guest Portfolio", p["name"])
	assert.InDelta(t, 1500.0, p["totalValue"], 0.001)
	assert.Len(t, p["positions"], 1)
	assert.NotContains(t, body, "fallbackNotice")
}

func TestHandleGetPortfolio_UnknownNameFallsBack(t *testing.T) {
	r, store := setupTestRouter(t)
	seedPosition(t, store, "session-1")

	code, body := getJSON(t, r, "/portfolio?sessionId=session-1&name=retirement")

	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["fallbackNotice"], "retirement")
}

func TestHandleGetPortfolio_MissingOwner(t *testing.T) {
	r, _ := setupTestRouter(t)

	code, body := getJSON(t, r, "/portfolio")

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "userId or sessionId is required")
}

func TestHandleGetPositions(t *testing.T) {
	r, store := setupTestRouter(t)
	seedPosition(t, store, "session-1")

	code, body := getJSON(t, r, "/portfolio/positions?sessionId=session-1")

	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
	positions, ok := body["positions"].([]interface{})
	require.True(t, ok)
	require.Len(t, positions, 1)
	first := positions[0].(map[string]interface{})
	assert.Equal(t, "AAPL", first["symbol"])
}

func TestHandleGetPositions_EmptyPortfolio(t *testing.T) {
	r, _ := setupTestRouter(t)

	code, body := getJSON(t, r, "/portfolio/positions?sessionId=fresh-session")

	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["count"])
}
