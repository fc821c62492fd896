package portfolio

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantive/chatfolio/internal/domain"
)

func newTestSessionStore() *SessionStore {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewSessionStore(log)
}

func TestSessionStore_ResolveCreatesGuestPortfolio(t *testing.T) {
	s := newTestSessionStore()

	resolved, err := s.ResolvePortfolio("session-1", "")

	require.NoError(t, err)
	assert.Equal(t, "Guest Portfolio", resolved.Portfolio.Name)
	assert.NotEmpty(t, resolved.Portfolio.ID)
	assert.Equal(t, 1, s.SessionCount())

	again, err := s.ResolvePortfolio("session-1", "")
	require.NoError(t, err)
	assert.Equal(t, resolved.Portfolio.ID, again.Portfolio.ID)
	assert.Equal(t, 1, s.SessionCount())
}

func TestSessionStore_UnknownNameFallsBackWithNotice(t *testing.T) {
	s := newTestSessionStore()

	resolved, err := s.ResolvePortfolio("session-1", "Retirement")

	require.NoError(t, err)
	assert.Equal(t, "Guest Portfolio", resolved.Portfolio.Name)
	assert.Contains(t, resolved.FallbackNotice, "'Retirement'")
}

func TestSessionStore_SessionsAreIsolated(t *testing.T) {
	s := newTestSessionStore()

	a, err := s.ResolvePortfolio("session-a", "")
	require.NoError(t, err)
	b, err := s.ResolvePortfolio("session-b", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.Portfolio.ID, b.Portfolio.ID)

	_, err = s.AddPositions("session-a", a.Portfolio.ID, []Position{{Symbol: "AAPL", Quantity: 10}})
	require.NoError(t, err)

	// session-b has no portfolio with session-a's id.
	pos, err := s.GetPosition("session-b", a.Portfolio.ID, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestSessionStore_AddAggregatesWithWeightedAverage(t *testing.T) {
	s := newTestSessionStore()
	resolved, err := s.ResolvePortfolio("session-1", "")
	require.NoError(t, err)

	_, err = s.AddPositions("session-1", resolved.Portfolio.ID, []Position{
		{Symbol: "AAPL", Quantity: 10, AvgCost: domain.Float64Ptr(100)},
	})
	require.NoError(t, err)

	outcome, err := s.AddPositions("session-1", resolved.Portfolio.ID, []Position{
		{Symbol: "AAPL", Quantity: 30, AvgCost: domain.Float64Ptr(200)},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Added, 1)
	assert.Equal(t, "aggregated", outcome.Added[0].Operation)

	pos, err := s.GetPosition("session-1", resolved.Portfolio.ID, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 40.0, pos.Quantity)
	// (10*100 + 30*200) / 40
	assert.InDelta(t, 175.0, *pos.AvgCost, 1e-9)
}

func TestSessionStore_RemoveAndUpdateSemantics(t *testing.T) {
	s := newTestSessionStore()
	resolved, err := s.ResolvePortfolio("session-1", "")
	require.NoError(t, err)

	_, err = s.AddPositions("session-1", resolved.Portfolio.ID, []Position{
		{Symbol: "AAPL", Quantity: 100, AvgCost: domain.Float64Ptr(150)},
	})
	require.NoError(t, err)

	ok, err := s.RemovePosition("session-1", resolved.Portfolio.ID, "AAPL", domain.Float64Ptr(40))
	require.NoError(t, err)
	assert.True(t, ok)

	pos, err := s.GetPosition("session-1", resolved.Portfolio.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 60.0, pos.Quantity)

	// Explicit zero clears the cost basis; nil quantity leaves it alone.
	ok, err = s.UpdatePosition("session-1", resolved.Portfolio.ID, "AAPL", nil, domain.Float64Ptr(0))
	require.NoError(t, err)
	assert.True(t, ok)

	pos, err = s.GetPosition("session-1", resolved.Portfolio.ID, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, pos.AvgCost)
	assert.Equal(t, 60.0, pos.Quantity)

	// Removing more than held deletes the position.
	ok, err = s.RemovePosition("session-1", resolved.Portfolio.ID, "AAPL", domain.Float64Ptr(1000))
	require.NoError(t, err)
	assert.True(t, ok)

	pos, err = s.GetPosition("session-1", resolved.Portfolio.ID, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestSessionStore_ListPositionsReturnsSnapshot(t *testing.T) {
	s := newTestSessionStore()
	resolved, err := s.ResolvePortfolio("session-1", "")
	require.NoError(t, err)

	_, err = s.AddPositions("session-1", resolved.Portfolio.ID, []Position{
		{Symbol: "AAPL", Quantity: 10, AvgCost: domain.Float64Ptr(150)},
	})
	require.NoError(t, err)

	loaded, err := s.ListPositions("session-1", resolved.Portfolio.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Positions, 1)
	assert.InDelta(t, 1500.0, loaded.TotalValue, 1e-9)

	// Mutating the snapshot must not leak into the store.
	loaded.Positions[0].Quantity = 9999
	pos, err := s.GetPosition("session-1", resolved.Portfolio.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.0, pos.Quantity)
}

func TestSessionStore_EvictOlderThan(t *testing.T) {
	s := newTestSessionStore()

	_, err := s.ResolvePortfolio("session-old", "")
	require.NoError(t, err)
	require.Equal(t, 1, s.SessionCount())

	time.Sleep(20 * time.Millisecond)

	// A fresh touch on a second session keeps it alive past the cutoff.
	_, err = s.ResolvePortfolio("session-new", "")
	require.NoError(t, err)

	evicted := s.EvictOlderThan(10 * time.Millisecond)

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, s.SessionCount())

	// The surviving session still works.
	resolved, err := s.ResolvePortfolio("session-new", "")
	require.NoError(t, err)
	assert.Equal(t, "Guest Portfolio", resolved.Portfolio.Name)
}

func TestSessionStore_ConcurrentAddsSerialize(t *testing.T) {
	s := newTestSessionStore()
	resolved, err := s.ResolvePortfolio("session-1", "")
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.AddPositions("session-1", resolved.Portfolio.ID, []Position{
				{Symbol: "AAPL", Quantity: 1, AvgCost: domain.Float64Ptr(100)},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pos, err := s.GetPosition("session-1", resolved.Portfolio.ID, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, float64(workers), pos.Quantity)
}

func TestSessionStore_EvictionConcurrentWithActivity(t *testing.T) {
	s := newTestSessionStore()
	resolved, err := s.ResolvePortfolio("session-1", "")
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			_, err := s.GetPosition("session-1", resolved.Portfolio.ID, "AAPL")
			assert.NoError(t, err)
			_, err = s.AddPositions("session-1", resolved.Portfolio.ID, []Position{
				{Symbol: "AAPL", Quantity: 1},
			})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.EvictOlderThan(time.Hour)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	close(done)
	wg.Wait()

	pos, err := s.GetPosition("session-1", resolved.Portfolio.ID, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Greater(t, pos.Quantity, 0.0)
}

func TestSessionStore_MutationRetriesPastEvictedEntry(t *testing.T) {
	s := newTestSessionStore()
	resolved, err := s.ResolvePortfolio("session-1", "")
	require.NoError(t, err)

	// Orphan the entry the way EvictOlderThan does, then mutate with the
	// stale portfolio id. The write must land on a fresh entry (and fail
	// with not-found there), never on the orphan.
	s.mu.Lock()
	stale := s.sessions["session-1"]
	stale.evicted = true
	delete(s.sessions, "session-1")
	s.mu.Unlock()

	_, err = s.AddPositions("session-1", resolved.Portfolio.ID, []Position{
		{Symbol: "AAPL", Quantity: 5},
	})
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Empty(t, stale.portfolios[0].Positions)

	// The session itself is usable again with a freshly resolved portfolio.
	fresh, err := s.ResolvePortfolio("session-1", "")
	require.NoError(t, err)
	assert.NotEqual(t, resolved.Portfolio.ID, fresh.Portfolio.ID)

	outcome, err := s.AddPositions("session-1", fresh.Portfolio.ID, []Position{
		{Symbol: "AAPL", Quantity: 5},
	})
	require.NoError(t, err)
	assert.Len(t, outcome.Added, 1)
}
