package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/domain"
)

// defaultGuestPortfolio is the name given to a guest session's implicitly
// created portfolio.
const defaultGuestPortfolio = "Guest Portfolio"

// sessionEntry holds one anonymous session's portfolios. Each entry carries
// its own mutex so concurrent requests for the same session serialize their
// read-modify-write cycle instead of racing.
type sessionEntry struct {
	mu          sync.Mutex
	portfolios  []*Portfolio
	lastUpdated time.Time
	evicted     bool
}

// SessionStore is the ephemeral Store backend for anonymous owners, keyed
// by guest session id. Entries are evicted by age through EvictOlderThan,
// driven by an external schedule.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	log      zerolog.Logger
}

// NewSessionStore creates an empty session store.
func NewSessionStore(log zerolog.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		log:      log.With().Str("store", "session").Logger(),
	}
}

// entry returns the session entry for a key, creating it if needed.
func (s *SessionStore) entry(ownerKey string) *sessionEntry {
	s.mu.RLock()
	e, ok := s.sessions[ownerKey]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[ownerKey]; ok {
		return e
	}
	e = &sessionEntry{lastUpdated: time.Now().UTC()}
	s.sessions[ownerKey] = e
	return e
}

// withSession runs fn while holding the session's lock, stamping the
// session's last activity afterwards. A request that loses the lock to a
// concurrent eviction retries against a fresh entry, so the write is never
// applied to an entry no longer reachable from the map.
func (s *SessionStore) withSession(ownerKey string, fn func(e *sessionEntry) error) error {
	for {
		e := s.entry(ownerKey)
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		err := fn(e)
		e.lastUpdated = time.Now().UTC()
		e.mu.Unlock()
		return err
	}
}

// ResolvePortfolio finds the named portfolio for a session, creating the
// guest default on first use. Unknown names fall back with a notice.
func (s *SessionStore) ResolvePortfolio(ownerKey, name string) (Resolved, error) {
	var resolved Resolved
	err := s.withSession(ownerKey, func(e *sessionEntry) error {
		if len(e.portfolios) == 0 {
			now := time.Now().UTC()
			e.portfolios = append(e.portfolios, &Portfolio{
				ID:        uuid.New().String(),
				OwnerKey:  ownerKey,
				Name:      defaultGuestPortfolio,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}

		def := e.portfolios[0]
		if !isGenericName(name) {
			if match := matchPortfolioName(e.portfolios, name); match != nil {
				resolved = Resolved{Portfolio: snapshot(match)}
				return nil
			}
			resolved = Resolved{
				Portfolio:      snapshot(def),
				FallbackNotice: fmt.Sprintf("I did not find '%s' portfolio, using %s instead", name, def.Name),
			}
			return nil
		}
		resolved = Resolved{Portfolio: snapshot(def)}
		return nil
	})
	return resolved, err
}

// GetPosition returns a copy of the position for symbol, or nil.
func (s *SessionStore) GetPosition(ownerKey, portfolioID, symbol string) (*Position, error) {
	var found *Position
	err := s.withSession(ownerKey, func(e *sessionEntry) error {
		p := e.findPortfolio(portfolioID)
		if p == nil {
			return nil
		}
		for i := range p.Positions {
			if p.Positions[i].Symbol == symbol {
				cp := p.Positions[i]
				found = &cp
				return nil
			}
		}
		return nil
	})
	return found, err
}

// AddPositions inserts or aggregates each incoming position under the
// session lock.
func (s *SessionStore) AddPositions(ownerKey, portfolioID string, positions []Position) (AddOutcome, error) {
	var outcome AddOutcome
	err := s.withSession(ownerKey, func(e *sessionEntry) error {
		p := e.findPortfolio(portfolioID)
		if p == nil {
			return domain.NewNotFoundError("portfolio", portfolioID)
		}

		now := time.Now().UTC()
		for i := range positions {
			incoming := positions[i]
			if !domain.ValidSymbol(incoming.Symbol) || incoming.Symbol == domain.SymbolAll {
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: invalid symbol", incoming.Symbol))
				continue
			}
			if incoming.Quantity <= 0 {
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: quantity must be positive", incoming.Symbol))
				continue
			}

			if existing := p.find(incoming.Symbol); existing != nil {
				prev := existing.Quantity
				newQty := existing.Quantity + incoming.Quantity
				existing.AvgCost = weightedAverageCost(existing.Quantity, existing.AvgCost, incoming.Quantity, incoming.AvgCost)
				existing.Quantity = newQty
				existing.UpdatedAt = now
				outcome.Added = append(outcome.Added, domain.PositionChange{
					Symbol:    incoming.Symbol,
					Operation: "aggregated",
					Quantity:  &incoming.Quantity,
					Price:     incoming.AvgCost,
					Previous:  &prev,
					New:       &newQty,
				})
				continue
			}

			assetType := incoming.AssetType
			if assetType == "" {
				assetType = AssetTypeStock
			}
			p.Positions = append(p.Positions, Position{
				Symbol:       incoming.Symbol,
				Quantity:     incoming.Quantity,
				AvgCost:      incoming.AvgCost,
				AssetType:    assetType,
				CurrentPrice: incoming.CurrentPrice,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			qty := incoming.Quantity
			outcome.Added = append(outcome.Added, domain.PositionChange{
				Symbol:    incoming.Symbol,
				Operation: "added",
				Quantity:  &qty,
				Price:     incoming.AvgCost,
				New:       &qty,
			})
		}
		p.UpdatedAt = now
		return nil
	})
	return outcome, err
}

// RemovePosition deletes or decrements the symbol under the session lock.
func (s *SessionStore) RemovePosition(ownerKey, portfolioID, symbol string, quantity *float64) (bool, error) {
	var removed bool
	err := s.withSession(ownerKey, func(e *sessionEntry) error {
		p := e.findPortfolio(portfolioID)
		if p == nil {
			return nil
		}
		for i := range p.Positions {
			if p.Positions[i].Symbol != symbol {
				continue
			}
			if quantity == nil || *quantity >= p.Positions[i].Quantity {
				p.Positions = append(p.Positions[:i], p.Positions[i+1:]...)
			} else {
				p.Positions[i].Quantity -= *quantity
				p.Positions[i].UpdatedAt = time.Now().UTC()
			}
			p.UpdatedAt = time.Now().UTC()
			removed = true
			return nil
		}
		return nil
	})
	return removed, err
}

// UpdatePosition applies whichever of quantity/avgCost was supplied, under
// the session lock.
func (s *SessionStore) UpdatePosition(ownerKey, portfolioID, symbol string, quantity, avgCost *float64) (bool, error) {
	var updated bool
	err := s.withSession(ownerKey, func(e *sessionEntry) error {
		p := e.findPortfolio(portfolioID)
		if p == nil {
			return nil
		}
		pos := p.find(symbol)
		if pos == nil {
			return nil
		}
		if quantity != nil {
			pos.Quantity = *quantity
		}
		if avgCost != nil {
			if *avgCost == 0 {
				pos.AvgCost = nil
			} else {
				v := *avgCost
				pos.AvgCost = &v
			}
		}
		pos.UpdatedAt = time.Now().UTC()
		p.UpdatedAt = pos.UpdatedAt
		updated = true
		return nil
	})
	return updated, err
}

// ListPositions returns a copy of the portfolio with TotalValue recomputed.
func (s *SessionStore) ListPositions(ownerKey, portfolioID string) (Portfolio, error) {
	var out Portfolio
	err := s.withSession(ownerKey, func(e *sessionEntry) error {
		p := e.findPortfolio(portfolioID)
		if p == nil {
			return domain.NewNotFoundError("portfolio", portfolioID)
		}
		out = snapshot(p)
		return nil
	})
	return out, err
}

// EvictOlderThan removes sessions idle longer than maxAge and returns how
// many were dropped. Called by the scheduler, never by the pipeline.
func (s *SessionStore) EvictOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Each entry's lock is taken before inspecting it: lastUpdated is only
	// written under that lock, and marking the entry evicted while holding
	// it forces an in-flight request to retry rather than mutate an entry
	// that has already left the map. Lock order is always store then entry.
	evicted := 0
	for key, e := range s.sessions {
		e.mu.Lock()
		if e.lastUpdated.Before(cutoff) {
			e.evicted = true
			delete(s.sessions, key)
			evicted++
		}
		e.mu.Unlock()
	}
	if evicted > 0 {
		s.log.Info().Int("evicted", evicted).Dur("max_age", maxAge).Msg("Evicted idle sessions")
	}
	return evicted
}

// SessionCount returns the number of live sessions.
func (s *SessionStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (e *sessionEntry) findPortfolio(portfolioID string) *Portfolio {
	for _, p := range e.portfolios {
		if p.ID == portfolioID {
			return p
		}
	}
	return nil
}

func (p *Portfolio) find(symbol string) *Position {
	for i := range p.Positions {
		if p.Positions[i].Symbol == symbol {
			return &p.Positions[i]
		}
	}
	return nil
}

// snapshot copies a portfolio so callers never hold references into the
// store's own slices.
func snapshot(p *Portfolio) Portfolio {
	out := *p
	out.Positions = make([]Position, len(p.Positions))
	copy(out.Positions, p.Positions)
	out.TotalValue = out.SumValue()
	return out
}
