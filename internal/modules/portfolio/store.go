package portfolio

import "github.com/quantive/chatfolio/internal/domain"

// Resolved is the outcome of resolving a portfolio by name. FallbackNotice
// is non-empty when the requested name could not be found and the owner's
// default portfolio was substituted.
type Resolved struct {
	Portfolio      Portfolio
	FallbackNotice string
}

// AddOutcome reports a bulk position add. A failed symbol never blocks the
// others: Added and Errors can both be non-empty, and callers treat that as
// partial success, not failure.
type AddOutcome struct {
	Added  []domain.PositionChange
	Errors []string
}

// Store is the contract shared by the persisted per-user store and the
// ephemeral per-session store. The mutation executor only ever speaks
// through this interface.
type Store interface {
	// ResolvePortfolio finds the named portfolio for an owner, falling back
	// to the owner's default (creating it on first use). It fails only on
	// storage errors, never on an unknown name.
	ResolvePortfolio(ownerKey, name string) (Resolved, error)

	// GetPosition returns the position for symbol, or nil when the
	// portfolio has no such holding.
	GetPosition(ownerKey, portfolioID, symbol string) (*Position, error)

	// AddPositions inserts or aggregates each incoming position. An
	// existing symbol gets its quantity summed and its cost basis blended
	// by quantity-weighted average.
	AddPositions(ownerKey, portfolioID string, positions []Position) (AddOutcome, error)

	// RemovePosition deletes the position outright when quantity is nil or
	// at least the held amount; otherwise it decrements in place. Returns
	// false when the symbol is not held.
	RemovePosition(ownerKey, portfolioID, symbol string, quantity *float64) (bool, error)

	// UpdatePosition sets whichever of quantity/avgCost is non-nil. A nil
	// value leaves the stored value untouched; avgCost is cleared only by
	// an explicit zero, never by omission. Returns false when the symbol
	// is not held.
	UpdatePosition(ownerKey, portfolioID, symbol string, quantity, avgCost *float64) (bool, error)

	// ListPositions returns the portfolio with positions loaded and
	// TotalValue recomputed.
	ListPositions(ownerKey, portfolioID string) (Portfolio, error)
}
