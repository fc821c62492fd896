// Package portfolio provides portfolio storage and mutation functionality.
package portfolio

import (
	"strings"
	"time"
)

// AssetTypeStock is the default asset classification for new positions.
const AssetTypeStock = "stock"

// Position represents a single holding inside a portfolio.
type Position struct {
	Symbol       string     `json:"symbol"`
	Quantity     float64    `json:"quantity"`
	AvgCost      *float64   `json:"avgCost,omitempty"`
	AssetType    string     `json:"assetType"`
	CurrentPrice *float64   `json:"currentPrice,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Value returns the position's value: market price when available,
// otherwise cost basis, otherwise zero.
func (p *Position) Value() float64 {
	switch {
	case p.CurrentPrice != nil:
		return p.Quantity * *p.CurrentPrice
	case p.AvgCost != nil:
		return p.Quantity * *p.AvgCost
	}
	return 0
}

// Portfolio is an owned, named collection of positions.
type Portfolio struct {
	ID         string     `json:"id"`
	OwnerKey   string     `json:"ownerKey"`
	Name       string     `json:"name"`
	Positions  []Position `json:"positions"`
	TotalValue float64    `json:"totalValue"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// SumValue recomputes the derived total from the loaded positions.
func (p *Portfolio) SumValue() float64 {
	var total float64
	for i := range p.Positions {
		total += p.Positions[i].Value()
	}
	return total
}

// weightedAverageCost blends an existing cost basis with an incoming lot,
// weighted by quantity. When only one side carries a cost the other side's
// basis is adopted unchanged.
func weightedAverageCost(existingQty float64, existingCost *float64, incomingQty float64, incomingCost *float64) *float64 {
	switch {
	case existingCost != nil && incomingCost != nil:
		newQty := existingQty + incomingQty
		if newQty <= 0 {
			return nil
		}
		blended := (existingQty**existingCost + incomingQty**incomingCost) / newQty
		return &blended
	case existingCost != nil:
		v := *existingCost
		return &v
	case incomingCost != nil:
		v := *incomingCost
		return &v
	}
	return nil
}

// matchPortfolioName picks a portfolio for a requested name: exact
// case-insensitive match first, then substring match. Returns nil when
// nothing matches.
func matchPortfolioName(portfolios []*Portfolio, name string) *Portfolio {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, p := range portfolios {
		if strings.ToLower(p.Name) == lower {
			return p
		}
	}
	for _, p := range portfolios {
		if strings.Contains(strings.ToLower(p.Name), lower) {
			return p
		}
	}
	return nil
}

// isGenericName reports whether the requested name just means "my default
// portfolio" rather than a specific one.
func isGenericName(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "main", "default", "my portfolio", "portfolio":
		return true
	}
	return false
}
