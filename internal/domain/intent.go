package domain

import "regexp"

// SymbolAll is the sentinel symbol for a portfolio-wide "show".
const SymbolAll = "ALL"

// symbolPattern is the only shape a non-sentinel symbol may take.
var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// ValidSymbol reports whether s is the ALL sentinel or a 1-5 character
// uppercase ticker. Anything else is a parse failure and must never be
// stored.
func ValidSymbol(s string) bool {
	return s == SymbolAll || symbolPattern.MatchString(s)
}

// Intent is the canonical structured command extracted from chat input.
// Quantity and Price are pointers: nil means "the text did not supply a
// value", which routing and hybrid completion treat differently from zero.
type Intent struct {
	Action        Action   `json:"action"`
	Symbol        string   `json:"symbol"`
	Quantity      *float64 `json:"quantity,omitempty"`
	Price         *float64 `json:"price,omitempty"` // becomes avg cost on add
	PortfolioName string   `json:"portfolioName,omitempty"`
	Confidence    float64  `json:"confidence"`
	RawMatchText  string   `json:"rawMatchText,omitempty"`
}

// HasQuantity reports whether a positive quantity was extracted.
func (i *Intent) HasQuantity() bool {
	return i.Quantity != nil && *i.Quantity > 0
}

// HasPrice reports whether a positive price was extracted.
func (i *Intent) HasPrice() bool {
	return i.Price != nil && *i.Price > 0
}

// MissingFields lists the structured fields hybrid completion may fill
// for this intent's action.
func (i *Intent) MissingFields() []string {
	var missing []string
	switch i.Action {
	case ActionAdd:
		if !i.HasQuantity() {
			missing = append(missing, "quantity")
		}
		if !i.HasPrice() {
			missing = append(missing, "price")
		}
	case ActionUpdate:
		if !i.HasQuantity() {
			missing = append(missing, "quantity")
		}
		if !i.HasPrice() {
			missing = append(missing, "price")
		}
	case ActionRemove:
		if !i.HasQuantity() {
			missing = append(missing, "quantity")
		}
	case ActionShow:
		// Show needs nothing beyond the symbol
	}
	return missing
}

// Float64Ptr returns a pointer to v. Convenience for literal intents in
// callers and tests.
func Float64Ptr(v float64) *float64 {
	return &v
}
