package triage

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/domain"
)

// Confidence scoring constants. Base confidence applies to any pattern
// match; the nudges below adjust it before clamping to [0,1].
const (
	baseConfidence          = 0.8
	portfolioNameBoost      = 0.05 // a resolved portfolio name was present
	fullySpecifiedAddBoost  = 0.05 // add with both quantity and price
	tickerCaseBoost         = 0.05 // symbol written as an uppercase ticker
	vagueQuantityCap        = 0.6  // "some", "few" on add
	companyMappedCap        = 0.85 // symbol came from the company-name table
	companyMappedNoQtyCap   = 0.75 // company-mapped and no quantity given
	fallbackLiteralCap      = 0.7  // unmapped name upper-cased into a ticker
)

// Classifier matches raw text against the ordered pattern tables and
// extracts a candidate intent with a confidence score. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	log zerolog.Logger
}

// NewClassifier creates a pattern classifier.
func NewClassifier(log zerolog.Logger) *Classifier {
	return &Classifier{log: log.With().Str("component", "classifier").Logger()}
}

// Classify returns the structured intent extracted from text, or nil when
// no pattern produced a valid intent. A nil return is a routing signal
// (model-only handling), not an error.
func (c *Classifier) Classify(text string) *domain.Intent {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Portfolio-wide show phrasings are tried before anything that could
	// read a single token as a symbol.
	for _, p := range showOverviewPatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			groups := captureGroups(p.re, m)
			intent := &domain.Intent{
				Action:        domain.ActionShow,
				Symbol:        domain.SymbolAll,
				PortfolioName: strings.TrimSpace(groups["portfolio"]),
				RawMatchText:  m[0],
			}
			intent.Confidence = c.score(intent, symbolMeta{}, p)
			return intent
		}
	}

	type group struct {
		action   domain.Action
		patterns []pattern
	}
	table := []group{
		{domain.ActionAdd, addPatterns},
		{domain.ActionRemove, removePatterns},
		{domain.ActionUpdate, updatePatterns},
		{domain.ActionShow, showSpecificPatterns},
	}

	for _, g := range table {
		for _, p := range g.patterns {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			intent, meta, ok := c.buildIntent(g.action, p, m)
			if !ok {
				// Invalid symbol: discard the match entirely, never store it.
				c.log.Debug().Str("match", m[0]).Msg("Discarding match with invalid symbol")
				return nil
			}
			intent.Confidence = c.score(intent, meta, p)
			return intent
		}
	}

	return nil
}

// symbolMeta records how the symbol token was resolved, which feeds the
// confidence caps.
type symbolMeta struct {
	tickerCase      bool // written in uppercase in the original text
	companyMapped   bool // resolved through the company-name table
	fallbackLiteral bool // unmapped name upper-cased into a ticker shape
}

func (c *Classifier) buildIntent(action domain.Action, p pattern, m []string) (*domain.Intent, symbolMeta, bool) {
	groups := captureGroups(p.re, m)

	symbol, meta, ok := resolveSymbol(groups["symbol"])
	if !ok {
		return nil, symbolMeta{}, false
	}

	intent := &domain.Intent{
		Action:        action,
		Symbol:        symbol,
		PortfolioName: strings.TrimSpace(groups["portfolio"]),
		RawMatchText:  m[0],
	}
	if qty, err := strconv.ParseFloat(groups["qty"], 64); err == nil && qty > 0 {
		intent.Quantity = &qty
	}
	if price, err := strconv.ParseFloat(groups["price"], 64); err == nil && price > 0 {
		intent.Price = &price
	}
	return intent, meta, true
}

// resolveSymbol turns a raw token into a ticker. Uppercase ticker-shaped
// tokens pass through; known company names map through the table; anything
// else is upper-cased and kept only if it still looks like a ticker.
func resolveSymbol(token string) (string, symbolMeta, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", symbolMeta{}, false
	}

	if token == strings.ToUpper(token) && domain.ValidSymbol(token) && token != domain.SymbolAll {
		return token, symbolMeta{tickerCase: true}, true
	}

	if mapped, ok := companyTickers[strings.ToLower(token)]; ok {
		return mapped, symbolMeta{companyMapped: true}, true
	}

	upper := strings.ToUpper(token)
	if domain.ValidSymbol(upper) && upper != domain.SymbolAll {
		return upper, symbolMeta{fallbackLiteral: true}, true
	}

	return "", symbolMeta{}, false
}

// score applies the confidence rules: a flat base, small boosts for extra
// specificity, and caps for the signals that make a match suspect.
func (c *Classifier) score(intent *domain.Intent, meta symbolMeta, p pattern) float64 {
	confidence := baseConfidence

	if intent.PortfolioName != "" {
		confidence += portfolioNameBoost
	}
	if meta.tickerCase {
		confidence += tickerCaseBoost
	}
	if intent.Action == domain.ActionAdd && intent.HasQuantity() && intent.HasPrice() {
		confidence += fullySpecifiedAddBoost
	}

	if p.vagueQuantity && intent.Action == domain.ActionAdd {
		confidence = min(confidence, vagueQuantityCap)
	}
	if meta.companyMapped {
		limit := companyMappedCap
		if !intent.HasQuantity() {
			limit = companyMappedNoQtyCap
		}
		confidence = min(confidence, limit)
	}
	if meta.fallbackLiteral {
		confidence = min(confidence, fallbackLiteralCap)
	}

	return clamp01(confidence)
}

func captureGroups(re *regexp.Regexp, m []string) map[string]string {
	groups := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(m) {
			groups[name] = m[i]
		}
	}
	return groups
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
