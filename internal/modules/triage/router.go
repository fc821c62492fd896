package triage

import "github.com/quantive/chatfolio/internal/domain"

// Strategy selects how a query is processed.
type Strategy string

const (
	// StrategyRule executes the classified intent directly.
	StrategyRule Strategy = "rule-only"
	// StrategyHybrid asks the text-generation service to fill missing
	// fields before executing.
	StrategyHybrid Strategy = "hybrid"
	// StrategyModel hands the whole query to the text-generation service.
	StrategyModel Strategy = "model-only"
)

// Routing thresholds over classifier confidence.
const (
	ruleConfidence   = 0.7 // above this the rules stand on their own
	hybridConfidence = 0.5 // above this a present intent is worth completing
)

// Route is a pure function mapping the classifier outcome to a processing
// strategy. No intent, or a low-confidence one with nothing obviously
// missing, goes to the model.
func Route(intent *domain.Intent, text string) Strategy {
	if intent == nil {
		return StrategyModel
	}

	missing := needsCompletion(intent, text)

	// Missing fields outrank confidence: a confident intent that still
	// needs completion goes hybrid, since executing it as-is would fail
	// validation for the very field completion exists to fill.
	if intent.Confidence > ruleConfidence && !missing {
		return StrategyRule
	}
	if intent.Confidence > hybridConfidence || missing {
		return StrategyHybrid
	}
	return StrategyModel
}

// needsCompletion is the per-action missing-field heuristic. Show never
// fires: once a show pattern matched, the rules are always sufficient.
func needsCompletion(intent *domain.Intent, text string) bool {
	switch intent.Action {
	case domain.ActionAdd:
		return !intent.HasQuantity() || vagueQuantityWords.MatchString(text)
	case domain.ActionUpdate:
		if intent.Quantity == nil && intent.Price == nil {
			return true
		}
		return vaguePluralTargets.MatchString(text)
	case domain.ActionRemove:
		return vagueRemoveWords.MatchString(text)
	case domain.ActionShow:
		return false
	}
	return false
}
