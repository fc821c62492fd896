package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/domain"
)

// Executor applies a validated intent to the owner's store. It is the one
// place that turns store-level outcomes into user-facing confirmation text.
type Executor struct {
	users  Store
	guests Store
	log    zerolog.Logger
}

// NewExecutor creates a mutation executor over the two store backends.
func NewExecutor(users, guests Store, log zerolog.Logger) *Executor {
	return &Executor{
		users:  users,
		guests: guests,
		log:    log.With().Str("service", "executor").Logger(),
	}
}

// storeFor resolves the owner to exactly one backend.
func (e *Executor) storeFor(owner domain.OwnerRef) Store {
	if owner.Guest {
		return e.guests
	}
	return e.users
}

// Execute runs the intent against the owner's portfolio and returns a
// structured result. Every branch measures its own elapsed time; a
// validation failure never touches the store.
func (e *Executor) Execute(intent *domain.Intent, owner domain.OwnerRef) domain.MutationResult {
	start := time.Now()

	if err := owner.Validate(); err != nil {
		return fail(start, "I could not work out whose portfolio to use.", err)
	}

	store := e.storeFor(owner)
	resolved, err := store.ResolvePortfolio(owner.Key(), intent.PortfolioName)
	if err != nil {
		e.log.Error().Err(err).Str("owner", owner.Key()).Msg("Portfolio resolution failed")
		return fail(start, "Something went wrong looking up your portfolio.", err)
	}

	var result domain.MutationResult
	switch intent.Action {
	case domain.ActionAdd:
		result = e.executeAdd(store, owner, resolved, intent)
	case domain.ActionRemove:
		result = e.executeRemove(store, owner, resolved, intent)
	case domain.ActionUpdate:
		result = e.executeUpdate(store, owner, resolved, intent)
	case domain.ActionShow:
		result = e.executeShow(store, owner, resolved, intent)
	default:
		// Unreachable through parsing; defensive fallback only.
		err := &domain.UnsupportedActionError{Action: intent.Action.String()}
		result = fail(start, "I don't know how to do that yet.", err)
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result
}

func (e *Executor) executeAdd(store Store, owner domain.OwnerRef, resolved Resolved, intent *domain.Intent) domain.MutationResult {
	start := time.Now()

	if !intent.HasQuantity() {
		err := domain.NewValidationError("quantity", "a positive number of shares is required")
		return fail(start, "I need to know how many shares to add.", err)
	}

	outcome, err := store.AddPositions(owner.Key(), resolved.Portfolio.ID, []Position{{
		Symbol:   intent.Symbol,
		Quantity: *intent.Quantity,
		AvgCost:  intent.Price,
	}})
	if err != nil {
		e.log.Error().Err(err).Str("symbol", intent.Symbol).Msg("Add failed")
		return fail(start, fmt.Sprintf("I couldn't add %s to your portfolio.", intent.Symbol), err)
	}
	if len(outcome.Added) == 0 {
		err := fmt.Errorf("add rejected: %s", strings.Join(outcome.Errors, "; "))
		return fail(start, fmt.Sprintf("I couldn't add %s to your portfolio.", intent.Symbol), err)
	}

	msg := fmt.Sprintf("Added %s shares of %s", formatQuantity(*intent.Quantity), intent.Symbol)
	if intent.HasPrice() {
		msg += fmt.Sprintf(" at $%.2f", *intent.Price)
	}
	msg += fmt.Sprintf(" to %s.", resolved.Portfolio.Name)

	return domain.MutationResult{
		Success: true,
		Message: withNotice(resolved.FallbackNotice, msg),
		Changes: outcome.Added,
	}
}

func (e *Executor) executeRemove(store Store, owner domain.OwnerRef, resolved Resolved, intent *domain.Intent) domain.MutationResult {
	start := time.Now()

	existing, err := store.GetPosition(owner.Key(), resolved.Portfolio.ID, intent.Symbol)
	if err != nil {
		e.log.Error().Err(err).Str("symbol", intent.Symbol).Msg("Position lookup failed")
		return fail(start, fmt.Sprintf("I couldn't look up %s in your portfolio.", intent.Symbol), err)
	}
	if existing == nil {
		err := domain.NewNotFoundError("position", intent.Symbol)
		return fail(start, fmt.Sprintf("You don't hold any %s in %s.", intent.Symbol, resolved.Portfolio.Name), err)
	}

	held := existing.Quantity
	ok, err := store.RemovePosition(owner.Key(), resolved.Portfolio.ID, intent.Symbol, intent.Quantity)
	if err != nil {
		e.log.Error().Err(err).Str("symbol", intent.Symbol).Msg("Remove failed")
		return fail(start, fmt.Sprintf("I couldn't remove %s from your portfolio.", intent.Symbol), err)
	}
	if !ok {
		err := domain.NewNotFoundError("position", intent.Symbol)
		return fail(start, fmt.Sprintf("You don't hold any %s in %s.", intent.Symbol, resolved.Portfolio.Name), err)
	}

	partial := intent.Quantity != nil && *intent.Quantity < held
	var msg string
	var change domain.PositionChange
	if partial {
		remaining := held - *intent.Quantity
		msg = fmt.Sprintf("Removed %s of %s shares of %s (%s remaining).",
			formatQuantity(*intent.Quantity), formatQuantity(held), intent.Symbol, formatQuantity(remaining))
		change = domain.PositionChange{
			Symbol:    intent.Symbol,
			Operation: "reduced",
			Quantity:  intent.Quantity,
			Previous:  &held,
			New:       &remaining,
		}
	} else {
		msg = fmt.Sprintf("Removed all %s shares of %s from %s.",
			formatQuantity(held), intent.Symbol, resolved.Portfolio.Name)
		change = domain.PositionChange{
			Symbol:    intent.Symbol,
			Operation: "removed",
			Quantity:  &held,
			Previous:  &held,
		}
	}

	return domain.MutationResult{
		Success: true,
		Message: withNotice(resolved.FallbackNotice, msg),
		Changes: []domain.PositionChange{change},
	}
}

func (e *Executor) executeUpdate(store Store, owner domain.OwnerRef, resolved Resolved, intent *domain.Intent) domain.MutationResult {
	start := time.Now()

	if intent.Quantity == nil && intent.Price == nil {
		err := domain.NewValidationError("update", "at least one of quantity or price is required")
		return fail(start, "Tell me a quantity or a price to update.", err)
	}

	ok, err := store.UpdatePosition(owner.Key(), resolved.Portfolio.ID, intent.Symbol, intent.Quantity, intent.Price)
	if err != nil {
		e.log.Error().Err(err).Str("symbol", intent.Symbol).Msg("Update failed")
		return fail(start, fmt.Sprintf("I couldn't update %s.", intent.Symbol), err)
	}
	if !ok {
		err := domain.NewNotFoundError("position", intent.Symbol)
		return fail(start, fmt.Sprintf("You don't hold any %s in %s.", intent.Symbol, resolved.Portfolio.Name), err)
	}

	var parts []string
	if intent.Quantity != nil {
		parts = append(parts, fmt.Sprintf("quantity %s", formatQuantity(*intent.Quantity)))
	}
	if intent.Price != nil {
		if *intent.Price == 0 {
			parts = append(parts, "cost basis cleared")
		} else {
			parts = append(parts, fmt.Sprintf("avg cost $%.2f", *intent.Price))
		}
	}
	msg := fmt.Sprintf("Updated %s: %s.", intent.Symbol, strings.Join(parts, ", "))

	return domain.MutationResult{
		Success: true,
		Message: withNotice(resolved.FallbackNotice, msg),
		Changes: []domain.PositionChange{{
			Symbol:    intent.Symbol,
			Operation: "updated",
			Quantity:  intent.Quantity,
			Price:     intent.Price,
		}},
	}
}

func (e *Executor) executeShow(store Store, owner domain.OwnerRef, resolved Resolved, intent *domain.Intent) domain.MutationResult {
	start := time.Now()

	loaded, err := store.ListPositions(owner.Key(), resolved.Portfolio.ID)
	if err != nil {
		e.log.Error().Err(err).Msg("Portfolio listing failed")
		return fail(start, "Something went wrong reading your portfolio.", err)
	}

	if intent.Symbol == domain.SymbolAll {
		return domain.MutationResult{
			Success: true,
			Message: withNotice(resolved.FallbackNotice, summarizePortfolio(&loaded)),
		}
	}

	pos := loaded.find(intent.Symbol)
	if pos == nil {
		err := domain.NewNotFoundError("position", intent.Symbol)
		return fail(start, fmt.Sprintf("You don't hold any %s in %s.", intent.Symbol, loaded.Name), err)
	}

	return domain.MutationResult{
		Success: true,
		Message: withNotice(resolved.FallbackNotice, summarizePosition(pos, loaded.Name)),
	}
}

// summarizePortfolio renders the portfolio-wide summary. An empty
// portfolio is a friendly answer, not an error.
func summarizePortfolio(p *Portfolio) string {
	if len(p.Positions) == 0 {
		return fmt.Sprintf("%s has no holdings yet. Try adding a position, for example: add 100 shares of AAPL at $150.", p.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d positions):\n", p.Name, len(p.Positions))
	for i := range p.Positions {
		pos := &p.Positions[i]
		fmt.Fprintf(&b, "- %s: %s shares", pos.Symbol, formatQuantity(pos.Quantity))
		if pos.AvgCost != nil {
			fmt.Fprintf(&b, " @ $%.2f avg", *pos.AvgCost)
		}
		if v := pos.Value(); v > 0 {
			fmt.Fprintf(&b, " ($%.2f)", v)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total value: $%.2f", p.TotalValue)
	return b.String()
}

func summarizePosition(pos *Position, portfolioName string) string {
	msg := fmt.Sprintf("You hold %s shares of %s in %s", formatQuantity(pos.Quantity), pos.Symbol, portfolioName)
	if pos.AvgCost != nil {
		msg += fmt.Sprintf(" at $%.2f average cost", *pos.AvgCost)
	}
	if v := pos.Value(); v > 0 {
		msg += fmt.Sprintf(" (value $%.2f)", v)
	}
	return msg + "."
}

// formatQuantity renders share counts without trailing zeros.
func formatQuantity(q float64) string {
	s := fmt.Sprintf("%.4f", q)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func withNotice(notice, msg string) string {
	if notice == "" {
		return msg
	}
	return notice + ". " + msg
}

func fail(start time.Time, msg string, err error) domain.MutationResult {
	return domain.MutationResult{
		Success:         false,
		Message:         msg,
		Error:           err.Error(),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}
