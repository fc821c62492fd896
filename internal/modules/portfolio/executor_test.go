package portfolio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantive/chatfolio/internal/domain"
)

func newTestExecutor() (*Executor, *SessionStore) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	sessions := NewSessionStore(log)
	return NewExecutor(sessions, sessions, log), sessions
}

func guestIntent(action domain.Action, symbol string) *domain.Intent {
	return &domain.Intent{Action: action, Symbol: symbol, Confidence: 0.9}
}

func TestExecutor_AddRequiresQuantity(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	result := e.Execute(guestIntent(domain.ActionAdd, "AAPL"), owner)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "how many shares")
	assert.Contains(t, result.Error, "quantity")
}

func TestExecutor_AddConfirmsWithPriceAndPortfolio(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	intent := guestIntent(domain.ActionAdd, "AAPL")
	intent.Quantity = domain.Float64Ptr(100)
	intent.Price = domain.Float64Ptr(150)

	result := e.Execute(intent, owner)

	assert.True(t, result.Success)
	assert.Equal(t, "Added 100 shares of AAPL at $150.00 to Guest Portfolio.", result.Message)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "added", result.Changes[0].Operation)
	assert.GreaterOrEqual(t, result.ExecutionTimeMs, int64(0))
}

func TestExecutor_AddWithoutPriceOmitsIt(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	intent := guestIntent(domain.ActionAdd, "AAPL")
	intent.Quantity = domain.Float64Ptr(2.5)

	result := e.Execute(intent, owner)

	assert.True(t, result.Success)
	assert.Equal(t, "Added 2.5 shares of AAPL to Guest Portfolio.", result.Message)
}

func TestExecutor_RemoveMissingPosition(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	result := e.Execute(guestIntent(domain.ActionRemove, "AAPL"), owner)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "You don't hold any AAPL")
	assert.Contains(t, result.Error, "not found")
}

func TestExecutor_RemovePartialAndFull(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	add := guestIntent(domain.ActionAdd, "AAPL")
	add.Quantity = domain.Float64Ptr(100)
	require.True(t, e.Execute(add, owner).Success)

	partial := guestIntent(domain.ActionRemove, "AAPL")
	partial.Quantity = domain.Float64Ptr(40)
	result := e.Execute(partial, owner)

	assert.True(t, result.Success)
	assert.Equal(t, "Removed 40 of 100 shares of AAPL (60 remaining).", result.Message)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "reduced", result.Changes[0].Operation)

	// Quantity-less remove drops the rest.
	full := guestIntent(domain.ActionRemove, "AAPL")
	result = e.Execute(full, owner)

	assert.True(t, result.Success)
	assert.Equal(t, "Removed all 60 shares of AAPL from Guest Portfolio.", result.Message)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "removed", result.Changes[0].Operation)
}

func TestExecutor_RemoveOverHeldQuantityRemovesAll(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	add := guestIntent(domain.ActionAdd, "AAPL")
	add.Quantity = domain.Float64Ptr(10)
	require.True(t, e.Execute(add, owner).Success)

	remove := guestIntent(domain.ActionRemove, "AAPL")
	remove.Quantity = domain.Float64Ptr(50)
	result := e.Execute(remove, owner)

	assert.True(t, result.Success)
	assert.Equal(t, "Removed all 10 shares of AAPL from Guest Portfolio.", result.Message)
}

func TestExecutor_UpdateNeedsAField(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	result := e.Execute(guestIntent(domain.ActionUpdate, "AAPL"), owner)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "quantity or a price")
}

func TestExecutor_UpdateClearsCostBasisOnExplicitZero(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	add := guestIntent(domain.ActionAdd, "AAPL")
	add.Quantity = domain.Float64Ptr(10)
	add.Price = domain.Float64Ptr(150)
	require.True(t, e.Execute(add, owner).Success)

	update := guestIntent(domain.ActionUpdate, "AAPL")
	update.Price = domain.Float64Ptr(0)
	result := e.Execute(update, owner)

	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "cost basis cleared")

	show := e.Execute(guestIntent(domain.ActionShow, "AAPL"), owner)
	assert.True(t, show.Success)
	assert.NotContains(t, show.Message, "average cost")
}

func TestExecutor_ShowSpecificPosition(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	add := guestIntent(domain.ActionAdd, "AAPL")
	add.Quantity = domain.Float64Ptr(100)
	add.Price = domain.Float64Ptr(150)
	require.True(t, e.Execute(add, owner).Success)

	result := e.Execute(guestIntent(domain.ActionShow, "AAPL"), owner)

	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "You hold 100 shares of AAPL")
	assert.Contains(t, result.Message, "$150.00 average cost")
}

func TestExecutor_ShowPortfolioIsIdempotent(t *testing.T) {
	e, store := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	add := guestIntent(domain.ActionAdd, "AAPL")
	add.Quantity = domain.Float64Ptr(100)
	add.Price = domain.Float64Ptr(150)
	require.True(t, e.Execute(add, owner).Success)

	first := e.Execute(guestIntent(domain.ActionShow, domain.SymbolAll), owner)
	second := e.Execute(guestIntent(domain.ActionShow, domain.SymbolAll), owner)

	assert.True(t, first.Success)
	assert.Equal(t, first.Message, second.Message)
	assert.Contains(t, first.Message, "Total value: $15000.00")

	// Reads never mutate state.
	resolved, err := store.ResolvePortfolio("session-1", "")
	require.NoError(t, err)
	pos, err := store.GetPosition("session-1", resolved.Portfolio.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 100.0, pos.Quantity)
}

func TestExecutor_ShowEmptyPortfolio(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	result := e.Execute(guestIntent(domain.ActionShow, domain.SymbolAll), owner)

	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "Guest Portfolio has no holdings yet")
}

func TestExecutor_UnknownPortfolioNamePrefixesNotice(t *testing.T) {
	e, _ := newTestExecutor()
	owner := domain.NewGuestOwner("session-1")

	intent := guestIntent(domain.ActionAdd, "AAPL")
	intent.Quantity = domain.Float64Ptr(10)
	intent.PortfolioName = "Retirement"

	result := e.Execute(intent, owner)

	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "I did not find 'Retirement' portfolio")
	assert.Contains(t, result.Message, "Added 10 shares of AAPL")
}

func TestExecutor_InvalidOwnerRejected(t *testing.T) {
	e, _ := newTestExecutor()

	result := e.Execute(guestIntent(domain.ActionShow, domain.SymbolAll), domain.OwnerRef{})

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}
