package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantive/chatfolio/internal/domain"
)

func TestWeightedAverageCost(t *testing.T) {
	// Both sides priced: quantity-weighted blend.
	got := weightedAverageCost(10, domain.Float64Ptr(100), 10, domain.Float64Ptr(200))
	require.NotNil(t, got)
	assert.InDelta(t, 150.0, *got, 1e-9)

	// Uneven lots weight accordingly.
	got = weightedAverageCost(10, domain.Float64Ptr(100), 30, domain.Float64Ptr(200))
	require.NotNil(t, got)
	assert.InDelta(t, 175.0, *got, 1e-9)

	// One-sided cost is adopted unchanged.
	got = weightedAverageCost(10, nil, 5, domain.Float64Ptr(220))
	require.NotNil(t, got)
	assert.Equal(t, 220.0, *got)

	got = weightedAverageCost(10, domain.Float64Ptr(100), 5, nil)
	require.NotNil(t, got)
	assert.Equal(t, 100.0, *got)

	// No cost on either side stays unknown.
	assert.Nil(t, weightedAverageCost(10, nil, 5, nil))
}

func TestPositionValue(t *testing.T) {
	p := Position{Quantity: 10}
	assert.Equal(t, 0.0, p.Value())

	p.AvgCost = domain.Float64Ptr(150)
	assert.Equal(t, 1500.0, p.Value())

	// Market price wins over cost basis.
	p.CurrentPrice = domain.Float64Ptr(200)
	assert.Equal(t, 2000.0, p.Value())
}

func TestMatchPortfolioName(t *testing.T) {
	portfolios := []*Portfolio{
		{ID: "1", Name: "Main Portfolio"},
		{ID: "2", Name: "Retirement Fund"},
	}

	assert.Equal(t, "2", matchPortfolioName(portfolios, "retirement fund").ID)
	assert.Equal(t, "2", matchPortfolioName(portfolios, "Retirement").ID)
	assert.Equal(t, "1", matchPortfolioName(portfolios, "main portfolio").ID)
	assert.Nil(t, matchPortfolioName(portfolios, "college savings"))
}

func TestIsGenericName(t *testing.T) {
	for _, name := range []string{"", "  ", "main", "Default", "My Portfolio", "portfolio"} {
		assert.True(t, isGenericName(name), name)
	}
	for _, name := range []string{"retirement", "Main Fund", "savings"} {
		assert.False(t, isGenericName(name), name)
	}
}
