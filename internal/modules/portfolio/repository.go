package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/domain"
)

// defaultUserPortfolio is the name given to a user's first portfolio when
// it is created implicitly on first write.
const defaultUserPortfolio = "Main Portfolio"

// Repository is the persisted Store backend, keyed by authenticated user
// id. Rows live in portfolio.db.
type Repository struct {
	conn *sql.DB
	log  zerolog.Logger
}

// NewRepository creates a new persisted portfolio repository.
func NewRepository(conn *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		conn: conn,
		log:  log.With().Str("repo", "portfolio").Logger(),
	}
}

// ResolvePortfolio finds the named portfolio for a user, creating the
// default portfolio on first use. An unknown name resolves to the default
// with a fallback notice instead of failing.
func (r *Repository) ResolvePortfolio(ownerKey, name string) (Resolved, error) {
	portfolios, err := r.listPortfolios(ownerKey)
	if err != nil {
		return Resolved{}, err
	}

	if len(portfolios) == 0 {
		created, err := r.createPortfolio(ownerKey, defaultUserPortfolio)
		if err != nil {
			return Resolved{}, err
		}
		portfolios = []*Portfolio{created}
	}

	if !isGenericName(name) {
		if match := matchPortfolioName(portfolios, name); match != nil {
			return Resolved{Portfolio: *match}, nil
		}
		def := r.defaultOf(portfolios)
		return Resolved{
			Portfolio:      *def,
			FallbackNotice: fmt.Sprintf("I did not find '%s' portfolio, using %s instead", name, def.Name),
		}, nil
	}

	return Resolved{Portfolio: *r.defaultOf(portfolios)}, nil
}

// defaultOf picks the owner's default portfolio: the one carrying the
// default name, else the oldest.
func (r *Repository) defaultOf(portfolios []*Portfolio) *Portfolio {
	for _, p := range portfolios {
		if p.Name == defaultUserPortfolio {
			return p
		}
	}
	return portfolios[0]
}

func (r *Repository) listPortfolios(ownerKey string) ([]*Portfolio, error) {
	rows, err := r.conn.Query(
		`SELECT id, user_id, name, created_at, updated_at
		 FROM portfolios WHERE user_id = ? ORDER BY created_at`, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*Portfolio
	for rows.Next() {
		var p Portfolio
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.OwnerKey, &p.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		p.UpdatedAt = time.Unix(updated, 0).UTC()
		portfolios = append(portfolios, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return portfolios, nil
}

func (r *Repository) createPortfolio(ownerKey, name string) (*Portfolio, error) {
	now := time.Now().UTC()
	p := &Portfolio{
		ID:        uuid.New().String(),
		OwnerKey:  ownerKey,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.conn.Exec(
		`INSERT INTO portfolios (id, user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.OwnerKey, p.Name, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}
	r.log.Info().Str("user", ownerKey).Str("name", name).Msg("Created portfolio")
	return p, nil
}

// GetPosition returns the position for symbol, or nil when absent.
func (r *Repository) GetPosition(ownerKey, portfolioID, symbol string) (*Position, error) {
	row := r.conn.QueryRow(
		`SELECT p.symbol, p.quantity, p.avg_cost, p.asset_type, p.current_price, p.created_at, p.updated_at
		 FROM positions p
		 JOIN portfolios pf ON pf.id = p.portfolio_id
		 WHERE pf.user_id = ? AND p.portfolio_id = ? AND p.symbol = ?`,
		ownerKey, portfolioID, symbol)

	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s: %w", symbol, err)
	}
	return pos, nil
}

// AddPositions inserts or aggregates each incoming position. One bad symbol
// never blocks the rest.
func (r *Repository) AddPositions(ownerKey, portfolioID string, positions []Position) (AddOutcome, error) {
	var outcome AddOutcome
	for i := range positions {
		incoming := positions[i]
		change, err := r.addOne(ownerKey, portfolioID, incoming)
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", incoming.Symbol).Msg("Position add failed, continuing")
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", incoming.Symbol, err))
			continue
		}
		outcome.Added = append(outcome.Added, change)
	}
	return outcome, nil
}

func (r *Repository) addOne(ownerKey, portfolioID string, incoming Position) (domain.PositionChange, error) {
	if !domain.ValidSymbol(incoming.Symbol) || incoming.Symbol == domain.SymbolAll {
		return domain.PositionChange{}, fmt.Errorf("invalid symbol %q", incoming.Symbol)
	}
	if incoming.Quantity <= 0 {
		return domain.PositionChange{}, fmt.Errorf("quantity must be positive, got %v", incoming.Quantity)
	}

	existing, err := r.GetPosition(ownerKey, portfolioID, incoming.Symbol)
	if err != nil {
		return domain.PositionChange{}, err
	}

	now := time.Now().UTC()
	if existing != nil {
		newQty := existing.Quantity + incoming.Quantity
		newCost := weightedAverageCost(existing.Quantity, existing.AvgCost, incoming.Quantity, incoming.AvgCost)
		_, err := r.conn.Exec(
			`UPDATE positions SET quantity = ?, avg_cost = ?, updated_at = ? WHERE portfolio_id = ? AND symbol = ?`,
			newQty, nullable(newCost), now.Unix(), portfolioID, incoming.Symbol)
		if err != nil {
			return domain.PositionChange{}, fmt.Errorf("failed to aggregate position: %w", err)
		}
		prev := existing.Quantity
		return domain.PositionChange{
			Symbol:    incoming.Symbol,
			Operation: "aggregated",
			Quantity:  &incoming.Quantity,
			Price:     incoming.AvgCost,
			Previous:  &prev,
			New:       &newQty,
		}, nil
	}

	assetType := incoming.AssetType
	if assetType == "" {
		assetType = AssetTypeStock
	}
	_, err = r.conn.Exec(
		`INSERT INTO positions (portfolio_id, symbol, quantity, avg_cost, asset_type, current_price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		portfolioID, incoming.Symbol, incoming.Quantity, nullable(incoming.AvgCost),
		assetType, nullable(incoming.CurrentPrice), now.Unix(), now.Unix())
	if err != nil {
		return domain.PositionChange{}, fmt.Errorf("failed to insert position: %w", err)
	}
	qty := incoming.Quantity
	return domain.PositionChange{
		Symbol:    incoming.Symbol,
		Operation: "added",
		Quantity:  &qty,
		Price:     incoming.AvgCost,
		New:       &qty,
	}, nil
}

// RemovePosition deletes the row outright when quantity is nil or covers
// the holding, otherwise decrements in place.
func (r *Repository) RemovePosition(ownerKey, portfolioID, symbol string, quantity *float64) (bool, error) {
	existing, err := r.GetPosition(ownerKey, portfolioID, symbol)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	if quantity == nil || *quantity >= existing.Quantity {
		_, err := r.conn.Exec(
			`DELETE FROM positions WHERE portfolio_id = ? AND symbol = ?`, portfolioID, symbol)
		if err != nil {
			return false, fmt.Errorf("failed to delete position: %w", err)
		}
		return true, nil
	}

	now := time.Now().UTC()
	_, err = r.conn.Exec(
		`UPDATE positions SET quantity = quantity - ?, updated_at = ? WHERE portfolio_id = ? AND symbol = ?`,
		*quantity, now.Unix(), portfolioID, symbol)
	if err != nil {
		return false, fmt.Errorf("failed to reduce position: %w", err)
	}
	return true, nil
}

// UpdatePosition sets whichever of quantity/avgCost was supplied. An
// explicit zero avgCost clears the cost basis; nil leaves it untouched.
func (r *Repository) UpdatePosition(ownerKey, portfolioID, symbol string, quantity, avgCost *float64) (bool, error) {
	existing, err := r.GetPosition(ownerKey, portfolioID, symbol)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	newQty := existing.Quantity
	if quantity != nil {
		newQty = *quantity
	}
	newCost := existing.AvgCost
	if avgCost != nil {
		if *avgCost == 0 {
			newCost = nil
		} else {
			newCost = avgCost
		}
	}

	now := time.Now().UTC()
	_, err = r.conn.Exec(
		`UPDATE positions SET quantity = ?, avg_cost = ?, updated_at = ? WHERE portfolio_id = ? AND symbol = ?`,
		newQty, nullable(newCost), now.Unix(), portfolioID, symbol)
	if err != nil {
		return false, fmt.Errorf("failed to update position: %w", err)
	}
	return true, nil
}

// ListPositions loads the portfolio with positions and recomputes the
// derived total.
func (r *Repository) ListPositions(ownerKey, portfolioID string) (Portfolio, error) {
	row := r.conn.QueryRow(
		`SELECT id, user_id, name, created_at, updated_at FROM portfolios WHERE user_id = ? AND id = ?`,
		ownerKey, portfolioID)

	var p Portfolio
	var created, updated int64
	if err := row.Scan(&p.ID, &p.OwnerKey, &p.Name, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return Portfolio{}, domain.NewNotFoundError("portfolio", portfolioID)
		}
		return Portfolio{}, fmt.Errorf("failed to load portfolio: %w", err)
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()

	rows, err := r.conn.Query(
		`SELECT symbol, quantity, avg_cost, asset_type, current_price, created_at, updated_at
		 FROM positions WHERE portfolio_id = ? ORDER BY symbol`, portfolioID)
	if err != nil {
		return Portfolio{}, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return Portfolio{}, fmt.Errorf("failed to scan position: %w", err)
		}
		p.Positions = append(p.Positions, *pos)
	}
	if err := rows.Err(); err != nil {
		return Portfolio{}, fmt.Errorf("error iterating positions: %w", err)
	}

	p.TotalValue = p.SumValue()
	return p, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*Position, error) {
	var pos Position
	var avgCost, currentPrice sql.NullFloat64
	var created, updated int64
	if err := s.Scan(&pos.Symbol, &pos.Quantity, &avgCost, &pos.AssetType, &currentPrice, &created, &updated); err != nil {
		return nil, err
	}
	if avgCost.Valid {
		pos.AvgCost = &avgCost.Float64
	}
	if currentPrice.Valid {
		pos.CurrentPrice = &currentPrice.Float64
	}
	pos.CreatedAt = time.Unix(created, 0).UTC()
	pos.UpdatedAt = time.Unix(updated, 0).UTC()
	return &pos, nil
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
