// Package replay implements the deterministic day-loop portfolio engine.
package replay

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantfold/replaycore/internal/costs"
	"github.com/quantfold/replaycore/pkg/types"
)

// Position represents an open long position.
type Position struct {
	Symbol    string
	Shares    decimal.Decimal
	CostBasis decimal.Decimal // per-share fill price, slippage included
	Mark      decimal.Decimal // last known close, used for valuation and forced exits
	OpenedAt  time.Time
}

// Ledger tracks cash, open positions, executed trades, and the daily equity
// curve of one replay run. The day loop is single-threaded, so the ledger
// does no locking; concurrency happens across runs, never inside one.
type Ledger struct {
	cash        decimal.Decimal
	initialCash decimal.Decimal
	positions   map[string]*Position
	trades      []types.Trade
	snapshots   []types.PortfolioSnapshot
	peakEquity  decimal.Decimal
}

// NewLedger creates a ledger holding only cash.
func NewLedger(initialCash decimal.Decimal) *Ledger {
	return &Ledger{
		cash:        initialCash,
		initialCash: initialCash,
		positions:   make(map[string]*Position),
		peakEquity:  initialCash,
	}
}

// Cash returns the cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	return l.cash
}

// Position returns the open position for a symbol, if any. The returned
// value is the ledger's own record and must not be modified by callers.
func (l *Ledger) Position(symbol string) (*Position, bool) {
	pos, ok := l.positions[symbol]
	return pos, ok
}

// NumPositions returns the number of open positions.
func (l *Ledger) NumPositions() int {
	return len(l.positions)
}

// HeldSymbols returns the open position symbols in sorted order, so the
// sell phase visits them deterministically.
func (l *Ledger) HeldSymbols() []string {
	symbols := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// ExecuteBuy debits cash for shares at the costed fill and opens or extends
// the position. The caller guarantees shares is a positive whole number and
// that cash covers the net amount.
func (l *Ledger) ExecuteBuy(symbol string, day time.Time, shares decimal.Decimal, b costs.Breakdown, quoted decimal.Decimal) types.Trade {
	gross := shares.Mul(b.AdjustedPrice)
	net := gross.Add(b.Total())
	l.cash = l.cash.Sub(net)

	if pos, ok := l.positions[symbol]; ok {
		totalShares := pos.Shares.Add(shares)
		totalCost := pos.Shares.Mul(pos.CostBasis).Add(gross)
		pos.CostBasis = totalCost.Div(totalShares)
		pos.Shares = totalShares
		pos.Mark = quoted
	} else {
		l.positions[symbol] = &Position{
			Symbol:    symbol,
			Shares:    shares,
			CostBasis: b.AdjustedPrice,
			Mark:      quoted,
			OpenedAt:  day,
		}
	}

	trade := types.Trade{
		ID:          uuid.New().String(),
		Symbol:      symbol,
		Action:      types.TradeActionBuy,
		Date:        day,
		Shares:      shares,
		Price:       b.AdjustedPrice,
		GrossAmount: gross,
		Commission:  b.Commission,
		Tax:         b.Tax,
		Slippage:    b.AdjustedPrice.Sub(quoted).Abs().Mul(shares),
		NetAmount:   net,
		CashAfter:   l.cash,
	}
	l.trades = append(l.trades, trade)
	return trade
}

// ExecuteSell closes the entire position at the costed fill and credits the
// net proceeds. It reports false when no position is open for the symbol.
func (l *Ledger) ExecuteSell(symbol string, day time.Time, b costs.Breakdown, quoted decimal.Decimal, forced bool) (types.Trade, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return types.Trade{}, false
	}

	gross := pos.Shares.Mul(b.AdjustedPrice)
	net := gross.Sub(b.Total())
	l.cash = l.cash.Add(net)
	delete(l.positions, symbol)

	trade := types.Trade{
		ID:          uuid.New().String(),
		Symbol:      symbol,
		Action:      types.TradeActionSell,
		Date:        day,
		Shares:      pos.Shares,
		Price:       b.AdjustedPrice,
		GrossAmount: gross,
		Commission:  b.Commission,
		Tax:         b.Tax,
		Slippage:    b.AdjustedPrice.Sub(quoted).Abs().Mul(pos.Shares),
		NetAmount:   net,
		CashAfter:   l.cash,
		Forced:      forced,
	}
	l.trades = append(l.trades, trade)
	return trade, true
}

// MarkToMarket refreshes position marks from closePrice, values the book,
// and appends the day's snapshot. Symbols with no close today keep their
// previous mark, so gapped series stay valued at the last known price.
func (l *Ledger) MarkToMarket(day time.Time, closePrice func(symbol string) (decimal.Decimal, bool)) types.PortfolioSnapshot {
	positionsValue := decimal.Zero
	for _, symbol := range l.HeldSymbols() {
		pos := l.positions[symbol]
		if close, ok := closePrice(symbol); ok {
			pos.Mark = close
		}
		positionsValue = positionsValue.Add(pos.Shares.Mul(pos.Mark))
	}

	total := l.cash.Add(positionsValue)
	if total.GreaterThan(l.peakEquity) {
		l.peakEquity = total
	}

	drawdown := decimal.Zero
	if l.peakEquity.IsPositive() {
		drawdown = l.peakEquity.Sub(total).Div(l.peakEquity)
	}

	snap := types.PortfolioSnapshot{
		Date:           day,
		Cash:           l.cash,
		PositionsValue: positionsValue,
		TotalValue:     total,
		Drawdown:       drawdown,
	}
	l.snapshots = append(l.snapshots, snap)
	return snap
}

// Equity returns cash plus positions at their current marks.
func (l *Ledger) Equity() decimal.Decimal {
	equity := l.cash
	for _, pos := range l.positions {
		equity = equity.Add(pos.Shares.Mul(pos.Mark))
	}
	return equity
}

// Trades returns the executed trades in execution order. The slice is the
// ledger's own record; runs hand it off once the loop finishes.
func (l *Ledger) Trades() []types.Trade {
	return l.trades
}

// Snapshots returns the per-day equity curve in date order.
func (l *Ledger) Snapshots() []types.PortfolioSnapshot {
	return l.snapshots
}
