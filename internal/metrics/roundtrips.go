package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/replaycore/pkg/types"
)

// RoundTrip pairs bought shares with the sell that disposed of them, matched
// first-in-first-out per symbol. Costs are already inside the net amounts,
// so Profit is the realized cash result after commission, tax, and slippage.
type RoundTrip struct {
	Symbol   string
	Shares   decimal.Decimal
	BuyCost  decimal.Decimal // pro-rated net cash out
	Proceeds decimal.Decimal // pro-rated net cash in
	Profit   decimal.Decimal
	Return   float64 // Profit / BuyCost
	OpenedAt time.Time
	ClosedAt time.Time
}

// RoundTrips matches sells against open buy lots in trade order. A sell
// larger than one lot consumes lots until filled; shares sold with no open
// lot are skipped, since a long-only ledger never produces them.
func RoundTrips(trades []types.Trade) []RoundTrip {
	type lot struct {
		shares decimal.Decimal
		net    decimal.Decimal
		opened time.Time
	}

	open := make(map[string][]lot)
	var out []RoundTrip

	for _, tr := range trades {
		switch tr.Action {
		case types.TradeActionBuy:
			open[tr.Symbol] = append(open[tr.Symbol], lot{
				shares: tr.Shares,
				net:    tr.NetAmount,
				opened: tr.Date,
			})

		case types.TradeActionSell:
			remaining := tr.Shares
			for remaining.IsPositive() && len(open[tr.Symbol]) > 0 {
				lots := open[tr.Symbol]
				head := &lots[0]

				matched := decimal.Min(remaining, head.shares)
				buyCost := head.net.Mul(matched).Div(head.shares)
				proceeds := tr.NetAmount.Mul(matched).Div(tr.Shares)
				profit := proceeds.Sub(buyCost)

				rt := RoundTrip{
					Symbol:   tr.Symbol,
					Shares:   matched,
					BuyCost:  buyCost,
					Proceeds: proceeds,
					Profit:   profit,
					OpenedAt: head.opened,
					ClosedAt: tr.Date,
				}
				if buyCost.IsPositive() {
					rt.Return = profit.Div(buyCost).InexactFloat64()
				}
				out = append(out, rt)

				head.shares = head.shares.Sub(matched)
				head.net = head.net.Sub(buyCost)
				remaining = remaining.Sub(matched)
				if !head.shares.IsPositive() {
					open[tr.Symbol] = lots[1:]
				}
			}
		}
	}

	return out
}
