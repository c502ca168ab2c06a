// Package costs implements transaction cost schemes applied to replay fills.
package costs

import (
	"github.com/shopspring/decimal"

	"github.com/quantfold/replaycore/pkg/types"
)

var one = decimal.NewFromInt(1)

// Breakdown is the costed view of a single fill
type Breakdown struct {
	Commission    decimal.Decimal
	Tax           decimal.Decimal
	AdjustedPrice decimal.Decimal // execution price after slippage
}

// Total returns commission plus tax.
func (b Breakdown) Total() decimal.Decimal {
	return b.Commission.Add(b.Tax)
}

// Scheme prices the frictions of a fill. Implementations are pure: no
// clocks, no I/O, and identical inputs always produce identical outputs.
type Scheme interface {
	// Cost returns the full breakdown for executing shares at the quoted price.
	Cost(action types.TradeAction, shares, price decimal.Decimal) Breakdown
	// EstimateFee returns a conservative fee estimate for a notional amount,
	// used for sizing a buy before the share count is known.
	EstimateFee(action types.TradeAction, notional decimal.Decimal) decimal.Decimal
	// AdjustedPrice returns the slippage-adjusted execution price.
	AdjustedPrice(action types.TradeAction, price decimal.Decimal) decimal.Decimal
}

// ApplySlippage moves a quoted price against the trade: buys fill above the
// quote, sells below it.
func ApplySlippage(action types.TradeAction, price, slippage decimal.Decimal) decimal.Decimal {
	if slippage.IsZero() {
		return price
	}
	if action == types.TradeActionBuy {
		return price.Mul(one.Add(slippage))
	}
	return price.Mul(one.Sub(slippage))
}

// FixedScheme charges a flat commission per trade
type FixedScheme struct {
	Commission decimal.Decimal
	Slippage   decimal.Decimal
}

// NewFixedScheme creates a flat-commission scheme
func NewFixedScheme(commission, slippage decimal.Decimal) *FixedScheme {
	return &FixedScheme{Commission: commission, Slippage: slippage}
}

// Cost returns the flat commission at the adjusted price
func (f *FixedScheme) Cost(action types.TradeAction, shares, price decimal.Decimal) Breakdown {
	return Breakdown{
		Commission:    f.Commission,
		Tax:           decimal.Zero,
		AdjustedPrice: ApplySlippage(action, price, f.Slippage),
	}
}

// EstimateFee returns the flat commission regardless of notional
func (f *FixedScheme) EstimateFee(action types.TradeAction, notional decimal.Decimal) decimal.Decimal {
	return f.Commission
}

// AdjustedPrice returns the slippage-adjusted execution price
func (f *FixedScheme) AdjustedPrice(action types.TradeAction, price decimal.Decimal) decimal.Decimal {
	return ApplySlippage(action, price, f.Slippage)
}

// PercentScheme charges a rate on notional with a per-trade floor
type PercentScheme struct {
	Rate          decimal.Decimal
	MinCommission decimal.Decimal
	Slippage      decimal.Decimal
}

// NewPercentScheme creates a proportional commission scheme
func NewPercentScheme(rate, minCommission, slippage decimal.Decimal) *PercentScheme {
	return &PercentScheme{Rate: rate, MinCommission: minCommission, Slippage: slippage}
}

// Cost returns max(notional*rate, floor) at the adjusted price
func (p *PercentScheme) Cost(action types.TradeAction, shares, price decimal.Decimal) Breakdown {
	adjusted := ApplySlippage(action, price, p.Slippage)
	notional := shares.Abs().Mul(adjusted)
	return Breakdown{
		Commission:    p.commission(notional),
		Tax:           decimal.Zero,
		AdjustedPrice: adjusted,
	}
}

// EstimateFee returns the commission this scheme would charge on a notional
func (p *PercentScheme) EstimateFee(action types.TradeAction, notional decimal.Decimal) decimal.Decimal {
	return p.commission(notional)
}

// AdjustedPrice returns the slippage-adjusted execution price
func (p *PercentScheme) AdjustedPrice(action types.TradeAction, price decimal.Decimal) decimal.Decimal {
	return ApplySlippage(action, price, p.Slippage)
}

func (p *PercentScheme) commission(notional decimal.Decimal) decimal.Decimal {
	c := notional.Mul(p.Rate)
	if c.LessThan(p.MinCommission) {
		return p.MinCommission
	}
	return c
}

// TieredScheme charges a rate chosen by notional bands. Tiers must be
// ascending by threshold; a notional below the first threshold pays the
// default rate.
type TieredScheme struct {
	Tiers       []types.TierRate
	DefaultRate decimal.Decimal
	Slippage    decimal.Decimal
}

// NewTieredScheme creates a banded commission scheme
func NewTieredScheme(tiers []types.TierRate, defaultRate, slippage decimal.Decimal) *TieredScheme {
	return &TieredScheme{Tiers: tiers, DefaultRate: defaultRate, Slippage: slippage}
}

// Cost returns the banded commission at the adjusted price
func (t *TieredScheme) Cost(action types.TradeAction, shares, price decimal.Decimal) Breakdown {
	adjusted := ApplySlippage(action, price, t.Slippage)
	notional := shares.Abs().Mul(adjusted)
	return Breakdown{
		Commission:    notional.Mul(t.rateFor(notional)),
		Tax:           decimal.Zero,
		AdjustedPrice: adjusted,
	}
}

// EstimateFee returns the commission this scheme would charge on a notional
func (t *TieredScheme) EstimateFee(action types.TradeAction, notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(t.rateFor(notional))
}

// AdjustedPrice returns the slippage-adjusted execution price
func (t *TieredScheme) AdjustedPrice(action types.TradeAction, price decimal.Decimal) decimal.Decimal {
	return ApplySlippage(action, price, t.Slippage)
}

// rateFor picks the highest tier whose threshold the notional reaches.
func (t *TieredScheme) rateFor(notional decimal.Decimal) decimal.Decimal {
	rate := t.DefaultRate
	for _, tier := range t.Tiers {
		if notional.GreaterThanOrEqual(tier.Threshold) {
			rate = tier.Rate
		} else {
			break
		}
	}
	return rate
}

// TaxScheme charges a transaction tax on notional, optionally sell-side only
type TaxScheme struct {
	Rate     decimal.Decimal
	SellOnly bool
	Slippage decimal.Decimal
}

// NewTaxScheme creates a transaction tax scheme
func NewTaxScheme(rate decimal.Decimal, sellOnly bool, slippage decimal.Decimal) *TaxScheme {
	return &TaxScheme{Rate: rate, SellOnly: sellOnly, Slippage: slippage}
}

// Cost returns the tax due at the adjusted price
func (t *TaxScheme) Cost(action types.TradeAction, shares, price decimal.Decimal) Breakdown {
	adjusted := ApplySlippage(action, price, t.Slippage)
	notional := shares.Abs().Mul(adjusted)
	return Breakdown{
		Commission:    decimal.Zero,
		Tax:           t.tax(action, notional),
		AdjustedPrice: adjusted,
	}
}

// EstimateFee returns the tax this scheme would charge on a notional
func (t *TaxScheme) EstimateFee(action types.TradeAction, notional decimal.Decimal) decimal.Decimal {
	return t.tax(action, notional)
}

// AdjustedPrice returns the slippage-adjusted execution price
func (t *TaxScheme) AdjustedPrice(action types.TradeAction, price decimal.Decimal) decimal.Decimal {
	return ApplySlippage(action, price, t.Slippage)
}

func (t *TaxScheme) tax(action types.TradeAction, notional decimal.Decimal) decimal.Decimal {
	if t.SellOnly && action != types.TradeActionSell {
		return decimal.Zero
	}
	return notional.Mul(t.Rate)
}

// CombinedScheme sums the commissions and taxes of its parts. Slippage is
// applied once by the combined scheme; parts must be built slippage-free so
// they price the already-adjusted quote.
type CombinedScheme struct {
	Parts    []Scheme
	Slippage decimal.Decimal
}

// NewCombinedScheme creates a scheme that layers several cost parts
func NewCombinedScheme(slippage decimal.Decimal, parts ...Scheme) *CombinedScheme {
	return &CombinedScheme{Parts: parts, Slippage: slippage}
}

// Cost sums the breakdowns of all parts at the combined adjusted price
func (c *CombinedScheme) Cost(action types.TradeAction, shares, price decimal.Decimal) Breakdown {
	adjusted := ApplySlippage(action, price, c.Slippage)
	out := Breakdown{Commission: decimal.Zero, Tax: decimal.Zero, AdjustedPrice: adjusted}
	for _, part := range c.Parts {
		b := part.Cost(action, shares, adjusted)
		out.Commission = out.Commission.Add(b.Commission)
		out.Tax = out.Tax.Add(b.Tax)
	}
	return out
}

// EstimateFee sums the part estimates for a notional
func (c *CombinedScheme) EstimateFee(action types.TradeAction, notional decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, part := range c.Parts {
		total = total.Add(part.EstimateFee(action, notional))
	}
	return total
}

// AdjustedPrice returns the slippage-adjusted execution price
func (c *CombinedScheme) AdjustedPrice(action types.TradeAction, price decimal.Decimal) decimal.Decimal {
	return ApplySlippage(action, price, c.Slippage)
}
