// Package metrics derives run statistics from an equity curve and a trade
// ledger. Every function here is pure: money enters and leaves as decimal,
// the statistical interior runs on float64, and zero-variance denominators
// yield 0 instead of NaN so the result record is always fully populated.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/quantfold/replaycore/internal/dataset"
	"github.com/quantfold/replaycore/pkg/types"
)

// Options parameterizes a metrics computation.
type Options struct {
	InitialCapital     decimal.Decimal
	TradingDaysPerYear int     // defaults to 252
	RiskFreeRate       float64 // annualized
	Benchmark          *dataset.Benchmark
}

// Calculate produces the full statistics record for one run. Calling it
// twice on the same inputs yields identical results.
func Calculate(curve []types.PortfolioSnapshot, trades []types.Trade, opts Options) types.MetricsResult {
	var m types.MetricsResult
	if len(curve) == 0 {
		return m
	}
	if opts.TradingDaysPerYear <= 0 {
		opts.TradingDaysPerYear = 252
	}
	periodsPerYear := float64(opts.TradingDaysPerYear)
	sqrtYear := math.Sqrt(periodsPerYear)
	rfDaily := opts.RiskFreeRate / periodsPerYear

	if opts.InitialCapital.IsPositive() {
		final := curve[len(curve)-1].TotalValue
		m.TotalReturn = final.Sub(opts.InitialCapital).Div(opts.InitialCapital)
	}

	// Annualize by compounding over (days / periodsPerYear) years. A wiped
	// account has no meaningful compounding rate; report -100%.
	growth := 1 + m.TotalReturn.InexactFloat64()
	if growth <= 0 {
		m.AnnualizedReturn = decimal.NewFromInt(-1)
	} else {
		m.AnnualizedReturn = decimal.NewFromFloat(math.Pow(growth, periodsPerYear/float64(len(curve))) - 1)
	}

	returns, dates := dailyReturns(curve)
	m.AnnualVolatility = decimal.NewFromFloat(stdDev(returns) * sqrtYear)

	excess := make([]float64, len(returns))
	var negative []float64
	for i, r := range returns {
		excess[i] = r - rfDaily
		if excess[i] < 0 {
			negative = append(negative, excess[i])
		}
	}
	meanExcess := mean(excess)
	if sd := stdDev(excess); sd > 0 {
		m.SharpeRatio = decimal.NewFromFloat(meanExcess / sd * sqrtYear)
	}
	if dd := stdDev(negative); dd > 0 {
		m.SortinoRatio = decimal.NewFromFloat(meanExcess / dd * sqrtYear)
	}

	m.MaxDrawdown, m.MaxDrawdownDuration = maxDrawdown(curve)
	if m.MaxDrawdown.IsPositive() {
		m.CalmarRatio = m.AnnualizedReturn.Div(m.MaxDrawdown)
	}

	fillTradeStats(&m, trades)
	fillBenchmarkStats(&m, returns, dates, rfDaily, periodsPerYear, opts.Benchmark)
	fillTailRisk(&m, returns)

	return m
}

// dailyReturns converts the equity curve into day-over-day simple returns.
// dates[i] is the day returns[i] realized, for benchmark alignment.
func dailyReturns(curve []types.PortfolioSnapshot) ([]float64, []time.Time) {
	if len(curve) < 2 {
		return nil, nil
	}
	returns := make([]float64, 0, len(curve)-1)
	dates := make([]time.Time, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].TotalValue
		if prev.IsZero() {
			continue
		}
		r := curve[i].TotalValue.Sub(prev).Div(prev)
		returns = append(returns, r.InexactFloat64())
		dates = append(dates, curve[i].Date)
	}
	return returns, dates
}

// maxDrawdown returns the deepest decline from a running peak as a positive
// fraction of that peak, and the longest stretch of consecutive days spent
// below a peak, counting an unrecovered stretch at the end of the curve.
func maxDrawdown(curve []types.PortfolioSnapshot) (decimal.Decimal, int) {
	maxDD := decimal.Zero
	duration := 0
	if len(curve) == 0 {
		return maxDD, duration
	}

	peak := curve[0].TotalValue
	underwater := 0
	for i := 1; i < len(curve); i++ {
		v := curve[i].TotalValue
		if v.LessThan(peak) {
			underwater++
			if underwater > duration {
				duration = underwater
			}
			if peak.IsPositive() {
				if dd := peak.Sub(v).Div(peak); dd.GreaterThan(maxDD) {
					maxDD = dd
				}
			}
			continue
		}
		underwater = 0
		if v.GreaterThan(peak) {
			peak = v
		}
	}
	return maxDD, duration
}

func fillTradeStats(m *types.MetricsResult, trades []types.Trade) {
	rts := RoundTrips(trades)
	m.RoundTrips = len(rts)
	if len(rts) == 0 {
		return
	}

	wins, losses := 0, 0
	grossWin, grossLoss := decimal.Zero, decimal.Zero
	largestWin, largestLoss := decimal.Zero, decimal.Zero
	sumReturn := 0.0

	for _, rt := range rts {
		sumReturn += rt.Return
		switch {
		case rt.Profit.IsPositive():
			wins++
			grossWin = grossWin.Add(rt.Profit)
			if rt.Profit.GreaterThan(largestWin) {
				largestWin = rt.Profit
			}
		case rt.Profit.IsNegative():
			losses++
			loss := rt.Profit.Abs()
			grossLoss = grossLoss.Add(loss)
			if loss.GreaterThan(largestLoss) {
				largestLoss = loss
			}
		}
	}

	m.WinningTrades = wins
	m.LosingTrades = losses
	m.WinRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(rts))))
	if grossLoss.IsPositive() {
		m.ProfitFactor = grossWin.Div(grossLoss)
	}
	m.AvgTradeReturn = decimal.NewFromFloat(sumReturn / float64(len(rts)))
	m.LargestWin = largestWin
	m.LargestLoss = largestLoss
}

// fillTailRisk computes historical VaR and expected shortfall from the
// daily return distribution.
func fillTailRisk(m *types.MetricsResult, returns []float64) {
	if len(returns) == 0 {
		return
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	idx95 := int(float64(len(sorted)) * 0.05)
	idx99 := int(float64(len(sorted)) * 0.01)
	if idx95 < len(sorted) {
		m.VaR95 = decimal.NewFromFloat(-sorted[idx95])
	}
	if idx99 < len(sorted) {
		m.VaR99 = decimal.NewFromFloat(-sorted[idx99])
	}
	if idx95 > 0 {
		sum := 0.0
		for _, r := range sorted[:idx95] {
			sum += r
		}
		m.CVaR95 = decimal.NewFromFloat(-sum / float64(idx95))
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// stdDev is the sample standard deviation, 0 for fewer than two points so
// ratio metrics degrade to 0 instead of NaN.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
