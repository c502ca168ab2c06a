package stress

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/quantfold/replaycore/internal/dataset"
	"github.com/quantfold/replaycore/pkg/types"
)

// minReturn keeps reconstructed prices positive: one sampled day can lose
// at most 99%.
const minReturn = -0.99

// applyVolatilityShock resamples window returns from a normal distribution
// with each symbol's original mean and a standard deviation scaled by
// VolMultiplier, then recompounds the price path from the last pre-window
// close.
func (g *Generator) applyVolatilityShock(spec types.StressScenarioSpec, prices *dataset.Prices, rng *rand.Rand) (*dataset.Prices, error) {
	volMul := spec.VolMultiplier.InexactFloat64()

	affected := newSymbolSet(spec.Symbols)
	out := make([]types.PriceBar, 0, prices.NumBars())
	for _, symbol := range prices.Symbols() {
		series := copySeries(prices.Series(symbol))
		if affected.skip(symbol) {
			out = append(out, series...)
			continue
		}

		idx := windowIndexes(series, spec.From, spec.To)
		if len(idx) == 0 {
			out = append(out, series...)
			continue
		}

		base := baseClose(series, idx[0])
		returns := closeReturns(series, idx, base)
		mu := meanOf(returns)
		sigma := stdDevOf(returns) * volMul

		prev := base
		for _, i := range idx {
			r := mu + sigma*rng.NormFloat64()
			if r < minReturn {
				r = minReturn
			}
			next := prev * (1 + r)
			rebuildBar(&series[i], prev, next)
			prev = next
		}
		out = append(out, series...)
	}
	return dataset.NewPrices(out), nil
}

// applyCorrelationShock replaces the window returns of the chosen symbols
// with draws whose marginal mean and volatility match each symbol's
// history, correlated per the target matrix. The target covariance is
// factored with a Cholesky decomposition; a matrix that is not positive
// definite is a configuration error surfaced before any bar changes.
func (g *Generator) applyCorrelationShock(spec types.StressScenarioSpec, prices *dataset.Prices, rng *rand.Rand) (*dataset.Prices, error) {
	n := len(spec.Symbols)
	for _, symbol := range spec.Symbols {
		if !prices.HasSymbol(symbol) {
			return nil, fmt.Errorf("%w: symbol %s not in dataset", ErrInvalidScenario, symbol)
		}
	}

	days := alignedDays(spec, prices)
	if len(days) < 2 {
		return nil, fmt.Errorf("%w: fewer than two window days shared by all symbols", ErrInvalidScenario)
	}

	// Per-symbol historical moments over the aligned days.
	mus := make([]float64, n)
	vols := make([]float64, n)
	bases := make([]float64, n)
	for i, symbol := range spec.Symbols {
		series := prices.Series(symbol)
		idx := indexesForDays(series, days)
		base := baseClose(series, idx[0])
		returns := closeReturns(series, idx, base)
		mus[i] = meanOf(returns)
		vols[i] = stdDevOf(returns)
		bases[i] = base
		if vols[i] == 0 {
			return nil, fmt.Errorf("%w: %s", ErrZeroVolatility, symbol)
		}
	}

	// Target covariance: sigma_ij = corr_ij * vol_i * vol_j.
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, spec.Correlation[i][j]*vols[i]*vols[j])
		}
	}
	var ch mat.Cholesky
	if ok := ch.Factorize(cov); !ok {
		return nil, ErrNotPositiveDefinite
	}
	lower := mat.NewTriDense(n, mat.Lower, nil)
	ch.LTo(lower)

	// One standard-normal vector per day, pushed through L and shifted by
	// the means, gives returns with the wanted joint distribution.
	shocked := make([][]float64, n)
	for i := range shocked {
		shocked[i] = make([]float64, len(days))
	}
	z := make([]float64, n)
	for k := range days {
		for j := range z {
			z[j] = rng.NormFloat64()
		}
		for i := 0; i < n; i++ {
			r := mus[i]
			for j := 0; j <= i; j++ {
				r += lower.At(i, j) * z[j]
			}
			if r < minReturn {
				r = minReturn
			}
			shocked[i][k] = r
		}
	}

	rebuilt := make(map[string][]types.PriceBar, n)
	for i, symbol := range spec.Symbols {
		series := copySeries(prices.Series(symbol))
		idx := indexesForDays(series, days)
		prev := bases[i]
		for k, j := range idx {
			next := prev * (1 + shocked[i][k])
			rebuildBar(&series[j], prev, next)
			prev = next
		}
		rebuilt[symbol] = series
	}

	out := make([]types.PriceBar, 0, prices.NumBars())
	for _, symbol := range prices.Symbols() {
		if series, ok := rebuilt[symbol]; ok {
			out = append(out, series...)
			continue
		}
		out = append(out, prices.Series(symbol)...)
	}
	return dataset.NewPrices(out), nil
}

// alignedDays returns the window days on which every chosen symbol has a
// bar, in date order.
func alignedDays(spec types.StressScenarioSpec, prices *dataset.Prices) []time.Time {
	var days []time.Time
	for _, bar := range prices.Series(spec.Symbols[0]) {
		if !inWindow(bar.Date, spec.From, spec.To) {
			continue
		}
		shared := true
		for _, symbol := range spec.Symbols[1:] {
			if _, ok := prices.Bar(symbol, bar.Date); !ok {
				shared = false
				break
			}
		}
		if shared {
			days = append(days, bar.Date)
		}
	}
	return days
}

// indexesForDays maps aligned days back to positions in one symbol's series.
func indexesForDays(series []types.PriceBar, days []time.Time) []int {
	byDay := make(map[time.Time]int, len(series))
	for i, bar := range series {
		byDay[bar.Date] = i
	}
	idx := make([]int, 0, len(days))
	for _, day := range days {
		if i, ok := byDay[day]; ok {
			idx = append(idx, i)
		}
	}
	return idx
}

// baseClose is the anchor the new path compounds from: the close preceding
// the first windowed bar, or that bar's open when the window opens the
// series.
func baseClose(series []types.PriceBar, first int) float64 {
	if first > 0 {
		return series[first-1].Close.InexactFloat64()
	}
	return series[first].Open.InexactFloat64()
}

// closeReturns computes simple close-to-close returns over the windowed
// bars, anchored at base.
func closeReturns(series []types.PriceBar, idx []int, base float64) []float64 {
	returns := make([]float64, 0, len(idx))
	prev := base
	for _, i := range idx {
		c := series[i].Close.InexactFloat64()
		if prev != 0 {
			returns = append(returns, c/prev-1)
		}
		prev = c
	}
	return returns
}

// rebuildBar rewrites a bar around a new open/close pair, spreading high
// and low by a fixed 1% so OHLC ordering always holds.
func rebuildBar(bar *types.PriceBar, open, close float64) {
	bar.Open = decimal.NewFromFloat(open)
	bar.Close = decimal.NewFromFloat(close)
	bar.High = decimal.NewFromFloat(math.Max(open, close) * 1.01)
	bar.Low = decimal.NewFromFloat(math.Min(open, close) * 0.99)
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func stdDevOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
