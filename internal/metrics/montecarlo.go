package metrics

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/replaycore/pkg/types"
)

// RunMonteCarlo resamples the run's closed-trade returns to estimate how
// sensitive the outcome is to trade ordering and selection. With
// Replacement set, each iteration bootstraps a same-length sample from the
// observed returns; otherwise it shuffles them, which preserves the
// compounded total and varies only the drawdown path. A non-zero Seed makes
// the resampling reproducible.
func RunMonteCarlo(trades []types.Trade, cfg types.MonteCarloConfig) types.MonteCarloResult {
	var res types.MonteCarloResult

	rts := RoundTrips(trades)
	if len(rts) == 0 {
		return res
	}
	base := make([]float64, len(rts))
	for i, rt := range rts {
		base[i] = rt.Return
	}

	iters := cfg.Iterations
	if iters <= 0 {
		iters = 1000
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	totals := make([]float64, iters)
	drawdowns := make([]float64, iters)
	losses := 0
	sample := make([]float64, len(base))

	for i := 0; i < iters; i++ {
		if cfg.Replacement {
			for j := range sample {
				sample[j] = base[rng.Intn(len(base))]
			}
		} else {
			copy(sample, base)
			rng.Shuffle(len(sample), func(a, b int) {
				sample[a], sample[b] = sample[b], sample[a]
			})
		}
		total, dd := simulatePath(sample)
		totals[i] = total
		drawdowns[i] = dd
		if total < 0 {
			losses++
		}
	}

	sort.Float64s(totals)
	sort.Float64s(drawdowns)

	res.Iterations = iters
	res.MedianReturn = decimal.NewFromFloat(percentile(totals, 0.50))
	res.P5Return = decimal.NewFromFloat(percentile(totals, 0.05))
	res.P95Return = decimal.NewFromFloat(percentile(totals, 0.95))
	res.ProbabilityOfLoss = decimal.NewFromFloat(float64(losses) / float64(iters))
	res.MaxDrawdownP95 = decimal.NewFromFloat(percentile(drawdowns, 0.95))
	return res
}

// simulatePath compounds a unit of equity through the given trade returns
// and reports the total return and the deepest peak-relative drawdown.
func simulatePath(returns []float64) (total, maxDD float64) {
	equity, peak := 1.0, 1.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return equity - 1, maxDD
}

// percentile linearly interpolates between the two nearest ranks of an
// ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
