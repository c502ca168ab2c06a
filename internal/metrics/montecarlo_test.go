package metrics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/replaycore/pkg/types"
)

func mcTrades(t *testing.T) []types.Trade {
	t.Helper()
	return []types.Trade{
		buyTrade(t, "A", "2024-01-02", 10, 1000),
		sellTrade(t, "A", "2024-01-03", 10, 1100), // +10%
		buyTrade(t, "B", "2024-01-04", 10, 1000),
		sellTrade(t, "B", "2024-01-05", 10, 950), // -5%
		buyTrade(t, "C", "2024-01-08", 10, 1000),
		sellTrade(t, "C", "2024-01-09", 10, 1020), // +2%
	}
}

func TestRunMonteCarloSeedDeterminism(t *testing.T) {
	t.Parallel()

	cfg := types.MonteCarloConfig{Iterations: 200, Seed: 42, Replacement: true}
	first := RunMonteCarlo(mcTrades(t), cfg)
	second := RunMonteCarlo(mcTrades(t), cfg)
	assert.Equal(t, first, second, "a fixed seed must reproduce the run exactly")
}

func TestRunMonteCarloShuffleKeepsTotalInvariant(t *testing.T) {
	t.Parallel()

	res := RunMonteCarlo(mcTrades(t), types.MonteCarloConfig{Iterations: 100, Seed: 7})
	require.Equal(t, 100, res.Iterations)

	// Reordering multiplies the same factors: 1.10 * 0.95 * 1.02 - 1.
	want := 1.10*0.95*1.02 - 1
	assert.InDelta(t, want, res.MedianReturn.InexactFloat64(), 1e-9)
	assert.InDelta(t, res.P5Return.InexactFloat64(), res.P95Return.InexactFloat64(), 1e-9,
		"permutations cannot spread the compounded total")
}

func TestRunMonteCarloBootstrapSpreadsOutcomes(t *testing.T) {
	t.Parallel()

	res := RunMonteCarlo(mcTrades(t), types.MonteCarloConfig{Iterations: 500, Seed: 7, Replacement: true})
	assert.True(t, res.P5Return.LessThan(res.P95Return), "resampling with replacement varies the total")
	assert.False(t, res.MaxDrawdownP95.IsNegative(), "drawdown is a magnitude")
	assert.False(t, res.ProbabilityOfLoss.IsNegative())
}

func TestRunMonteCarloNoRoundTrips(t *testing.T) {
	t.Parallel()

	res := RunMonteCarlo(nil, types.MonteCarloConfig{Iterations: 100, Seed: 1})
	assert.Zero(t, res.Iterations, "nothing to resample without closed trades")
}

func TestRunMonteCarloProbabilityOfLossBounds(t *testing.T) {
	t.Parallel()

	winners := []types.Trade{
		buyTrade(t, "A", "2024-01-02", 10, 1000),
		sellTrade(t, "A", "2024-01-03", 10, 1100),
		buyTrade(t, "B", "2024-01-04", 10, 1000),
		sellTrade(t, "B", "2024-01-05", 10, 1200),
	}
	res := RunMonteCarlo(winners, types.MonteCarloConfig{Iterations: 100, Seed: 3, Replacement: true})
	assert.True(t, res.ProbabilityOfLoss.IsZero(), "all-winning trades cannot produce a losing path")

	losers := []types.Trade{
		buyTrade(t, "A", "2024-01-02", 10, 1000),
		sellTrade(t, "A", "2024-01-03", 10, 900),
		buyTrade(t, "B", "2024-01-04", 10, 1000),
		sellTrade(t, "B", "2024-01-05", 10, 800),
	}
	res = RunMonteCarlo(losers, types.MonteCarloConfig{Iterations: 100, Seed: 3, Replacement: true})
	assert.True(t, res.ProbabilityOfLoss.Equal(decimal.NewFromInt(1)), "all-losing trades lose on every path")
}

func TestSimulatePath(t *testing.T) {
	t.Parallel()

	total, dd := simulatePath([]float64{0.10, -0.50, 0.20})
	// 1.10 * 0.50 * 1.20 = 0.66
	assert.InDelta(t, -0.34, total, 1e-12)
	assert.InDelta(t, 0.50, dd, 1e-12)

	total, dd = simulatePath(nil)
	assert.Zero(t, total)
	assert.Zero(t, dd)
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	sorted := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 3, percentile(sorted, 0.5), 1e-12)
	assert.InDelta(t, 1, percentile(sorted, 0), 1e-12)
	assert.InDelta(t, 5, percentile(sorted, 1), 1e-12)
	assert.InDelta(t, 1.2, percentile(sorted, 0.05), 1e-12)
	assert.Zero(t, percentile(nil, 0.5))
}
