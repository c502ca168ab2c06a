// Package stress perturbs historical price datasets to test strategy
// robustness. Every scenario is a pure transform: the input dataset is never
// modified, and the output feeds straight back into the replay engine.
package stress

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantfold/replaycore/internal/dataset"
	"github.com/quantfold/replaycore/pkg/types"
)

var (
	// ErrUnknownScenario is returned for an unrecognized scenario kind.
	ErrUnknownScenario = types.ErrUnknownScenario
	// ErrInvalidScenario is returned when scenario parameters are unusable.
	ErrInvalidScenario = types.ErrInvalidScenario
	// ErrNotPositiveDefinite is returned when a correlation-shock target
	// matrix has no Cholesky factorization.
	ErrNotPositiveDefinite = errors.New("correlation matrix is not positive definite")
	// ErrZeroVolatility is returned when a correlation-shock symbol has no
	// return variance to scale.
	ErrZeroVolatility = errors.New("symbol has zero return volatility")
)

// Generator applies stress scenarios to price datasets.
type Generator struct {
	logger *zap.Logger
}

// NewGenerator creates a scenario generator. A nil logger disables logging.
func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger}
}

// Apply produces a new price dataset with the scenario's perturbation
// applied. The input dataset is left untouched. Scenarios with a random
// component honor spec.Seed; a zero seed draws a time-based one.
func (g *Generator) Apply(spec types.StressScenarioSpec, prices *dataset.Prices) (*dataset.Prices, error) {
	if prices.Empty() {
		return nil, fmt.Errorf("%w: price dataset is empty", ErrInvalidScenario)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	seed := spec.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	g.logger.Info("applying stress scenario",
		zap.String("kind", string(spec.Kind)),
		zap.Strings("symbols", spec.Symbols),
		zap.Int64("seed", seed),
	)

	switch spec.Kind {
	case types.ScenarioCrash:
		return g.applyCrash(spec, prices)
	case types.ScenarioLiquidityCrisis:
		return g.applyLiquidityCrisis(spec, prices)
	case types.ScenarioVolatilityShock:
		return g.applyVolatilityShock(spec, prices, rng)
	case types.ScenarioCorrelationShock:
		return g.applyCorrelationShock(spec, prices, rng)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, spec.Kind)
	}
}

// applyCrash compounds a constant daily rate through the window so the last
// windowed close lands at (1 + Magnitude) times its unstressed level, per
// symbol. Window volume is scaled by VolumeMultiplier.
func (g *Generator) applyCrash(spec types.StressScenarioSpec, prices *dataset.Prices) (*dataset.Prices, error) {
	target := spec.Magnitude.InexactFloat64()

	volumeScale := spec.VolumeMultiplier
	if !volumeScale.IsPositive() {
		volumeScale = decimal.NewFromInt(1)
	}

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

		daily := math.Pow(1+target, 1/float64(len(idx))) - 1
		factor := 1.0
		for _, i := range idx {
			factor *= 1 + daily
			f := decimal.NewFromFloat(factor)
			series[i].Open = series[i].Open.Mul(f)
			series[i].High = series[i].High.Mul(f)
			series[i].Low = series[i].Low.Mul(f)
			series[i].Close = series[i].Close.Mul(f)
			series[i].Volume = series[i].Volume.Mul(volumeScale)
		}
		out = append(out, series...)
	}
	return dataset.NewPrices(out), nil
}

// applyLiquidityCrisis divides window volume by Severity and widens the
// high-low spread by the same factor, symmetrically around the original
// midpoint. Open and close are untouched, so bar invariants keep holding.
func (g *Generator) applyLiquidityCrisis(spec types.StressScenarioSpec, prices *dataset.Prices) (*dataset.Prices, error) {
	two := decimal.NewFromInt(2)
	lowFloor := decimal.NewFromFloat(0.01)

	affected := newSymbolSet(spec.Symbols)
	out := make([]types.PriceBar, 0, prices.NumBars())
	for _, symbol := range prices.Symbols() {
		series := copySeries(prices.Series(symbol))
		if affected.skip(symbol) {
			out = append(out, series...)
			continue
		}

		for _, i := range windowIndexes(series, spec.From, spec.To) {
			bar := &series[i]
			mid := bar.High.Add(bar.Low).Div(two)
			half := bar.High.Sub(bar.Low).Div(two).Mul(spec.Severity)

			low := mid.Sub(half)
			// A huge severity on a wide bar could push the low through
			// zero; hold it at a positive sliver of the original.
			if floor := bar.Low.Mul(lowFloor); low.LessThan(floor) {
				low = floor
			}
			bar.High = mid.Add(half)
			bar.Low = low
			bar.Volume = bar.Volume.Div(spec.Severity)
		}
		out = append(out, series...)
	}
	return dataset.NewPrices(out), nil
}

type symbolSet map[string]struct{}

func newSymbolSet(symbols []string) symbolSet {
	if len(symbols) == 0 {
		return nil // nil set means every symbol is affected
	}
	set := make(symbolSet, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

func (s symbolSet) skip(symbol string) bool {
	if s == nil {
		return false
	}
	_, ok := s[symbol]
	return !ok
}

func copySeries(series []types.PriceBar) []types.PriceBar {
	return append([]types.PriceBar(nil), series...)
}

// windowIndexes returns the positions of bars inside [from, to]. A zero
// bound leaves that side of the window open.
func windowIndexes(series []types.PriceBar, from, to time.Time) []int {
	var idx []int
	for i, bar := range series {
		if inWindow(bar.Date, from, to) {
			idx = append(idx, i)
		}
	}
	return idx
}

func inWindow(day, from, to time.Time) bool {
	day = dataset.Day(day)
	if !from.IsZero() && day.Before(dataset.Day(from)) {
		return false
	}
	if !to.IsZero() && day.After(dataset.Day(to)) {
		return false
	}
	return true
}
