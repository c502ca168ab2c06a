package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Validation errors shared by every entry point that accepts a RunConfig.
var (
	ErrInvalidDateRange    = errors.New("start date is after end date")
	ErrInvalidCapital      = errors.New("initial capital must be positive")
	ErrInvalidPositionSize = errors.New("max position size must be in (0, 1]")
	ErrInvalidCostConfig   = errors.New("invalid cost scheme configuration")
)

// Validation errors shared by every entry point that accepts a
// StressScenarioSpec.
var (
	ErrUnknownScenario = errors.New("unknown stress scenario kind")
	ErrInvalidScenario = errors.New("invalid stress scenario")
)

// CostKind represents the cost scheme variant to build
type CostKind string

const (
	CostKindFixed   CostKind = "fixed"
	CostKindPercent CostKind = "percent"
	CostKindTiered  CostKind = "tiered"
	CostKindPreset  CostKind = "preset"
)

// ScenarioKind represents a stress scenario family
type ScenarioKind string

const (
	ScenarioCrash            ScenarioKind = "crash"
	ScenarioLiquidityCrisis  ScenarioKind = "liquidity_crisis"
	ScenarioVolatilityShock  ScenarioKind = "volatility_shock"
	ScenarioCorrelationShock ScenarioKind = "correlation_shock"
)

// TierRate represents one notional tier of a tiered commission table
type TierRate struct {
	Threshold decimal.Decimal `json:"threshold"` // rate applies at notional >= threshold
	Rate      decimal.Decimal `json:"rate"`
}

// CostSchemeConfig represents the configuration for a transaction cost scheme
type CostSchemeConfig struct {
	Kind          CostKind        `json:"kind"`
	Fixed         decimal.Decimal `json:"fixed,omitempty"`         // fixed: flat commission per trade
	Rate          decimal.Decimal `json:"rate,omitempty"`          // percent: commission rate on notional
	MinCommission decimal.Decimal `json:"minCommission,omitempty"` // percent: floor per trade
	Tiers         []TierRate      `json:"tiers,omitempty"`         // tiered: ascending by threshold
	DefaultRate   decimal.Decimal `json:"defaultRate,omitempty"`   // tiered: below the first threshold
	TaxRate       decimal.Decimal `json:"taxRate,omitempty"`
	TaxOnSellOnly bool            `json:"taxOnSellOnly,omitempty"`
	Slippage      decimal.Decimal `json:"slippage,omitempty"` // fraction of price, adverse direction
	Preset        string          `json:"preset,omitempty"`   // preset: named market profile
}

// MonteCarloConfig represents trade-reshuffle robustness configuration
type MonteCarloConfig struct {
	Iterations  int   `json:"iterations"`
	Seed        int64 `json:"seed,omitempty"`
	Replacement bool  `json:"replacement,omitempty"` // bootstrap instead of permutation
}

// RunConfig represents the configuration for a single replay run
type RunConfig struct {
	Start              time.Time         `json:"start"`
	End                time.Time         `json:"end"`
	InitialCapital     decimal.Decimal   `json:"initialCapital"`
	Cost               CostSchemeConfig  `json:"cost"`
	MaxPositionSize    decimal.Decimal   `json:"maxPositionSize,omitempty"` // fraction of equity per symbol
	ScoreThreshold     decimal.Decimal   `json:"scoreThreshold,omitempty"`  // resolves direction-less signals
	TradingDaysPerYear int               `json:"tradingDaysPerYear,omitempty"`
	RiskFreeRate       decimal.Decimal   `json:"riskFreeRate,omitempty"` // annualized
	Seed               int64             `json:"seed,omitempty"`         // default for any stochastic step of the run
	MonteCarlo         *MonteCarloConfig `json:"monteCarlo,omitempty"`
}

// Validate reports the first fatal problem with the run configuration.
func (c RunConfig) Validate() error {
	if c.Start.After(c.End) {
		return fmt.Errorf("%w: start=%s end=%s", ErrInvalidDateRange,
			c.Start.Format("2006-01-02"), c.End.Format("2006-01-02"))
	}
	if !c.InitialCapital.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidCapital, c.InitialCapital)
	}
	if !c.MaxPositionSize.IsZero() {
		if c.MaxPositionSize.IsNegative() || c.MaxPositionSize.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: got %s", ErrInvalidPositionSize, c.MaxPositionSize)
		}
	}
	if c.TradingDaysPerYear < 0 {
		return fmt.Errorf("trading days per year must not be negative: got %d", c.TradingDaysPerYear)
	}
	return nil
}

// StressScenarioSpec represents the parameters of one stress transform
type StressScenarioSpec struct {
	Kind             ScenarioKind    `json:"kind"`
	From             time.Time       `json:"from"`
	To               time.Time       `json:"to"`
	Symbols          []string        `json:"symbols,omitempty"` // empty means every symbol
	Magnitude        decimal.Decimal `json:"magnitude,omitempty"` // crash: total move, e.g. -0.20
	VolumeMultiplier decimal.Decimal `json:"volumeMultiplier,omitempty"`
	Severity         decimal.Decimal `json:"severity,omitempty"`      // liquidity crisis: > 1
	VolMultiplier    decimal.Decimal `json:"volMultiplier,omitempty"` // volatility shock: sigma scale
	Correlation      [][]float64     `json:"correlation,omitempty"`   // correlation shock: target matrix
	Seed             int64           `json:"seed,omitempty"`
}

// Validate reports the first unusable parameter for the scenario kind.
// Checks that need the price dataset, such as symbol membership or window
// alignment, are left to the generator.
func (s StressScenarioSpec) Validate() error {
	switch s.Kind {
	case ScenarioCrash:
		if s.Magnitude.LessThanOrEqual(decimal.NewFromInt(-1)) {
			return fmt.Errorf("%w: crash magnitude %s loses more than everything", ErrInvalidScenario, s.Magnitude)
		}
	case ScenarioLiquidityCrisis:
		if s.Severity.LessThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: liquidity severity must exceed 1, got %s", ErrInvalidScenario, s.Severity)
		}
	case ScenarioVolatilityShock:
		if !s.VolMultiplier.IsPositive() {
			return fmt.Errorf("%w: volatility multiplier must be positive, got %s", ErrInvalidScenario, s.VolMultiplier)
		}
	case ScenarioCorrelationShock:
		n := len(s.Symbols)
		if n < 2 {
			return fmt.Errorf("%w: correlation shock needs at least two symbols", ErrInvalidScenario)
		}
		if len(s.Correlation) != n {
			return fmt.Errorf("%w: correlation matrix is %dx%d for %d symbols",
				ErrInvalidScenario, len(s.Correlation), len(s.Correlation), n)
		}
		for i, row := range s.Correlation {
			if len(row) != n {
				return fmt.Errorf("%w: correlation row %d has %d entries, want %d",
					ErrInvalidScenario, i, len(row), n)
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, s.Kind)
	}
	return nil
}
