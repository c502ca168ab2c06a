// Package config loads replay run configuration from YAML files, layering
// REPLAY_* environment overrides on top (REPLAY_RUN_START overrides
// run.start, and so on).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/quantfold/replaycore/internal/dataset"
	"github.com/quantfold/replaycore/pkg/types"
)

const dateLayout = "2006-01-02"

// Load reads the file at path, applies defaults and environment overrides,
// and validates the assembled configuration.
func Load(path string) (types.RunConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("REPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return types.RunConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return build(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.max_position_size", 1.0)
	v.SetDefault("run.score_threshold", 0.5)
	v.SetDefault("run.trading_days_per_year", 252)
	v.SetDefault("run.risk_free_rate", 0.0)
	v.SetDefault("cost.kind", string(types.CostKindFixed))
}

func build(v *viper.Viper) (types.RunConfig, error) {
	start, err := dateAt(v, "run.start")
	if err != nil {
		return types.RunConfig{}, err
	}
	end, err := dateAt(v, "run.end")
	if err != nil {
		return types.RunConfig{}, err
	}
	cost, err := buildCost(v)
	if err != nil {
		return types.RunConfig{}, err
	}

	cfg := types.RunConfig{
		Start:              start,
		End:                end,
		InitialCapital:     decimal.NewFromFloat(v.GetFloat64("run.initial_capital")),
		Cost:               cost,
		MaxPositionSize:    decimal.NewFromFloat(v.GetFloat64("run.max_position_size")),
		ScoreThreshold:     decimal.NewFromFloat(v.GetFloat64("run.score_threshold")),
		TradingDaysPerYear: v.GetInt("run.trading_days_per_year"),
		RiskFreeRate:       decimal.NewFromFloat(v.GetFloat64("run.risk_free_rate")),
		Seed:               v.GetInt64("run.seed"),
	}

	if iters := v.GetInt("monte_carlo.iterations"); iters > 0 {
		cfg.MonteCarlo = &types.MonteCarloConfig{
			Iterations:  iters,
			Seed:        v.GetInt64("monte_carlo.seed"),
			Replacement: v.GetBool("monte_carlo.replacement"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return types.RunConfig{}, err
	}
	return cfg, nil
}

func buildCost(v *viper.Viper) (types.CostSchemeConfig, error) {
	cost := types.CostSchemeConfig{
		Kind:          types.CostKind(v.GetString("cost.kind")),
		Fixed:         decimal.NewFromFloat(v.GetFloat64("cost.fixed")),
		Rate:          decimal.NewFromFloat(v.GetFloat64("cost.rate")),
		MinCommission: decimal.NewFromFloat(v.GetFloat64("cost.min_commission")),
		DefaultRate:   decimal.NewFromFloat(v.GetFloat64("cost.default_rate")),
		TaxRate:       decimal.NewFromFloat(v.GetFloat64("cost.tax_rate")),
		TaxOnSellOnly: v.GetBool("cost.tax_on_sell_only"),
		Slippage:      decimal.NewFromFloat(v.GetFloat64("cost.slippage")),
		Preset:        v.GetString("cost.preset"),
	}

	var tiers []struct {
		Threshold float64 `mapstructure:"threshold"`
		Rate      float64 `mapstructure:"rate"`
	}
	if err := v.UnmarshalKey("cost.tiers", &tiers); err != nil {
		return types.CostSchemeConfig{}, fmt.Errorf("cost.tiers: %w", err)
	}
	for _, t := range tiers {
		cost.Tiers = append(cost.Tiers, types.TierRate{
			Threshold: decimal.NewFromFloat(t.Threshold),
			Rate:      decimal.NewFromFloat(t.Rate),
		})
	}
	return cost, nil
}

// dateAt accepts both spellings YAML produces: an unquoted scalar like
// 2024-01-02 arrives as time.Time, a quoted one (or an environment
// override) arrives as a string.
func dateAt(v *viper.Viper, key string) (time.Time, error) {
	switch raw := v.Get(key).(type) {
	case time.Time:
		return dataset.Day(raw.UTC()), nil
	case string:
		if raw == "" {
			return time.Time{}, fmt.Errorf("%s: missing date", key)
		}
		day, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", key, err)
		}
		return day, nil
	case nil:
		return time.Time{}, fmt.Errorf("%s: missing date", key)
	default:
		return time.Time{}, fmt.Errorf("%s: cannot parse %v as a date", key, raw)
	}
}
