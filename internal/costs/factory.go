package costs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/quantfold/replaycore/pkg/types"
)

var (
	// ErrUnknownKind is returned for a cost kind the factory does not recognize.
	ErrUnknownKind = errors.New("unknown cost scheme kind")
	// ErrUnknownPreset is returned for a preset name the factory does not recognize.
	ErrUnknownPreset = errors.New("unknown cost preset")
)

// FromConfig builds a Scheme from configuration. A non-zero tax rate wraps
// the commission scheme and a tax scheme into a combined scheme so slippage
// is applied exactly once.
func FromConfig(cfg types.CostSchemeConfig) (Scheme, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	var commission Scheme
	switch cfg.Kind {
	case types.CostKindFixed:
		commission = NewFixedScheme(cfg.Fixed, decimal.Zero)
	case types.CostKindPercent:
		commission = NewPercentScheme(cfg.Rate, cfg.MinCommission, decimal.Zero)
	case types.CostKindTiered:
		tiers := make([]types.TierRate, len(cfg.Tiers))
		copy(tiers, cfg.Tiers)
		sort.Slice(tiers, func(i, j int) bool {
			return tiers[i].Threshold.LessThan(tiers[j].Threshold)
		})
		commission = NewTieredScheme(tiers, cfg.DefaultRate, decimal.Zero)
	case types.CostKindPreset:
		return FromPreset(cfg.Preset)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}

	if cfg.TaxRate.IsPositive() {
		tax := NewTaxScheme(cfg.TaxRate, cfg.TaxOnSellOnly, decimal.Zero)
		return NewCombinedScheme(cfg.Slippage, commission, tax), nil
	}
	return NewCombinedScheme(cfg.Slippage, commission), nil
}

// FromPreset returns the scheme for a named market profile.
func FromPreset(name string) (Scheme, error) {
	switch name {
	case "zero":
		// Frictionless profile: useful as a control run.
		return NewCombinedScheme(decimal.Zero, NewFixedScheme(decimal.Zero, decimal.Zero)), nil
	case "cn_ashare":
		// Mainland China A-shares: 0.025% commission with a 5 CNY floor,
		// 0.1% stamp tax charged on sells only.
		return NewCombinedScheme(
			decimal.NewFromFloat(0.001),
			NewPercentScheme(decimal.NewFromFloat(0.00025), decimal.NewFromInt(5), decimal.Zero),
			NewTaxScheme(decimal.NewFromFloat(0.001), true, decimal.Zero),
		), nil
	case "us_flat":
		// Flat-ticket US retail profile, no transaction tax.
		return NewCombinedScheme(
			decimal.NewFromFloat(0.0005),
			NewFixedScheme(decimal.NewFromInt(1), decimal.Zero),
		), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// PresetNames lists the preset profiles FromPreset accepts.
func PresetNames() []string {
	return []string{"cn_ashare", "us_flat", "zero"}
}

func validate(cfg types.CostSchemeConfig) error {
	if cfg.Slippage.IsNegative() || cfg.Slippage.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: slippage %s outside [0, 1)", types.ErrInvalidCostConfig, cfg.Slippage)
	}
	for _, v := range []struct {
		name string
		val  decimal.Decimal
	}{
		{"fixed", cfg.Fixed},
		{"rate", cfg.Rate},
		{"minCommission", cfg.MinCommission},
		{"defaultRate", cfg.DefaultRate},
		{"taxRate", cfg.TaxRate},
	} {
		if v.val.IsNegative() {
			return fmt.Errorf("%w: negative %s %s", types.ErrInvalidCostConfig, v.name, v.val)
		}
	}
	for _, tier := range cfg.Tiers {
		if tier.Rate.IsNegative() || tier.Threshold.IsNegative() {
			return fmt.Errorf("%w: negative tier value", types.ErrInvalidCostConfig)
		}
	}
	return nil
}
