package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantfold/replaycore/internal/stress"
	"github.com/quantfold/replaycore/pkg/types"
)

func newStressCmd(opts *rootOptions) *cobra.Command {
	var (
		pricesPath string
		outPath    string
		kind       string
		fromStr    string
		toStr      string
		symbols    []string

		magnitude   float64
		volumeMul   float64
		severity    float64
		volMul      float64
		correlation float64
		seed        int64
	)

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Apply a stress scenario to a price CSV and write the perturbed copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pricesPath == "" {
				return fmt.Errorf("--prices is required")
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			if kind == "" {
				return fmt.Errorf("--kind is required")
			}

			spec := types.StressScenarioSpec{
				Kind:    types.ScenarioKind(kind),
				Symbols: symbols,
				Seed:    seed,
			}
			var err error
			if fromStr != "" {
				if spec.From, err = parseDay(fromStr); err != nil {
					return fmt.Errorf("bad --from: %w", err)
				}
			}
			if toStr != "" {
				if spec.To, err = parseDay(toStr); err != nil {
					return fmt.Errorf("bad --to: %w", err)
				}
			}

			switch spec.Kind {
			case types.ScenarioCrash:
				spec.Magnitude = decimal.NewFromFloat(magnitude)
				spec.VolumeMultiplier = decimal.NewFromFloat(volumeMul)
			case types.ScenarioLiquidityCrisis:
				spec.Severity = decimal.NewFromFloat(severity)
			case types.ScenarioVolatilityShock:
				spec.VolMultiplier = decimal.NewFromFloat(volMul)
			case types.ScenarioCorrelationShock:
				spec.Correlation = uniformCorrelation(len(symbols), correlation)
			}
			if err := spec.Validate(); err != nil {
				return err
			}

			logger := setupLogger(opts.logLevel)
			defer logger.Sync()

			prices, err := loadPrices(pricesPath)
			if err != nil {
				return err
			}
			stressed, err := stress.NewGenerator(logger).Apply(spec, prices)
			if err != nil {
				return err
			}
			if err := writePrices(outPath, stressed); err != nil {
				return err
			}

			logger.Info("stressed dataset written",
				zap.String("kind", kind),
				zap.String("path", outPath),
				zap.Int("bars", stressed.NumBars()),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d stressed bars to %s\n", stressed.NumBars(), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&pricesPath, "prices", "", "Price bars CSV to perturb")
	cmd.Flags().StringVar(&outPath, "out", "", "Path for the perturbed CSV")
	cmd.Flags().StringVar(&kind, "kind", "", "Scenario kind: crash|liquidity_crisis|volatility_shock|correlation_shock")
	cmd.Flags().StringVar(&fromStr, "from", "", "Optional window start (2006-01-02)")
	cmd.Flags().StringVar(&toStr, "to", "", "Optional window end (2006-01-02)")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Symbols to stress (default: all)")

	cmd.Flags().Float64Var(&magnitude, "magnitude", -0.2, "crash: total window move, -0.2 = lose 20%")
	cmd.Flags().Float64Var(&volumeMul, "volume-multiplier", 1, "crash: window volume scale")
	cmd.Flags().Float64Var(&severity, "severity", 3, "liquidity_crisis: spread widening and volume division factor (> 1)")
	cmd.Flags().Float64Var(&volMul, "vol-multiplier", 2, "volatility_shock: return stdev scale")
	cmd.Flags().Float64Var(&correlation, "correlation", 0.9, "correlation_shock: pairwise target for all --symbols")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for stochastic scenarios (0 = time-based)")

	return cmd
}

// uniformCorrelation builds an n x n matrix with ones on the diagonal and r
// everywhere else, the CLI's shorthand for a full target matrix.
func uniformCorrelation(n int, r float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i == j {
				m[i][j] = 1
			} else {
				m[i][j] = r
			}
		}
	}
	return m
}
