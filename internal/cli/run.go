package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantfold/replaycore/internal/config"
	"github.com/quantfold/replaycore/internal/runner"
	"github.com/quantfold/replaycore/pkg/types"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		configPath    string
		pricesPath    string
		signalsPath   string
		weightsPath   string
		benchmarkPath string
		tradesOut     string
		equityOut     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay signals over historical bars and print the metrics table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			if pricesPath == "" {
				return fmt.Errorf("--prices is required")
			}
			if signalsPath == "" {
				return fmt.Errorf("--signals is required")
			}

			logger := setupLogger(opts.logLevel)
			defer logger.Sync()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			job := runner.Job{Config: cfg}
			if job.Prices, err = loadPrices(pricesPath); err != nil {
				return err
			}
			if job.Signals, err = loadSignals(signalsPath); err != nil {
				return err
			}
			if weightsPath != "" {
				if job.Weights, err = loadWeights(weightsPath); err != nil {
					return err
				}
			}
			if benchmarkPath != "" {
				if job.Benchmark, err = loadBenchmark(benchmarkPath); err != nil {
					return err
				}
			}
			job.Progress = func(p types.RunProgress) {
				logger.Debug("day replayed",
					zap.Int("day", p.Day),
					zap.Int("totalDays", p.TotalDays),
					zap.Time("date", p.CurrentDate),
					zap.String("equity", p.Equity.String()),
				)
			}

			// Ctrl-C cancels cooperatively; the engine stops at the next
			// day boundary.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rn := runner.NewRunner(logger, prometheus.NewRegistry())
			run, err := rn.Submit(ctx, job)
			if err != nil {
				return err
			}
			result, err := run.Wait()
			if err != nil {
				return err
			}

			if tradesOut != "" {
				if err := writeTrades(tradesOut, result.Trades); err != nil {
					return err
				}
				logger.Info("trades written", zap.String("path", tradesOut), zap.Int("trades", len(result.Trades)))
			}
			if equityOut != "" {
				if err := writeEquity(equityOut, result.EquityCurve); err != nil {
					return err
				}
				logger.Info("equity curve written", zap.String("path", equityOut), zap.Int("days", len(result.EquityCurve)))
			}

			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Run configuration YAML")
	cmd.Flags().StringVar(&pricesPath, "prices", "", "Price bars CSV (symbol,date,open,high,low,close,volume)")
	cmd.Flags().StringVar(&signalsPath, "signals", "", "Signal events CSV (symbol,date,direction,score)")
	cmd.Flags().StringVar(&weightsPath, "weights", "", "Optional target weights CSV (symbol,date,weight)")
	cmd.Flags().StringVar(&benchmarkPath, "benchmark", "", "Optional benchmark returns CSV (date,return)")
	cmd.Flags().StringVar(&tradesOut, "trades-out", "", "Optional path for the executed trades CSV")
	cmd.Flags().StringVar(&equityOut, "equity-out", "", "Optional path for the equity curve CSV")

	return cmd
}

func printResult(w io.Writer, result *types.RunResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Run\t%s\n", result.RunID)
	fmt.Fprintf(tw, "Days simulated\t%d\n", result.DaysSimulated)
	fmt.Fprintf(tw, "Trades\t%d\n", len(result.Trades))
	if result.Incidents > 0 {
		fmt.Fprintf(tw, "Incidents\t%d\n", result.Incidents)
	}
	if n := len(result.EquityCurve); n > 0 {
		fmt.Fprintf(tw, "Final equity\t%s\n", result.EquityCurve[n-1].TotalValue.StringFixed(2))
	}

	m := result.Metrics
	if m != nil {
		fmt.Fprintf(tw, "\t\n")
		fmt.Fprintf(tw, "Total return\t%s\n", pct(m.TotalReturn))
		fmt.Fprintf(tw, "Annualized return\t%s\n", pct(m.AnnualizedReturn))
		fmt.Fprintf(tw, "Annual volatility\t%s\n", pct(m.AnnualVolatility))
		fmt.Fprintf(tw, "Sharpe ratio\t%s\n", m.SharpeRatio.StringFixed(2))
		fmt.Fprintf(tw, "Sortino ratio\t%s\n", m.SortinoRatio.StringFixed(2))
		fmt.Fprintf(tw, "Calmar ratio\t%s\n", m.CalmarRatio.StringFixed(2))
		fmt.Fprintf(tw, "Max drawdown\t%s (%d days)\n", pct(m.MaxDrawdown), m.MaxDrawdownDuration)
		fmt.Fprintf(tw, "Round trips\t%d (%d wins, %d losses)\n", m.RoundTrips, m.WinningTrades, m.LosingTrades)
		fmt.Fprintf(tw, "Win rate\t%s\n", pct(m.WinRate))
		fmt.Fprintf(tw, "Profit factor\t%s\n", m.ProfitFactor.StringFixed(2))
		fmt.Fprintf(tw, "Avg trade return\t%s\n", pct(m.AvgTradeReturn))
		fmt.Fprintf(tw, "Alpha\t%s\n", pct(m.Alpha))
		fmt.Fprintf(tw, "Beta\t%s\n", m.Beta.StringFixed(2))
		fmt.Fprintf(tw, "Information ratio\t%s\n", m.InformationRatio.StringFixed(2))
		fmt.Fprintf(tw, "VaR 95 / 99\t%s / %s\n", pct(m.VaR95), pct(m.VaR99))
		fmt.Fprintf(tw, "CVaR 95\t%s\n", pct(m.CVaR95))
	}

	mc := result.MonteCarlo
	if mc != nil {
		fmt.Fprintf(tw, "\t\n")
		fmt.Fprintf(tw, "Monte Carlo iterations\t%d\n", mc.Iterations)
		fmt.Fprintf(tw, "Median return\t%s\n", pct(mc.MedianReturn))
		fmt.Fprintf(tw, "Return P5 / P95\t%s / %s\n", pct(mc.P5Return), pct(mc.P95Return))
		fmt.Fprintf(tw, "Probability of loss\t%s\n", pct(mc.ProbabilityOfLoss))
		fmt.Fprintf(tw, "Max drawdown P95\t%s\n", pct(mc.MaxDrawdownP95))
	}

	tw.Flush()
}

func pct(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
