package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantfold/replaycore/internal/costs"
	"github.com/quantfold/replaycore/internal/dataset"
	"github.com/quantfold/replaycore/internal/metrics"
	"github.com/quantfold/replaycore/pkg/types"
)

var (
	// ErrEmptyPrices is returned when the price dataset holds no bars.
	ErrEmptyPrices = errors.New("price dataset is empty")
	// ErrNoTradingDays is returned when no bar falls inside the configured range.
	ErrNoTradingDays = errors.New("price dataset has no trading days in the configured range")
)

// ProgressFunc receives one update per simulated day, after valuation.
type ProgressFunc func(types.RunProgress)

// Inputs bundles the datasets one run consumes. Prices and Signals drive the
// loop; Weights and Benchmark are optional and may be nil.
type Inputs struct {
	Prices    *dataset.Prices
	Signals   *dataset.Signals
	Weights   *dataset.Weights
	Benchmark *dataset.Benchmark
}

// Engine replays a signal stream against daily bars, one run per call. An
// Engine is cheap to construct and is not shared across concurrent runs.
type Engine struct {
	logger   *zap.Logger
	progress ProgressFunc
}

// NewEngine creates a replay engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// OnProgress registers an optional per-day progress callback.
func (e *Engine) OnProgress(fn ProgressFunc) {
	e.progress = fn
}

// Run executes the day loop over the configured range: sell phase, buy
// phase, then valuation, in strict order. Fatal input problems surface
// before the first day; per-day data problems are logged, counted as
// incidents, and never abort the run. Cancellation is checked once per day.
func (e *Engine) Run(ctx context.Context, cfg types.RunConfig, in Inputs) (*types.RunResult, error) {
	started := time.Now()
	cfg = applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scheme, err := costs.FromConfig(cfg.Cost)
	if err != nil {
		return nil, err
	}
	if in.Prices.Empty() {
		return nil, ErrEmptyPrices
	}
	if err := in.Prices.Check(); err != nil {
		return nil, err
	}
	days := in.Prices.TradingDays(cfg.Start, cfg.End)
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoTradingDays,
			cfg.Start.Format("2006-01-02"), cfg.End.Format("2006-01-02"))
	}

	e.logger.Info("starting replay",
		zap.Time("firstDay", days[0]),
		zap.Time("lastDay", days[len(days)-1]),
		zap.Int("days", len(days)),
		zap.Int("symbols", len(in.Prices.Symbols())),
		zap.Int("signals", in.Signals.Len()),
		zap.String("initialCapital", cfg.InitialCapital.String()),
	)

	ledger := NewLedger(cfg.InitialCapital)
	incidents := 0

	for i, day := range days {
		select {
		case <-ctx.Done():
			e.logger.Warn("replay cancelled",
				zap.Time("date", day),
				zap.Int("daysCompleted", i),
			)
			return nil, ctx.Err()
		default:
		}

		incidents += e.sellPhase(ledger, scheme, in, cfg, day)
		incidents += e.buyPhase(ledger, scheme, in, cfg, day)

		snap := ledger.MarkToMarket(day, func(symbol string) (decimal.Decimal, bool) {
			bar, ok := in.Prices.Bar(symbol, day)
			if !ok {
				return decimal.Decimal{}, false
			}
			return bar.Close, true
		})

		if e.progress != nil {
			e.progress(types.RunProgress{
				Status:         types.RunStatusRunning,
				Day:            i + 1,
				TotalDays:      len(days),
				Progress:       float64(i+1) / float64(len(days)) * 100,
				CurrentDate:    day,
				TradesExecuted: len(ledger.Trades()),
				Equity:         snap.TotalValue,
			})
		}
	}

	result := &types.RunResult{
		Config:        cfg,
		Trades:        ledger.Trades(),
		EquityCurve:   ledger.Snapshots(),
		DaysSimulated: len(days),
		Incidents:     incidents,
		StartedAt:     started,
	}

	m := metrics.Calculate(result.EquityCurve, result.Trades, metrics.Options{
		InitialCapital:     cfg.InitialCapital,
		TradingDaysPerYear: cfg.TradingDaysPerYear,
		RiskFreeRate:       cfg.RiskFreeRate.InexactFloat64(),
		Benchmark:          in.Benchmark,
	})
	result.Metrics = &m

	if cfg.MonteCarlo != nil && cfg.MonteCarlo.Iterations > 0 {
		mcCfg := *cfg.MonteCarlo
		if mcCfg.Seed == 0 {
			mcCfg.Seed = cfg.Seed // run-level seed covers every stochastic step
		}
		mc := metrics.RunMonteCarlo(result.Trades, mcCfg)
		result.MonteCarlo = &mc
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(started)

	e.logger.Info("replay completed",
		zap.Duration("duration", result.Duration),
		zap.Int("trades", len(result.Trades)),
		zap.Int("incidents", incidents),
		zap.String("finalEquity", result.EquityCurve[len(result.EquityCurve)-1].TotalValue.String()),
		zap.String("totalReturn", m.TotalReturn.String()),
	)

	return result, nil
}

// sellPhase exits held symbols with an explicit sell signal at today's
// close, and force-liquidates held symbols with no bar today at their last
// mark. Freed cash is available to the same day's buy phase. Forced
// liquidations count as incidents.
func (e *Engine) sellPhase(ledger *Ledger, scheme costs.Scheme, in Inputs, cfg types.RunConfig, day time.Time) int {
	incidents := 0
	for _, symbol := range ledger.HeldSymbols() {
		pos, _ := ledger.Position(symbol)

		bar, ok := in.Prices.Bar(symbol, day)
		if !ok {
			b := scheme.Cost(types.TradeActionSell, pos.Shares, pos.Mark)
			trade, _ := ledger.ExecuteSell(symbol, day, b, pos.Mark, true)
			incidents++
			e.logger.Warn("no bar for held symbol, forcing liquidation",
				zap.String("symbol", symbol),
				zap.Time("date", day),
				zap.String("mark", pos.Mark.String()),
				zap.String("proceeds", trade.NetAmount.String()),
			)
			continue
		}

		sig, hasSig := in.Signals.For(symbol, day)
		if !hasSig || resolveDirection(sig, cfg.ScoreThreshold) != types.SignalDirectionSell {
			continue
		}

		b := scheme.Cost(types.TradeActionSell, pos.Shares, bar.Close)
		trade, _ := ledger.ExecuteSell(symbol, day, b, bar.Close, false)
		e.logger.Debug("sell executed",
			zap.String("symbol", symbol),
			zap.Time("date", day),
			zap.String("shares", trade.Shares.String()),
			zap.String("price", trade.Price.String()),
			zap.String("net", trade.NetAmount.String()),
		)
	}
	return incidents
}

// buyPhase opens positions for buy-signalled symbols not currently held.
// Target weights come from the weights dataset when present, otherwise the
// candidates split the buy budget equally; weights summing above 1 are
// renormalized. The cash budget is snapshotted once at phase start so
// candidate order only affects rounding, never funding priority.
func (e *Engine) buyPhase(ledger *Ledger, scheme costs.Scheme, in Inputs, cfg types.RunConfig, day time.Time) int {
	incidents := 0

	var candidates []types.PriceBar
	for _, ev := range in.Signals.OnDay(day) {
		if resolveDirection(ev, cfg.ScoreThreshold) != types.SignalDirectionBuy {
			continue
		}
		if !in.Prices.HasSymbol(ev.Symbol) {
			incidents++
			e.logger.Warn("signal references unknown symbol, skipping",
				zap.String("symbol", ev.Symbol),
				zap.Time("date", day),
			)
			continue
		}
		if _, held := ledger.Position(ev.Symbol); held {
			continue
		}
		bar, ok := in.Prices.Bar(ev.Symbol, day)
		if !ok {
			incidents++
			e.logger.Warn("buy signal has no bar today, skipping",
				zap.String("symbol", ev.Symbol),
				zap.Time("date", day),
			)
			continue
		}
		candidates = append(candidates, bar)
	}
	if len(candidates) == 0 {
		return incidents
	}

	available := ledger.Cash()
	if !available.IsPositive() {
		return incidents
	}

	equal := one.Div(decimal.NewFromInt(int64(len(candidates))))
	weights := make([]decimal.Decimal, len(candidates))
	sum := decimal.Zero
	for i, bar := range candidates {
		if w, ok := in.Weights.For(bar.Symbol, day); ok {
			weights[i] = w
		} else {
			weights[i] = equal
		}
		sum = sum.Add(weights[i])
	}
	if sum.GreaterThan(one) {
		for i := range weights {
			weights[i] = weights[i].Div(sum)
		}
		incidents++
		e.logger.Warn("target weights exceed capital, renormalizing",
			zap.Time("date", day),
			zap.String("sum", sum.String()),
		)
	}

	for i, bar := range candidates {
		weight := weights[i]
		if weight.GreaterThan(cfg.MaxPositionSize) {
			weight = cfg.MaxPositionSize
		}
		if !weight.IsPositive() {
			continue
		}

		budget := available.Mul(weight)
		fee := scheme.EstimateFee(types.TradeActionBuy, budget)
		price := scheme.AdjustedPrice(types.TradeActionBuy, bar.Close)
		shares := budget.Sub(fee).Div(price).Floor()
		if !shares.IsPositive() {
			incidents++
			e.logger.Debug("buy budget too small, skipping",
				zap.String("symbol", bar.Symbol),
				zap.Time("date", day),
				zap.String("budget", budget.String()),
				zap.String("price", price.String()),
			)
			continue
		}

		b := scheme.Cost(types.TradeActionBuy, shares, bar.Close)
		net := shares.Mul(b.AdjustedPrice).Add(b.Total())
		if net.GreaterThan(ledger.Cash()) {
			incidents++
			e.logger.Debug("insufficient cash at execution, skipping",
				zap.String("symbol", bar.Symbol),
				zap.Time("date", day),
				zap.String("need", net.String()),
				zap.String("cash", ledger.Cash().String()),
			)
			continue
		}

		trade := ledger.ExecuteBuy(bar.Symbol, day, shares, b, bar.Close)
		e.logger.Debug("buy executed",
			zap.String("symbol", bar.Symbol),
			zap.Time("date", day),
			zap.String("shares", trade.Shares.String()),
			zap.String("price", trade.Price.String()),
			zap.String("net", trade.NetAmount.String()),
		)
	}

	return incidents
}

var one = decimal.NewFromInt(1)

// resolveDirection maps a signal to an action: an explicit direction wins,
// otherwise the score is compared against the configured threshold.
func resolveDirection(ev types.SignalEvent, threshold decimal.Decimal) types.SignalDirection {
	if ev.Direction != "" {
		return ev.Direction
	}
	if ev.Score.GreaterThanOrEqual(threshold) {
		return types.SignalDirectionBuy
	}
	if ev.Score.LessThanOrEqual(threshold.Neg()) {
		return types.SignalDirectionSell
	}
	return types.SignalDirectionHold
}

// applyDefaults fills the optional RunConfig knobs a caller left zero.
func applyDefaults(cfg types.RunConfig) types.RunConfig {
	if cfg.TradingDaysPerYear == 0 {
		cfg.TradingDaysPerYear = 252
	}
	if cfg.MaxPositionSize.IsZero() {
		cfg.MaxPositionSize = one
	}
	if cfg.ScoreThreshold.IsZero() {
		cfg.ScoreThreshold = decimal.NewFromFloat(0.5)
	}
	if cfg.Cost.Kind == "" {
		cfg.Cost.Kind = types.CostKindFixed // zero-valued fixed scheme: frictionless
	}
	return cfg
}
