// Package types provides shared type definitions for the replay core.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction represents buy or sell
type TradeAction string

const (
	TradeActionBuy  TradeAction = "buy"
	TradeActionSell TradeAction = "sell"
)

// SignalDirection represents the direction carried by a signal event
type SignalDirection string

const (
	SignalDirectionBuy  SignalDirection = "buy"
	SignalDirectionSell SignalDirection = "sell"
	SignalDirectionHold SignalDirection = "hold"
)

// RunStatus represents the lifecycle state of a replay run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// PriceBar represents one daily OHLCV bar for a symbol
type PriceBar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// SignalEvent represents a dated trading signal for a symbol.
// Direction may be empty, in which case Score is resolved against the
// configured threshold when the event is consumed.
type SignalEvent struct {
	Symbol    string          `json:"symbol"`
	Date      time.Time       `json:"date"`
	Direction SignalDirection `json:"direction,omitempty"`
	Score     decimal.Decimal `json:"score"`
}

// WeightAllocation represents an explicit target weight for a symbol on a date
type WeightAllocation struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Weight decimal.Decimal `json:"weight"`
}

// BenchmarkPoint represents one daily benchmark return observation
type BenchmarkPoint struct {
	Date   time.Time       `json:"date"`
	Return decimal.Decimal `json:"return"`
}

// Trade represents an executed fill recorded by the ledger
type Trade struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Action      TradeAction     `json:"action"`
	Date        time.Time       `json:"date"`
	Shares      decimal.Decimal `json:"shares"`
	Price       decimal.Decimal `json:"price"` // slippage-adjusted execution price
	GrossAmount decimal.Decimal `json:"grossAmount"`
	Commission  decimal.Decimal `json:"commission"`
	Tax         decimal.Decimal `json:"tax"`
	Slippage    decimal.Decimal `json:"slippage"`
	NetAmount   decimal.Decimal `json:"netAmount"` // buy: cash debited, sell: cash credited
	CashAfter   decimal.Decimal `json:"cashAfter"`
	Forced      bool            `json:"forced,omitempty"` // liquidation of a symbol whose series ended
}

// PortfolioSnapshot represents end-of-day portfolio state after valuation
type PortfolioSnapshot struct {
	Date           time.Time       `json:"date"`
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positionsValue"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	Drawdown       decimal.Decimal `json:"drawdown"` // fraction below running peak equity
}

// MetricsResult represents the derived statistics for a completed run
type MetricsResult struct {
	TotalReturn         decimal.Decimal `json:"totalReturn"`
	AnnualizedReturn    decimal.Decimal `json:"annualizedReturn"`
	AnnualVolatility    decimal.Decimal `json:"annualVolatility"`
	SharpeRatio         decimal.Decimal `json:"sharpeRatio"`
	SortinoRatio        decimal.Decimal `json:"sortinoRatio"`
	CalmarRatio         decimal.Decimal `json:"calmarRatio"`
	MaxDrawdown         decimal.Decimal `json:"maxDrawdown"` // positive fraction of peak
	MaxDrawdownDuration int             `json:"maxDrawdownDuration"` // trading days peak-to-recovery
	WinRate             decimal.Decimal `json:"winRate"`
	ProfitFactor        decimal.Decimal `json:"profitFactor"`
	AvgTradeReturn      decimal.Decimal `json:"avgTradeReturn"`
	RoundTrips          int             `json:"roundTrips"`
	WinningTrades       int             `json:"winningTrades"`
	LosingTrades        int             `json:"losingTrades"`
	LargestWin          decimal.Decimal `json:"largestWin"`
	LargestLoss         decimal.Decimal `json:"largestLoss"`
	Alpha               decimal.Decimal `json:"alpha"`
	Beta                decimal.Decimal `json:"beta"`
	InformationRatio    decimal.Decimal `json:"informationRatio"`
	VaR95               decimal.Decimal `json:"var95"`
	VaR99               decimal.Decimal `json:"var99"`
	CVaR95              decimal.Decimal `json:"cvar95"`
}

// MonteCarloResult represents trade-reshuffle robustness results
type MonteCarloResult struct {
	Iterations     int             `json:"iterations"`
	MedianReturn   decimal.Decimal `json:"medianReturn"`
	P5Return       decimal.Decimal `json:"p5Return"`
	P95Return      decimal.Decimal `json:"p95Return"`
	ProbabilityOfLoss decimal.Decimal `json:"probabilityOfLoss"`
	MaxDrawdownP95 decimal.Decimal `json:"maxDrawdownP95"`
}

// RunResult represents the complete output of one replay run
type RunResult struct {
	RunID       string              `json:"runId"`
	Config      RunConfig           `json:"config"`
	Trades      []Trade             `json:"trades"`
	EquityCurve []PortfolioSnapshot `json:"equityCurve"`
	Metrics     *MetricsResult      `json:"metrics"`
	MonteCarlo  *MonteCarloResult   `json:"monteCarlo,omitempty"`
	DaysSimulated int               `json:"daysSimulated"`
	Incidents   int                 `json:"incidents"` // recoverable skips logged during the run
	StartedAt   time.Time           `json:"startedAt"`
	CompletedAt time.Time           `json:"completedAt"`
	Duration    time.Duration       `json:"duration"`
}

// RunProgress represents the progress of a running replay
type RunProgress struct {
	RunID          string          `json:"runId"`
	Status         RunStatus       `json:"status"`
	Day            int             `json:"day"`
	TotalDays      int             `json:"totalDays"`
	Progress       float64         `json:"progress"` // 0-100
	CurrentDate    time.Time       `json:"currentDate"`
	TradesExecuted int             `json:"tradesExecuted"`
	Equity         decimal.Decimal `json:"equity"`
	Error          string          `json:"error,omitempty"`
}
