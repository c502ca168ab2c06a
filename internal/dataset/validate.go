package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/replaycore/pkg/types"
)

// ErrMalformedBar is returned when a bar violates the OHLCV contract.
var ErrMalformedBar = errors.New("malformed price bar")

// Issue describes one bar that violates the OHLCV contract.
type Issue struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s", i.Symbol, i.Date.Format("2006-01-02"), i.Reason)
}

// Validate scans every bar and reports contract violations: the low must not
// exceed open or close, the high must not undercut them, prices must be
// positive and volume non-negative.
func (p *Prices) Validate() []Issue {
	var issues []Issue
	for _, symbol := range p.symbols {
		for _, bar := range p.bySymbol[symbol] {
			for _, reason := range barIssues(bar) {
				issues = append(issues, Issue{Symbol: symbol, Date: bar.Date, Reason: reason})
			}
		}
	}
	return issues
}

// Check returns ErrMalformedBar describing the first violation, or nil when
// every bar is well formed. Replay entry points use it to fail fast before
// any day is simulated.
func (p *Prices) Check() error {
	issues := p.Validate()
	if len(issues) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s (%d issue(s) total)", ErrMalformedBar, issues[0], len(issues))
}

func barIssues(bar types.PriceBar) []string {
	var reasons []string

	if bar.Open.LessThanOrEqual(decimal.Zero) || bar.High.LessThanOrEqual(decimal.Zero) ||
		bar.Low.LessThanOrEqual(decimal.Zero) || bar.Close.LessThanOrEqual(decimal.Zero) {
		reasons = append(reasons, "non-positive price")
		return reasons
	}

	bodyLow := decimal.Min(bar.Open, bar.Close)
	bodyHigh := decimal.Max(bar.Open, bar.Close)
	if bar.Low.GreaterThan(bodyLow) {
		reasons = append(reasons, "low above open/close")
	}
	if bar.High.LessThan(bodyHigh) {
		reasons = append(reasons, "high below open/close")
	}
	if bar.Volume.IsNegative() {
		reasons = append(reasons, "negative volume")
	}
	return reasons
}
