// Package dataset holds the immutable inputs of a replay run: daily price
// bars, signal events, optional target weights, and an optional benchmark
// return series, indexed for by-symbol, by-day lookup.
package dataset

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/replaycore/pkg/types"
)

// Day normalizes a timestamp to its UTC calendar day. All indexes in this
// package key on normalized days, so bars and signals stamped with intraday
// times still line up.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Prices indexes daily bars by symbol and trading day.
type Prices struct {
	bySymbol map[string][]types.PriceBar // ascending by date
	index    map[string]map[time.Time]int
	days     []time.Time // distinct trading days, ascending
	symbols  []string    // sorted
}

// NewPrices builds a price index from a flat bar list. Bars are grouped by
// symbol and sorted by date; a duplicate (symbol, day) keeps the first bar
// seen, matching how upstream feeds deliver corrections.
func NewPrices(bars []types.PriceBar) *Prices {
	p := &Prices{
		bySymbol: make(map[string][]types.PriceBar),
		index:    make(map[string]map[time.Time]int),
	}

	daySet := make(map[time.Time]struct{})
	for _, bar := range bars {
		day := Day(bar.Date)
		if _, ok := p.index[bar.Symbol]; !ok {
			p.index[bar.Symbol] = make(map[time.Time]int)
		}
		if _, dup := p.index[bar.Symbol][day]; dup {
			continue
		}
		bar.Date = day
		p.index[bar.Symbol][day] = -1 // fixed up after sorting
		p.bySymbol[bar.Symbol] = append(p.bySymbol[bar.Symbol], bar)
		daySet[day] = struct{}{}
	}

	for symbol, series := range p.bySymbol {
		sort.Slice(series, func(i, j int) bool {
			return series[i].Date.Before(series[j].Date)
		})
		for i, bar := range series {
			p.index[symbol][bar.Date] = i
		}
		p.symbols = append(p.symbols, symbol)
	}
	sort.Strings(p.symbols)

	p.days = make([]time.Time, 0, len(daySet))
	for day := range daySet {
		p.days = append(p.days, day)
	}
	sort.Slice(p.days, func(i, j int) bool { return p.days[i].Before(p.days[j]) })

	return p
}

// Empty reports whether the index holds no bars at all.
func (p *Prices) Empty() bool {
	return p == nil || len(p.days) == 0
}

// Symbols returns the sorted symbol universe.
func (p *Prices) Symbols() []string {
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out
}

// HasSymbol reports whether any bar exists for the symbol.
func (p *Prices) HasSymbol(symbol string) bool {
	_, ok := p.bySymbol[symbol]
	return ok
}

// Bar returns the bar for a symbol on a day, if one exists.
func (p *Prices) Bar(symbol string, day time.Time) (types.PriceBar, bool) {
	idx, ok := p.index[symbol]
	if !ok {
		return types.PriceBar{}, false
	}
	i, ok := idx[Day(day)]
	if !ok {
		return types.PriceBar{}, false
	}
	return p.bySymbol[symbol][i], true
}

// Series returns the date-ascending bars for a symbol. The returned slice is
// shared with the index and must not be modified.
func (p *Prices) Series(symbol string) []types.PriceBar {
	return p.bySymbol[symbol]
}

// TradingDays returns every distinct day with at least one bar inside the
// inclusive [from, to] window, in ascending order.
func (p *Prices) TradingDays(from, to time.Time) []time.Time {
	lo, hi := Day(from), Day(to)
	out := make([]time.Time, 0, len(p.days))
	for _, day := range p.days {
		if day.Before(lo) {
			continue
		}
		if day.After(hi) {
			break
		}
		out = append(out, day)
	}
	return out
}

// AllBars returns a flat copy of every bar, symbol-major and date-ascending.
// Stress transforms use it to rebuild a shocked index without touching the
// original.
func (p *Prices) AllBars() []types.PriceBar {
	out := make([]types.PriceBar, 0, p.NumBars())
	for _, symbol := range p.symbols {
		out = append(out, p.bySymbol[symbol]...)
	}
	return out
}

// NumBars returns the total bar count across all symbols.
func (p *Prices) NumBars() int {
	n := 0
	for _, series := range p.bySymbol {
		n += len(series)
	}
	return n
}

// Signals indexes signal events by day and symbol. A nil *Signals behaves as
// an empty set, so signal-less replays need no special casing.
type Signals struct {
	byDay map[time.Time]map[string]types.SignalEvent
	count int
}

// NewSignals builds a signal index. A later event for the same (symbol, day)
// replaces the earlier one.
func NewSignals(events []types.SignalEvent) *Signals {
	s := &Signals{byDay: make(map[time.Time]map[string]types.SignalEvent)}
	for _, ev := range events {
		day := Day(ev.Date)
		if _, ok := s.byDay[day]; !ok {
			s.byDay[day] = make(map[string]types.SignalEvent)
		}
		if _, dup := s.byDay[day][ev.Symbol]; !dup {
			s.count++
		}
		ev.Date = day
		s.byDay[day][ev.Symbol] = ev
	}
	return s
}

// For returns the signal for a symbol on a day, if one exists.
func (s *Signals) For(symbol string, day time.Time) (types.SignalEvent, bool) {
	if s == nil {
		return types.SignalEvent{}, false
	}
	ev, ok := s.byDay[Day(day)][symbol]
	return ev, ok
}

// OnDay returns the day's signals sorted by symbol, so replay decisions are
// order-independent of input file layout.
func (s *Signals) OnDay(day time.Time) []types.SignalEvent {
	if s == nil {
		return nil
	}
	bySymbol, ok := s.byDay[Day(day)]
	if !ok {
		return nil
	}
	out := make([]types.SignalEvent, 0, len(bySymbol))
	for _, ev := range bySymbol {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of distinct (symbol, day) signals.
func (s *Signals) Len() int {
	if s == nil {
		return 0
	}
	return s.count
}

// Weights indexes explicit target weights by day and symbol. A nil *Weights
// behaves as an empty set.
type Weights struct {
	byDay map[time.Time]map[string]decimal.Decimal
}

// NewWeights builds a weight index. A later allocation for the same
// (symbol, day) replaces the earlier one.
func NewWeights(allocs []types.WeightAllocation) *Weights {
	w := &Weights{byDay: make(map[time.Time]map[string]decimal.Decimal)}
	for _, a := range allocs {
		day := Day(a.Date)
		if _, ok := w.byDay[day]; !ok {
			w.byDay[day] = make(map[string]decimal.Decimal)
		}
		w.byDay[day][a.Symbol] = a.Weight
	}
	return w
}

// For returns the explicit weight for a symbol on a day, if one exists.
func (w *Weights) For(symbol string, day time.Time) (decimal.Decimal, bool) {
	if w == nil {
		return decimal.Decimal{}, false
	}
	weight, ok := w.byDay[Day(day)][symbol]
	return weight, ok
}

// Benchmark indexes daily benchmark returns by day. Returns are held as
// float64 because they feed the statistics layer, not the ledger. A nil
// *Benchmark behaves as an empty series.
type Benchmark struct {
	byDay map[time.Time]float64
}

// NewBenchmark builds a benchmark return index.
func NewBenchmark(points []types.BenchmarkPoint) *Benchmark {
	b := &Benchmark{byDay: make(map[time.Time]float64)}
	for _, pt := range points {
		b.byDay[Day(pt.Date)] = pt.Return.InexactFloat64()
	}
	return b
}

// Return returns the benchmark return for a day, if one exists.
func (b *Benchmark) Return(day time.Time) (float64, bool) {
	if b == nil {
		return 0, false
	}
	r, ok := b.byDay[Day(day)]
	return r, ok
}

// Len returns the number of benchmark observations.
func (b *Benchmark) Len() int {
	if b == nil {
		return 0
	}
	return len(b.byDay)
}
