package dataset

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/replaycore/pkg/types"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func bar(symbol, date string, o, h, l, c float64, vol int64) types.PriceBar {
	d, _ := time.Parse("2006-01-02", date)
	return types.PriceBar{
		Symbol: symbol,
		Date:   d,
		Open:   decimal.NewFromFloat(o),
		High:   decimal.NewFromFloat(h),
		Low:    decimal.NewFromFloat(l),
		Close:  decimal.NewFromFloat(c),
		Volume: decimal.NewFromInt(vol),
	}
}

func TestNewPricesSortsAndDedupes(t *testing.T) {
	t.Parallel()

	p := NewPrices([]types.PriceBar{
		bar("AAA", "2024-01-03", 11, 12, 10, 11, 100),
		bar("AAA", "2024-01-02", 10, 11, 9, 10, 100),
		bar("AAA", "2024-01-02", 99, 99, 99, 99, 1), // duplicate day, dropped
		bar("BBB", "2024-01-02", 20, 21, 19, 20, 50),
	})

	require.False(t, p.Empty())
	assert.Equal(t, []string{"AAA", "BBB"}, p.Symbols())
	assert.Equal(t, 3, p.NumBars())

	series := p.Series("AAA")
	require.Len(t, series, 2)
	assert.True(t, series[0].Date.Before(series[1].Date), "series sorted ascending")

	first, ok := p.Bar("AAA", day(t, "2024-01-02"))
	require.True(t, ok)
	assert.True(t, first.Open.Equal(decimal.NewFromInt(10)), "first bar wins over duplicate")
}

func TestTradingDaysWindow(t *testing.T) {
	t.Parallel()

	p := NewPrices([]types.PriceBar{
		bar("AAA", "2024-01-02", 10, 11, 9, 10, 100),
		bar("AAA", "2024-01-04", 10, 11, 9, 10, 100),
		bar("BBB", "2024-01-03", 20, 21, 19, 20, 50),
		bar("BBB", "2024-01-08", 20, 21, 19, 20, 50),
	})

	days := p.TradingDays(day(t, "2024-01-03"), day(t, "2024-01-08"))
	require.Len(t, days, 3)
	assert.Equal(t, day(t, "2024-01-03"), days[0])
	assert.Equal(t, day(t, "2024-01-04"), days[1])
	assert.Equal(t, day(t, "2024-01-08"), days[2])

	assert.Empty(t, p.TradingDays(day(t, "2024-02-01"), day(t, "2024-02-28")))
}

func TestBarLookupNormalizesTimestamps(t *testing.T) {
	t.Parallel()

	stamped := bar("AAA", "2024-01-02", 10, 11, 9, 10, 100)
	stamped.Date = stamped.Date.Add(15 * time.Hour) // intraday stamp from the feed

	p := NewPrices([]types.PriceBar{stamped})

	got, ok := p.Bar("AAA", day(t, "2024-01-02").Add(9*time.Hour))
	require.True(t, ok)
	assert.Equal(t, day(t, "2024-01-02"), got.Date, "stored date normalized to UTC day")
}

func TestValidateFlagsContractViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bar    types.PriceBar
		reason string
	}{
		{name: "low_above_body", bar: bar("AAA", "2024-01-02", 10, 12, 10.5, 11, 100), reason: "low above open/close"},
		{name: "high_below_body", bar: bar("AAA", "2024-01-02", 10, 10.5, 9, 11, 100), reason: "high below open/close"},
		{name: "negative_volume", bar: bar("AAA", "2024-01-02", 10, 11, 9, 10, -5), reason: "negative volume"},
		{name: "non_positive_price", bar: bar("AAA", "2024-01-02", 0, 11, 0, 10, 100), reason: "non-positive price"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewPrices([]types.PriceBar{tt.bar})
			issues := p.Validate()
			require.NotEmpty(t, issues)
			assert.Equal(t, tt.reason, issues[0].Reason)
			assert.ErrorIs(t, p.Check(), ErrMalformedBar)
		})
	}

	clean := NewPrices([]types.PriceBar{bar("AAA", "2024-01-02", 10, 11, 9, 10, 100)})
	assert.Empty(t, clean.Validate())
	assert.NoError(t, clean.Check())
}

func TestSignalsIndex(t *testing.T) {
	t.Parallel()

	d := day(t, "2024-01-02")
	s := NewSignals([]types.SignalEvent{
		{Symbol: "BBB", Date: d, Direction: types.SignalDirectionBuy},
		{Symbol: "AAA", Date: d, Direction: types.SignalDirectionBuy},
		{Symbol: "AAA", Date: d, Direction: types.SignalDirectionSell}, // replaces the buy
	})

	assert.Equal(t, 2, s.Len())

	ev, ok := s.For("AAA", d)
	require.True(t, ok)
	assert.Equal(t, types.SignalDirectionSell, ev.Direction, "later event wins")

	onDay := s.OnDay(d)
	require.Len(t, onDay, 2)
	assert.Equal(t, "AAA", onDay[0].Symbol, "day view sorted by symbol")
	assert.Equal(t, "BBB", onDay[1].Symbol)

	var nilSignals *Signals
	_, ok = nilSignals.For("AAA", d)
	assert.False(t, ok)
	assert.Zero(t, nilSignals.Len())
}

func TestWeightsAndBenchmarkNilSafe(t *testing.T) {
	t.Parallel()

	d := day(t, "2024-01-02")

	w := NewWeights([]types.WeightAllocation{
		{Symbol: "AAA", Date: d, Weight: decimal.NewFromFloat(0.6)},
	})
	weight, ok := w.For("AAA", d)
	require.True(t, ok)
	assert.True(t, weight.Equal(decimal.NewFromFloat(0.6)))
	_, ok = w.For("BBB", d)
	assert.False(t, ok)

	var nilWeights *Weights
	_, ok = nilWeights.For("AAA", d)
	assert.False(t, ok)

	b := NewBenchmark([]types.BenchmarkPoint{
		{Date: d, Return: decimal.NewFromFloat(0.01)},
	})
	r, ok := b.Return(d)
	require.True(t, ok)
	assert.InDelta(t, 0.01, r, 1e-12)
	assert.Equal(t, 1, b.Len())

	var nilBench *Benchmark
	_, ok = nilBench.Return(d)
	assert.False(t, ok)
	assert.Zero(t, nilBench.Len())
}
