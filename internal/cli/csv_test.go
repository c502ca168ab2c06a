package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/replaycore/internal/dataset"
	"github.com/quantfold/replaycore/pkg/types"
)

func writeFixture(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPricesParsesHeaderAndRows(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "bars.csv", `symbol,date,open,high,low,close,volume
AAPL,2024-01-02,100,101.5,99,100.25,1000000
AAPL,2024-01-03, 100.25 ,102,100,101.75,900000
MSFT,2024-01-02,40,41,39.5,40.5,500000
`)

	prices, err := loadPrices(path)
	require.NoError(t, err)

	assert.Equal(t, 3, prices.NumBars())
	assert.Equal(t, []string{"AAPL", "MSFT"}, prices.Symbols())

	bar, ok := prices.Bar("AAPL", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.True(t, bar.Open.Equal(decimal.NewFromFloat(100.25)), "got %s", bar.Open)
	assert.True(t, bar.Close.Equal(decimal.NewFromFloat(101.75)))
	assert.True(t, bar.Volume.Equal(decimal.NewFromInt(900000)))
}

func TestLoadPricesWithoutHeader(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "bars.csv", "AAPL,2024-01-02,100,101,99,100,1000\n")

	prices, err := loadPrices(path)
	require.NoError(t, err)
	assert.Equal(t, 1, prices.NumBars())
}

func TestLoadPricesRejectsBadRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "short row",
			body: "AAPL,2024-01-02,100\n",
			want: "row 1",
		},
		{
			name: "bad number",
			body: "symbol,date,open,high,low,close,volume\nAAPL,2024-01-02,oops,101,99,100,1000\n",
			want: "bad number",
		},
		{
			name: "bad date",
			body: "AAPL,01/02/2024,100,101,99,100,1000\n",
			want: "bad date",
		},
		{
			name: "only a header",
			body: "symbol,date,open,high,low,close,volume\n",
			want: "no price rows",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := loadPrices(writeFixture(t, "bars.csv", tt.body))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadPricesMissingFile(t *testing.T) {
	t.Parallel()

	_, err := loadPrices(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}

func TestLoadSignals(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "signals.csv", `symbol,date,direction,score
AAPL,2024-01-02,buy,0.9
AAPL,2024-01-03,SELL,0.1
MSFT,2024-01-02,,0.75
MSFT,2024-01-03,hold,
`)

	signals, err := loadSignals(path)
	require.NoError(t, err)
	assert.Equal(t, 4, signals.Len())

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	ev, ok := signals.For("MSFT", day)
	require.True(t, ok)
	assert.Equal(t, types.SignalDirection(""), ev.Direction, "empty direction defers to the score")
	assert.True(t, ev.Score.Equal(decimal.NewFromFloat(0.75)))

	ev, ok = signals.For("AAPL", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, types.SignalDirectionSell, ev.Direction, "directions are case-insensitive")

	ev, ok = signals.For("MSFT", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.True(t, ev.Score.IsZero(), "missing score reads as zero")
}

func TestLoadSignalsRejectsUnknownDirection(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "signals.csv", "AAPL,2024-01-02,long,0.9\n")
	_, err := loadSignals(path)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown direction")
}

func TestLoadWeights(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "weights.csv", `symbol,date,weight
AAPL,2024-01-02,0.6
MSFT,2024-01-02,0.4
`)

	weights, err := loadWeights(path)
	require.NoError(t, err)

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	w, ok := weights.For("AAPL", day)
	require.True(t, ok)
	assert.True(t, w.Equal(decimal.NewFromFloat(0.6)))
}

func TestLoadBenchmark(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "bench.csv", `date,return
2024-01-02,0.004
2024-01-03,-0.012
`)

	bench, err := loadBenchmark(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bench.Len())

	r, ok := bench.Return(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.InDelta(t, -0.012, r, 1e-12)
}

func TestWritePricesRoundTrip(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	in := dataset.NewPrices([]types.PriceBar{
		{
			Symbol: "AAPL", Date: day(2),
			Open: decimal.NewFromFloat(100.5), High: decimal.NewFromInt(102),
			Low: decimal.NewFromInt(99), Close: decimal.NewFromFloat(101.25),
			Volume: decimal.NewFromInt(1000000),
		},
		{
			Symbol: "MSFT", Date: day(2),
			Open: decimal.NewFromInt(40), High: decimal.NewFromInt(41),
			Low: decimal.NewFromInt(39), Close: decimal.NewFromFloat(40.125),
			Volume: decimal.NewFromInt(250000),
		},
	})

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, writePrices(path, in))

	out, err := loadPrices(path)
	require.NoError(t, err)
	require.Equal(t, in.NumBars(), out.NumBars())

	for _, want := range in.AllBars() {
		got, ok := out.Bar(want.Symbol, want.Date)
		require.True(t, ok, "%s %s survived the round trip", want.Symbol, want.Date)
		assert.True(t, got.Open.Equal(want.Open))
		assert.True(t, got.High.Equal(want.High))
		assert.True(t, got.Low.Equal(want.Low))
		assert.True(t, got.Close.Equal(want.Close))
		assert.True(t, got.Volume.Equal(want.Volume))
	}
}

func TestWriteTradesAndEquity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tradesPath := filepath.Join(dir, "trades.csv")
	require.NoError(t, writeTrades(tradesPath, []types.Trade{{
		ID:          "01TEST",
		Symbol:      "AAPL",
		Action:      types.TradeActionBuy,
		Date:        day,
		Shares:      decimal.NewFromInt(10),
		Price:       decimal.NewFromInt(100),
		GrossAmount: decimal.NewFromInt(1000),
		NetAmount:   decimal.NewFromInt(1001),
		CashAfter:   decimal.NewFromInt(8999),
	}}))

	equityPath := filepath.Join(dir, "equity.csv")
	require.NoError(t, writeEquity(equityPath, []types.PortfolioSnapshot{{
		Date:       day,
		Cash:       decimal.NewFromInt(8999),
		TotalValue: decimal.NewFromInt(9999),
	}}))

	trades, err := readRows(tradesPath)
	require.NoError(t, err)
	require.Len(t, trades, 2, "header plus one trade")
	assert.Equal(t, "id", trades[0][0])
	assert.Equal(t, []string{"01TEST", "AAPL", "buy", "2024-01-02", "10", "100", "1000", "0", "0", "0", "1001", "8999", "false"}, trades[1])

	equity, err := readRows(equityPath)
	require.NoError(t, err)
	require.Len(t, equity, 2)
	assert.Equal(t, "2024-01-02", equity[1][0])
}
