package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/replaycore/internal/dataset"
	"github.com/quantfold/replaycore/pkg/types"
)

// CSV layouts accepted by the command line tool. The core packages only
// deal in slices of typed records; files are a property of this caller.
//
//	prices:    symbol,date,open,high,low,close,volume
//	signals:   symbol,date,direction,score   (direction may be empty)
//	weights:   symbol,date,weight
//	benchmark: date,return
//
// Dates are 2006-01-02. A single header row is allowed and skipped.
const dayLayout = "2006-01-02"

func loadPrices(path string) (*dataset.Prices, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("read prices %s: %w", path, err)
	}

	bars := make([]types.PriceBar, 0, len(rows))
	for i, row := range rows {
		if skipRow(i, row, "symbol") {
			continue
		}
		if len(row) < 7 {
			return nil, rowErr(path, i, "want symbol,date,open,high,low,close,volume")
		}
		bar := types.PriceBar{Symbol: strings.TrimSpace(row[0])}
		if bar.Date, err = parseDay(row[1]); err != nil {
			return nil, rowErr(path, i, err.Error())
		}
		fields := []struct {
			dst *decimal.Decimal
			raw string
		}{
			{&bar.Open, row[2]}, {&bar.High, row[3]}, {&bar.Low, row[4]},
			{&bar.Close, row[5]}, {&bar.Volume, row[6]},
		}
		for _, f := range fields {
			if *f.dst, err = parseDecimal(f.raw); err != nil {
				return nil, rowErr(path, i, err.Error())
			}
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no price rows", path)
	}
	return dataset.NewPrices(bars), nil
}

func loadSignals(path string) (*dataset.Signals, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("read signals %s: %w", path, err)
	}

	events := make([]types.SignalEvent, 0, len(rows))
	for i, row := range rows {
		if skipRow(i, row, "symbol") {
			continue
		}
		if len(row) < 4 {
			return nil, rowErr(path, i, "want symbol,date,direction,score")
		}
		ev := types.SignalEvent{Symbol: strings.TrimSpace(row[0])}
		if ev.Date, err = parseDay(row[1]); err != nil {
			return nil, rowErr(path, i, err.Error())
		}
		ev.Direction = types.SignalDirection(strings.ToLower(strings.TrimSpace(row[2])))
		switch ev.Direction {
		case "", types.SignalDirectionBuy, types.SignalDirectionSell, types.SignalDirectionHold:
		default:
			return nil, rowErr(path, i, fmt.Sprintf("unknown direction %q", row[2]))
		}
		if raw := strings.TrimSpace(row[3]); raw != "" {
			if ev.Score, err = parseDecimal(raw); err != nil {
				return nil, rowErr(path, i, err.Error())
			}
		}
		events = append(events, ev)
	}
	return dataset.NewSignals(events), nil
}

func loadWeights(path string) (*dataset.Weights, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("read weights %s: %w", path, err)
	}

	allocs := make([]types.WeightAllocation, 0, len(rows))
	for i, row := range rows {
		if skipRow(i, row, "symbol") {
			continue
		}
		if len(row) < 3 {
			return nil, rowErr(path, i, "want symbol,date,weight")
		}
		alloc := types.WeightAllocation{Symbol: strings.TrimSpace(row[0])}
		if alloc.Date, err = parseDay(row[1]); err != nil {
			return nil, rowErr(path, i, err.Error())
		}
		if alloc.Weight, err = parseDecimal(row[2]); err != nil {
			return nil, rowErr(path, i, err.Error())
		}
		allocs = append(allocs, alloc)
	}
	return dataset.NewWeights(allocs), nil
}

func loadBenchmark(path string) (*dataset.Benchmark, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("read benchmark %s: %w", path, err)
	}

	points := make([]types.BenchmarkPoint, 0, len(rows))
	for i, row := range rows {
		if skipRow(i, row, "date") {
			continue
		}
		if len(row) < 2 {
			return nil, rowErr(path, i, "want date,return")
		}
		var pt types.BenchmarkPoint
		if pt.Date, err = parseDay(row[0]); err != nil {
			return nil, rowErr(path, i, err.Error())
		}
		if pt.Return, err = parseDecimal(row[1]); err != nil {
			return nil, rowErr(path, i, err.Error())
		}
		points = append(points, pt)
	}
	return dataset.NewBenchmark(points), nil
}

func writePrices(path string, prices *dataset.Prices) error {
	return writeCSV(path,
		[]string{"symbol", "date", "open", "high", "low", "close", "volume"},
		func(w *csv.Writer) error {
			for _, bar := range prices.AllBars() {
				row := []string{
					bar.Symbol,
					bar.Date.Format(dayLayout),
					bar.Open.String(),
					bar.High.String(),
					bar.Low.String(),
					bar.Close.String(),
					bar.Volume.String(),
				}
				if err := w.Write(row); err != nil {
					return err
				}
			}
			return nil
		})
}

func writeTrades(path string, trades []types.Trade) error {
	header := []string{
		"id", "symbol", "action", "date", "shares", "price",
		"gross_amount", "commission", "tax", "slippage",
		"net_amount", "cash_after", "forced",
	}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, t := range trades {
			row := []string{
				t.ID,
				t.Symbol,
				string(t.Action),
				t.Date.Format(dayLayout),
				t.Shares.String(),
				t.Price.String(),
				t.GrossAmount.String(),
				t.Commission.String(),
				t.Tax.String(),
				t.Slippage.String(),
				t.NetAmount.String(),
				t.CashAfter.String(),
				strconv.FormatBool(t.Forced),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeEquity(path string, curve []types.PortfolioSnapshot) error {
	header := []string{"date", "cash", "positions_value", "total_value", "drawdown"}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, snap := range curve {
			row := []string{
				snap.Date.Format(dayLayout),
				snap.Cash.String(),
				snap.PositionsValue.String(),
				snap.TotalValue.String(),
				snap.Drawdown.String(),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func writeCSV(path string, header []string, body func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := body(w); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// skipRow drops blank lines and a leading header row whose first cell names
// the expected first column.
func skipRow(i int, row []string, firstCol string) bool {
	if len(row) == 0 {
		return true
	}
	return i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), firstCol)
}

func parseDay(raw string) (time.Time, error) {
	day, err := time.Parse(dayLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: want %s", raw, dayLayout)
	}
	return day, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad number %q", raw)
	}
	return d, nil
}

func rowErr(path string, line int, msg string) error {
	return fmt.Errorf("%s: row %d: %s", path, line+1, msg)
}
