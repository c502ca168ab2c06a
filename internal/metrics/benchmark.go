package metrics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/quantfold/replaycore/internal/dataset"
	"github.com/quantfold/replaycore/pkg/types"
)

// fillBenchmarkStats computes alpha, beta and information ratio against a
// benchmark return series, pairing portfolio and benchmark returns by date.
// Days without a benchmark point are skipped. With fewer than two aligned
// observations the portfolio is assumed to track its benchmark: beta 1,
// alpha 0, information ratio 0.
func fillBenchmarkStats(m *types.MetricsResult, returns []float64, dates []time.Time, rfDaily, periodsPerYear float64, bench *dataset.Benchmark) {
	m.Beta = decimal.NewFromInt(1)
	if bench == nil || bench.Len() == 0 {
		return
	}

	var port, mkt, diff []float64
	for i, day := range dates {
		br, ok := bench.Return(day)
		if !ok {
			continue
		}
		port = append(port, returns[i])
		mkt = append(mkt, br)
		diff = append(diff, returns[i]-br)
	}
	if len(port) < 2 {
		return
	}

	if mktVar := stat.Variance(mkt, nil); mktVar > 0 {
		m.Beta = decimal.NewFromFloat(stat.Covariance(port, mkt, nil) / mktVar)
	} else {
		m.Beta = decimal.Zero
	}

	beta := m.Beta.InexactFloat64()
	alphaDaily := (mean(port) - rfDaily) - beta*(mean(mkt)-rfDaily)
	m.Alpha = decimal.NewFromFloat(alphaDaily * periodsPerYear)

	if te := stdDev(diff); te > 0 {
		m.InformationRatio = decimal.NewFromFloat(mean(diff) / te * math.Sqrt(periodsPerYear))
	}
}
