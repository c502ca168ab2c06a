package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/replaycore/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
run:
  start: "2024-01-02"
  end: "2024-06-28"
  initial_capital: 100000
  max_position_size: 0.25
  score_threshold: 0.6
  trading_days_per_year: 260
  risk_free_rate: 0.02
cost:
  kind: tiered
  default_rate: 0.002
  tax_rate: 0.0023
  tax_on_sell_only: true
  slippage: 0.0005
  tiers:
    - threshold: 10000
      rate: 0.0015
    - threshold: 100000
      rate: 0.001
monte_carlo:
  iterations: 500
  seed: 42
  replacement: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), cfg.Start)
	assert.Equal(t, time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC), cfg.End)
	assert.True(t, cfg.InitialCapital.Equal(decimal.NewFromInt(100000)))
	assert.True(t, cfg.MaxPositionSize.Equal(decimal.NewFromFloat(0.25)))
	assert.True(t, cfg.ScoreThreshold.Equal(decimal.NewFromFloat(0.6)))
	assert.Equal(t, 260, cfg.TradingDaysPerYear)
	assert.True(t, cfg.RiskFreeRate.Equal(decimal.NewFromFloat(0.02)))

	assert.Equal(t, types.CostKindTiered, cfg.Cost.Kind)
	assert.True(t, cfg.Cost.DefaultRate.Equal(decimal.NewFromFloat(0.002)))
	assert.True(t, cfg.Cost.TaxRate.Equal(decimal.NewFromFloat(0.0023)))
	assert.True(t, cfg.Cost.TaxOnSellOnly)
	assert.True(t, cfg.Cost.Slippage.Equal(decimal.NewFromFloat(0.0005)))
	require.Len(t, cfg.Cost.Tiers, 2)
	assert.True(t, cfg.Cost.Tiers[0].Threshold.Equal(decimal.NewFromInt(10000)))
	assert.True(t, cfg.Cost.Tiers[1].Rate.Equal(decimal.NewFromFloat(0.001)))

	require.NotNil(t, cfg.MonteCarlo)
	assert.Equal(t, 500, cfg.MonteCarlo.Iterations)
	assert.Equal(t, int64(42), cfg.MonteCarlo.Seed)
	assert.True(t, cfg.MonteCarlo.Replacement)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
run:
  start: "2024-01-02"
  end: "2024-03-28"
  initial_capital: 50000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.MaxPositionSize.Equal(decimal.NewFromInt(1)))
	assert.True(t, cfg.ScoreThreshold.Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, 252, cfg.TradingDaysPerYear)
	assert.True(t, cfg.RiskFreeRate.IsZero())
	assert.Equal(t, types.CostKindFixed, cfg.Cost.Kind)
	assert.Empty(t, cfg.Cost.Tiers)
	assert.Nil(t, cfg.MonteCarlo)
}

func TestLoadAcceptsUnquotedDates(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
run:
  start: 2024-01-02
  end: 2024-03-28
  initial_capital: 50000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), cfg.Start)
	assert.Equal(t, time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), cfg.End)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("REPLAY_RUN_INITIAL_CAPITAL", "250000")

	path := writeConfig(t, `
run:
  start: "2024-01-02"
  end: "2024-03-28"
  initial_capital: 50000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.InitialCapital.Equal(decimal.NewFromInt(250000)),
		"got %s", cfg.InitialCapital)
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name: "start after end",
			body: `
run:
  start: "2024-06-28"
  end: "2024-01-02"
  initial_capital: 50000
`,
			wantErr: types.ErrInvalidDateRange,
		},
		{
			name: "missing capital",
			body: `
run:
  start: "2024-01-02"
  end: "2024-03-28"
`,
			wantErr: types.ErrInvalidCapital,
		},
		{
			name: "negative cost rate",
			body: `
run:
  start: "2024-01-02"
  end: "2024-03-28"
  initial_capital: 50000
cost:
  kind: percent
  rate: -0.01
`,
			wantErr: nil, // schemes validate at engine start, not at load
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(writeConfig(t, tt.body))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, cfg.Cost.Rate.IsNegative())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `run: [`))
	require.Error(t, err)
}

func TestLoadRejectsUnparseableDate(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, `
run:
  start: "02/01/2024"
  end: "2024-03-28"
  initial_capital: 50000
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run.start")
}
