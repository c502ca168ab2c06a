package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func writeRunFixtures(t *testing.T) (configPath, pricesPath, signalsPath string) {
	t.Helper()
	dir := t.TempDir()

	configPath = filepath.Join(dir, "replay.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
run:
  start: "2024-01-02"
  end: "2024-01-08"
  initial_capital: 100000
cost:
  kind: fixed
  fixed: 0
`), 0o600))

	pricesPath = filepath.Join(dir, "bars.csv")
	require.NoError(t, os.WriteFile(pricesPath, []byte(
		`symbol,date,open,high,low,close,volume
AAPL,2024-01-02,100,100,100,100,1000000
AAPL,2024-01-03,101,101,101,101,1000000
AAPL,2024-01-04,102,102,102,102,1000000
AAPL,2024-01-05,103,103,103,103,1000000
AAPL,2024-01-08,104,104,104,104,1000000
`), 0o600))

	signalsPath = filepath.Join(dir, "signals.csv")
	require.NoError(t, os.WriteFile(signalsPath, []byte(
		`symbol,date,direction,score
AAPL,2024-01-02,buy,1.0
`), 0o600))

	return configPath, pricesPath, signalsPath
}

func TestRunCommandPrintsMetricsTable(t *testing.T) {
	configPath, pricesPath, signalsPath := writeRunFixtures(t)
	dir := t.TempDir()
	tradesOut := filepath.Join(dir, "trades.csv")
	equityOut := filepath.Join(dir, "equity.csv")

	out, err := execute(t,
		"run",
		"--config", configPath,
		"--prices", pricesPath,
		"--signals", signalsPath,
		"--trades-out", tradesOut,
		"--equity-out", equityOut,
	)
	require.NoError(t, err)

	// 1000 shares bought at 100 ride to 104: a 4% run.
	assert.Contains(t, out, "Days simulated")
	assert.Contains(t, out, "Total return")
	assert.Contains(t, out, "4.00%")
	assert.Contains(t, out, "Sharpe ratio")

	trades, err := readRows(tradesOut)
	require.NoError(t, err)
	require.Len(t, trades, 2, "header plus the single buy")
	assert.Equal(t, "AAPL", trades[1][1])
	assert.Equal(t, "buy", trades[1][2])
	assert.Equal(t, "1000", trades[1][4])

	equity, err := readRows(equityOut)
	require.NoError(t, err)
	assert.Len(t, equity, 6, "header plus five trading days")
}

func TestRunCommandRequiresInputs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing config",
			args: []string{"run", "--prices", "p.csv", "--signals", "s.csv"},
			want: "--config is required",
		},
		{
			name: "missing prices",
			args: []string{"run", "--config", "c.yaml", "--signals", "s.csv"},
			want: "--prices is required",
		},
		{
			name: "missing signals",
			args: []string{"run", "--config", "c.yaml", "--prices", "p.csv"},
			want: "--signals is required",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRunCommandSurfacesConfigErrors(t *testing.T) {
	_, pricesPath, signalsPath := writeRunFixtures(t)

	badConfig := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(badConfig, []byte(`
run:
  start: "2024-06-28"
  end: "2024-01-02"
  initial_capital: 100000
`), 0o600))

	_, err := execute(t, "run", "--config", badConfig, "--prices", pricesPath, "--signals", signalsPath)
	require.Error(t, err)
	assert.ErrorContains(t, err, "start date is after end date")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "replay")
}
