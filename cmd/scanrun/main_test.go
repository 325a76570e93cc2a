package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/scanloop/core"
)

// resetFlags restores every flag of cmd and its subcommands to its default,
// since flag values live in package variables shared by all tests.
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(t, c)
	}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags(t, rootCmd)
	t.Cleanup(func() { resetFlags(t, rootCmd) })
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestRunPrintsOutputs(t *testing.T) {
	out := execute(t, "run", "../../examples/running_sum.yaml")
	assert.Contains(t, out, "acc = float64[2]{10 15}")
	assert.Contains(t, out, "doubled = float64[5]{2 6 12 20 30}")
}

func TestRunStopsEarly(t *testing.T) {
	out := execute(t, "run", "../../examples/countdown.yaml")
	assert.Contains(t, out, "v = float64[5]{10 7 4 1 -2}")
	assert.Contains(t, out, "halves = float64[4]{3.5 2 0.5 -1}")
	assert.Contains(t, out, "# stopped after 4 iterations")
}

func TestRunSavesOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	execute(t, "run", "../../examples/running_sum.yaml", "--out", path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	arrays, err := core.ReadArrays(f)
	require.NoError(t, err)
	require.Len(t, arrays, 2)
	assert.Equal(t, []float64{10, 15}, arrays[0].Values())
}

func TestCheckPrintsLayout(t *testing.T) {
	out := execute(t, "check", "../../examples/rnn.yaml")
	assert.Contains(t, out, "# rnn: 4 inputs, outputs [h]")
	assert.Contains(t, out, "n_sit_sot: 1")
}

func TestBenchCompare(t *testing.T) {
	out := execute(t, "bench", "../../examples/rnn.yaml", "--workers", "2", "--runs", "3", "--compare")
	assert.Contains(t, out, "copy")
	assert.Contains(t, out, "preallocated")
	assert.Contains(t, out, "runs=6 iterations=24")
}

func TestFlagsDoNotLeakBetweenRuns(t *testing.T) {
	execute(t, "bench", "../../examples/rnn.yaml", "--workers", "1", "--runs", "2", "--compare")

	out := execute(t, "bench", "../../examples/rnn.yaml")
	assert.Contains(t, out, "preallocated runs=400 iterations=1600")
	assert.NotContains(t, out, "copy ")
}
