package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbl8/scanloop/compiler"
	"github.com/sbl8/scanloop/core"
	"github.com/sbl8/scanloop/runtime"
)

var (
	outPath   string
	showStats bool
	metrics   bool

	runCmd = &cobra.Command{
		Use:   "run <loop.yaml>",
		Short: "Execute a loop and print its outputs",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoop,
	}
)

func init() {
	runCmd.Flags().StringVarP(&outPath, "out", "o", "", "also write the outputs to this file in binary form")
	runCmd.Flags().BoolVar(&showStats, "stats", false, "print buffer statistics after the run")
	runCmd.Flags().BoolVar(&metrics, "metrics", false, "report to the default Prometheus registry")
}

func runLoop(cmd *cobra.Command, args []string) error {
	prog, err := compiler.CompileFile(args[0])
	if err != nil {
		return err
	}

	opts := runtime.DefaultOptions()
	opts.Logger = logger.With(zap.String("loop", prog.Name))
	opts.EnableMetrics = metrics
	loop, err := prog.NewLoop(opts)
	if err != nil {
		return err
	}

	outs, res, err := prog.Run(cmd.Context(), loop)
	if err != nil {
		return fmt.Errorf("loop %q: %w", prog.Name, err)
	}

	w := cmd.OutOrStdout()
	for i, name := range prog.OutputNames {
		fmt.Fprintf(w, "%s = %s\n", name, outs[i])
	}
	if res.EarlyStopped {
		fmt.Fprintf(w, "# stopped after %d iterations\n", res.Iterations)
	}

	if showStats {
		st := loop.Stats()
		fmt.Fprintf(w, "# iterations=%d step_time=%v copies=%d reuses=%d rotations=%d\n",
			st.TotalIterations, st.StepTime, st.Copies, st.Reuses, st.Rotations)
	}

	if outPath != "" {
		return saveArrays(outPath, outs)
	}
	return nil
}

func saveArrays(path string, arrays []*core.Array) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := core.WriteArrays(f, arrays); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
