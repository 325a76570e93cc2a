package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sbl8/scanloop/compiler"
	"github.com/sbl8/scanloop/model"
	"github.com/sbl8/scanloop/runtime"
)

var (
	workers int
	runs    int
	compare bool

	benchCmd = &cobra.Command{
		Use:   "bench <loop.yaml>",
		Short: "Run a loop repeatedly on concurrent workers",
		Long: `bench compiles one loop per worker and runs each of them repeatedly.
With --compare the loop is measured twice: once with results copied into the
history buffers and once with the step writing into preallocated rows.`,
		Args: cobra.ExactArgs(1),
		RunE: runBench,
	}
)

func init() {
	benchCmd.Flags().IntVarP(&workers, "workers", "w", 4, "number of concurrent loops")
	benchCmd.Flags().IntVarP(&runs, "runs", "n", 100, "runs per worker")
	benchCmd.Flags().BoolVar(&compare, "compare", false, "compare copying against preallocated writes")
}

type benchResult struct {
	elapsed time.Duration
	stats   runtime.ExecutionStats
}

func runBench(cmd *cobra.Command, args []string) error {
	if workers < 1 || runs < 1 {
		return fmt.Errorf("workers and runs must be positive")
	}
	spec, err := model.LoadSpec(args[0])
	if err != nil {
		return err
	}

	modes := []bool{spec.IntoPreallocated}
	if compare {
		modes = []bool{false, true}
	}
	w := cmd.OutOrStdout()
	for _, into := range modes {
		s := *spec
		s.IntoPreallocated = into
		res, err := bench(cmd.Context(), &s)
		if err != nil {
			return err
		}
		total := int64(workers * runs)
		fmt.Fprintf(w, "%-12s runs=%d iterations=%d elapsed=%v per_run=%v copies=%d reuses=%d rotations=%d\n",
			modeName(into), total, res.stats.TotalIterations, res.elapsed,
			res.elapsed/time.Duration(total), res.stats.Copies, res.stats.Reuses, res.stats.Rotations)
	}
	return nil
}

// bench runs the loop on every worker and sums their statistics. Workers do
// not share compiled programs, since a program's step slots belong to one loop.
func bench(ctx context.Context, spec *model.LoopSpec) (benchResult, error) {
	loops := make([]*runtime.Loop, workers)
	progs := make([]*compiler.Program, workers)
	for k := range loops {
		prog, err := compiler.Compile(spec)
		if err != nil {
			return benchResult{}, err
		}
		opts := runtime.DefaultOptions()
		opts.Logger = logger.With(zap.String("loop", prog.Name), zap.Int("worker", k))
		if loops[k], err = prog.NewLoop(opts); err != nil {
			return benchResult{}, err
		}
		progs[k] = prog
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for k := range loops {
		g.Go(func() error {
			for range runs {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, _, err := progs[k].Run(ctx, loops[k]); err != nil {
					return fmt.Errorf("worker %d: %w", k, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return benchResult{}, err
	}

	res := benchResult{elapsed: time.Since(start)}
	for _, l := range loops {
		st := l.Stats()
		res.stats.TotalRuns += st.TotalRuns
		res.stats.TotalIterations += st.TotalIterations
		res.stats.Copies += st.Copies
		res.stats.Reuses += st.Reuses
		res.stats.Rotations += st.Rotations
	}
	return res, nil
}

func modeName(into bool) string {
	if into {
		return "preallocated"
	}
	return "copy"
}
