// Package scanloop executes symbolic scan loops: a step function applied
// n_steps times over sequences and recurrent state.
//
// A loop is described by a static Layout that sorts its streams into
// categories, and a step function that reads one slot per input tap and
// fills one slot per output.
//
// # Stream Categories
//
//   - sequences: read row by row, one row per iteration
//   - mit_mot: multiple input taps and multiple output taps into one buffer
//   - mit_sot: multiple input taps, one output per iteration
//   - sit_sot: a single input tap at -1, one output per iteration
//   - nit_sot: no input taps, one output per iteration
//   - shared: a value carried from one iteration to the next
//   - others: trailing arguments passed through unchanged
//
// Tapped streams live in circular history buffers whose length is the
// leading dimension of their initial state. When a buffer is shorter than
// the number of produced rows it wraps, and is rotated back into
// chronological order once the loop ends. Outputs the step function writes
// directly into their buffer row are detected and not copied again.
//
// # Basic Usage
//
//	prog, err := compiler.CompileFile("examples/rnn.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loop, err := prog.NewLoop(runtime.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	outs, res, err := prog.Run(ctx, loop)
//
// # Package Structure
//
//   - core: arrays, dtypes, output slots and serialization
//   - model: loop layouts and the YAML loop description
//   - runtime: argument routing, history buffers and the loop itself
//   - kernels: element-wise and reduction operations used by step programs
//   - compiler: turns a loop description into a layout and a step function
//   - cmd/scanrun: command-line runner
package scanloop
