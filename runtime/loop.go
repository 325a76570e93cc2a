// Package runtime implements the scanloop execution engine.
//
// A Loop drives an opaque, already compiled step function over sequence
// data. The step function communicates only through fixed storage slots:
// before every call the loop gathers the required history rows into the
// input slots, and afterwards it scatters the output slots back into
// per-stream circular buffers, skipping the copy when the step function
// wrote in place.
//
// Key components:
//   - Ring: circular history buffer hiding the modular cursor arithmetic
//   - Args / RouteArgs: split of the flat outer argument list by category
//   - Loop: controller owning the buffers for the duration of a run
//   - ExecutionStats: cumulative timing and buffer traffic
//
// Execution model:
//  1. Validate the step count and sequence lengths
//  2. Seed history buffers from the initial states
//  3. Repeat gather, invoke, scatter and advance until n_steps or the
//     condition output turns false
//  4. Rotate wrapped buffers into chronological order, zero-fill and
//     truncate buffers of early-stopped loops
//
// Execution is strictly sequential: every iteration may depend on the
// outputs of the previous one.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sbl8/scanloop/core"
	"github.com/sbl8/scanloop/model"
)

// StepFunc is a compiled step function. It reads its inputs from and writes
// its results to the slots of the Step it belongs to.
type StepFunc func() error

// Step bundles a step function with its storage slots.
//
// Input slots are ordered as sequences, then one slot per input tap of every
// tapped stream (mit-mot, mit-sot, sit-sot, taps in declaration order), then
// shared outputs, then other arguments.
//
// Output slots are ordered as the non-preallocated mit-mot output taps, then
// mit-sot, sit-sot, nit-sot, shared outputs and finally the condition when
// the layout is a while loop.
type Step struct {
	Inputs  []*core.Slot
	Outputs []*core.Slot
	Fn      StepFunc
}

// NewStep allocates empty slots sized for layout l.
func NewStep(l *model.Layout, fn StepFunc) Step {
	return Step{
		Inputs:  core.NewSlots(l.NInputSlots()),
		Outputs: core.NewSlots(l.NOutputSlots()),
		Fn:      fn,
	}
}

// Result reports what a run did.
type Result struct {
	// StepTime is the cumulative wall time spent inside the step function.
	StepTime time.Duration
	// Iterations is the number of executed iterations, n_steps unless stopped early.
	Iterations   int
	EarlyStopped bool
}

// ExecutionStats tracks cumulative loop metrics
type ExecutionStats struct {
	TotalRuns       int64
	TotalIterations int64
	EarlyStops      int64
	AverageLatency  time.Duration
	StepTime        time.Duration
	Copies          int64 // output rows copied into history buffers
	Reuses          int64 // output rows found already written in place
	Rotations       int64
}

// Loop executes a step function according to a fixed layout. A Loop may be
// run many times but not concurrently with itself, since its step slots are
// shared between runs.
type Loop struct {
	layout *model.Layout
	step   Step
	opts   Options

	condSlot int
	scratch  *BufferPool

	stats ExecutionStats
	mu    sync.RWMutex
}

// NewLoop validates layout against step and returns a ready loop.
func NewLoop(layout *model.Layout, step Step, opts Options) (*Loop, error) {
	if err := layout.Validate(); err != nil {
		return nil, &ConfigurationError{Msg: "invalid layout", Err: err}
	}
	if step.Fn == nil {
		return nil, configErrorf("step function is nil")
	}
	if got, want := len(step.Inputs), layout.NInputSlots(); got != want {
		return nil, configErrorf("step has %d input slots, layout needs %d", got, want)
	}
	if got, want := len(step.Outputs), layout.NOutputSlots(); got != want {
		return nil, configErrorf("step has %d output slots, layout needs %d", got, want)
	}
	for i, s := range step.Inputs {
		if s == nil {
			return nil, configErrorf("input slot %d is nil", i)
		}
	}
	for i, s := range step.Outputs {
		if s == nil {
			return nil, configErrorf("output slot %d is nil", i)
		}
	}

	l := &Loop{
		layout:   layout,
		step:     step,
		opts:     opts.normalized(),
		condSlot: -1,
		scratch:  NewBufferPool(4),
	}
	if layout.AsWhile {
		l.condSlot = len(step.Outputs) - 1
	}
	return l, nil
}

// Layout returns the loop's layout.
func (l *Loop) Layout() *model.Layout { return l.layout }

// Step returns the loop's step function and slots.
func (l *Loop) Step() Step { return l.step }

// run holds the state of a single call to Run.
type run struct {
	l      *Loop
	layout *model.Layout
	args   *Args
	outs   []*core.Slot
	logger *zap.Logger

	rings []*Ring
	// offer marks buffered streams whose next write row may be handed to the
	// step function as a preallocated output.
	offer []bool

	i        int
	stepTime time.Duration

	outSnaps      []core.Snapshot
	mitMotInSnaps []core.Snapshot

	copies, reuses, rotations int
}

// Run executes the loop. outs must hold one slot per output stream ordered
// as [mit_mot, mit_sot, sit_sot, nit_sot, shared_outs]; slots may hold
// caller-provided buffers to reuse and are replaced with the results.
//
// ctx carries tracing and request-scoped logging only; a running step
// function is never interrupted.
func (l *Loop) Run(ctx context.Context, args *Args, outs []*core.Slot) (res Result, err error) {
	if args == nil {
		return Result{}, configErrorf("loop arguments are nil")
	}
	start := time.Now()
	lay := l.layout

	_, span := l.opts.Tracer.Start(ctx, "Loop.Run", trace.WithAttributes(
		attribute.Int("scanloop.n_steps", args.NSteps),
		attribute.Int("scanloop.n_seqs", lay.NSeqs),
		attribute.Int("scanloop.n_mit_mot", lay.NMitMot),
		attribute.Int("scanloop.n_mit_sot", lay.NMitSot),
		attribute.Int("scanloop.n_sit_sot", lay.NSitSot),
		attribute.Int("scanloop.n_nit_sot", lay.NNitSot),
		attribute.Int("scanloop.n_shared_outs", lay.NSharedOuts),
		attribute.Bool("scanloop.as_while", lay.AsWhile),
	))
	r := &run{
		l:      l,
		layout: lay,
		args:   args,
		outs:   outs,
		logger: l.opts.Logger.With(zap.String("run_id", uuid.NewString())),
	}
	defer func() {
		span.SetAttributes(attribute.Int("scanloop.iterations", res.Iterations))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error("loop failed", zap.Int("iteration", r.i), zap.Error(err))
		}
		span.End()
		l.record(r, res, err, time.Since(start))
	}()

	if args.NSteps < 0 {
		return Result{}, configErrorf("loop was asked to run for a negative number of steps (%d)", args.NSteps)
	}
	if err := r.validate(); err != nil {
		return Result{}, err
	}
	r.logger.Debug("loop started", zap.Int("n_steps", args.NSteps))

	if args.NSteps == 0 {
		r.finishEmpty()
		r.logger.Debug("loop finished", zap.Int("iterations", 0))
		return Result{}, nil
	}

	defer r.clearStepSlots()
	r.initBuffers()
	r.placeOthers()

	stopped := false
	for r.i < args.NSteps && !stopped {
		r.gather()
		r.prepareOutputs()
		if err := r.invoke(); err != nil {
			return Result{StepTime: r.stepTime, Iterations: r.i}, err
		}
		cont, err := r.condition()
		if err != nil {
			return Result{StepTime: r.stepTime, Iterations: r.i}, err
		}
		if err := r.scatter(); err != nil {
			return Result{StepTime: r.stepTime, Iterations: r.i}, err
		}
		for _, ring := range r.rings {
			ring.Advance()
		}
		r.i++
		stopped = !cont
	}

	r.normalize()

	res = Result{StepTime: r.stepTime, Iterations: r.i, EarlyStopped: r.i < args.NSteps}
	if res.EarlyStopped {
		r.logger.Debug("loop stopped early", zap.Int("iterations", r.i), zap.Int("n_steps", args.NSteps))
	}
	r.logger.Debug("loop finished",
		zap.Int("iterations", r.i),
		zap.Duration("step_time", r.stepTime),
		zap.Int("copies", r.copies),
		zap.Int("reuses", r.reuses),
	)
	return res, nil
}

// RunFlat routes a flat argument list and runs the loop.
func (l *Loop) RunFlat(ctx context.Context, flat []*core.Array, outs []*core.Slot) (Result, error) {
	args, err := RouteArgs(l.layout, flat)
	if err != nil {
		return Result{}, err
	}
	return l.Run(ctx, args, outs)
}

// validate checks call arguments before any buffer is touched.
func (r *run) validate() error {
	lay := r.layout
	if err := r.args.check(lay); err != nil {
		return err
	}
	if len(r.outs) != lay.NOutputs() {
		return configErrorf("expected %d output slots, got %d", lay.NOutputs(), len(r.outs))
	}
	for s, o := range r.outs {
		if o == nil {
			return configErrorf("output slot %d (%s) is nil", s, lay.Kind(s))
		}
	}
	for k, seq := range r.args.Sequences {
		if seq.Rows() < r.args.NSteps {
			return &ShapeError{
				Kind:  model.KindSequence.String(),
				Index: k,
				Shape: seq.Shape(),
				Msg:   fmt.Sprintf("sequence is shorter than the %d steps required", r.args.NSteps),
			}
		}
		if lay.IsVectorSeq(k) && numRowElements(seq) != 1 {
			return configErrorf("sequence %d is marked vector but has rows of shape %v", k, seq.RowShape())
		}
	}
	for s, init := range r.args.Initial {
		if lay.IsVectorOut(s) && numRowElements(init) != 1 {
			return configErrorf("%s %d is marked vector but has rows of shape %v", lay.Kind(s), s, init.RowShape())
		}
	}
	if r.args.NSteps > 0 {
		for j, n := range r.args.NitSotSteps {
			if n == 0 {
				return configErrorf("nit_sot %d has an empty history window", j)
			}
		}
	}
	return nil
}

func numRowElements(a *core.Array) int {
	n := 1
	for _, d := range a.RowShape() {
		n *= d
	}
	return n
}

// finishEmpty produces the outputs of a loop that runs zero steps: tapped
// streams hold their initial state, nit-sot streams empty arrays of the
// declared rank and dtype, shared outputs their initial value.
func (r *run) finishEmpty() {
	lay := r.layout
	for s, init := range r.args.Initial {
		if lay.IsInplace(s) {
			r.outs[s].Set(init)
		} else {
			r.outs[s].Set(init.Clone())
		}
	}
	for s := lay.NTapped(); s < lay.NBuffered(); s++ {
		tt := lay.OutputType(s)
		r.outs[s].Set(core.NewArray(tt.DType, make([]int, tt.Rank)...))
	}
	for k, sh := range r.args.Shared {
		r.outs[lay.NBuffered()+k].Set(sh)
	}
}

// placeOthers puts the trailing arguments into their input slots once.
func (r *run) placeOthers() {
	lay := r.layout
	base := lay.NSeqs + lay.NTapInputs() + lay.NSharedOuts
	for k, v := range r.args.Others {
		if len(lay.OtherPorts) > 0 && !lay.OtherPort(k).Borrow {
			v = v.Clone()
		}
		r.l.step.Inputs[base+k].Set(v)
	}
}

func (r *run) clearStepSlots() {
	for _, s := range r.l.step.Inputs {
		s.Clear()
	}
	for _, s := range r.l.step.Outputs {
		s.Clear()
	}
}

// record folds a finished run into stats and metrics.
func (l *Loop) record(r *run, res Result, err error, elapsed time.Duration) {
	if l.opts.EnableMetrics {
		observeRun(r, res, err)
	}
	if !l.opts.EnableStats {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.TotalRuns++
	l.stats.TotalIterations += int64(r.i)
	l.stats.StepTime += r.stepTime
	l.stats.Copies += int64(r.copies)
	l.stats.Reuses += int64(r.reuses)
	l.stats.Rotations += int64(r.rotations)
	if err == nil && res.EarlyStopped {
		l.stats.EarlyStops++
	}
	if l.stats.TotalRuns == 1 {
		l.stats.AverageLatency = elapsed
	} else {
		l.stats.AverageLatency = time.Duration(
			(int64(l.stats.AverageLatency)*(l.stats.TotalRuns-1) + int64(elapsed)) / l.stats.TotalRuns,
		)
	}
}

// Stats returns current execution statistics
func (l *Loop) Stats() ExecutionStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// IsConfigurationError reports whether err stems from an invalid loop setup.
func IsConfigurationError(err error) bool { return errors.Is(err, ErrConfiguration) }
