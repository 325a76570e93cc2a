package runtime

import (
	"fmt"

	"github.com/sbl8/scanloop/core"
	"github.com/sbl8/scanloop/model"
)

// Args are the outer inputs of one loop call, already split by category.
type Args struct {
	NSteps int
	// Sequences each need at least NSteps rows.
	Sequences []*core.Array
	// Initial holds, per tapped stream, the initial history window. Its
	// leading dimension is the stream's store_steps; for mit-sot and sit-sot
	// streams only the first -mintap rows are meaningful seed history.
	Initial []*core.Array
	// Shared holds the initial value of every shared output.
	Shared []*core.Array
	// NitSotSteps holds the window length of every nit-sot stream.
	NitSotSteps []int
	// Others are passed to the step function unchanged, once per call.
	Others []*core.Array
}

// RouteArgs splits a flat argument list ordered as
//
//	[n_steps, sequences, mit_mot, mit_sot, sit_sot, shared_outs, nit_sot sizes, other_args]
//
// into Args. n_steps and the nit-sot sizes must be single-element integer arrays.
func RouteArgs(l *model.Layout, flat []*core.Array) (*Args, error) {
	if want := l.NFlatInputs(); len(flat) != want {
		return nil, configErrorf("expected %d flat arguments, got %d", want, len(flat))
	}
	for i, a := range flat {
		if a == nil {
			return nil, configErrorf("flat argument %d is nil", i)
		}
	}

	nSteps, err := flat[0].Int()
	if err != nil {
		return nil, &ConfigurationError{Msg: "n_steps", Err: err}
	}

	next := 1
	take := func(n int) []*core.Array {
		out := flat[next : next+n : next+n]
		next += n
		return out
	}

	args := &Args{NSteps: nSteps}
	args.Sequences = take(l.NSeqs)
	args.Initial = take(l.NTapped())
	args.Shared = take(l.NSharedOuts)
	for j, a := range take(l.NNitSot) {
		n, err := a.Int()
		if err != nil {
			return nil, &ConfigurationError{Msg: fmt.Sprintf("nit_sot %d size", j), Err: err}
		}
		args.NitSotSteps = append(args.NitSotSteps, n)
	}
	args.Others = take(l.NOthers)
	return args, nil
}

// Flat is the inverse of RouteArgs.
func (a *Args) Flat() []*core.Array {
	flat := []*core.Array{core.Scalar(core.Int64, float64(a.NSteps))}
	flat = append(flat, a.Sequences...)
	flat = append(flat, a.Initial...)
	flat = append(flat, a.Shared...)
	for _, n := range a.NitSotSteps {
		flat = append(flat, core.Scalar(core.Int64, float64(n)))
	}
	return append(flat, a.Others...)
}

// check verifies the argument counts against the layout. Shape problems are
// reported later, after the step count has been validated.
func (a *Args) check(l *model.Layout) error {
	counts := []struct {
		name      string
		got, want int
	}{
		{"sequences", len(a.Sequences), l.NSeqs},
		{"initial states", len(a.Initial), l.NTapped()},
		{"shared outputs", len(a.Shared), l.NSharedOuts},
		{"nit_sot sizes", len(a.NitSotSteps), l.NNitSot},
		{"other arguments", len(a.Others), l.NOthers},
	}
	for _, c := range counts {
		if c.got != c.want {
			return configErrorf("expected %d %s, got %d", c.want, c.name, c.got)
		}
	}
	for i, s := range a.Sequences {
		if s == nil || s.Rank() == 0 {
			return configErrorf("sequence %d must be an array with a leading time dimension", i)
		}
	}
	for s, init := range a.Initial {
		if init == nil || init.Rank() == 0 {
			return configErrorf("%s %d initial state must be an array with a leading time dimension", l.Kind(s), s)
		}
		if depth := -l.MinTap(s); l.Kind(s) != model.KindMitMot && init.Rows() < depth {
			return configErrorf("%s %d initial state has %d rows, taps reach back %d steps", l.Kind(s), s, init.Rows(), depth)
		}
		if init.Rows() == 0 {
			return configErrorf("%s %d has an empty history window", l.Kind(s), s)
		}
	}
	for j, n := range a.NitSotSteps {
		if n < 0 {
			return configErrorf("nit_sot %d has negative size %d", j, n)
		}
	}
	for i, sh := range a.Shared {
		if sh == nil {
			return configErrorf("shared output %d has no initial value", i)
		}
	}
	return nil
}

// storeSteps returns the window length of buffered stream s.
func (a *Args) storeSteps(l *model.Layout, s int) int {
	if s < l.NTapped() {
		return a.Initial[s].Rows()
	}
	return a.NitSotSteps[s-l.NTapped()]
}
