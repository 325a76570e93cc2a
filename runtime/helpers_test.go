package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/scanloop/core"
	"github.com/sbl8/scanloop/model"
)

type stepBody func(i int, in, out []*core.Slot) error

// newTestLoop builds a loop whose step function receives the iteration
// number it is called for.
func newTestLoop(t testing.TB, lay *model.Layout, body stepBody, opts ...Options) *Loop {
	t.Helper()
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	step := NewStep(lay, nil)
	calls := 0
	step.Fn = func() error {
		i := calls
		calls++
		return body(i, step.Inputs, step.Outputs)
	}
	loop, err := NewLoop(lay, step, o)
	require.NoError(t, err)
	return loop
}

func f64(t testing.TB, shape []int, vals ...float64) *core.Array {
	t.Helper()
	a, err := core.FromValues(core.Float64, shape, vals)
	require.NoError(t, err)
	return a
}

func vec(t testing.TB, vals ...float64) *core.Array {
	t.Helper()
	return f64(t, []int{len(vals)}, vals...)
}

func scalar(v float64) *core.Array {
	return core.Scalar(core.Float64, v)
}

func val(s *core.Slot) float64 {
	return s.Get().At(0)
}

// runningSumLayout is acc[t] = acc[t-1] + x[t] over rank-0 rows.
func runningSumLayout() *model.Layout {
	return &model.Layout{
		NSeqs:      1,
		NSitSot:    1,
		Taps:       [][]int{{-1}},
		VectorSeqs: []bool{true},
		VectorOuts: []bool{true},
	}
}
