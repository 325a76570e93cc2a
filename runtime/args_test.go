package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/scanloop/core"
	"github.com/sbl8/scanloop/model"
)

func fullLayout() *model.Layout {
	return &model.Layout{
		NSeqs:           2,
		NMitMot:         1,
		NMitSot:         1,
		NSitSot:         1,
		NNitSot:         2,
		NSharedOuts:     1,
		NOthers:         1,
		Taps:            [][]int{{0, 1}, {-3, -1}, {-1}},
		MitMotOutSlices: [][]int{{0}},
	}
}

func TestRouteArgs(t *testing.T) {
	t.Parallel()
	lay := fullLayout()
	require.NoError(t, lay.Validate())

	seqA, seqB := vec(t, 1, 2), vec(t, 3, 4)
	mitMot, mitSot, sitSot := vec(t, 0, 0, 0), vec(t, 0, 0, 0, 0), vec(t, 0, 0, 0)
	shared, other := scalar(1), scalar(2)
	flat := []*core.Array{
		core.Scalar(core.Int64, 2),
		seqA, seqB,
		mitMot, mitSot, sitSot,
		shared,
		core.Scalar(core.Int64, 2), core.Scalar(core.Int32, 5),
		other,
	}
	require.Len(t, flat, lay.NFlatInputs())

	args, err := RouteArgs(lay, flat)
	require.NoError(t, err)

	assert.Equal(t, 2, args.NSteps)
	assert.Equal(t, []*core.Array{seqA, seqB}, args.Sequences)
	assert.Equal(t, []*core.Array{mitMot, mitSot, sitSot}, args.Initial)
	assert.Equal(t, []*core.Array{shared}, args.Shared)
	assert.Equal(t, []int{2, 5}, args.NitSotSteps)
	assert.Equal(t, []*core.Array{other}, args.Others)

	assert.Equal(t, 4, args.storeSteps(lay, 1))
	assert.Equal(t, 5, args.storeSteps(lay, 4))

	assert.Len(t, args.Flat(), len(flat))
}

func TestRouteArgsErrors(t *testing.T) {
	t.Parallel()
	lay := runningSumLayout()
	tests := []struct {
		name string
		flat []*core.Array
	}{
		{"too few", []*core.Array{scalar(1), vec(t, 1)}},
		{"nil argument", []*core.Array{scalar(1), nil, vec(t, 0, 0)}},
		{"fractional n_steps", []*core.Array{scalar(1.5), vec(t, 1), vec(t, 0, 0)}},
		{"n_steps not scalar", []*core.Array{vec(t, 1, 2), vec(t, 1), vec(t, 0, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := RouteArgs(lay, tt.flat)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestArgsCheck(t *testing.T) {
	t.Parallel()
	lay := &model.Layout{
		NSeqs:       1,
		NMitSot:     1,
		NNitSot:     1,
		NSharedOuts: 1,
		Taps:        [][]int{{-3, -1}},
	}
	valid := func() *Args {
		return &Args{
			NSteps:      2,
			Sequences:   []*core.Array{vec(t, 1, 2)},
			Initial:     []*core.Array{vec(t, 0, 0, 0)},
			Shared:      []*core.Array{scalar(0)},
			NitSotSteps: []int{2},
		}
	}
	require.NoError(t, valid().check(lay))

	tests := []struct {
		name   string
		mutate func(a *Args)
	}{
		{"missing sequence", func(a *Args) { a.Sequences = nil }},
		{"rank-0 sequence", func(a *Args) { a.Sequences[0] = scalar(1) }},
		{"seed shorter than taps", func(a *Args) { a.Initial[0] = vec(t, 0, 0) }},
		{"negative nit_sot size", func(a *Args) { a.NitSotSteps[0] = -1 }},
		{"nil shared value", func(a *Args) { a.Shared[0] = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := valid()
			tt.mutate(a)
			assert.ErrorIs(t, a.check(lay), ErrConfiguration)
		})
	}
}
