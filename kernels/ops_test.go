package kernels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/scanloop/core"
)

func arr(t testing.TB, dtype core.DType, shape []int, vals ...float64) *core.Array {
	t.Helper()
	a, err := core.FromValues(dtype, shape, vals)
	require.NoError(t, err)
	return a
}

func vec(t testing.TB, vals ...float64) *core.Array {
	t.Helper()
	return arr(t, core.Float64, []int{len(vals)}, vals...)
}

func TestElementwise(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []*core.Array
		want []float64
	}{
		{"add", []*core.Array{vec(t, 1, 2), vec(t, 3, 4)}, []float64{4, 6}},
		{"sub", []*core.Array{vec(t, 1, 2), vec(t, 3, 5)}, []float64{-2, -3}},
		{"mul", []*core.Array{vec(t, 1, 2), core.Scalar(core.Float64, 3)}, []float64{3, 6}},
		{"div", []*core.Array{core.Scalar(core.Float64, 1), vec(t, 2, 4)}, []float64{0.5, 0.25}},
		{"max", []*core.Array{vec(t, 1, 5), vec(t, 3, 4)}, []float64{3, 5}},
		{"min", []*core.Array{vec(t, 1, 5), vec(t, 3, 4)}, []float64{1, 4}},
		{"pow", []*core.Array{vec(t, 2, 3), core.Scalar(core.Float64, 2)}, []float64{4, 9}},
		{"neg", []*core.Array{vec(t, 1, -2)}, []float64{-1, 2}},
		{"abs", []*core.Array{vec(t, 1, -2)}, []float64{1, 2}},
		{"relu", []*core.Array{vec(t, -1, 2, -3, 4)}, []float64{0, 2, 0, 4}},
		{"sqrplusx", []*core.Array{vec(t, 1, 2, 3, 4)}, []float64{2, 6, 12, 20}},
		{"copy", []*core.Array{vec(t, 7)}, []float64{7}},
		{"lt", []*core.Array{vec(t, 1, 5), core.Scalar(core.Float64, 3)}, []float64{1, 0}},
		{"ge", []*core.Array{vec(t, 1, 5), core.Scalar(core.Float64, 5)}, []float64{0, 1}},
		{"eq", []*core.Array{vec(t, 1, 5), vec(t, 1, 4)}, []float64{1, 0}},
		{"and", []*core.Array{vec(t, 1, 1, 0), vec(t, 1, 0, 0)}, []float64{1, 0, 0}},
		{"not", []*core.Array{vec(t, 0, 2)}, []float64{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Apply(tt.name, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Values())
		})
	}
}

func TestTranscendental(t *testing.T) {
	t.Parallel()
	got, err := Apply("sigmoid", vec(t, 0, 800, -800))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 1, 0}, got.Values(), 1e-12)

	got, err = Apply("tanh", arr(t, core.Float32, []int{2}, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, core.Float32, got.DType())
	assert.InDelta(t, math.Tanh(1), got.At(1), 1e-6)
}

func TestResultDTypes(t *testing.T) {
	t.Parallel()
	i32 := arr(t, core.Int32, []int{2}, 1, 2)
	f32 := arr(t, core.Float32, []int{2}, 1, 2)

	tests := []struct {
		name string
		args []*core.Array
		want core.DType
	}{
		{"add", []*core.Array{i32, i32}, core.Int32},
		{"add", []*core.Array{i32, f32}, core.Float32},
		{"add", []*core.Array{f32, core.Scalar(core.Float64, 1)}, core.Float64},
		{"exp", []*core.Array{i32}, core.Float64},
		{"neg", []*core.Array{i32}, core.Int32},
		{"lt", []*core.Array{f32, f32}, core.Bool},
		{"mean", []*core.Array{i32}, core.Float64},
		{"sum", []*core.Array{arr(t, core.Bool, []int{2}, 1, 1)}, core.Int64},
	}
	for _, tt := range tests {
		k, err := Lookup(tt.name)
		require.NoError(t, err)
		dtype, _, err := k.Infer(tt.args...)
		require.NoError(t, err)
		assert.Equal(t, tt.want, dtype, "%s(%v)", tt.name, tt.args)
	}
}

func TestIntegerFastPath(t *testing.T) {
	t.Parallel()
	got, err := Apply("mul", arr(t, core.Int64, []int{3}, 1, 2, 3), arr(t, core.Int64, []int{}, 4))
	require.NoError(t, err)
	assert.Equal(t, core.Int64, got.DType())
	assert.Equal(t, []int64{4, 8, 12}, core.Elements[int64](got))
}

func TestApplyInto(t *testing.T) {
	t.Parallel()
	add, err := Lookup("add")
	require.NoError(t, err)

	a := vec(t, 1, 2, 3)
	require.NoError(t, add.ApplyInto(a, a, vec(t, 10, 20, 30)))
	assert.Equal(t, []float64{11, 22, 33}, a.Values(), "destination may alias an operand")

	f32 := core.NewArray(core.Float32, 3)
	require.NoError(t, add.ApplyInto(f32, a, core.Scalar(core.Float64, 1)))
	assert.Equal(t, []float64{12, 23, 34}, f32.Values())

	err = add.ApplyInto(core.NewArray(core.Float64, 2), a, a)
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestReductions(t *testing.T) {
	t.Parallel()
	x := vec(t, 1, 2, 3, 4)

	sum, err := Apply("sum", x)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Rank())
	assert.Equal(t, float64(10), sum.At(0))

	mean, err := Apply("mean", x)
	require.NoError(t, err)
	assert.Equal(t, 2.5, mean.At(0))

	d, err := Apply("dot", x, vec(t, 1, 0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, float64(4), d.At(0))

	sm, err := Apply("softmax", vec(t, 1, 1, 1, 1))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.25, 0.25, 0.25}, sm.Values(), 1e-12)
}

func TestMatMul(t *testing.T) {
	t.Parallel()
	w := arr(t, core.Float64, []int{2, 3}, 1, 2, 3, 4, 5, 6)

	mv, err := Apply("matmul", w, vec(t, 1, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, mv.Shape())
	assert.Equal(t, []float64{4, 10}, mv.Values())

	id := arr(t, core.Float64, []int{3, 3}, 1, 0, 0, 0, 1, 0, 0, 0, 1)
	mm, err := Apply("matmul", w, id)
	require.NoError(t, err)
	assert.Equal(t, w.Values(), mm.Values())

	vm, err := Apply("matmul", vec(t, 1, 1), w)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7, 9}, vm.Values())

	_, err = Apply("matmul", w, vec(t, 1, 2))
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestMatMulLargerThanBlock(t *testing.T) {
	t.Parallel()
	n := blockSize + 5
	a := core.NewArray(core.Float64, n, n)
	for i := 0; i < n; i++ {
		a.SetAt(i*n+i, 2)
	}
	ones := core.NewArray(core.Float64, n)
	for i := 0; i < n; i++ {
		ones.SetAt(i, 1)
	}
	got, err := Apply("matmul", a, ones)
	require.NoError(t, err)
	for _, v := range got.Values() {
		assert.Equal(t, float64(2), v)
	}
}

func TestKernelErrors(t *testing.T) {
	t.Parallel()
	_, err := Apply("nope", vec(t, 1))
	assert.ErrorIs(t, err, ErrUnknownKernel)

	_, err = Apply("add", vec(t, 1))
	assert.ErrorIs(t, err, ErrArity)

	_, err = Apply("add", vec(t, 1, 2), vec(t, 1, 2, 3))
	assert.ErrorIs(t, err, core.ErrShapeMismatch)

	_, err = Apply("dot", vec(t, 1, 2), vec(t, 1))
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestNamesSorted(t *testing.T) {
	t.Parallel()
	names := Names()
	assert.Contains(t, names, "matmul")
	assert.IsIncreasing(t, names)
}
