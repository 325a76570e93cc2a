package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/scanloop/core"
)

func TestRingCursorStartsPastSeed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		rows   int
		minTap int
		want   int
	}{
		{"sit_sot window", 4, -1, 1},
		{"exact window", 2, -2, 0},
		{"deep tap", 3, -5, 2},
		{"mit_mot", 5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newRing(core.NewArray(core.Float64, tt.rows), tt.minTap)
			assert.Equal(t, tt.want, r.Pos())
			assert.Equal(t, tt.rows, r.Len())
		})
	}
}

func TestRingReadWriteWraps(t *testing.T) {
	t.Parallel()
	buf := vec(t, 10, 11, 12)
	r := newRing(buf, -1)

	assert.Equal(t, 0, r.Index(-1))
	assert.Equal(t, float64(10), r.Read(-1).At(0))

	require.NoError(t, r.Write(0, scalar(1)))
	r.Advance()
	require.NoError(t, r.Write(0, scalar(2)))
	r.Advance()
	assert.Equal(t, 0, r.Pos(), "cursor should wrap")
	assert.Equal(t, float64(2), r.Read(-1).At(0))
	assert.Equal(t, float64(1), r.Read(-2).At(0))
	assert.Equal(t, 2, r.Index(-4))

	assert.Equal(t, []float64{10, 1, 2}, buf.Values())
}

func TestRingWriteRejectsMismatchedRow(t *testing.T) {
	t.Parallel()
	r := newRing(core.NewArray(core.Float64, 3, 2), -1)
	err := r.Write(0, vec(t, 1, 2, 3))
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestLazyRingAttach(t *testing.T) {
	t.Parallel()
	r := lazyRing(3)
	assert.False(t, r.Allocated())
	assert.Nil(t, r.Array())

	r.attach(core.NewArray(core.Int64, 3))
	require.True(t, r.Allocated())
	require.NoError(t, r.Write(0, core.Scalar(core.Int64, 7)))
	assert.Equal(t, []float64{7, 0, 0}, r.Array().Values())
}
