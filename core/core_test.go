package core

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArrayZeroedAndAligned(t *testing.T) {
	t.Parallel()
	a := NewArray(Float64, 3, 2)

	assert.Equal(t, []int{3, 2}, a.Shape())
	assert.Equal(t, 6, a.Size())
	assert.Equal(t, 3, a.Rows())
	assert.Equal(t, []int{2}, a.RowShape())
	assert.Len(t, a.Bytes(), 48)
	assert.True(t, IsAligned(a.DataPointer()), "payload not cache aligned: 0x%x", a.DataPointer())
	for _, v := range a.Values() {
		assert.Zero(t, v)
	}
}

func TestEmptyArrayHasNoDataPointer(t *testing.T) {
	t.Parallel()
	a := NewArray(Float32, 0, 4)
	assert.Equal(t, 0, a.Size())
	assert.Zero(t, a.DataPointer())
	assert.Nil(t, Elements[float32](a))
}

func TestRowSharesPayload(t *testing.T) {
	t.Parallel()
	a, err := FromValues(Int64, []int{3, 2}, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	row := a.Row(1)
	assert.Equal(t, []int{2}, row.Shape())
	assert.Equal(t, []float64{3, 4}, row.Values())

	row.SetAt(0, 30)
	assert.Equal(t, float64(30), a.At(2), "write through row view should reach parent")

	// Each view is a distinct object over the same memory.
	other := a.Row(1)
	assert.NotSame(t, row, other)
	assert.Equal(t, row.DataPointer(), other.DataPointer())
}

func TestRowOfVectorIsRankZero(t *testing.T) {
	t.Parallel()
	a, err := FromValues(Float32, []int{3}, []float64{1, 2, 3})
	require.NoError(t, err)

	s := a.Row(2)
	assert.Equal(t, 0, s.Rank())
	v, err := s.Int()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestSliceAndReshape(t *testing.T) {
	t.Parallel()
	a, err := FromValues(Float64, []int{4, 2}, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)

	s := a.Slice(1, 3)
	assert.Equal(t, []int{2, 2}, s.Shape())
	assert.Equal(t, []float64{2, 3, 4, 5}, s.Values())

	r, err := s.Reshape(4)
	require.NoError(t, err)
	assert.Equal(t, s.DataPointer(), r.DataPointer())

	_, err = s.Reshape(3)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCopyFromChecksShapeAndDType(t *testing.T) {
	t.Parallel()
	dst := NewArray(Float64, 2)
	src, err := FromValues(Float64, []int{2}, []float64{7, 8})
	require.NoError(t, err)

	require.NoError(t, dst.CopyFrom(src))
	assert.Equal(t, []float64{7, 8}, dst.Values())

	assert.ErrorIs(t, dst.CopyFrom(NewArray(Float64, 3)), ErrShapeMismatch)
	assert.ErrorIs(t, dst.CopyFrom(NewArray(Float32, 2)), ErrDTypeMismatch)
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	a := Scalar(Int32, 5)
	c := a.Clone()
	c.SetAt(0, 9)
	assert.Equal(t, float64(5), a.At(0))
	assert.NotEqual(t, a.DataPointer(), c.DataPointer())
}

func TestPadRows(t *testing.T) {
	t.Parallel()
	seed, err := FromValues(Float64, []int{1, 2}, []float64{1, 2})
	require.NoError(t, err)

	padded, err := PadRows(seed, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, padded.Shape())
	assert.Equal(t, []float64{1, 2, 0, 0, 0, 0}, padded.Values())

	_, err = PadRows(padded, 2)
	assert.Error(t, err)
	_, err = PadRows(Scalar(Float64, 1), 2)
	assert.Error(t, err)
}

func TestTruth(t *testing.T) {
	t.Parallel()
	ok, err := Scalar(Bool, 1).Truth()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Scalar(Float32, 0).Truth()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = NewArray(Bool, 2).Truth()
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	t.Parallel()
	a, err := FromValues(Float64, []int{3}, []float64{1.5, -2, 0})
	require.NoError(t, err)

	b := a.Convert(Bool)
	assert.Equal(t, Bool, b.DType())
	assert.Equal(t, []float64{1, 1, 0}, b.Values())

	i := a.Convert(Int32)
	assert.Equal(t, []float64{1, -2, 0}, i.Values())
}

func TestElementsSizeMismatchPanics(t *testing.T) {
	t.Parallel()
	a := NewArray(Float32, 2)
	assert.Panics(t, func() { _ = Elements[float64](a) })
}

func TestParseDType(t *testing.T) {
	t.Parallel()
	d, err := ParseDType("Float32")
	require.NoError(t, err)
	assert.Equal(t, Float32, d)

	_, err = ParseDType("complex128")
	assert.Error(t, err)

	var u DType
	require.NoError(t, u.UnmarshalText([]byte("int64")))
	assert.Equal(t, Int64, u)
}

func TestAlignSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 64, AlignSize(1, CacheLineSize))
	assert.Equal(t, 64, AlignSize(64, CacheLineSize))
	assert.Equal(t, 128, AlignSize(65, CacheLineSize))
}

func TestAlignedBytesCapacity(t *testing.T) {
	t.Parallel()
	b := AlignedBytes(10)
	assert.Len(t, b, 10)
	assert.Equal(t, 10, cap(b))
	assert.Zero(t, uintptr(unsafe.Pointer(&b[0]))%CacheLineSize)
	assert.Nil(t, AlignedBytes(0))
}

func BenchmarkRowView(b *testing.B) {
	a := NewArray(Float32, 256, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = a.Row(i % 256)
	}
}

func BenchmarkCopyFrom(b *testing.B) {
	dst := NewArray(Float32, 1024)
	src := NewArray(Float32, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = dst.CopyFrom(src)
	}
}
