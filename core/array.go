package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unsafe"
)

// Element is the set of Go types an Array can be viewed as.
type Element interface {
	~bool | ~uint8 | ~int32 | ~int64 | ~float32 | ~float64
}

// Array is a dense, row-major n-dimensional array backed by a raw byte
// payload. Views returned by Row, Slice and Reshape share the payload of the
// array they were taken from; each view is a distinct *Array so identity and
// data pointer can be compared independently.
type Array struct {
	dtype DType
	shape []int
	data  []byte
}

// ErrShapeMismatch is returned when two arrays must agree on shape and do not.
var ErrShapeMismatch = errors.New("shape mismatch")

// ErrDTypeMismatch is returned when two arrays must agree on dtype and do not.
var ErrDTypeMismatch = errors.New("dtype mismatch")

// NewArray allocates a zeroed, cache-aligned array.
func NewArray(dtype DType, shape ...int) *Array {
	if !dtype.Valid() {
		panic(fmt.Sprintf("core: invalid dtype %s", dtype))
	}
	size := numElements(shape)
	if size < 0 {
		panic(fmt.Sprintf("core: negative dimension in shape %v", shape))
	}
	return &Array{
		dtype: dtype,
		shape: cloneInts(shape),
		data:  AlignedBytes(size * dtype.Size()),
	}
}

// FromValues builds an array of the given dtype and shape, converting values
// from float64. len(values) must equal the number of elements.
func FromValues(dtype DType, shape []int, values []float64) (*Array, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid dtype %s", dtype)
	}
	if n := numElements(shape); n != len(values) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(values))
	}
	a := NewArray(dtype, shape...)
	for i, v := range values {
		a.SetAt(i, v)
	}
	return a, nil
}

// Scalar returns a rank-0 array holding v.
func Scalar(dtype DType, v float64) *Array {
	a := NewArray(dtype)
	a.SetAt(0, v)
	return a
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Shape returns a copy of the array dimensions.
func (a *Array) Shape() []int { return cloneInts(a.shape) }

// Rank returns the number of dimensions.
func (a *Array) Rank() int { return len(a.shape) }

// Size returns the number of elements.
func (a *Array) Size() int { return numElements(a.shape) }

// Rows returns the leading dimension, or 0 for a rank-0 array.
func (a *Array) Rows() int {
	if len(a.shape) == 0 {
		return 0
	}
	return a.shape[0]
}

// RowShape returns the shape of a single row (shape without the leading dimension).
func (a *Array) RowShape() []int {
	if len(a.shape) == 0 {
		return nil
	}
	return cloneInts(a.shape[1:])
}

// Bytes exposes the raw payload. Writes through the returned slice are visible
// to every view sharing it.
func (a *Array) Bytes() []byte { return a.data }

// DataPointer returns the address of the first payload byte, or 0 for an
// empty array. Two arrays with equal non-zero data pointers alias the same
// memory at their first element.
func (a *Array) DataPointer() uintptr {
	if len(a.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&a.data[0]))
}

func (a *Array) rowBytes() int {
	return numElements(a.shape[1:]) * a.dtype.Size()
}

// Row returns a view of row i with rank one less than a.
func (a *Array) Row(i int) *Array {
	if len(a.shape) == 0 {
		panic("core: Row on rank-0 array")
	}
	if i < 0 || i >= a.shape[0] {
		panic(fmt.Sprintf("core: row %d out of range [0,%d)", i, a.shape[0]))
	}
	rb := a.rowBytes()
	return &Array{
		dtype: a.dtype,
		shape: cloneInts(a.shape[1:]),
		data:  a.data[i*rb : (i+1)*rb : (i+1)*rb],
	}
}

// Slice returns a view of rows [start, end).
func (a *Array) Slice(start, end int) *Array {
	if len(a.shape) == 0 {
		panic("core: Slice on rank-0 array")
	}
	if start < 0 || end < start || end > a.shape[0] {
		panic(fmt.Sprintf("core: slice [%d,%d) out of range [0,%d]", start, end, a.shape[0]))
	}
	rb := a.rowBytes()
	shape := cloneInts(a.shape)
	shape[0] = end - start
	return &Array{
		dtype: a.dtype,
		shape: shape,
		data:  a.data[start*rb : end*rb : end*rb],
	}
}

// Reshape returns a view with a new shape holding the same number of elements.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	if numElements(shape) != a.Size() {
		return nil, fmt.Errorf("cannot reshape %v into %v: %w", a.shape, shape, ErrShapeMismatch)
	}
	return &Array{dtype: a.dtype, shape: cloneInts(shape), data: a.data}, nil
}

// Clone returns a deep copy in freshly allocated storage.
func (a *Array) Clone() *Array {
	c := NewArray(a.dtype, a.shape...)
	copy(c.data, a.data)
	return c
}

// CopyFrom copies src into a. Shapes and dtypes must match exactly.
// Overlapping payloads are handled like memmove.
func (a *Array) CopyFrom(src *Array) error {
	if src.dtype != a.dtype {
		return fmt.Errorf("copy %s into %s: %w", src.dtype, a.dtype, ErrDTypeMismatch)
	}
	if !SameShape(src.shape, a.shape) {
		return fmt.Errorf("copy %v into %v: %w", src.shape, a.shape, ErrShapeMismatch)
	}
	copy(a.data, src.data)
	return nil
}

// Zero clears every element.
func (a *Array) Zero() {
	clear(a.data)
}

// At returns flat element i converted to float64.
func (a *Array) At(i int) float64 {
	switch a.dtype {
	case Bool:
		if Elements[bool](a)[i] {
			return 1
		}
		return 0
	case Uint8:
		return float64(Elements[uint8](a)[i])
	case Int32:
		return float64(Elements[int32](a)[i])
	case Int64:
		return float64(Elements[int64](a)[i])
	case Float32:
		return float64(Elements[float32](a)[i])
	case Float64:
		return Elements[float64](a)[i]
	}
	panic(fmt.Sprintf("core: At on %s array", a.dtype))
}

// SetAt stores v, converted to the array dtype, at flat index i.
func (a *Array) SetAt(i int, v float64) {
	switch a.dtype {
	case Bool:
		Elements[bool](a)[i] = v != 0
	case Uint8:
		Elements[uint8](a)[i] = uint8(v)
	case Int32:
		Elements[int32](a)[i] = int32(v)
	case Int64:
		Elements[int64](a)[i] = int64(v)
	case Float32:
		Elements[float32](a)[i] = float32(v)
	case Float64:
		Elements[float64](a)[i] = v
	default:
		panic(fmt.Sprintf("core: SetAt on %s array", a.dtype))
	}
}

// Values returns all elements converted to float64.
func (a *Array) Values() []float64 {
	out := make([]float64, a.Size())
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// Truth reports whether a single-element array holds a non-zero value.
func (a *Array) Truth() (bool, error) {
	if a.Size() != 1 {
		return false, fmt.Errorf("truth value of array with shape %v is ambiguous", a.shape)
	}
	return a.At(0) != 0, nil
}

// Int returns the value of a single-element array as an int.
func (a *Array) Int() (int, error) {
	if a.Size() != 1 {
		return 0, fmt.Errorf("array with shape %v is not a scalar", a.shape)
	}
	v := a.At(0)
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("scalar %v is not an integer", v)
	}
	return int(v), nil
}

// Convert returns a copy of a with elements converted to dtype.
func (a *Array) Convert(dtype DType) *Array {
	if dtype == a.dtype {
		return a.Clone()
	}
	c := NewArray(dtype, a.shape...)
	for i := 0; i < a.Size(); i++ {
		c.SetAt(i, a.At(i))
	}
	return c
}

func (a *Array) String() string {
	if a == nil {
		return "<nil>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%v{", a.dtype, a.shape)
	n := a.Size()
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		if i == 16 && n > 20 {
			fmt.Fprintf(&sb, "... (%d more)", n-i)
			break
		}
		fmt.Fprintf(&sb, "%g", a.At(i))
	}
	sb.WriteString("}")
	return sb.String()
}

// Elements reinterprets the payload of a as a []T. T must have the same
// size as the array element type.
func Elements[T Element](a *Array) []T {
	var zero T
	if int(unsafe.Sizeof(zero)) != a.dtype.Size() {
		panic(fmt.Sprintf("core: cannot view %s array as %T", a.dtype, zero))
	}
	if len(a.data) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&a.data[0])), len(a.data)/a.dtype.Size())
}

// PadRows returns a new array with rows leading rows whose first a.Rows()
// rows are copied from a and the rest zero. It is the usual way of turning an
// initial state into a history window larger than the seed.
func PadRows(a *Array, rows int) (*Array, error) {
	if a.Rank() == 0 {
		return nil, errors.New("cannot pad a rank-0 array")
	}
	if rows < a.Rows() {
		return nil, fmt.Errorf("cannot pad %d rows down to %d", a.Rows(), rows)
	}
	shape := a.Shape()
	shape[0] = rows
	out := NewArray(a.dtype, shape...)
	copy(out.data, a.data)
	return out, nil
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

func cloneInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	out := make([]int, len(s))
	copy(out, s)
	return out
}
