package kernels

import (
	"fmt"
	"math"

	"github.com/sbl8/scanloop/core"
)

// blockSize is the tile edge of the blocked matmul loop.
const blockSize = 32

func sumOf(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

// store writes values into dst, which has the same number of elements.
func store(dst *core.Array, values []float64) {
	if dst.DType() == core.Float64 {
		copy(core.Elements[float64](dst), values)
		return
	}
	for i, v := range values {
		dst.SetAt(i, v)
	}
}

// reduction builds a kernel folding all elements of its operand into a
// rank-0 result.
func reduction(name string, float bool, f func([]float64) float64) *Kernel {
	return &Kernel{
		Name:  name,
		Arity: 1,
		infer: func(args []*core.Array) (core.DType, []int, error) {
			d := args[0].DType()
			switch {
			case float:
				d = floating(d)
			case d == core.Bool:
				d = core.Int64
			}
			return d, []int{}, nil
		},
		eval: func(dst *core.Array, args []*core.Array) {
			dst.SetAt(0, f(args[0].Values()))
		},
	}
}

func dot() *Kernel {
	return &Kernel{
		Name:  "dot",
		Arity: 2,
		infer: func(args []*core.Array) (core.DType, []int, error) {
			a, b := args[0], args[1]
			if a.Size() != b.Size() {
				return core.Invalid, nil, fmt.Errorf("operands %v and %v: %w", a.Shape(), b.Shape(), core.ErrShapeMismatch)
			}
			return promote(a.DType(), b.DType()), []int{}, nil
		},
		eval: func(dst *core.Array, args []*core.Array) {
			a, b := args[0], args[1]
			if a.DType() == core.Float64 && b.DType() == core.Float64 {
				av, bv := core.Elements[float64](a), core.Elements[float64](b)
				s := 0.0
				for i := range av {
					s += av[i] * bv[i]
				}
				dst.SetAt(0, s)
				return
			}
			s := 0.0
			for i := 0; i < a.Size(); i++ {
				s += a.At(i) * b.At(i)
			}
			dst.SetAt(0, s)
		},
	}
}

// matrixDims returns the operands of matmul as m×k and k×n matrices.
func matrixDims(a, b *core.Array) (m, k, n int, shape []int, err error) {
	as, bs := a.Shape(), b.Shape()
	switch {
	case len(as) == 2 && len(bs) == 1:
		m, k, n, shape = as[0], as[1], 1, []int{as[0]}
		if bs[0] != k {
			err = core.ErrShapeMismatch
		}
	case len(as) == 2 && len(bs) == 2:
		m, k, n, shape = as[0], as[1], bs[1], []int{as[0], bs[1]}
		if bs[0] != k {
			err = core.ErrShapeMismatch
		}
	case len(as) == 1 && len(bs) == 2:
		m, k, n, shape = 1, as[0], bs[1], []int{bs[1]}
		if bs[0] != k {
			err = core.ErrShapeMismatch
		}
	default:
		err = fmt.Errorf("matmul needs a matrix operand: %w", core.ErrShapeMismatch)
	}
	if err != nil {
		err = fmt.Errorf("operands %v and %v: %w", as, bs, err)
	}
	return m, k, n, shape, err
}

func matmul() *Kernel {
	return &Kernel{
		Name:  "matmul",
		Arity: 2,
		infer: func(args []*core.Array) (core.DType, []int, error) {
			_, _, _, shape, err := matrixDims(args[0], args[1])
			return promote(args[0].DType(), args[1].DType()), shape, err
		},
		eval: func(dst *core.Array, args []*core.Array) {
			m, k, n, _, _ := matrixDims(args[0], args[1])
			a, b := args[0].Values(), args[1].Values()
			out := make([]float64, m*n)

			// Cache-friendly matrix multiplication with blocking
			for ii := 0; ii < m; ii += blockSize {
				iEnd := min(ii+blockSize, m)
				for jj := 0; jj < n; jj += blockSize {
					jEnd := min(jj+blockSize, n)
					for kk := 0; kk < k; kk += blockSize {
						kEnd := min(kk+blockSize, k)
						for i := ii; i < iEnd; i++ {
							for j := jj; j < jEnd; j++ {
								sum := 0.0
								for p := kk; p < kEnd; p++ {
									sum += a[i*k+p] * b[p*n+j]
								}
								out[i*n+j] += sum
							}
						}
					}
				}
			}
			store(dst, out)
		},
	}
}

// softmax normalizes over all elements of its operand.
func softmax() *Kernel {
	return &Kernel{
		Name:  "softmax",
		Arity: 1,
		infer: func(args []*core.Array) (core.DType, []int, error) {
			return floating(args[0].DType()), args[0].Shape(), nil
		},
		eval: func(dst *core.Array, args []*core.Array) {
			xs := args[0].Values()
			if len(xs) == 0 {
				return
			}
			// Find maximum for numerical stability
			maxVal := math.Inf(-1)
			for _, x := range xs {
				maxVal = math.Max(maxVal, x)
			}
			sum := 0.0
			for i, x := range xs {
				xs[i] = math.Exp(x - maxVal)
				sum += xs[i]
			}
			for i := range xs {
				xs[i] /= sum
			}
			store(dst, xs)
		},
	}
}
