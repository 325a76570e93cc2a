// Package kernels provides the array operations available to compiled step
// programs.
//
// Every operation is a named Kernel registered in Catalog. A kernel infers
// the dtype and shape of its result from its operands and can either
// allocate the result (Apply) or write it into an existing array
// (ApplyInto), which is how compiled steps fill preallocated output rows.
//
// Available operations:
//   - Arithmetic: add, sub, mul, div, max, min, pow, neg, abs, sqrplusx
//   - Activations: relu, sigmoid, tanh, exp, log, sqrt, softmax
//   - Comparisons and logic: lt, gt, le, ge, eq, ne, and, or, not
//   - Reductions: sum, mean, dot
//   - Linear algebra: matmul
//   - Identity: copy
//
// Binary elementwise operands must have equal shapes, or one of them must
// hold a single element, which is broadcast. Mixed dtypes promote to the
// wider one in the order bool, uint8, int32, int64, float32, float64.
package kernels

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/sbl8/scanloop/core"
)

// ErrUnknownKernel is returned by Lookup for unregistered names.
var ErrUnknownKernel = errors.New("unknown kernel")

// ErrArity is returned when a kernel is called with the wrong operand count.
var ErrArity = errors.New("wrong number of operands")

// Kernel is a named array operation.
type Kernel struct {
	Name  string
	Arity int

	infer func(args []*core.Array) (core.DType, []int, error)
	eval  func(dst *core.Array, args []*core.Array)
}

// Catalog maps kernel names to implementations
var Catalog = map[string]*Kernel{}

// Register adds k to Catalog, replacing a kernel of the same name.
func Register(k *Kernel) {
	Catalog[k.Name] = k
}

// Lookup returns the kernel registered under name.
func Lookup(name string) (*Kernel, error) {
	k, ok := Catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKernel, name)
	}
	return k, nil
}

// Names returns the registered kernel names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Catalog))
	for name := range Catalog {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Infer returns the dtype and shape of the result for args.
func (k *Kernel) Infer(args ...*core.Array) (core.DType, []int, error) {
	if len(args) != k.Arity {
		return core.Invalid, nil, fmt.Errorf("%s: %w: got %d, want %d", k.Name, ErrArity, len(args), k.Arity)
	}
	for i, a := range args {
		if a == nil {
			return core.Invalid, nil, fmt.Errorf("%s: operand %d is nil", k.Name, i)
		}
	}
	dtype, shape, err := k.infer(args)
	if err != nil {
		return core.Invalid, nil, fmt.Errorf("%s: %w", k.Name, err)
	}
	return dtype, shape, nil
}

// Apply evaluates the kernel into a newly allocated array.
func (k *Kernel) Apply(args ...*core.Array) (*core.Array, error) {
	dtype, shape, err := k.Infer(args...)
	if err != nil {
		return nil, err
	}
	dst := core.NewArray(dtype, shape...)
	k.eval(dst, args)
	return dst, nil
}

// ApplyInto evaluates the kernel into dst, converting to dst's dtype. dst
// must have the result shape; it may alias an operand.
func (k *Kernel) ApplyInto(dst *core.Array, args ...*core.Array) error {
	_, shape, err := k.Infer(args...)
	if err != nil {
		return err
	}
	if !core.SameShape(dst.Shape(), shape) {
		return fmt.Errorf("%s: result %v into %v: %w", k.Name, shape, dst.Shape(), core.ErrShapeMismatch)
	}
	k.eval(dst, args)
	return nil
}

// Apply looks up name and applies it to args.
func Apply(name string, args ...*core.Array) (*core.Array, error) {
	k, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return k.Apply(args...)
}

// number is the set of element types with arithmetic.
type number interface {
	~uint8 | ~int32 | ~int64 | ~float32 | ~float64
}

func map1[T number](dst, x []T, f func(float64) float64) {
	for i := range dst {
		dst[i] = T(f(float64(x[i])))
	}
}

func map2[T number](dst, a, b []T, f func(x, y float64) float64) {
	switch {
	case len(a) == len(dst) && len(b) == len(dst):
		for i := range dst {
			dst[i] = T(f(float64(a[i]), float64(b[i])))
		}
	case len(a) == 1:
		av := float64(a[0])
		for i := range dst {
			dst[i] = T(f(av, float64(b[i])))
		}
	default:
		bv := float64(b[0])
		for i := range dst {
			dst[i] = T(f(float64(a[i]), bv))
		}
	}
}

// at reads element i of a, broadcasting single-element arrays.
func at(a *core.Array, i int) float64 {
	if a.Size() == 1 {
		return a.At(0)
	}
	return a.At(i)
}

// eval1 applies f elementwise. Matching numeric dtypes take a typed loop;
// anything else converts through float64.
func eval1(dst, x *core.Array, f func(float64) float64) {
	if dst.DType() == x.DType() {
		switch dst.DType() {
		case core.Float64:
			map1(core.Elements[float64](dst), core.Elements[float64](x), f)
			return
		case core.Float32:
			map1(core.Elements[float32](dst), core.Elements[float32](x), f)
			return
		case core.Int64:
			map1(core.Elements[int64](dst), core.Elements[int64](x), f)
			return
		case core.Int32:
			map1(core.Elements[int32](dst), core.Elements[int32](x), f)
			return
		case core.Uint8:
			map1(core.Elements[uint8](dst), core.Elements[uint8](x), f)
			return
		}
	}
	for i := 0; i < dst.Size(); i++ {
		dst.SetAt(i, f(at(x, i)))
	}
}

func eval2(dst, a, b *core.Array, f func(x, y float64) float64) {
	if dst.Size() == 0 {
		return
	}
	if dst.DType() == a.DType() && dst.DType() == b.DType() {
		switch dst.DType() {
		case core.Float64:
			map2(core.Elements[float64](dst), core.Elements[float64](a), core.Elements[float64](b), f)
			return
		case core.Float32:
			map2(core.Elements[float32](dst), core.Elements[float32](a), core.Elements[float32](b), f)
			return
		case core.Int64:
			map2(core.Elements[int64](dst), core.Elements[int64](a), core.Elements[int64](b), f)
			return
		case core.Int32:
			map2(core.Elements[int32](dst), core.Elements[int32](a), core.Elements[int32](b), f)
			return
		case core.Uint8:
			map2(core.Elements[uint8](dst), core.Elements[uint8](a), core.Elements[uint8](b), f)
			return
		}
	}
	for i := 0; i < dst.Size(); i++ {
		dst.SetAt(i, f(at(a, i), at(b, i)))
	}
}

func promote(a, b core.DType) core.DType {
	return max(a, b)
}

func floating(d core.DType) core.DType {
	if d == core.Float32 || d == core.Float64 {
		return d
	}
	return core.Float64
}

func broadcast(a, b *core.Array) ([]int, error) {
	switch {
	case core.SameShape(a.Shape(), b.Shape()):
		return a.Shape(), nil
	case a.Size() == 1:
		return b.Shape(), nil
	case b.Size() == 1:
		return a.Shape(), nil
	}
	return nil, fmt.Errorf("operands %v and %v: %w", a.Shape(), b.Shape(), core.ErrShapeMismatch)
}

// unary builds an elementwise kernel of one operand. When float is set,
// integer operands produce a float64 result.
func unary(name string, float bool, f func(float64) float64) *Kernel {
	return &Kernel{
		Name:  name,
		Arity: 1,
		infer: func(args []*core.Array) (core.DType, []int, error) {
			d := args[0].DType()
			if float {
				d = floating(d)
			}
			return d, args[0].Shape(), nil
		},
		eval: func(dst *core.Array, args []*core.Array) { eval1(dst, args[0], f) },
	}
}

func binary(name string, f func(x, y float64) float64) *Kernel {
	return &Kernel{
		Name:  name,
		Arity: 2,
		infer: func(args []*core.Array) (core.DType, []int, error) {
			shape, err := broadcast(args[0], args[1])
			return promote(args[0].DType(), args[1].DType()), shape, err
		},
		eval: func(dst *core.Array, args []*core.Array) { eval2(dst, args[0], args[1], f) },
	}
}

// predicate builds a boolean-valued kernel of one or two operands.
func predicate(name string, arity int, f func(x, y float64) bool) *Kernel {
	g := func(x, y float64) float64 {
		if f(x, y) {
			return 1
		}
		return 0
	}
	return &Kernel{
		Name:  name,
		Arity: arity,
		infer: func(args []*core.Array) (core.DType, []int, error) {
			if arity == 1 {
				return core.Bool, args[0].Shape(), nil
			}
			shape, err := broadcast(args[0], args[1])
			return core.Bool, shape, err
		},
		eval: func(dst *core.Array, args []*core.Array) {
			if arity == 1 {
				eval1(dst, args[0], func(x float64) float64 { return g(x, 0) })
				return
			}
			eval2(dst, args[0], args[1], g)
		},
	}
}

func truth(x float64) bool { return x != 0 }

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func init() {
	for _, k := range []*Kernel{
		unary("copy", false, func(x float64) float64 { return x }),
		unary("neg", false, func(x float64) float64 { return -x }),
		unary("abs", false, math.Abs),
		unary("relu", false, func(x float64) float64 { return max(x, 0) }),
		unary("sqrplusx", false, func(x float64) float64 { return x*x + x }),
		unary("sigmoid", true, sigmoid),
		unary("tanh", true, math.Tanh),
		unary("exp", true, math.Exp),
		unary("log", true, math.Log),
		unary("sqrt", true, math.Sqrt),

		binary("add", func(x, y float64) float64 { return x + y }),
		binary("sub", func(x, y float64) float64 { return x - y }),
		binary("mul", func(x, y float64) float64 { return x * y }),
		binary("div", func(x, y float64) float64 { return x / y }),
		binary("max", math.Max),
		binary("min", math.Min),
		binary("pow", math.Pow),

		predicate("lt", 2, func(x, y float64) bool { return x < y }),
		predicate("gt", 2, func(x, y float64) bool { return x > y }),
		predicate("le", 2, func(x, y float64) bool { return x <= y }),
		predicate("ge", 2, func(x, y float64) bool { return x >= y }),
		predicate("eq", 2, func(x, y float64) bool { return x == y }),
		predicate("ne", 2, func(x, y float64) bool { return x != y }),
		predicate("and", 2, func(x, y float64) bool { return truth(x) && truth(y) }),
		predicate("or", 2, func(x, y float64) bool { return truth(x) || truth(y) }),
		predicate("not", 1, func(x, _ float64) bool { return !truth(x) }),

		reduction("sum", false, func(xs []float64) float64 { return sumOf(xs) }),
		reduction("mean", true, func(xs []float64) float64 { return sumOf(xs) / float64(len(xs)) }),
		dot(),
		matmul(),
		softmax(),
	} {
		Register(k)
	}
}
