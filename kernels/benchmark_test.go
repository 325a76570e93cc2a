package kernels

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/sbl8/scanloop/core"
)

// Helper function to generate random arrays
func randomArray(dtype core.DType, size int) *core.Array {
	a := core.NewArray(dtype, size)
	for i := 0; i < size; i++ {
		a.SetAt(i, rand.Float64()*200-100) // Range: -100 to 100
	}
	return a
}

func BenchmarkAdd(b *testing.B) {
	for _, dtype := range []core.DType{core.Float32, core.Float64} {
		for _, size := range []int{1024, 16384} {
			b.Run(fmt.Sprintf("%s_%d", dtype, size), func(b *testing.B) {
				x, y := randomArray(dtype, size), randomArray(dtype, size)
				k, _ := Lookup("add")
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					_ = k.ApplyInto(x, x, y)
				}
			})
		}
	}
}

func BenchmarkAddAllocating(b *testing.B) {
	x, y := randomArray(core.Float64, 1024), randomArray(core.Float64, 1024)
	k, _ := Lookup("add")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = k.Apply(x, y)
	}
}

func BenchmarkMixedDTypes(b *testing.B) {
	x, y := randomArray(core.Float32, 1024), randomArray(core.Float64, 1024)
	dst := core.NewArray(core.Float64, 1024)
	k, _ := Lookup("mul")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = k.ApplyInto(dst, x, y)
	}
}

func BenchmarkMatMul(b *testing.B) {
	for _, n := range []int{64, 256} {
		b.Run(fmt.Sprint(n), func(b *testing.B) {
			w := core.NewArray(core.Float64, n, n)
			for i := 0; i < n*n; i++ {
				w.SetAt(i, rand.Float64())
			}
			v := randomArray(core.Float64, n)
			k, _ := Lookup("matmul")
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = k.Apply(w, v)
			}
		})
	}
}
