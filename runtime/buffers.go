package runtime

import (
	"fmt"

	"github.com/sbl8/scanloop/core"
	"github.com/sbl8/scanloop/model"
)

// initBuffers builds the history buffer of every buffered stream. Tapped
// streams are seeded from their initial state; nit-sot buffers are sized
// now and allocated on the first write, once the row shape is known.
func (r *run) initBuffers() {
	lay := r.layout
	r.rings = make([]*Ring, lay.NBuffered())
	r.offer = make([]bool, lay.NBuffered())

	for s, init := range r.args.Initial {
		buf := r.seedBuffer(s, init)
		r.outs[s].Set(buf)
		r.rings[s] = newRing(buf, lay.MinTap(s))
	}
	for s := lay.NTapped(); s < lay.NBuffered(); s++ {
		r.rings[s] = lazyRing(r.args.storeSteps(lay, s))
	}
	for s := lay.NMitMot; s < lay.NBuffered(); s++ {
		r.offer[s] = r.canOffer(s)
	}

	r.outSnaps = make([]core.Snapshot, len(r.l.step.Outputs))
	r.mitMotInSnaps = make([]core.Snapshot, lay.NMitMotInputs())
}

// seedBuffer returns the history buffer of tapped stream s. An in-place
// stream takes ownership of its initial state. Otherwise a caller-provided
// output of compatible dtype and row shape with enough rows is reused and
// seeded, and failing that the initial state is copied.
func (r *run) seedBuffer(s int, init *core.Array) *core.Array {
	lay := r.layout
	if lay.IsInplace(s) {
		return init
	}

	steps := r.args.storeSteps(lay, s)
	out := r.outs[s].Get()
	if !reusable(out, init.DType(), init.RowShape(), steps) {
		return init.Clone()
	}
	buf := out
	if out.Rows() != steps {
		buf = out.Slice(0, steps)
	}

	seed := steps
	if lay.Kind(s) != model.KindMitMot {
		seed = -lay.MinTap(s)
	}
	// Shapes were checked by reusable.
	_ = buf.Slice(0, seed).CopyFrom(init.Slice(0, seed))
	return buf
}

func reusable(out *core.Array, dtype core.DType, rowShape []int, rows int) bool {
	return out != nil &&
		out.Rank() >= 1 &&
		out.DType() == dtype &&
		out.Rows() >= rows &&
		core.SameShape(out.RowShape(), rowShape)
}

// canOffer reports whether the next write row of stream s may be handed to
// the step function as a preallocated output. Single-row windows and vector
// streams never are, and neither is a row that an input tap reads in the
// same iteration.
func (r *run) canOffer(s int) bool {
	lay := r.layout
	ring := r.rings[s]
	if ring.Len() <= 1 || lay.IsVectorOut(s) {
		return false
	}
	if s < lay.NTapped() {
		for _, tap := range lay.Taps[s] {
			if mod(tap, ring.Len()) == 0 {
				return false
			}
		}
	}
	return true
}

// allocNitSot allocates the buffer of nit-sot stream s from the shape of
// its first result, reusing a compatible caller-provided output.
func (r *run) allocNitSot(s int, v *core.Array) error {
	lay := r.layout
	if len(lay.OutputTypes) > 0 {
		tt := lay.OutputType(s)
		if tt.DType != v.DType() || tt.Rank != v.Rank()+1 {
			return &ShapeError{
				Kind:  model.KindNitSot.String(),
				Index: lay.IndexInKind(s),
				Shape: v.Shape(),
				Msg:   fmt.Sprintf("step output of type %s does not match the declared %s output of rank %d", v.DType(), tt.DType, tt.Rank),
			}
		}
	}

	ring := r.rings[s]
	steps := ring.Len()
	buf := r.outs[s].Get()
	if reusable(buf, v.DType(), v.Shape(), steps) {
		if buf.Rows() != steps {
			buf = buf.Slice(0, steps)
		}
	} else {
		buf = core.NewArray(v.DType(), append([]int{steps}, v.Shape()...)...)
	}
	ring.attach(buf)
	r.outs[s].Set(buf)
	return nil
}
