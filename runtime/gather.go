package runtime

import (
	"github.com/sbl8/scanloop/core"
)

// gather fills the step function's input slots for iteration r.i: the
// current row of every sequence, every input tap of every tapped stream and
// the current value of every shared output.
func (r *run) gather() {
	lay := r.layout
	in := r.l.step.Inputs

	for k, seq := range r.args.Sequences {
		row := seq.Row(r.i)
		if lay.IsVectorSeq(k) {
			row = scalarView(row)
		}
		in[k].Set(row)
	}

	slot := lay.NSeqs
	for s := 0; s < lay.NTapped(); s++ {
		ring := r.rings[s]
		vector := lay.IsVectorOut(s)
		for _, tap := range lay.Taps[s] {
			v := ring.Read(tap)
			if vector {
				v = scalarView(v)
			}
			in[slot].Set(v)
			slot++
		}
	}

	for k := 0; k < lay.NSharedOuts; k++ {
		if r.i == 0 {
			in[slot].Set(r.args.Shared[k])
		} else {
			in[slot].Set(r.outs[lay.NBuffered()+k].Get())
		}
		slot++
	}
}

// scalarView reshapes a single-element row to rank 0. Row shapes of vector
// streams are checked before the loop starts.
func scalarView(row *core.Array) *core.Array {
	if row.Rank() == 0 {
		return row
	}
	v, err := row.Reshape()
	if err != nil {
		panic(err)
	}
	return v
}

// rowView adapts a step result to the row shape of the buffer it is written
// into, accepting rank-0 results for single-element rows.
func rowView(v *core.Array, row *core.Array) *core.Array {
	if v.Size() == 1 && row.Size() == 1 && !core.SameShape(v.Shape(), row.Shape()) {
		if rv, err := v.Reshape(row.Shape()...); err == nil {
			return rv
		}
	}
	return v
}
