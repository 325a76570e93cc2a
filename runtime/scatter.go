package runtime

import (
	"fmt"
	"slices"

	"github.com/sbl8/scanloop/core"
	"github.com/sbl8/scanloop/model"
)

// prepareOutputs resets the output slots before a call. From the second
// iteration on, streams that allow it are offered their next buffer row so
// the step function can write the result in place. Snapshots of the output
// slots and of the mit-mot input slots are taken last.
func (r *run) prepareOutputs() {
	lay := r.layout
	out := r.l.step.Outputs

	o := 0
	for k := 0; k < lay.NMitMotOuts(); k++ {
		if !lay.IsPreallocated(k) {
			out[o].Clear()
			o++
		}
	}
	for s := lay.NMitMot; s < lay.NBuffered(); s++ {
		if r.i > 0 && r.offer[s] {
			out[o].Set(r.rings[s].Read(0))
		} else {
			out[o].Clear()
		}
		o++
	}
	for ; o < len(out); o++ {
		out[o].Clear()
	}

	for idx, slot := range out {
		r.outSnaps[idx] = slot.Snapshot()
	}
	in := r.l.step.Inputs[lay.NSeqs:]
	for idx := range r.mitMotInSnaps {
		r.mitMotInSnaps[idx] = in[idx].Snapshot()
	}
}

// scatter stores the results of a call into the history buffers and the
// shared outputs. A result still sitting in the row it was offered was
// written in place and is not copied.
func (r *run) scatter() error {
	lay := r.layout
	in, out := r.l.step.Inputs, r.l.step.Outputs

	o, k, base := 0, 0, lay.NSeqs
	for j := 0; j < lay.NMitMot; j++ {
		for _, tap := range lay.MitMotOutSlices[j] {
			var v *core.Array
			if lay.IsPreallocated(k) {
				idx := base + slices.Index(lay.Taps[j], tap)
				if r.mitMotInSnaps[idx-lay.NSeqs].Unchanged(in[idx]) {
					r.reuses++
					k++
					continue
				}
				v = in[idx].Get()
			} else {
				v = out[o].Get()
				o++
			}
			k++
			if v == nil {
				return r.missingOutput(j)
			}
			if err := r.writeRow(j, tap, v); err != nil {
				return err
			}
		}
		base += len(lay.Taps[j])
	}

	for s := lay.NMitMot; s < lay.NBuffered(); s++ {
		slot, snap := out[o], r.outSnaps[o]
		o++
		v := slot.Get()
		if v == nil {
			return r.missingOutput(s)
		}
		if !r.rings[s].Allocated() {
			if err := r.allocNitSot(s, v); err != nil {
				return err
			}
		} else if r.offer[s] && snap.Unchanged(slot) {
			r.reuses++
			continue
		}
		if err := r.writeRow(s, 0, v); err != nil {
			return err
		}
	}

	for k := 0; k < lay.NSharedOuts; k++ {
		v := out[o].Get()
		o++
		if v == nil {
			return r.missingOutput(lay.NBuffered() + k)
		}
		r.outs[lay.NBuffered()+k].Set(v)
	}
	return nil
}

// writeRow copies v into the row of stream s addressed by tap.
func (r *run) writeRow(s, tap int, v *core.Array) error {
	ring := r.rings[s]
	row := ring.Read(tap)
	if err := ring.Write(tap, rowView(v, row)); err != nil {
		kind := r.layout.Kind(s)
		e := &ShapeError{
			Kind:  kind.String(),
			Index: r.layout.IndexInKind(s),
			Shape: v.Shape(),
			Msg:   fmt.Sprintf("cannot store result at iteration %d into a history row of %s%v: %v", r.i, row.DType(), row.Shape(), err),
		}
		if kind == model.KindNitSot && r.i > 0 {
			e.Hint = pushOutHint
		}
		return e
	}
	r.copies++
	return nil
}

func (r *run) missingOutput(s int) error {
	return &InnerExecutionError{
		Iteration: r.i,
		Err:       fmt.Errorf("%w: %s %d", errMissingOutput, r.layout.Kind(s), r.layout.IndexInKind(s)),
	}
}
