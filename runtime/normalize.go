package runtime

import (
	"github.com/sbl8/scanloop/core"
)

// normalize puts every mit-sot, sit-sot and nit-sot buffer into
// chronological order after the loop. A wrapped buffer is rotated so its
// oldest row comes first. A buffer longer than what was written has its
// tail zeroed, and when the loop stopped early it is cut down to the
// written rows. Mit-mot buffers are left as they are.
func (r *run) normalize() {
	lay := r.layout
	for s := lay.NMitMot; s < lay.NBuffered(); s++ {
		ring := r.rings[s]
		buf := ring.Array()
		steps := ring.Len()
		written := r.i - lay.MinTap(s)

		switch {
		case steps < written:
			if ring.Pos() != 0 {
				rotate(buf, ring.Pos(), r.l.scratch)
				r.rotations++
			}
		case steps > written:
			buf.Slice(written, steps).Zero()
			if r.i < r.args.NSteps {
				r.outs[s].Set(buf.Slice(0, written))
			}
		}
	}
}

// rotate moves rows [k, n) of a in front of rows [0, k). Only the shorter
// of the two segments goes through scratch memory.
func rotate(a *core.Array, k int, pool *BufferPool) {
	data := a.Bytes()
	n := a.Rows()
	if n == 0 || k%n == 0 {
		return
	}
	cut := k * (len(data) / n)
	tail := len(data) - cut

	if cut <= tail {
		tmp := pool.GetBuffer(cut)
		copy(tmp, data[:cut])
		copy(data, data[cut:])
		copy(data[tail:], tmp)
		pool.PutBuffer(tmp)
		return
	}
	tmp := pool.GetBuffer(tail)
	copy(tmp, data[cut:])
	copy(data[tail:], data[:cut])
	copy(data, tmp)
	pool.PutBuffer(tmp)
}
