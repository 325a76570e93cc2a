package runtime

import (
	"github.com/sbl8/scanloop/core"
)

// Ring is a circular history buffer for one output stream. Rows are
// addressed relative to a cursor marking the next write slot; the modular
// arithmetic never leaks out of this type.
type Ring struct {
	buf  *core.Array
	pos  int
	size int
}

// newRing wraps buf, whose leading dimension is the window length, with the
// cursor placed just past the seed rows of a stream whose deepest tap is
// minTap.
func newRing(buf *core.Array, minTap int) *Ring {
	r := &Ring{buf: buf, size: buf.Rows()}
	if r.size > 0 {
		r.pos = mod(-minTap, r.size)
	}
	return r
}

// lazyRing is a ring whose storage is supplied on first write.
func lazyRing(size int) *Ring {
	return &Ring{size: size}
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// Index returns the buffer row addressed by tap.
func (r *Ring) Index(tap int) int {
	return mod(r.pos+tap, r.size)
}

// Read returns a view of the row addressed by tap.
func (r *Ring) Read(tap int) *core.Array {
	return r.buf.Row(r.Index(tap))
}

// Write copies v into the row addressed by tap.
func (r *Ring) Write(tap int, v *core.Array) error {
	return r.buf.Row(r.Index(tap)).CopyFrom(v)
}

// Advance moves the cursor to the next slot.
func (r *Ring) Advance() {
	if r.size > 0 {
		r.pos = (r.pos + 1) % r.size
	}
}

// Pos returns the cursor.
func (r *Ring) Pos() int { return r.pos }

// Len returns the window length.
func (r *Ring) Len() int { return r.size }

// Array returns the backing array, nil for a lazy ring not yet allocated.
func (r *Ring) Array() *core.Array { return r.buf }

// Allocated reports whether the ring has storage.
func (r *Ring) Allocated() bool { return r.buf != nil }

func (r *Ring) attach(buf *core.Array) {
	r.buf = buf
}
