package runtime

// BufferPool manages reusable scratch slices for buffer rotation
type BufferPool struct {
	buffers chan []byte
}

// NewBufferPool creates a pool retaining at most poolSize buffers
func NewBufferPool(poolSize int) *BufferPool {
	return &BufferPool{buffers: make(chan []byte, poolSize)}
}

// GetBuffer returns a buffer of length n, reusing a pooled one when it is
// large enough.
func (bp *BufferPool) GetBuffer(n int) []byte {
	select {
	case buf := <-bp.buffers:
		if cap(buf) >= n {
			return buf[:n]
		}
	default:
	}
	return make([]byte, n)
}

// PutBuffer returns a buffer to the pool
func (bp *BufferPool) PutBuffer(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	select {
	case bp.buffers <- buf[:0]:
	default:
		// Pool full, let GC handle it
	}
}
