package core

import "unsafe"

const (
	// CacheLineSize is a common cache line size, typically 64 bytes.
	// Array payloads are aligned to it so row views stay element-aligned.
	CacheLineSize = 64
)

// IsAligned checks if a pointer (represented as a uintptr) is aligned to a cache line boundary.
func IsAligned(addr uintptr) bool {
	return addr%CacheLineSize == 0
}

// AlignSize rounds size up to the specified power-of-two alignment boundary.
func AlignSize(size, align int) int {
	return (size + align - 1) &^ (align - 1)
}

// AlignedBytes allocates a byte slice with its underlying array aligned to CacheLineSize.
// size is the desired size of the slice.
// A zero size yields a nil slice.
func AlignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	// Allocate extra space to allow for alignment.
	// The extra space needed is at most CacheLineSize - 1.
	buf := make([]byte, size+CacheLineSize-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))

	// If ptr is already aligned, offset will be 0.
	offset := uintptr(0)
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = CacheLineSize - mod
	}

	// Cap the slice so appends never spill into the alignment slack.
	end := offset + uintptr(size)
	return buf[offset:end:end]
}
