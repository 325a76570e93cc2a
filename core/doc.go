// Package core provides the storage primitives shared by the scanloop engine.
//
// The central type is Array, a dense row-major n-dimensional array backed by a
// cache-aligned byte payload. Row, Slice and Reshape return views that share
// the payload of their parent, which lets the loop hand the step function
// transient windows into its history buffers without copying.
//
// Key components:
//   - Array and DType: typed storage with zero-copy views
//   - Slot: a single-value cell used for step-function inputs and outputs,
//     with Snapshot support for identity and data-pointer comparison
//   - Memory alignment utilities
//   - Checksummed binary serialization for persisting loop outputs
package core
