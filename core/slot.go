package core

// Slot is a single-value storage cell shared between a loop and its step
// function. The loop places borrowed views into input slots and reads results
// back from output slots; comparing a Snapshot taken before a call with the
// slot afterwards tells whether the step function wrote in place.
type Slot struct {
	value *Array
}

// NewSlot returns a slot holding v (which may be nil).
func NewSlot(v *Array) *Slot {
	return &Slot{value: v}
}

// NewSlots returns n empty slots.
func NewSlots(n int) []*Slot {
	slots := make([]*Slot, n)
	for i := range slots {
		slots[i] = &Slot{}
	}
	return slots
}

// Get returns the current value, nil when the slot is empty.
func (s *Slot) Get() *Array { return s.value }

// Set replaces the current value.
func (s *Slot) Set(v *Array) { s.value = v }

// Clear empties the slot so the next writer must supply a fresh value.
func (s *Slot) Clear() { s.value = nil }

// Empty reports whether the slot holds no value.
func (s *Slot) Empty() bool { return s.value == nil }

// Snapshot captures the identity of a slot's value and the address of its
// payload.
type Snapshot struct {
	array *Array
	data  uintptr
}

// Snapshot records the slot's current value.
func (s *Slot) Snapshot() Snapshot {
	if s.value == nil {
		return Snapshot{}
	}
	return Snapshot{array: s.value, data: s.value.DataPointer()}
}

// Empty reports whether the slot was empty when the snapshot was taken.
func (snap Snapshot) Empty() bool { return snap.array == nil }

// Unchanged reports whether s still holds the very same array, still backed
// by the same payload, as when the snapshot was taken. An empty snapshot is
// never unchanged. A false result only means a copy is required; it never
// implies the contents differ.
func (snap Snapshot) Unchanged(s *Slot) bool {
	if snap.array == nil || s.value != snap.array {
		return false
	}
	return s.value.DataPointer() == snap.data
}
