// Package model describes the static shape of a loop: how a flat argument
// list splits into loop-variable categories, which history taps each stream
// reads and writes, and how outputs are typed.
//
// A Layout is pure data. It is built once (by hand or by the compiler from a
// LoopSpec), validated, and then shared read-only by every run of the loop.
//
// Streams are numbered in a single index space used throughout the runtime:
//
//	[0, NMitMot)                          mit-mot
//	[NMitMot, NMitMot+NMitSot)            mit-sot
//	[..., NTapped())                      sit-sot
//	[NTapped(), NBuffered())              nit-sot
//	[NBuffered(), NOutputs())             shared outputs
package model

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sbl8/scanloop/core"
)

// ErrInvalidLayout is wrapped by every Layout validation failure.
var ErrInvalidLayout = errors.New("invalid layout")

// Kind is the loop-variable category of a stream.
type Kind uint8

const (
	KindSequence Kind = iota
	KindMitMot
	KindMitSot
	KindSitSot
	KindNitSot
	KindShared
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindMitMot:
		return "mit_mot"
	case KindMitSot:
		return "mit_sot"
	case KindSitSot:
		return "sit_sot"
	case KindNitSot:
		return "nit_sot"
	case KindShared:
		return "shared"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// TensorType is the declared element type and rank of an output stream.
// For buffered streams the rank includes the leading time dimension.
type TensorType struct {
	DType core.DType `yaml:"dtype" json:"dtype"`
	Rank  int        `yaml:"rank" json:"rank"`
}

// Layout is the static argument layout of a loop.
type Layout struct {
	NSeqs       int `yaml:"n_seqs" json:"n_seqs"`
	NMitMot     int `yaml:"n_mit_mot" json:"n_mit_mot"`
	NMitSot     int `yaml:"n_mit_sot" json:"n_mit_sot"`
	NSitSot     int `yaml:"n_sit_sot" json:"n_sit_sot"`
	NNitSot     int `yaml:"n_nit_sot" json:"n_nit_sot"`
	NSharedOuts int `yaml:"n_shared_outs" json:"n_shared_outs"`
	NOthers     int `yaml:"n_others" json:"n_others"`

	// Taps holds the input taps of every tapped stream (mit-mot, mit-sot,
	// sit-sot), in declaration order.
	Taps [][]int `yaml:"taps" json:"taps"`
	// MitMotOutSlices holds the output taps of every mit-mot stream.
	MitMotOutSlices [][]int `yaml:"mit_mot_out_slices" json:"mit_mot_out_slices"`
	// MitMotPreallocated marks, per mit-mot output tap (flattened), taps whose
	// result the step function writes in place into the matching input slot.
	MitMotPreallocated []bool `yaml:"mit_mot_preallocated" json:"mit_mot_preallocated"`

	// VectorSeqs marks sequences whose rows are rank-0.
	VectorSeqs []bool `yaml:"vector_seqs" json:"vector_seqs"`
	// VectorOuts marks buffered streams (tapped and nit-sot) whose rows are rank-0.
	VectorOuts []bool `yaml:"vector_outs" json:"vector_outs"`
	// Inplace marks tapped streams whose buffer takes ownership of the
	// initial-state input instead of copying it.
	Inplace []bool `yaml:"inplace" json:"inplace"`

	// AsWhile adds a trailing condition output; a false value stops the loop.
	AsWhile bool `yaml:"as_while" json:"as_while"`

	// OutputTypes declares dtype and rank of every output stream. Optional;
	// when absent nit-sot outputs default to rank-1 float64.
	OutputTypes []TensorType `yaml:"output_types" json:"output_types"`
	// OtherPorts describes the trailing non-sequence arguments. Optional.
	OtherPorts []Port `yaml:"other_ports" json:"other_ports"`
}

// NTapped returns the number of streams with input taps (mit-mot, mit-sot, sit-sot).
func (l *Layout) NTapped() int { return l.NMitMot + l.NMitSot + l.NSitSot }

// NBuffered returns the number of streams backed by a history buffer.
func (l *Layout) NBuffered() int { return l.NTapped() + l.NNitSot }

// NOutputs returns the number of outer outputs.
func (l *Layout) NOutputs() int { return l.NBuffered() + l.NSharedOuts }

// NFlatInputs returns the length of the flat outer argument list.
func (l *Layout) NFlatInputs() int {
	return 1 + l.NSeqs + l.NTapped() + l.NSharedOuts + l.NNitSot + l.NOthers
}

// Kind returns the category of output stream s.
func (l *Layout) Kind(s int) Kind {
	switch {
	case s < l.NMitMot:
		return KindMitMot
	case s < l.NMitMot+l.NMitSot:
		return KindMitSot
	case s < l.NTapped():
		return KindSitSot
	case s < l.NBuffered():
		return KindNitSot
	default:
		return KindShared
	}
}

// IndexInKind returns the position of output stream s within its category.
func (l *Layout) IndexInKind(s int) int {
	switch l.Kind(s) {
	case KindMitMot:
		return s
	case KindMitSot:
		return s - l.NMitMot
	case KindSitSot:
		return s - l.NMitMot - l.NMitSot
	case KindNitSot:
		return s - l.NTapped()
	default:
		return s - l.NBuffered()
	}
}

// MinTap returns the deepest tap of buffered stream s; 0 for nit-sot streams.
func (l *Layout) MinTap(s int) int {
	if s >= l.NTapped() {
		return 0
	}
	return slices.Min(l.Taps[s])
}

// NMitMotOuts returns the total number of mit-mot output taps.
func (l *Layout) NMitMotOuts() int {
	n := 0
	for _, out := range l.MitMotOutSlices {
		n += len(out)
	}
	return n
}

// NTapInputs returns the number of input slots fed from stream history.
func (l *Layout) NTapInputs() int {
	n := 0
	for _, taps := range l.Taps {
		n += len(taps)
	}
	return n
}

// NMitMotInputs returns the number of input slots fed from mit-mot history.
func (l *Layout) NMitMotInputs() int {
	n := 0
	for _, taps := range l.Taps[:l.NMitMot] {
		n += len(taps)
	}
	return n
}

// NInputSlots returns the number of step-function input slots.
func (l *Layout) NInputSlots() int {
	return l.NSeqs + l.NTapInputs() + l.NSharedOuts + l.NOthers
}

// NOutputSlots returns the number of step-function output slots.
func (l *Layout) NOutputSlots() int {
	n := l.NMitMotOuts() - l.numPreallocated() + l.NMitSot + l.NSitSot + l.NNitSot + l.NSharedOuts
	if l.AsWhile {
		n++
	}
	return n
}

// IsVectorSeq reports whether sequence k has rank-0 rows.
func (l *Layout) IsVectorSeq(k int) bool { return flag(l.VectorSeqs, k) }

// IsVectorOut reports whether buffered stream s has rank-0 rows.
func (l *Layout) IsVectorOut(s int) bool { return flag(l.VectorOuts, s) }

// IsInplace reports whether tapped stream s takes ownership of its initial state.
func (l *Layout) IsInplace(s int) bool { return flag(l.Inplace, s) }

// IsPreallocated reports whether flattened mit-mot output tap k is written in place.
func (l *Layout) IsPreallocated(k int) bool { return flag(l.MitMotPreallocated, k) }

// OutputType returns the declared type of output s.
func (l *Layout) OutputType(s int) TensorType {
	if s < len(l.OutputTypes) {
		return l.OutputTypes[s]
	}
	return TensorType{DType: core.Float64, Rank: 1}
}

// OtherPort returns the port of trailing argument k.
func (l *Layout) OtherPort(k int) Port {
	if k < len(l.OtherPorts) {
		return l.OtherPorts[k]
	}
	return Port{}
}

func (l *Layout) numPreallocated() int {
	n := 0
	for k := 0; k < l.NMitMotOuts(); k++ {
		if l.IsPreallocated(k) {
			n++
		}
	}
	return n
}

func flag(flags []bool, i int) bool {
	return i < len(flags) && flags[i]
}

// Validate checks layout consistency.
func (l *Layout) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: layout is nil", ErrInvalidLayout)
	}
	counts := []struct {
		name string
		n    int
	}{
		{"n_seqs", l.NSeqs}, {"n_mit_mot", l.NMitMot}, {"n_mit_sot", l.NMitSot},
		{"n_sit_sot", l.NSitSot}, {"n_nit_sot", l.NNitSot},
		{"n_shared_outs", l.NSharedOuts}, {"n_others", l.NOthers},
	}
	for _, c := range counts {
		if c.n < 0 {
			return fmt.Errorf("%w: %s is negative (%d)", ErrInvalidLayout, c.name, c.n)
		}
	}

	if err := l.validateTaps(); err != nil {
		return err
	}
	if err := l.validateMitMot(); err != nil {
		return err
	}

	lengths := []struct {
		name      string
		got, want int
	}{
		{"vector_seqs", len(l.VectorSeqs), l.NSeqs},
		{"vector_outs", len(l.VectorOuts), l.NBuffered()},
		{"inplace", len(l.Inplace), l.NTapped()},
		{"output_types", len(l.OutputTypes), l.NOutputs()},
		{"other_ports", len(l.OtherPorts), l.NOthers},
	}
	for _, c := range lengths {
		if c.got != 0 && c.got != c.want {
			return fmt.Errorf("%w: %s has %d entries, want %d", ErrInvalidLayout, c.name, c.got, c.want)
		}
	}

	for s, tt := range l.OutputTypes {
		if !tt.DType.Valid() {
			return fmt.Errorf("%w: output %d has invalid dtype", ErrInvalidLayout, s)
		}
		if tt.Rank < 0 || (s < l.NBuffered() && tt.Rank < 1) {
			return fmt.Errorf("%w: output %d (%s) has invalid rank %d", ErrInvalidLayout, s, l.Kind(s), tt.Rank)
		}
	}
	for k, p := range l.OtherPorts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: other argument %d: %v", ErrInvalidLayout, k, err)
		}
	}
	return nil
}

func (l *Layout) validateTaps() error {
	if len(l.Taps) != l.NTapped() {
		return fmt.Errorf("%w: taps has %d entries, want %d", ErrInvalidLayout, len(l.Taps), l.NTapped())
	}
	for s, taps := range l.Taps {
		if len(taps) == 0 {
			return fmt.Errorf("%w: %s stream %d has no input taps", ErrInvalidLayout, l.Kind(s), s)
		}
		seen := make(map[int]bool, len(taps))
		for _, tap := range taps {
			if seen[tap] {
				return fmt.Errorf("%w: %s stream %d repeats tap %d", ErrInvalidLayout, l.Kind(s), s, tap)
			}
			seen[tap] = true
		}
		switch l.Kind(s) {
		case KindSitSot:
			if len(taps) != 1 || taps[0] != -1 {
				return fmt.Errorf("%w: sit_sot stream %d must have taps [-1], got %v", ErrInvalidLayout, s, taps)
			}
		case KindMitSot:
			for _, tap := range taps {
				if tap >= 0 {
					return fmt.Errorf("%w: mit_sot stream %d has non-negative tap %d", ErrInvalidLayout, s, tap)
				}
			}
		}
	}
	return nil
}

func (l *Layout) validateMitMot() error {
	if len(l.MitMotOutSlices) != l.NMitMot {
		return fmt.Errorf("%w: mit_mot_out_slices has %d entries, want %d", ErrInvalidLayout, len(l.MitMotOutSlices), l.NMitMot)
	}
	if n := len(l.MitMotPreallocated); n != 0 && n != l.NMitMotOuts() {
		return fmt.Errorf("%w: mit_mot_preallocated has %d entries, want %d", ErrInvalidLayout, n, l.NMitMotOuts())
	}
	k := 0
	for j, outs := range l.MitMotOutSlices {
		if len(outs) == 0 {
			return fmt.Errorf("%w: mit_mot stream %d has no output taps", ErrInvalidLayout, j)
		}
		for _, tap := range outs {
			if l.IsPreallocated(k) && !slices.Contains(l.Taps[j], tap) {
				return fmt.Errorf("%w: mit_mot stream %d preallocates output tap %d which is not an input tap", ErrInvalidLayout, j, tap)
			}
			k++
		}
	}
	return nil
}
