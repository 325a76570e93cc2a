package model

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sbl8/scanloop/core"
)

// LoopSpec is the on-disk description of a loop: its streams with their
// initial values and a step program. It is compiled into a Layout, a step
// function and routed arguments by the compiler package.
//
// Example:
//
//	name: running-sum
//	n_steps: 3
//	sequences:
//	  - {name: x, dtype: float64, shape: [3], values: [1, 2, 3], vector: true}
//	sit_sot:
//	  - {name: acc, dtype: float64, shape: [1], values: [0], store_steps: 4, vector: true}
//	step:
//	  - acc = add(acc[-1], x)
type LoopSpec struct {
	Name    string `yaml:"name"`
	NSteps  int    `yaml:"n_steps"`
	AsWhile bool   `yaml:"as_while"`

	Sequences []StreamSpec `yaml:"sequences"`
	MitMot    []StreamSpec `yaml:"mit_mot"`
	MitSot    []StreamSpec `yaml:"mit_sot"`
	SitSot    []StreamSpec `yaml:"sit_sot"`
	NitSot    []StreamSpec `yaml:"nit_sot"`
	Shared    []StreamSpec `yaml:"shared"`
	Others    []StreamSpec `yaml:"others"`

	// Step is the step program, one "target = op(args...)" statement per entry.
	Step []string `yaml:"step"`
	// IntoPreallocated makes compiled statements write into a preallocated
	// output slot when one is offered, instead of returning a fresh array.
	IntoPreallocated bool `yaml:"into_preallocated"`
}

// StreamSpec declares one stream. Which fields apply depends on the category.
type StreamSpec struct {
	Name  string     `yaml:"name"`
	DType core.DType `yaml:"dtype"`
	// Shape and Values give the initial value (sequence data, seed history,
	// shared initial value or trailing argument).
	Shape  []int     `yaml:"shape"`
	Values []float64 `yaml:"values"`

	// Taps are the input taps of mit-mot and mit-sot streams.
	Taps []int `yaml:"taps"`
	// OutTaps are the output taps of mit-mot streams.
	OutTaps []int `yaml:"out_taps"`
	// Preallocate lists mit-mot output taps written in place into the
	// matching input slot.
	Preallocate []int `yaml:"preallocate"`

	// StoreSteps is the history window. Tapped streams pad their initial
	// value with zero rows up to it; nit-sot streams allocate it.
	StoreSteps int `yaml:"store_steps"`
	// Rank is the declared rank of a nit-sot output, including time.
	Rank int `yaml:"rank"`

	Vector  bool `yaml:"vector"`
	Inplace bool `yaml:"inplace"`
	Mutable bool `yaml:"mutable"`
	Borrow  bool `yaml:"borrow"`
}

// Array materializes the stream's initial value.
func (s *StreamSpec) Array() (*core.Array, error) {
	dtype := s.DType
	if dtype == core.Invalid {
		dtype = core.Float64
	}
	shape := s.Shape
	if shape == nil && len(s.Values) != 1 {
		shape = []int{len(s.Values)}
	}
	a, err := core.FromValues(dtype, shape, s.Values)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", s.Name, err)
	}
	return a, nil
}

// ParseSpec decodes a YAML loop description.
func ParseSpec(data []byte) (*LoopSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec LoopSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode loop spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// LoadSpec reads and decodes a YAML loop description file.
func LoadSpec(path string) (*LoopSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Marshal encodes the spec back to YAML.
func (s *LoopSpec) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Validate checks that stream names are present and unique and the step
// program is not empty.
func (s *LoopSpec) Validate() error {
	seen := make(map[string]string)
	groups := []struct {
		kind    string
		streams []StreamSpec
	}{
		{"sequences", s.Sequences}, {"mit_mot", s.MitMot}, {"mit_sot", s.MitSot},
		{"sit_sot", s.SitSot}, {"nit_sot", s.NitSot}, {"shared", s.Shared}, {"others", s.Others},
	}
	for _, g := range groups {
		for i, st := range g.streams {
			if st.Name == "" {
				return fmt.Errorf("%s[%d] has no name", g.kind, i)
			}
			if prev, ok := seen[st.Name]; ok {
				return fmt.Errorf("stream name %q used by both %s and %s", st.Name, prev, g.kind)
			}
			seen[st.Name] = g.kind
		}
	}
	if len(s.Step) == 0 {
		return fmt.Errorf("loop %q has an empty step program", s.Name)
	}
	return nil
}
