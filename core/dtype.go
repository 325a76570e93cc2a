package core

import (
	"fmt"
	"strings"
)

// DType identifies the element type stored in an Array.
type DType uint8

// Supported element types
const (
	Invalid DType = iota
	Bool
	Uint8
	Int32
	Int64
	Float32
	Float64
)

var dtypeNames = [...]string{
	Invalid: "invalid",
	Bool:    "bool",
	Uint8:   "uint8",
	Int32:   "int32",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

var dtypeSizes = [...]int{
	Invalid: 0,
	Bool:    1,
	Uint8:   1,
	Int32:   4,
	Int64:   8,
	Float32: 4,
	Float64: 8,
}

// Size returns the element size in bytes.
func (d DType) Size() int {
	if int(d) >= len(dtypeSizes) {
		return 0
	}
	return dtypeSizes[d]
}

// Valid reports whether d is one of the supported element types.
func (d DType) Valid() bool {
	return d != Invalid && int(d) < len(dtypeNames)
}

func (d DType) String() string {
	if int(d) >= len(dtypeNames) {
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
	return dtypeNames[d]
}

// ParseDType maps a dtype name such as "float32" to its DType.
func ParseDType(name string) (DType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range dtypeNames {
		if DType(i) != Invalid && n == name {
			return DType(i), nil
		}
	}
	return Invalid, fmt.Errorf("unknown dtype %q", name)
}

// MarshalText implements encoding.TextMarshaler so dtypes read naturally in
// YAML and JSON documents. Invalid marshals as an empty string, which stands
// for "not declared".
func (d DType) MarshalText() ([]byte, error) {
	if d == Invalid {
		return []byte{}, nil
	}
	if !d.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", d)
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DType) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Invalid
		return nil
	}
	parsed, err := ParseDType(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
