package model

import "fmt"

// Port describes how a value crosses the boundary into the step function.
//
// Mutable permits the step function to modify the value handed to it.
// Borrow permits the value handed to the step function to alias caller
// memory; when false the loop passes a private copy. Mutable implies Borrow.
type Port struct {
	Name    string `yaml:"name" json:"name"`
	Mutable bool   `yaml:"mutable" json:"mutable"`
	Borrow  bool   `yaml:"borrow" json:"borrow"`
}

// Validate rejects contradictory flag combinations.
func (p Port) Validate() error {
	if p.Mutable && !p.Borrow {
		return fmt.Errorf("port %q has mutable=true, borrow=false: a mutable value may be both aliased and overwritten, so it must be borrowable", p.Name)
	}
	return nil
}

func (p Port) String() string {
	return fmt.Sprintf("In(%s, mutable=%t, borrow=%t)", p.Name, p.Mutable, p.Borrow)
}
