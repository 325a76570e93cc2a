package compiler

import (
	"fmt"

	"github.com/sbl8/scanloop/core"
	"github.com/sbl8/scanloop/kernels"
)

// expr is a bound expression evaluated once per step call.
type expr interface {
	eval(f *frame) (*core.Array, error)
}

// frame holds the values computed so far in the current call.
type frame struct {
	locals []*core.Array
}

type slotExpr struct {
	slot *core.Slot
	name string
}

func (e *slotExpr) eval(*frame) (*core.Array, error) {
	v := e.slot.Get()
	if v == nil {
		return nil, fmt.Errorf("%s has no value", e.name)
	}
	return v, nil
}

type localExpr struct {
	idx  int
	name string
}

func (e *localExpr) eval(f *frame) (*core.Array, error) {
	v := f.locals[e.idx]
	if v == nil {
		return nil, fmt.Errorf("%s has no value", e.name)
	}
	return v, nil
}

type constExpr struct {
	value *core.Array
}

func (e *constExpr) eval(*frame) (*core.Array, error) { return e.value, nil }

type callExpr struct {
	kernel *kernels.Kernel
	args   []expr
}

func (e *callExpr) operands(f *frame) ([]*core.Array, error) {
	ops := make([]*core.Array, len(e.args))
	for i, a := range e.args {
		v, err := a.eval(f)
		if err != nil {
			return nil, err
		}
		ops[i] = v
	}
	return ops, nil
}

func (e *callExpr) eval(f *frame) (*core.Array, error) {
	ops, err := e.operands(f)
	if err != nil {
		return nil, err
	}
	return e.kernel.Apply(ops...)
}

// assignment evaluates one statement and delivers the result.
type assignment struct {
	text  string
	call  *callExpr
	local int

	// out receives the result; nil for temporaries.
	out *core.Slot
	// inPlace writes into the array already held by out when its shape fits.
	inPlace bool
	// dtype is the declared dtype of the target stream, Invalid for none.
	dtype core.DType
}

func (a *assignment) exec(f *frame) error {
	ops, err := a.call.operands(f)
	if err != nil {
		return fmt.Errorf("%s: %w", a.text, err)
	}

	var v *core.Array
	if a.out != nil && a.inPlace {
		if dst := a.out.Get(); dst != nil && a.call.kernel.ApplyInto(dst, ops...) == nil {
			v = dst
		}
	}
	if v == nil {
		v, err = a.call.kernel.Apply(ops...)
		if err != nil {
			return fmt.Errorf("%s: %w", a.text, err)
		}
		if a.dtype.Valid() && v.DType() != a.dtype {
			v = v.Convert(a.dtype)
		}
		if a.out != nil {
			a.out.Set(v)
		}
	}
	f.locals[a.local] = v
	return nil
}

// program is the step function of a compiled loop.
type program struct {
	stmts []*assignment
	frame frame
}

func (p *program) run() error {
	clear(p.frame.locals)
	for _, s := range p.stmts {
		if err := s.exec(&p.frame); err != nil {
			return err
		}
	}
	return nil
}
