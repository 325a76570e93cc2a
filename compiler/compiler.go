// Package compiler turns a declarative loop description into a runnable
// loop.
//
// A model.LoopSpec names its streams and gives a step program, one
// "target = expr" statement per entry, built from the kernels package. The
// compiler derives the loop layout from the declared streams, binds every
// name in the program to a step-function slot, and materializes the outer
// arguments from the declared initial values.
//
// Name resolution inside expressions:
//   - sequence names read the current row
//   - name[tap] reads history of a mit_mot, mit_sot or sit_sot stream
//   - names assigned earlier in the program read the new value
//   - shared names read the current shared value until reassigned
//   - other names read the trailing arguments
//
// Targets are mit_sot, sit_sot and nit_sot names, shared names, mit_mot
// output taps written as name[tap], the condition "cond" of while loops,
// and any fresh name, which becomes a temporary.
package compiler

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sbl8/scanloop/core"
	"github.com/sbl8/scanloop/kernels"
	"github.com/sbl8/scanloop/model"
	"github.com/sbl8/scanloop/runtime"
)

// CondTarget is the target name of the condition of a while loop.
const CondTarget = "cond"

// Program is a compiled loop.
type Program struct {
	Name   string
	Layout *model.Layout
	Step   runtime.Step
	// OutputNames lists the output streams in output order.
	OutputNames []string

	args *runtime.Args
}

// Args returns the outer arguments of the loop. Initial states of in-place
// streams are copied so that every run starts from the declared values.
func (p *Program) Args() *runtime.Args {
	a := *p.args
	a.Initial = slices.Clone(p.args.Initial)
	for s, init := range a.Initial {
		if p.Layout.IsInplace(s) {
			a.Initial[s] = init.Clone()
		}
	}
	return &a
}

// NewLoop builds a runtime loop around the compiled step.
func (p *Program) NewLoop(opts runtime.Options) (*runtime.Loop, error) {
	return runtime.NewLoop(p.Layout, p.Step, opts)
}

// Run executes the program once on fresh arguments and returns its outputs
// in OutputNames order.
func (p *Program) Run(ctx context.Context, loop *runtime.Loop) ([]*core.Array, runtime.Result, error) {
	outs := core.NewSlots(p.Layout.NOutputs())
	res, err := loop.Run(ctx, p.Args(), outs)
	if err != nil {
		return nil, res, err
	}
	arrays := make([]*core.Array, len(outs))
	for i, o := range outs {
		arrays[i] = o.Get()
	}
	return arrays, res, nil
}

// CompileFile loads and compiles a YAML loop description.
func CompileFile(path string) (*Program, error) {
	spec, err := model.LoadSpec(path)
	if err != nil {
		return nil, err
	}
	return Compile(spec)
}

// Compile builds a Program from spec.
func Compile(spec *model.LoopSpec) (*Program, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	c := &compiler{spec: spec, streams: make(map[string]*stream), locals: make(map[string]int)}
	if err := c.layout(); err != nil {
		return nil, err
	}
	if err := c.args(); err != nil {
		return nil, err
	}
	c.layoutTypes()
	if err := c.prog.Layout.Validate(); err != nil {
		return nil, err
	}

	c.prog.Step = runtime.NewStep(c.prog.Layout, nil)
	if err := c.bindStreams(); err != nil {
		return nil, err
	}
	code, err := c.program()
	if err != nil {
		return nil, err
	}
	c.prog.Step.Fn = code.run
	return c.prog, nil
}

type role uint8

const (
	roleSequence role = iota
	roleMitMot
	roleMitSot
	roleSitSot
	roleNitSot
	roleShared
	roleOther
)

var roleNames = [...]string{"sequence", "mit_mot", "mit_sot", "sit_sot", "nit_sot", "shared", "other"}

func (r role) String() string { return roleNames[r] }

// stream is a declared name and the slots bound to it.
type stream struct {
	role  role
	index int // within its role
	out   int // output stream index, -1 for sequences and others
	spec  *model.StreamSpec

	input    *core.Slot         // sequences, shared, others
	taps     map[int]*core.Slot // input slot per tap of tapped streams
	output   *core.Slot         // mit_sot, sit_sot, nit_sot, shared
	outTaps  map[int]*core.Slot // mit_mot output taps
	inPlace  map[int]bool       // mit_mot output taps written into their input slot
	assigned map[int]bool
}

type compiler struct {
	spec    *model.LoopSpec
	prog    *Program
	streams map[string]*stream
	order   []*stream
	locals  map[string]int
}

func (c *compiler) declare(r role, specs []model.StreamSpec, out *int) {
	for i := range specs {
		s := &stream{role: r, index: i, out: -1, spec: &specs[i], assigned: make(map[int]bool)}
		if out != nil {
			s.out = *out
			*out++
		}
		c.streams[s.spec.Name] = s
		c.order = append(c.order, s)
	}
}

// layout derives the loop layout from the declared streams.
func (c *compiler) layout() error {
	spec := c.spec
	l := &model.Layout{
		NSeqs:       len(spec.Sequences),
		NMitMot:     len(spec.MitMot),
		NMitSot:     len(spec.MitSot),
		NSitSot:     len(spec.SitSot),
		NNitSot:     len(spec.NitSot),
		NSharedOuts: len(spec.Shared),
		NOthers:     len(spec.Others),
		AsWhile:     spec.AsWhile,
	}
	c.prog = &Program{Name: spec.Name, Layout: l}

	out := 0
	c.declare(roleSequence, spec.Sequences, nil)
	c.declare(roleMitMot, spec.MitMot, &out)
	c.declare(roleMitSot, spec.MitSot, &out)
	c.declare(roleSitSot, spec.SitSot, &out)
	c.declare(roleNitSot, spec.NitSot, &out)
	c.declare(roleShared, spec.Shared, &out)
	c.declare(roleOther, spec.Others, nil)
	if _, ok := c.streams[CondTarget]; ok {
		return fmt.Errorf("%q is reserved for the loop condition", CondTarget)
	}

	for _, s := range spec.Sequences {
		l.VectorSeqs = append(l.VectorSeqs, s.Vector)
	}
	for _, s := range spec.MitMot {
		l.Taps = append(l.Taps, s.Taps)
		l.MitMotOutSlices = append(l.MitMotOutSlices, s.OutTaps)
		for _, tap := range s.OutTaps {
			l.MitMotPreallocated = append(l.MitMotPreallocated, slices.Contains(s.Preallocate, tap))
		}
	}
	for _, s := range spec.MitSot {
		l.Taps = append(l.Taps, s.Taps)
	}
	for range spec.SitSot {
		l.Taps = append(l.Taps, []int{-1})
	}
	for _, group := range [][]model.StreamSpec{spec.MitMot, spec.MitSot, spec.SitSot} {
		for _, s := range group {
			l.VectorOuts = append(l.VectorOuts, s.Vector)
			l.Inplace = append(l.Inplace, s.Inplace)
		}
	}
	for _, s := range spec.NitSot {
		l.VectorOuts = append(l.VectorOuts, s.Vector)
	}
	for _, s := range spec.Others {
		l.OtherPorts = append(l.OtherPorts, model.Port{Name: s.Name, Mutable: s.Mutable, Borrow: s.Borrow})
	}
	for _, group := range []struct {
		kind    string
		streams []model.StreamSpec
	}{{"mit_mot", spec.MitMot}, {"mit_sot", spec.MitSot}} {
		for _, s := range group.streams {
			if len(s.Taps) == 0 {
				return fmt.Errorf("%s %q declares no taps", group.kind, s.Name)
			}
		}
	}
	return nil
}

// args materializes the outer arguments.
func (c *compiler) args() error {
	spec := c.spec
	l := c.prog.Layout
	a := &runtime.Args{NSteps: spec.NSteps}

	for i := range spec.Sequences {
		v, err := spec.Sequences[i].Array()
		if err != nil {
			return err
		}
		a.Sequences = append(a.Sequences, v)
	}

	s := 0
	for _, group := range [][]model.StreamSpec{spec.MitMot, spec.MitSot, spec.SitSot} {
		for i := range group {
			init, err := initialState(&group[i], l.Kind(s), l.MinTap(s), spec.NSteps)
			if err != nil {
				return err
			}
			a.Initial = append(a.Initial, init)
			s++
		}
	}

	for i := range spec.Shared {
		v, err := spec.Shared[i].Array()
		if err != nil {
			return err
		}
		a.Shared = append(a.Shared, v)
	}
	for _, st := range spec.NitSot {
		n := st.StoreSteps
		if n == 0 {
			n = spec.NSteps
		}
		a.NitSotSteps = append(a.NitSotSteps, n)
	}
	for i := range spec.Others {
		v, err := spec.Others[i].Array()
		if err != nil {
			return err
		}
		a.Others = append(a.Others, v)
	}
	c.prog.args = a
	return nil
}

// initialState builds the history window of a tapped stream. A rank-0 value
// is a single seed row. Mit-sot and sit-sot windows default to the full
// history, n_steps plus the seed rows.
func initialState(st *model.StreamSpec, kind model.Kind, minTap, nSteps int) (*core.Array, error) {
	v, err := st.Array()
	if err != nil {
		return nil, err
	}
	if v.Rank() == 0 {
		if v, err = v.Reshape(1); err != nil {
			return nil, err
		}
	}

	rows := st.StoreSteps
	if rows == 0 && kind != model.KindMitMot {
		rows = max(nSteps-minTap, v.Rows())
	}
	if rows == 0 || rows == v.Rows() {
		return v, nil
	}
	padded, err := core.PadRows(v, rows)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", kind, st.Name, err)
	}
	return padded, nil
}

// layoutTypes declares the dtype and rank of every output and records the
// output names.
func (c *compiler) layoutTypes() {
	l := c.prog.Layout
	for s, init := range c.prog.args.Initial {
		l.OutputTypes = append(l.OutputTypes, model.TensorType{DType: init.DType(), Rank: init.Rank()})
		c.prog.OutputNames = append(c.prog.OutputNames, c.order[len(c.spec.Sequences)+s].spec.Name)
	}
	for _, st := range c.spec.NitSot {
		dtype, rank := st.DType, st.Rank
		if dtype == core.Invalid {
			dtype = core.Float64
		}
		if rank == 0 {
			rank = 1
		}
		l.OutputTypes = append(l.OutputTypes, model.TensorType{DType: dtype, Rank: rank})
		c.prog.OutputNames = append(c.prog.OutputNames, st.Name)
	}
	for i, v := range c.prog.args.Shared {
		l.OutputTypes = append(l.OutputTypes, model.TensorType{DType: v.DType(), Rank: v.Rank()})
		c.prog.OutputNames = append(c.prog.OutputNames, c.spec.Shared[i].Name)
	}
}

// bindStreams attaches step slots to every declared stream.
func (c *compiler) bindStreams() error {
	l := c.prog.Layout
	in, out := c.prog.Step.Inputs, c.prog.Step.Outputs

	next := 0
	take := func() *core.Slot {
		s := in[next]
		next++
		return s
	}
	outNext := 0
	takeOut := func() *core.Slot {
		s := out[outNext]
		outNext++
		return s
	}

	byRole := func(r role) []*stream {
		var ss []*stream
		for _, s := range c.order {
			if s.role == r {
				ss = append(ss, s)
			}
		}
		return ss
	}

	for _, s := range byRole(roleSequence) {
		s.input = take()
	}
	for s := 0; s < l.NTapped(); s++ {
		st := c.order[l.NSeqs+s]
		st.taps = make(map[int]*core.Slot)
		for _, tap := range l.Taps[s] {
			st.taps[tap] = take()
		}
	}
	for _, s := range byRole(roleShared) {
		s.input = take()
	}
	for _, s := range byRole(roleOther) {
		s.input = take()
	}

	k := 0
	for _, s := range byRole(roleMitMot) {
		s.outTaps = make(map[int]*core.Slot)
		s.inPlace = make(map[int]bool)
		for _, tap := range s.spec.OutTaps {
			if l.IsPreallocated(k) {
				s.outTaps[tap] = s.taps[tap]
				s.inPlace[tap] = true
			} else {
				s.outTaps[tap] = takeOut()
			}
			k++
		}
	}
	for _, r := range []role{roleMitSot, roleSitSot, roleNitSot, roleShared} {
		for _, s := range byRole(r) {
			s.output = takeOut()
		}
	}
	if next != len(in) || outNext != len(out)-boolInt(l.AsWhile) {
		return fmt.Errorf("internal slot binding mismatch: %d/%d inputs, %d/%d outputs", next, len(in), outNext, len(out))
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// program binds the step statements.
func (c *compiler) program() (*program, error) {
	p := &program{}
	condSet := false
	for i, line := range c.spec.Step {
		text := strings.TrimSpace(line)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		st, err := parseStatement(text)
		if err != nil {
			return nil, fmt.Errorf("step %d: %v", i+1, err)
		}
		a, err := c.bind(st)
		if err != nil {
			return nil, fmt.Errorf("step %d: %s: %v", i+1, text, err)
		}
		if a.out != nil && a.out == c.condSlot() {
			condSet = true
		}
		p.stmts = append(p.stmts, a)
	}
	if len(p.stmts) == 0 {
		return nil, fmt.Errorf("loop %q has no step statements", c.spec.Name)
	}
	p.frame.locals = make([]*core.Array, len(c.locals))

	if c.spec.AsWhile && !condSet {
		return nil, fmt.Errorf("while loop %q never assigns %q", c.spec.Name, CondTarget)
	}
	for _, s := range c.order {
		switch s.role {
		case roleMitSot, roleSitSot, roleNitSot, roleShared:
			if !s.assigned[0] {
				return nil, fmt.Errorf("%s %q is never assigned", s.role, s.spec.Name)
			}
		case roleMitMot:
			for _, tap := range s.spec.OutTaps {
				if !s.assigned[tap] {
					return nil, fmt.Errorf("mit_mot %q output tap %d is never assigned", s.spec.Name, tap)
				}
			}
		}
	}
	return p, nil
}

func (c *compiler) condSlot() *core.Slot {
	if !c.spec.AsWhile {
		return nil
	}
	out := c.prog.Step.Outputs
	return out[len(out)-1]
}

func (c *compiler) local(name string) int {
	idx, ok := c.locals[name]
	if !ok {
		idx = len(c.locals)
		c.locals[name] = idx
	}
	return idx
}

// bind resolves one statement. The expression is bound before the target
// so that a statement may read the value it replaces.
func (c *compiler) bind(st *statement) (*assignment, error) {
	e, err := c.bindExpr(st.expr)
	if err != nil {
		return nil, err
	}
	call, ok := e.(*callExpr)
	if !ok {
		cp, _ := kernels.Lookup("copy")
		call = &callExpr{kernel: cp, args: []expr{e}}
	}
	a := &assignment{text: st.text, call: call}

	t := st.target
	name := t.name
	if t.name == CondTarget {
		if !c.spec.AsWhile || t.hasTap {
			return nil, fmt.Errorf("%q can only be assigned in a while loop", CondTarget)
		}
		a.out = c.condSlot()
		a.local = c.local(name)
		return a, nil
	}

	s, ok := c.streams[name]
	if !ok {
		if t.hasTap {
			return nil, fmt.Errorf("temporary %q cannot have a tap", name)
		}
		a.local = c.local(name)
		return a, nil
	}

	switch s.role {
	case roleMitMot:
		if !t.hasTap {
			return nil, fmt.Errorf("mit_mot %q must be assigned through an output tap", name)
		}
		slot, ok := s.outTaps[t.tap]
		if !ok {
			return nil, fmt.Errorf("mit_mot %q has no output tap %d", name, t.tap)
		}
		a.out = slot
		a.inPlace = s.inPlace[t.tap] || c.spec.IntoPreallocated
		a.dtype = c.prog.Layout.OutputType(s.out).DType
		a.local = c.local(t.String())
		s.assigned[t.tap] = true
	case roleMitSot, roleSitSot, roleNitSot, roleShared:
		if t.hasTap {
			return nil, fmt.Errorf("%s %q must be assigned without a tap", s.role, name)
		}
		a.out = s.output
		a.inPlace = c.spec.IntoPreallocated && s.role != roleShared
		a.dtype = c.prog.Layout.OutputType(s.out).DType
		a.local = c.local(name)
		s.assigned[0] = true
	default:
		return nil, fmt.Errorf("cannot assign to %s %q", s.role, name)
	}
	return a, nil
}

func (c *compiler) bindExpr(n *node) (expr, error) {
	switch n.kind {
	case nodeNumber:
		return &constExpr{value: core.Scalar(core.Float64, n.value)}, nil
	case nodeCall:
		k, err := kernels.Lookup(n.name)
		if err != nil {
			return nil, fmt.Errorf("col %d: %v", n.col, err)
		}
		if len(n.args) != k.Arity {
			return nil, fmt.Errorf("col %d: %s takes %d operands, got %d", n.col, n.name, k.Arity, len(n.args))
		}
		call := &callExpr{kernel: k}
		for _, arg := range n.args {
			e, err := c.bindExpr(arg)
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, e)
		}
		return call, nil
	}
	return c.bindRef(n)
}

func (c *compiler) bindRef(n *node) (expr, error) {
	if !n.hasTap {
		if idx, ok := c.locals[n.name]; ok {
			return &localExpr{idx: idx, name: n.name}, nil
		}
	}
	s, ok := c.streams[n.name]
	if !ok {
		return nil, fmt.Errorf("col %d: undefined name %q", n.col, n.name)
	}

	switch s.role {
	case roleMitMot, roleMitSot, roleSitSot:
		if !n.hasTap {
			return nil, fmt.Errorf("col %d: %s %q must be read through a tap, e.g. %s[-1]", n.col, s.role, n.name, n.name)
		}
		slot, ok := s.taps[n.tap]
		if !ok {
			return nil, fmt.Errorf("col %d: %s %q has no input tap %d", n.col, s.role, n.name, n.tap)
		}
		return &slotExpr{slot: slot, name: n.String()}, nil
	case roleNitSot:
		return nil, fmt.Errorf("col %d: nit_sot %q is read before it is assigned", n.col, n.name)
	}
	if n.hasTap {
		return nil, fmt.Errorf("col %d: %s %q has no taps", n.col, s.role, n.name)
	}
	return &slotExpr{slot: s.input, name: n.name}, nil
}
