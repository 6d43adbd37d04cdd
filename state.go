package simstate

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/benbjohnson/simstate/logflags"
)

// mergeSelectorID is incremented for every merge selector created.
var mergeSelectorID uint64

// MergeSelectorWidth is the bit width of merge selector symbols.
const MergeSelectorWidth = Width16

// State represents the machine state of one execution path: memory,
// registers and the path constraints collected so far.
//
// A State must only be used by one goroutine at a time. Copies share no
// mutable structure with the original.
type State struct {
	arch   *Arch
	solver Solver

	memory      *Memory
	regs        *immutable.SortedMap[string, Expr]
	constraints *immutable.List[Expr]

	// Number of leading constraints shared with sibling states.
	forkPoint int

	// Selectors introduced by previous merges, oldest first.
	mergeSelectors []*SymbolExpr

	// Exploration bounds used by symbolic memory access and library models.
	Options Options
}

// NewState returns a new State for arch. Unwritten memory is read from
// backer, which may be nil.
func NewState(arch *Arch, solver Solver, backer Backer) *State {
	opts := DefaultOptions()
	opts.Arch = arch.Name

	return &State{
		arch:        arch,
		solver:      solver,
		memory:      NewMemory(backer, arch.Endness),
		regs:        immutable.NewSortedMap[string, Expr](immutable.NewComparer("")),
		constraints: immutable.NewList[Expr](),
		Options:     opts,
	}
}

// Arch returns the architecture of the state.
func (s *State) Arch() *Arch { return s.arch }

// Solver returns the solver used to concretize values.
func (s *State) Solver() Solver { return s.solver }

// Memory returns the memory of the state.
func (s *State) Memory() *Memory { return s.memory }

// ForkPoint returns the number of constraints shared with sibling states.
func (s *State) ForkPoint() int { return s.forkPoint }

// MergeSelectors returns the selectors introduced by previous merges.
func (s *State) MergeSelectors() []*SymbolExpr {
	return append([]*SymbolExpr(nil), s.mergeSelectors...)
}

// Constraints returns the path constraints in insertion order.
func (s *State) Constraints() []Expr {
	a := make([]Expr, 0, s.constraints.Len())
	itr := s.constraints.Iterator()
	for !itr.Done() {
		_, expr := itr.Next()
		a = append(a, expr)
	}
	return a
}

// AddConstraints conjoins boolean expressions into the path constraints.
// Conjunctions are split and constant true constraints are dropped.
func (s *State) AddConstraints(exprs ...Expr) error {
	for _, expr := range exprs {
		if w := ExprWidth(expr); w != WidthBool {
			return fmt.Errorf("constraint %s has width %d: %w", expr, w, ErrInvalidWidth)
		}
	}

	constraints := s.constraints
	for _, expr := range exprs {
		constraints = appendConstraint(constraints, expr)
	}
	s.constraints = constraints
	return nil
}

// appendConstraint appends expr to a, splitting top-level conjunctions.
func appendConstraint(a *immutable.List[Expr], expr Expr) *immutable.List[Expr] {
	if IsConstantTrue(expr) {
		return a
	} else if expr, ok := expr.(*BinaryExpr); ok && expr.Op == AND {
		return appendConstraint(appendConstraint(a, expr.LHS), expr.RHS)
	}
	return a.Append(expr)
}

// Satisfiable returns true if the path constraints have a solution.
func (s *State) Satisfiable() (bool, error) {
	ok, _, err := s.solver.Solve(s.Constraints(), nil)
	return ok, err
}

// ExprValue wraps expr with the current path constraints.
func (s *State) ExprValue(expr Expr) *Value {
	return NewValue(s.solver, expr, s.Constraints()...)
}

// RegExpr returns the expression held by the named register. Registers that
// were never written read as a symbol unique to the register.
func (s *State) RegExpr(name string) (Expr, error) {
	reg, ok := s.arch.Register(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownRegister)
	}
	return s.regExpr(reg), nil
}

func (s *State) regExpr(reg Register) Expr {
	if expr, ok := s.regs.Get(reg.Name); ok {
		return expr
	}
	return NewSymbolExpr(fmt.Sprintf("reg_%d_%s", s.memory.origin, reg.Name), reg.Width)
}

// RegValue returns the value of the named register.
func (s *State) RegValue(name string) (*Value, error) {
	expr, err := s.RegExpr(name)
	if err != nil {
		return nil, err
	}
	return s.ExprValue(expr), nil
}

// StoreReg writes expr to the named register. The width of expr must match
// the register width.
func (s *State) StoreReg(name string, expr Expr) error {
	reg, ok := s.arch.Register(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownRegister)
	} else if w := ExprWidth(expr); w != reg.Width {
		return fmt.Errorf("store %d bits to %d-bit register %s: %w", w, reg.Width, name, ErrInvalidWidth)
	}
	s.regs = s.regs.Set(name, expr)
	return nil
}

// ConcretizeAddr returns a concrete value for addr. If addr can take more
// than one value, one is chosen and the state is constrained to it.
func (s *State) ConcretizeAddr(addr Expr) (uint64, error) {
	if c, ok := addr.(*ConstantExpr); ok {
		return c.Value, nil
	}

	values, err := s.ExprValue(addr).AnyN(2)
	if err != nil {
		return 0, err
	} else if len(values) == 1 {
		return values[0], nil
	}

	if logflags.State() {
		logflags.StateLogger().Debugf("concretize address %s to %#x", addr, values[0])
	}
	if err := s.AddConstraints(NewEqConstExpr(addr, values[0])); err != nil {
		return 0, err
	}
	return values[0], nil
}

// StoreMem writes expr to memory at addr. A symbolic address is
// concretized first. Boolean expressions are stored as a single byte.
func (s *State) StoreMem(addr, expr Expr, endness Endness) error {
	a, err := s.ConcretizeAddr(addr)
	if err != nil {
		return err
	}
	if ExprWidth(expr) == WidthBool {
		expr = NewCastExpr(expr, Width8, false)
	}
	if endness == DefaultEndness {
		endness = s.arch.Endness
	}
	return s.memory.Store(a, expr, endness)
}

// MemExpr reads size bytes from memory at addr. A symbolic address yields
// a conditional expression over its feasible addresses.
func (s *State) MemExpr(addr Expr, size uint, endness Endness) (Expr, error) {
	if endness == DefaultEndness {
		endness = s.arch.Endness
	}
	if c, ok := addr.(*ConstantExpr); ok {
		return s.memory.Load(c.Value, size, endness), nil
	}

	fragments, err := s.memory.LoadValue(s.ExprValue(addr), size, endness, s.Options.MaxSymbolicAddrs)
	if err != nil {
		return nil, err
	}

	result := fragments[len(fragments)-1].Expr
	for i := len(fragments) - 2; i >= 0; i-- {
		result = NewIteExpr(fragments[i].Guard, fragments[i].Expr, result)
	}
	return result, nil
}

// MemValue reads size bytes from memory at addr and wraps the result with
// the current path constraints.
func (s *State) MemValue(addr Expr, size uint, endness Endness) (*Value, error) {
	expr, err := s.MemExpr(addr, size, endness)
	if err != nil {
		return nil, err
	}
	return s.ExprValue(expr), nil
}

// CopyExact returns an independent copy of the state, including its fork
// point and merge history.
func (s *State) CopyExact() *State {
	other := *s
	other.memory = s.memory.Copy()
	other.mergeSelectors = s.MergeSelectors()
	return &other
}

// CopyAfter returns an independent copy of the state whose fork point is
// the current end of the path constraints. Merging the copy with its
// siblings only guards constraints added after this call.
func (s *State) CopyAfter() *State {
	other := s.CopyExact()
	other.forkPoint = s.constraints.Len()
	return other
}

// Merge joins others into s. A fresh selector symbol chooses between the
// merged states: selector 0 is s and selector i is others[i-1]. Memory
// cells and registers that differ between the states become conditional
// on the selector, and each state's path-local constraints only apply when
// the selector chooses it. Returns the selector value.
//
// Only s is modified. On error no state is modified.
func (s *State) Merge(others ...*State) (*Value, error) {
	if err := s.checkMerge(others); err != nil {
		return nil, err
	}
	states := append([]*State{s}, others...)

	// Constraints before the latest fork point must be shared by all states.
	prefix := s.forkPoint
	for _, other := range others {
		if other.forkPoint > prefix {
			prefix = other.forkPoint
		}
	}
	if err := checkConstraintPrefix(states, prefix); err != nil {
		return nil, err
	}

	k := uint64(len(others))
	sel := NewSymbolExpr(fmt.Sprintf("merge_%d", atomic.AddUint64(&mergeSelectorID, 1)), MergeSelectorWidth)
	selectorIs := func(i int) Expr { return NewEqConstExpr(sel, uint64(i)) }

	// Build a conditional chain over the values of each state.
	choose := func(values []Expr) Expr {
		result := values[len(values)-1]
		for i := len(values) - 2; i >= 0; i-- {
			result = NewIteExpr(selectorIs(i), values[i], result)
		}
		return result
	}

	// Merge memory over every address written by any state.
	memory := s.memory.Copy()
	var cellN int
	for _, addr := range mergeAddrs(states) {
		values := make([]Expr, len(states))
		for i, state := range states {
			values[i] = state.memory.Cell(addr).Expr()
		}
		if allSame(values) {
			continue
		}
		memory.setCell(addr, SymbolicCell(choose(values)))
		cellN++
	}

	// Merge registers over every register written by any state.
	regs := s.regs
	var regN int
	for _, name := range mergeRegs(states) {
		reg, _ := s.arch.Register(name)
		values := make([]Expr, len(states))
		for i, state := range states {
			values[i] = state.regExpr(reg)
		}
		if allSame(values) {
			continue
		}
		regs = regs.Set(name, choose(values))
		regN++
	}

	// Keep the shared prefix and guard each state's path-local suffix.
	constraints := s.constraints.Slice(0, prefix)
	constraints = constraints.Append(NewBinaryExpr(ULE, sel, NewConstantExpr(k, MergeSelectorWidth)))
	for i, state := range states {
		var cond Expr
		for j := prefix; j < state.constraints.Len(); j++ {
			expr := state.constraints.Get(j)
			if cond == nil {
				cond = expr
			} else {
				cond = NewBinaryExpr(AND, cond, expr)
			}
		}
		if cond == nil {
			continue
		}
		constraints = constraints.Append(NewBinaryExpr(OR, NewNotExpr(selectorIs(i)), cond))
	}

	s.memory = memory
	s.regs = regs
	s.constraints = constraints
	s.mergeSelectors = append(s.MergeSelectors(), sel)

	if logflags.State() {
		logflags.StateLogger().Debugf("merged %d states: selector=%s cells=%d registers=%d", len(states), sel, cellN, regN)
	}

	return s.ExprValue(sel), nil
}

// checkMerge returns an error if others cannot be merged into s.
func (s *State) checkMerge(others []*State) error {
	if len(others) == 0 {
		return &MergeError{Reason: "no states to merge"}
	} else if uint64(len(others)) > bitmask(MergeSelectorWidth) {
		return &MergeError{Reason: fmt.Sprintf("too many states: %d", len(others)+1)}
	}

	for _, other := range others {
		if other == s {
			return &MergeError{Reason: "cannot merge a state with itself"}
		} else if other.arch != s.arch {
			return &MergeError{Reason: fmt.Sprintf("architecture mismatch: %s != %s", s.arch, other.arch)}
		} else if other.memory.origin != s.memory.origin {
			return &MergeError{Reason: "states do not share a common ancestor"}
		}
	}
	return nil
}

// checkConstraintPrefix returns an error if the first n constraints of the
// states differ.
func checkConstraintPrefix(states []*State, n int) error {
	for _, state := range states {
		if state.constraints.Len() < n {
			return &MergeError{Reason: "constraints diverge before the fork point"}
		}
	}
	for i := 0; i < n; i++ {
		expr := states[0].constraints.Get(i)
		for _, state := range states[1:] {
			if !sameExpr(expr, state.constraints.Get(i)) {
				return &MergeError{Reason: "constraints diverge before the fork point"}
			}
		}
	}
	return nil
}

// mergeAddrs returns the union of written addresses of the states, ascending.
func mergeAddrs(states []*State) []uint64 {
	m := immutable.NewSortedMapBuilder[uint64, struct{}](uint64Comparer{})
	for _, state := range states {
		itr := state.memory.cells.Iterator()
		for !itr.Done() {
			addr, _, _ := itr.Next()
			m.Set(addr, struct{}{})
		}
	}
	return sortedKeys(m.Map())
}

// mergeRegs returns the union of written register names of the states, sorted.
func mergeRegs(states []*State) []string {
	m := immutable.NewSortedMapBuilder[string, struct{}](immutable.NewComparer(""))
	for _, state := range states {
		itr := state.regs.Iterator()
		for !itr.Done() {
			name, _, _ := itr.Next()
			m.Set(name, struct{}{})
		}
	}
	return sortedKeys(m.Map())
}

func sortedKeys[K any](m *immutable.SortedMap[K, struct{}]) []K {
	a := make([]K, 0, m.Len())
	itr := m.Iterator()
	for !itr.Done() {
		k, _, _ := itr.Next()
		a = append(a, k)
	}
	return a
}

// allSame returns true if every expression is structurally equal.
func allSame(values []Expr) bool {
	for _, v := range values[1:] {
		if !sameExpr(values[0], v) {
			return false
		}
	}
	return true
}

// Dump writes a human readable listing of the state to w.
func (s *State) Dump(w io.Writer) {
	fmt.Fprintf(w, "arch: %s\n", s.arch)

	fmt.Fprintln(w, "registers:")
	itr := s.regs.Iterator()
	for !itr.Done() {
		name, expr, _ := itr.Next()
		fmt.Fprintf(w, "  %s = %s\n", name, expr)
	}

	fmt.Fprintln(w, "memory:")
	mitr := s.memory.cells.Iterator()
	for !mitr.Done() {
		addr, cell, _ := mitr.Next()
		fmt.Fprintf(w, "  %#x = %s\n", addr, cell)
	}

	fmt.Fprintf(w, "constraints (fork point %d):\n", s.forkPoint)
	for i, expr := range s.Constraints() {
		fmt.Fprintf(w, "  %d: %s\n", i, expr)
	}
}
