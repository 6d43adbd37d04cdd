// Package procedures implements symbolic models of C library functions.
//
// A model runs against a State either inline, with explicit arguments, or
// as a real call that reads its arguments using the calling convention of
// the state's architecture and returns to the caller.
package procedures

import (
	"errors"
	"fmt"
	"sort"

	"github.com/benbjohnson/simstate"
	"github.com/benbjohnson/simstate/logflags"
)

// LibC is the library name of the C standard library models.
const LibC = "libc.so.6"

// ErrArgumentCount is returned when a model is invoked with too few arguments.
var ErrArgumentCount = errors.New("too few arguments")

// Procedure is a symbolic model of a library function.
type Procedure struct {
	Name    string
	NumArgs int
	Run     func(state *simstate.State, args []simstate.Expr) (*Result, error)
}

// Result is the outcome of running a procedure.
type Result struct {
	// Return value. Nil if the procedure returns nothing.
	RetExpr simstate.Expr

	// Set if a scan stopped at its configured bound before finding a
	// terminator. RetExpr is then capped at the bound.
	BoundExceeded bool
}

// Inline runs the procedure with explicit arguments. The instruction and
// stack pointers are not touched.
func (p *Procedure) Inline(state *simstate.State, args ...simstate.Expr) (*Result, error) {
	if len(args) < p.NumArgs {
		return nil, fmt.Errorf("%s: %w: got %d, want %d", p.Name, ErrArgumentCount, len(args), p.NumArgs)
	}

	result, err := p.Run(state, args[:p.NumArgs])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}

	if logflags.Procedures() {
		logger := logflags.ProceduresLogger()
		if result.BoundExceeded {
			logger.Debugf("%s: scan bound reached: max-strlen=%d", p.Name, state.Options.MaxStrlen)
		}
		logger.Debugf("%s: ret=%v", p.Name, result.RetExpr)
	}
	return result, nil
}

// Call runs the procedure as if control had reached it through a call
// instruction. Arguments are read using the architecture's calling
// convention, the result is written to the return register and the return
// address is popped into the instruction pointer.
func (p *Procedure) Call(state *simstate.State) (*Result, error) {
	arch := state.Arch()

	args, err := p.args(state)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}

	result, err := p.Inline(state, args...)
	if err != nil {
		return nil, err
	}

	if result.RetExpr != nil {
		if err := state.StoreReg(arch.Ret, simstate.NewCastExpr(result.RetExpr, arch.Bits, false)); err != nil {
			return nil, err
		}
	}

	// Pop the return address.
	sp, err := state.RegExpr(arch.SP)
	if err != nil {
		return nil, err
	}
	ret, err := state.MemExpr(sp, arch.PtrSize(), simstate.DefaultEndness)
	if err != nil {
		return nil, err
	}
	if err := state.StoreReg(arch.IP, ret); err != nil {
		return nil, err
	} else if err := state.StoreReg(arch.SP, offset(sp, uint64(arch.PtrSize()))); err != nil {
		return nil, err
	}
	return result, nil
}

// args reads the procedure's arguments from registers and then the stack.
// The return address is on top of the stack.
func (p *Procedure) args(state *simstate.State) ([]simstate.Expr, error) {
	arch := state.Arch()
	args := make([]simstate.Expr, p.NumArgs)
	for i := range args {
		if i < len(arch.Args) {
			expr, err := state.RegExpr(arch.Args[i])
			if err != nil {
				return nil, err
			}
			args[i] = expr
			continue
		}

		sp, err := state.RegExpr(arch.SP)
		if err != nil {
			return nil, err
		}
		slot := uint64(i-len(arch.Args)+1) * uint64(arch.PtrSize())
		expr, err := state.MemExpr(offset(sp, slot), arch.PtrSize(), simstate.DefaultEndness)
		if err != nil {
			return nil, err
		}
		args[i] = expr
	}
	return args, nil
}

// funcKey identifies a function within a library.
type funcKey struct {
	library string
	symbol  string
}

// registry holds every procedure by library & symbol.
var registry = newRegistry(map[string][]*Procedure{
	LibC: {Strlen, Strcmp, Strncmp, Strcpy, Strncpy, Memcmp, Memcpy},
})

func newRegistry(libs map[string][]*Procedure) map[funcKey]*Procedure {
	m := make(map[funcKey]*Procedure)
	for library, procs := range libs {
		for _, p := range procs {
			m[funcKey{library: library, symbol: p.Name}] = p
		}
	}
	return m
}

// Lookup returns the procedure modeling symbol in library.
func Lookup(library, symbol string) (*Procedure, bool) {
	p, ok := registry[funcKey{library: library, symbol: symbol}]
	return p, ok
}

// Symbols returns the sorted names of the procedures modeled for library.
func Symbols(library string) []string {
	var a []string
	for key := range registry {
		if key.library == library {
			a = append(a, key.symbol)
		}
	}
	sort.Strings(a)
	return a
}

// offset returns addr + n.
func offset(addr simstate.Expr, n uint64) simstate.Expr {
	return simstate.NewBinaryExpr(simstate.ADD, addr, simstate.NewConstantExpr(n, simstate.ExprWidth(addr)))
}

// loadByte reads the byte at addr + i.
func loadByte(state *simstate.State, addr simstate.Expr, i uint64) (simstate.Expr, error) {
	return state.MemExpr(offset(addr, i), 1, simstate.BigEndian)
}

// storeByte writes the byte at addr + i.
func storeByte(state *simstate.State, addr simstate.Expr, i uint64, value simstate.Expr) error {
	return state.StoreMem(offset(addr, i), value, simstate.BigEndian)
}

// sizeBound returns the number of bytes a buffer operation of n bytes may
// touch, capped at the state's buffer limit.
func sizeBound(state *simstate.State, n simstate.Expr) (uint64, error) {
	limit := uint64(state.Options.MaxBufferSize)
	if c, ok := n.(*simstate.ConstantExpr); ok {
		if c.Value > limit {
			return limit, nil
		}
		return c.Value, nil
	}

	max, err := state.ExprValue(n).Max()
	if err != nil {
		return 0, err
	} else if max > limit {
		return limit, nil
	}
	return max, nil
}

// isConcreteZero returns true if b is the constant zero byte.
func isConcreteZero(b simstate.Expr) bool {
	c, ok := b.(*simstate.ConstantExpr)
	return ok && c.Value == 0
}

func constant(value uint64, width uint) simstate.Expr {
	return simstate.NewConstantExpr(value, width)
}

// compareBytes returns -1, 1 or 0 as a is less than, greater than or equal to b.
// Equal bytes yield next.
func compareBytes(a, b, next simstate.Expr, width uint) simstate.Expr {
	return simstate.NewIteExpr(
		simstate.NewBinaryExpr(simstate.NE, a, b),
		simstate.NewIteExpr(simstate.NewBinaryExpr(simstate.ULT, a, b), constant(^uint64(0), width), constant(1, width)),
		next,
	)
}
