package z3

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/benbjohnson/simstate"
	"github.com/benbjohnson/simstate/logflags"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
#include <stdint.h>
*/
import "C"

// Solver errors.
var (
	ErrSolverTimeout       = errors.New("solver timeout")
	ErrSolverCanceled      = errors.New("solver canceled")
	ErrSolverResourceLimit = errors.New("solver resource limit reached")
	ErrSolverUnknown       = errors.New("solver unknown")
)

// Ensure solver implements interface.
var _ simstate.Solver = (*Solver)(nil)

// Solver represents a solver that uses an embedded Z3 solver.
// Queries are serialized; each query uses a fresh Z3 solver object.
type Solver struct {
	mu    sync.Mutex
	ctx   *Context
	stats Stats

	// Per-query timeout. Zero disables the timeout.
	Timeout time.Duration
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{
		ctx: NewContext(),
	}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.Close()
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Solve checks the satisfiability of the conjunction of constraints. If
// satisfiable, a model value is returned for each symbol as little-endian bytes.
func (s *Solver) Solve(constraints []simstate.Expr, symbols []*simstate.SymbolExpr) (satisfiable bool, values [][]byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := time.Now()
	defer func() {
		d := time.Since(t)
		s.stats.SolveN++
		s.stats.SolveTime += d
		if logflags.Solver() {
			logflags.SolverLogger().Debugf("solve: constraints=%d symbols=%d sat=%v elapsed=%s", len(constraints), len(symbols), satisfiable, d)
		}
	}()

	solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return false, nil, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	if s.Timeout > 0 {
		if err := s.ctx.setTimeout(solver, s.Timeout); err != nil {
			return false, nil, err
		}
	}

	// Assert constraints.
	for _, constraint := range constraints {
		z3Constraint, err := s.ctx.toAST(constraint)
		if err != nil {
			return false, nil, err
		}
		C.Z3_solver_assert(s.ctx.raw, solver, z3Constraint)
		if err := s.ctx.err("Z3_solver_assert"); err != nil {
			return false, nil, err
		}
	}

	// Check equations with the solver.
	// Exit immediately if unsatisfiable or the solver encountered an error.
	ret := C.Z3_solver_check(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return false, nil, err
	} else if ret == C.Z3_L_FALSE {
		return false, nil, nil
	} else if ret == C.Z3_L_UNDEF {
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, solver))
		switch {
		case strings.Contains(reason, "timeout"):
			return false, nil, ErrSolverTimeout
		case strings.Contains(reason, "canceled"):
			return false, nil, ErrSolverCanceled
		case strings.Contains(reason, "(resource limits reached)"):
			return false, nil, ErrSolverResourceLimit
		case strings.Contains(reason, "unknown"):
			return false, nil, ErrSolverUnknown
		default:
			return false, nil, fmt.Errorf("z3: %s", reason)
		}
	} else if len(symbols) == 0 {
		return true, nil, nil // no symbolics, ignore model
	}

	// Calculate a model for the given formula.
	model := C.Z3_solver_get_model(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_get_model"); err != nil {
		return true, nil, err
	}
	C.Z3_model_inc_ref(s.ctx.raw, model)
	defer C.Z3_model_dec_ref(s.ctx.raw, model)

	// Fetch values for symbols.
	values, err = s.ctx.eval(model, symbols)
	if err != nil {
		return true, nil, err
	}
	return true, values, nil
}

// Context represents a Z3 context object that is used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return nil
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// setTimeout sets the timeout parameter on solver.
func (ctx *Context) setTimeout(solver C.Z3_solver, d time.Duration) error {
	params := C.Z3_mk_params(ctx.raw)
	if err := ctx.err("Z3_mk_params"); err != nil {
		return err
	}
	C.Z3_params_inc_ref(ctx.raw, params)
	defer C.Z3_params_dec_ref(ctx.raw, params)

	cname := C.CString("timeout")
	defer C.free(unsafe.Pointer(cname))

	C.Z3_params_set_uint(ctx.raw, params, C.Z3_mk_string_symbol(ctx.raw, cname), C.uint(d/time.Millisecond))
	if err := ctx.err("Z3_params_set_uint"); err != nil {
		return err
	}
	C.Z3_solver_set_params(ctx.raw, solver, params)
	return ctx.err("Z3_solver_set_params")
}

// toAST returns a new instance of Z3_ast from an expression. One-bit
// expressions are converted to the boolean sort, all others to bit-vectors.
func (ctx *Context) toAST(expr simstate.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *simstate.ConstantExpr:
		return ctx.toConstantAST(expr)
	case *simstate.SymbolExpr:
		return ctx.toSymbolAST(expr)
	case *simstate.IteExpr:
		return ctx.toIteAST(expr)
	case *simstate.ConcatExpr:
		return ctx.toConcatAST(expr)
	case *simstate.ExtractExpr:
		return ctx.toExtractAST(expr)
	case *simstate.CastExpr:
		return ctx.toCastAST(expr)
	case *simstate.NotExpr:
		return ctx.toNotAST(expr)
	case *simstate.BinaryExpr:
		return ctx.toBinaryAST(expr)
	default:
		return nil, fmt.Errorf("z3.Context.toAST: invalid expression type: %T", expr)
	}
}

// toBVAST returns expr as a bit-vector, converting booleans to one bit.
func (ctx *Context) toBVAST(expr simstate.Expr) (C.Z3_ast, error) {
	ast, err := ctx.toAST(expr)
	if err != nil {
		return nil, err
	} else if simstate.ExprWidth(expr) != simstate.WidthBool {
		return ast, nil
	}
	return ctx.boolToBV(ast, 1, 1)
}

// boolToBV returns a width-bit vector that is whenTrue if ast holds and zero otherwise.
func (ctx *Context) boolToBV(ast C.Z3_ast, width uint, whenTrue uint64) (C.Z3_ast, error) {
	t, err := ctx.makeUint64(width, whenTrue)
	if err != nil {
		return nil, err
	}
	f, err := ctx.makeUint64(width, 0)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, ast, t, f), ctx.err("Z3_mk_ite")
}

// bvToBool returns a boolean that holds if the one-bit vector ast is set.
func (ctx *Context) bvToBool(ast C.Z3_ast) (C.Z3_ast, error) {
	one, err := ctx.makeUint64(1, 1)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_eq(ctx.raw, ast, one), ctx.err("Z3_mk_eq")
}

func (ctx *Context) toConstantAST(expr *simstate.ConstantExpr) (C.Z3_ast, error) {
	if expr.Width == simstate.WidthBool {
		if expr.IsTrue() {
			return ctx.makeTrue()
		}
		return ctx.makeFalse()
	} else if expr.Width <= simstate.Width64 {
		return ctx.makeUint64(expr.Width, expr.Value)
	}
	return nil, fmt.Errorf("z3.Context.toConstantAST: invalid expression width: %d", expr.Width)
}

func (ctx *Context) toSymbolAST(expr *simstate.SymbolExpr) (C.Z3_ast, error) {
	ast, err := ctx.makeSymbolConst(expr)
	if err != nil {
		return nil, err
	} else if expr.Width == simstate.WidthBool {
		return ctx.bvToBool(ast)
	}
	return ast, nil
}

func (ctx *Context) toIteAST(expr *simstate.IteExpr) (C.Z3_ast, error) {
	cond, err := ctx.toAST(expr.Cond)
	if err != nil {
		return nil, err
	}
	then, err := ctx.toAST(expr.Then)
	if err != nil {
		return nil, err
	}
	els, err := ctx.toAST(expr.Else)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, cond, then, els), ctx.err("Z3_mk_ite")
}

func (ctx *Context) toConcatAST(expr *simstate.ConcatExpr) (C.Z3_ast, error) {
	msb, err := ctx.toBVAST(expr.MSB)
	if err != nil {
		return nil, err
	}
	lsb, err := ctx.toBVAST(expr.LSB)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_concat(ctx.raw, msb, lsb), ctx.err("Z3_mk_concat")
}

func (ctx *Context) toExtractAST(expr *simstate.ExtractExpr) (C.Z3_ast, error) {
	src, err := ctx.toBVAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	ast := C.Z3_mk_extract(ctx.raw, C.uint(expr.Offset+expr.Width-1), C.uint(expr.Offset), src)
	if err := ctx.err("Z3_mk_extract"); err != nil {
		return nil, err
	}

	// If extracting single bit, convert to bool sort.
	if expr.Width == simstate.WidthBool {
		return ctx.bvToBool(ast)
	}
	return ast, nil
}

func (ctx *Context) toCastAST(expr *simstate.CastExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Src)
	if err != nil {
		return nil, err
	}

	// Convert boolean cast to if-then-else expression.
	if simstate.ExprWidth(expr.Src) == simstate.WidthBool {
		whenTrue := uint64(1)
		if expr.Signed {
			whenTrue = ^uint64(0)
		}
		return ctx.boolToBV(src, expr.Width, whenTrue)
	}

	n := C.uint(expr.Width - simstate.ExprWidth(expr.Src))
	if expr.Signed {
		return C.Z3_mk_sign_ext(ctx.raw, n, src), ctx.err("Z3_mk_sign_ext")
	}
	return C.Z3_mk_zero_ext(ctx.raw, n, src), ctx.err("Z3_mk_zero_ext")
}

func (ctx *Context) toNotAST(expr *simstate.NotExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If boolean, use boolean NOT operation.
	if simstate.ExprWidth(expr.Expr) == simstate.WidthBool {
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	}
	return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")
}

func (ctx *Context) toBinaryAST(expr *simstate.BinaryExpr) (C.Z3_ast, error) {
	isBool := simstate.ExprWidth(expr.LHS) == simstate.WidthBool
	if isBool {
		switch expr.Op {
		case simstate.AND, simstate.OR, simstate.XOR, simstate.EQ:
			return ctx.toBoolBinaryAST(expr)
		}
	}

	lhs, err := ctx.toBVAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toBVAST(expr.RHS)
	if err != nil {
		return nil, err
	}

	ast, err := ctx.makeBinary(expr.Op, lhs, rhs)
	if err != nil {
		return nil, err
	} else if isBool && expr.Op.IsArithmetic() {
		return ctx.bvToBool(ast)
	}
	return ast, nil
}

// toBoolBinaryAST converts logical operations on booleans.
func (ctx *Context) toBoolBinaryAST(expr *simstate.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.RHS)
	if err != nil {
		return nil, err
	}

	args := [2]C.Z3_ast{lhs, rhs}
	switch expr.Op {
	case simstate.AND:
		return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
	case simstate.OR:
		return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
	case simstate.XOR:
		return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
	case simstate.EQ:
		return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
	default:
		return nil, fmt.Errorf("z3.Context.toBoolBinaryAST: unexpected operation: %s", expr.Op)
	}
}

// makeBinary applies a bit-vector operation to lhs & rhs.
func (ctx *Context) makeBinary(op simstate.BinaryOp, lhs, rhs C.Z3_ast) (C.Z3_ast, error) {
	switch op {
	case simstate.ADD:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case simstate.SUB:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case simstate.MUL:
		return C.Z3_mk_bvmul(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvmul")
	case simstate.UDIV:
		return C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvudiv")
	case simstate.SDIV:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case simstate.UREM:
		return C.Z3_mk_bvurem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvurem")
	case simstate.SREM:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case simstate.AND:
		return C.Z3_mk_bvand(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvand")
	case simstate.OR:
		return C.Z3_mk_bvor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvor")
	case simstate.XOR:
		return C.Z3_mk_bvxor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvxor")
	case simstate.SHL:
		return C.Z3_mk_bvshl(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvshl")
	case simstate.LSHR:
		return C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvlshr")
	case simstate.ASHR:
		return C.Z3_mk_bvashr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvashr")
	case simstate.EQ:
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case simstate.ULT:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case simstate.ULE:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case simstate.SLT:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case simstate.SLE:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	default:
		return nil, fmt.Errorf("z3.Context.makeBinary: unexpected operation: %s", op)
	}
}

func (ctx *Context) makeTrue() (C.Z3_ast, error) {
	return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
}

func (ctx *Context) makeFalse() (C.Z3_ast, error) {
	return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
}

func (ctx *Context) makeBVSort(width uint) (C.Z3_sort, error) {
	return C.Z3_mk_bv_sort(ctx.raw, C.uint(width)), ctx.err("Z3_mk_bv_sort")
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	t, err := ctx.makeBVSort(width)
	if err != nil {
		return nil, err
	}
	if width < 64 {
		value &= (uint64(1) << width) - 1
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), t), ctx.err("Z3_mk_unsigned_int64")
}

// makeSymbolConst returns the bit-vector constant for a symbol.
func (ctx *Context) makeSymbolConst(sym *simstate.SymbolExpr) (C.Z3_ast, error) {
	t, err := ctx.makeBVSort(sym.Width)
	if err != nil {
		return nil, err
	}

	cname := C.CString(sym.Name)
	defer C.free(unsafe.Pointer(cname))
	nameSymbol := C.Z3_mk_string_symbol(ctx.raw, cname)

	return C.Z3_mk_const(ctx.raw, nameSymbol, t), ctx.err("Z3_mk_const")
}

// eval evaluates symbols into their little-endian byte values.
func (ctx *Context) eval(model C.Z3_model, symbols []*simstate.SymbolExpr) ([][]byte, error) {
	values := make([][]byte, 0, len(symbols))
	for _, sym := range symbols {
		value, err := ctx.evalSymbol(model, sym)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// evalSymbol evaluates a single symbol one byte at a time.
func (ctx *Context) evalSymbol(model C.Z3_model, sym *simstate.SymbolExpr) ([]byte, error) {
	z3Sym, err := ctx.makeSymbolConst(sym)
	if err != nil {
		return nil, err
	}

	value := make([]byte, 0, (sym.Width+7)/8)
	for lo := uint(0); lo < sym.Width; lo += 8 {
		hi := lo + 7
		if hi >= sym.Width {
			hi = sym.Width - 1
		}

		// Generate an expression to select a single byte from the symbol.
		z3Byte := C.Z3_mk_extract(ctx.raw, C.uint(hi), C.uint(lo), z3Sym)
		if err := ctx.err("Z3_mk_extract"); err != nil {
			return nil, err
		}

		// Evaluate the expression against the Z3 model.
		var z3Expr C.Z3_ast
		C.Z3_model_eval(ctx.raw, model, z3Byte, C.bool(true), &z3Expr)
		if err := ctx.err("Z3_model_eval"); err != nil {
			return nil, err
		}

		// Extract the byte from the evaluation.
		var u C.uint64_t
		C.Z3_get_numeral_uint64(ctx.raw, z3Expr, &u)
		if err := ctx.err("Z3_get_numeral_uint64"); err != nil {
			return nil, err
		}
		value = append(value, byte(u))
	}
	return value, nil
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Possible error codes.
const (
	ErrorCodeOK = iota
	ErrorCodeSortError
	ErrorCodeIOB
	ErrorCodeInvalidArg
	ErrorCodeParserError
	ErrorCodeNoParser
	ErrorCodeInvalidPattern
	ErrorCodeMemoutFail
	ErrorCodeFileAccessError
	ErrorCodeInternalFatal
	ErrorCodeInvalidUsage
	ErrorCodeDecRefError
	ErrorCodeException
)

// Stats holds query statistics for a solver.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
