package simstate

import (
	"fmt"
	"sync"
)

// Value wraps an expression and the constraints under which it is
// interpreted. Values are immutable: constraining a Value returns a new one.
type Value struct {
	solver      Solver
	expr        Expr
	constraints []Expr

	once    sync.Once
	symbols []*SymbolExpr
}

// NewValue returns a new Value for expr under the given constraints.
func NewValue(solver Solver, expr Expr, constraints ...Expr) *Value {
	return &Value{
		solver:      solver,
		expr:        expr,
		constraints: append([]Expr(nil), constraints...),
	}
}

// Expr returns the wrapped expression.
func (v *Value) Expr() Expr { return v.expr }

// Width returns the bit width of the wrapped expression.
func (v *Value) Width() uint { return ExprWidth(v.expr) }

// Constraints returns a copy of the constraints scoping the value.
func (v *Value) Constraints() []Expr {
	return append([]Expr(nil), v.constraints...)
}

// Constrain returns a new Value with additional constraints.
func (v *Value) Constrain(exprs ...Expr) *Value {
	constraints := make([]Expr, 0, len(v.constraints)+len(exprs))
	constraints = append(constraints, v.constraints...)
	constraints = append(constraints, exprs...)
	return &Value{solver: v.solver, expr: v.expr, constraints: constraints}
}

// String returns the string representation of the wrapped expression.
func (v *Value) String() string {
	return v.expr.String()
}

// IsSymbolic returns true if the expression is not a literal constant.
func (v *Value) IsSymbolic() bool {
	return !IsConcreteExpr(v.expr)
}

// Satisfiable returns true if the constraints have at least one solution.
func (v *Value) Satisfiable() (bool, error) {
	_, ok, err := v.solve()
	return ok, err
}

// IsUnique returns true if exactly one concrete value satisfies the constraints.
func (v *Value) IsUnique() (bool, error) {
	a, err := v.anyNBytes("is_unique", 2)
	if err != nil {
		return false, err
	}
	return len(a) == 1, nil
}

// Any returns one satisfying concrete value.
func (v *Value) Any() (uint64, error) {
	return v.any("any")
}

func (v *Value) any(op string) (uint64, error) {
	if v.Width() > Width64 {
		return 0, v.errorf(op, ErrInvalidWidth)
	}
	ee, ok, err := v.solve()
	if err != nil {
		return 0, v.errorf(op, err)
	} else if !ok {
		return 0, v.errorf(op, ErrUnsatisfiable)
	}
	c, err := ee.Evaluate(v.expr)
	if err != nil {
		return 0, v.errorf(op, err)
	}
	return c.Value, nil
}

// AnyBytes returns one satisfying concrete value as big-endian bytes.
// Expressions of any width are supported.
func (v *Value) AnyBytes() ([]byte, error) {
	ee, ok, err := v.solve()
	if err != nil {
		return nil, v.errorf("any_bytes", err)
	} else if !ok {
		return nil, v.errorf("any_bytes", ErrUnsatisfiable)
	}
	b, err := ee.EvaluateBytes(v.expr)
	if err != nil {
		return nil, v.errorf("any_bytes", err)
	}
	return b, nil
}

// Min returns the smallest satisfying value, interpreted as unsigned.
func (v *Value) Min() (uint64, error) {
	hi, err := v.any("min")
	if err != nil {
		return 0, err
	}

	w := v.Width()
	lo := uint64(0)
	for lo < hi {
		mid := lo + (hi-lo)/2
		ee, ok, err := v.solve(NewBinaryExpr(ULE, v.expr, NewConstantExpr(mid, w)))
		if err != nil {
			return 0, v.errorf("min", err)
		} else if !ok {
			lo = mid + 1
			continue
		}

		c, err := ee.Evaluate(v.expr)
		if err != nil {
			return 0, v.errorf("min", err)
		}
		hi = c.Value
	}
	return lo, nil
}

// Max returns the largest satisfying value, interpreted as unsigned.
func (v *Value) Max() (uint64, error) {
	lo, err := v.any("max")
	if err != nil {
		return 0, err
	}

	w := v.Width()
	hi := bitmask(w)
	for lo < hi {
		mid := lo + (hi-lo)/2 + 1
		ee, ok, err := v.solve(NewBinaryExpr(UGE, v.expr, NewConstantExpr(mid, w)))
		if err != nil {
			return 0, v.errorf("max", err)
		} else if !ok {
			hi = mid - 1
			continue
		}

		c, err := ee.Evaluate(v.expr)
		if err != nil {
			return 0, v.errorf("max", err)
		}
		lo = c.Value
	}
	return lo, nil
}

// AnyN returns up to n distinct satisfying values. Fewer are returned only
// if fewer exist. Requests above 2^width are capped at 2^width.
func (v *Value) AnyN(n int) ([]uint64, error) {
	return v.anyN("any_n", n)
}

func (v *Value) anyN(op string, n int) ([]uint64, error) {
	w := v.Width()
	if w > Width64 {
		return nil, v.errorf(op, ErrInvalidWidth)
	} else if n <= 0 {
		return nil, nil
	}
	n = v.capCount(n)

	results := make([]uint64, 0, n)
	var blocking []Expr
	for len(results) < n {
		ee, ok, err := v.solve(blocking...)
		if err != nil {
			return nil, v.errorf(op, err)
		} else if !ok {
			break
		}

		c, err := ee.Evaluate(v.expr)
		if err != nil {
			return nil, v.errorf(op, err)
		}
		results = append(results, c.Value)
		blocking = append(blocking, NewBinaryExpr(NE, v.expr, c))
	}

	if len(results) == 0 && n > 0 {
		return nil, v.errorf(op, ErrUnsatisfiable)
	}
	return results, nil
}

// AnyNBytes returns up to n distinct satisfying values as big-endian bytes.
func (v *Value) AnyNBytes(n int) ([][]byte, error) {
	return v.anyNBytes("any_n_bytes", n)
}

func (v *Value) anyNBytes(op string, n int) ([][]byte, error) {
	w := v.Width()
	if w <= Width64 {
		values, err := v.anyN(op, n)
		if err != nil {
			return nil, err
		}
		a := make([][]byte, len(values))
		for i, value := range values {
			a[i] = uint64Bytes(value, minBytes(w))
		}
		return a, nil
	} else if w%8 != 0 {
		return nil, v.errorf(op, ErrInvalidWidth)
	} else if n <= 0 {
		return nil, nil
	}

	var results [][]byte
	var blocking []Expr
	for len(results) < n {
		ee, ok, err := v.solve(blocking...)
		if err != nil {
			return nil, v.errorf(op, err)
		} else if !ok {
			break
		}

		b, err := ee.EvaluateBytes(v.expr)
		if err != nil {
			return nil, v.errorf(op, err)
		}
		results = append(results, b)
		blocking = append(blocking, NewBinaryExpr(NE, v.expr, NewBytesExpr(b)))
	}

	if len(results) == 0 && n > 0 {
		return nil, v.errorf(op, ErrUnsatisfiable)
	}
	return results, nil
}

// ExactlyN returns exactly n distinct satisfying values or an error if
// fewer than n exist.
func (v *Value) ExactlyN(n int) ([]uint64, error) {
	values, err := v.anyN("exactly_n", n)
	if err != nil {
		return nil, err
	} else if len(values) < n {
		return nil, v.errorf("exactly_n", fmt.Errorf("%w: found %d of %d", ErrTooFewSolutions, len(values), n))
	}
	return values, nil
}

// AnyStr returns one satisfying value as a NUL-terminated string. The
// string ends after its first zero byte.
func (v *Value) AnyStr() (string, error) {
	b, err := v.AnyBytes()
	if err != nil {
		return "", err
	}
	return cstring(b), nil
}

// AnyNStr returns up to n distinct satisfying values as NUL-terminated
// strings. Each sample excludes every value sharing its string, so fewer
// than n strings are returned only if fewer exist.
func (v *Value) AnyNStr(n int) ([]string, error) {
	w := v.Width()
	if w%8 != 0 {
		return nil, v.errorf("any_n_str", ErrInvalidWidth)
	} else if n <= 0 {
		return nil, nil
	}

	var strs []string
	var blocking []Expr
	for len(strs) < n {
		ee, ok, err := v.solve(blocking...)
		if err != nil {
			return nil, v.errorf("any_n_str", err)
		} else if !ok {
			break
		}

		b, err := ee.EvaluateBytes(v.expr)
		if err != nil {
			return nil, v.errorf("any_n_str", err)
		}
		s := cstring(b)
		strs = append(strs, s)
		blocking = append(blocking, v.notPrefix(s))
	}

	if len(strs) == 0 {
		return nil, v.errorf("any_n_str", ErrUnsatisfiable)
	}
	return strs, nil
}

// notPrefix returns a constraint excluding values whose leading bytes are s.
func (v *Value) notPrefix(s string) Expr {
	size := v.Width() / 8
	var cond Expr = NewBoolConstantExpr(true)
	for i := 0; i < len(s); i++ {
		b := NewExtractExpr(v.expr, (size-1-uint(i))*8, Width8)
		cond = NewBinaryExpr(AND, cond, NewEqConstExpr(b, uint64(s[i])))
	}
	return NewNotExpr(cond)
}

// solve queries the solver with the value's constraints plus extra and
// returns an evaluator bound to the resulting model.
func (v *Value) solve(extra ...Expr) (*ExprEvaluator, bool, error) {
	constraints := v.constraints
	if len(extra) > 0 {
		constraints = make([]Expr, 0, len(v.constraints)+len(extra))
		constraints = append(constraints, v.constraints...)
		constraints = append(constraints, extra...)
	}

	// Extra constraints only ever reference the wrapped expression.
	v.once.Do(func() {
		v.symbols = FindSymbols(append(v.Constraints(), v.expr)...)
	})

	ok, values, err := v.solver.Solve(constraints, v.symbols)
	if err != nil {
		return nil, false, err
	} else if !ok {
		return nil, false, nil
	}
	return NewExprEvaluator(v.symbols, values), true, nil
}

// capCount limits n to the number of distinct values of the expression's width.
func (v *Value) capCount(n int) int {
	if w := v.Width(); w < Width64-1 && uint64(n) > uint64(1)<<w {
		return int(uint64(1) << w)
	}
	return n
}

func (v *Value) errorf(op string, err error) error {
	return &ConcretizationError{Expr: v.expr, Op: op, Err: err}
}

// uint64Bytes returns the n low bytes of value in big-endian order.
func uint64Bytes(value uint64, n uint) []byte {
	b := make([]byte, n)
	for i := uint(0); i < n; i++ {
		b[n-1-i] = byte(value >> (8 * i))
	}
	return b
}

// cstring returns b up to and including its first zero byte.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i+1])
		}
	}
	return string(b)
}
