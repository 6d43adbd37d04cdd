package procedures

import (
	"github.com/benbjohnson/simstate"
)

// Strlen models size_t strlen(const char *s).
var Strlen = &Procedure{
	Name:    "strlen",
	NumArgs: 1,
	Run: func(state *simstate.State, args []simstate.Expr) (*Result, error) {
		scan, err := scanString(state, args[0])
		if err != nil {
			return nil, err
		}
		return &Result{RetExpr: scan.length, BoundExceeded: scan.exceeded}, nil
	},
}

// Strcmp models int strcmp(const char *s1, const char *s2).
var Strcmp = &Procedure{
	Name:    "strcmp",
	NumArgs: 2,
	Run: func(state *simstate.State, args []simstate.Expr) (*Result, error) {
		return compareStrings(state, args[0], args[1], nil)
	},
}

// Strncmp models int strncmp(const char *s1, const char *s2, size_t n).
var Strncmp = &Procedure{
	Name:    "strncmp",
	NumArgs: 3,
	Run: func(state *simstate.State, args []simstate.Expr) (*Result, error) {
		return compareStrings(state, args[0], args[1], args[2])
	},
}

// Strcpy models char *strcpy(char *dst, const char *src).
var Strcpy = &Procedure{
	Name:    "strcpy",
	NumArgs: 2,
	Run: func(state *simstate.State, args []simstate.Expr) (*Result, error) {
		dst, src := args[0], args[1]

		scan, err := scanString(state, src)
		if err != nil {
			return nil, err
		}

		// Copy through the terminator. Bytes past a symbolic length keep
		// their previous contents.
		for i := uint64(0); i <= scan.n; i++ {
			b, err := loadByte(state, src, i)
			if err != nil {
				return nil, err
			}
			if !simstate.IsConstantExpr(scan.length) {
				prev, err := loadByte(state, dst, i)
				if err != nil {
					return nil, err
				}
				b = simstate.NewIteExpr(ule(constant(i, simstate.ExprWidth(scan.length)), scan.length), b, prev)
			}
			if err := storeByte(state, dst, i, b); err != nil {
				return nil, err
			}
		}
		return &Result{RetExpr: dst, BoundExceeded: scan.exceeded}, nil
	},
}

// Strncpy models char *strncpy(char *dst, const char *src, size_t n).
// The destination is padded with zeros up to n bytes.
var Strncpy = &Procedure{
	Name:    "strncpy",
	NumArgs: 3,
	Run: func(state *simstate.State, args []simstate.Expr) (*Result, error) {
		dst, src, n := args[0], args[1], args[2]

		limit, err := sizeBound(state, n)
		if err != nil {
			return nil, err
		}
		scan, err := scanString(state, src)
		if err != nil {
			return nil, err
		}

		lw, nw := simstate.ExprWidth(scan.length), simstate.ExprWidth(n)
		for i := uint64(0); i < limit; i++ {
			var b simstate.Expr = constant(0, simstate.Width8)
			if i <= scan.n {
				srcByte, err := loadByte(state, src, i)
				if err != nil {
					return nil, err
				}
				b = simstate.NewIteExpr(ule(constant(i, lw), scan.length), srcByte, b)
			}

			prev, err := loadByte(state, dst, i)
			if err != nil {
				return nil, err
			}
			b = simstate.NewIteExpr(ult(constant(i, nw), n), b, prev)

			if err := storeByte(state, dst, i, b); err != nil {
				return nil, err
			}
		}
		return &Result{RetExpr: dst}, nil
	},
}

// stringScan is the result of scanning memory for a terminating zero byte.
type stringScan struct {
	length   simstate.Expr // length of the string, in bytes
	n        uint64        // largest possible length
	exceeded bool          // true if the scan stopped at the bound
}

// scanString computes the length of the string at addr. At most
// MaxStrlen bytes are inspected. A concrete zero byte ends the scan early;
// otherwise the length is capped at MaxStrlen.
func scanString(state *simstate.State, addr simstate.Expr) (stringScan, error) {
	bound := uint64(state.Options.MaxStrlen)
	width := state.Arch().Bits

	scan := stringScan{n: bound, exceeded: true}
	var bytes []simstate.Expr
	for i := uint64(0); i < bound; i++ {
		b, err := loadByte(state, addr, i)
		if err != nil {
			return stringScan{}, err
		} else if isConcreteZero(b) {
			scan.n, scan.exceeded = i, false
			break
		}
		bytes = append(bytes, b)
	}

	// Fold from the end so the first zero byte wins.
	scan.length = constant(scan.n, width)
	for i := len(bytes) - 1; i >= 0; i-- {
		if simstate.IsConstantExpr(bytes[i]) {
			continue
		}
		scan.length = simstate.NewIteExpr(simstate.NewIsZeroExpr(bytes[i]), constant(uint64(i), width), scan.length)
	}
	return scan, nil
}

// compareStrings compares the strings at a and b, stopping after n bytes if
// n is not nil. The result is -1, 0 or 1 at the architecture's width.
func compareStrings(state *simstate.State, a, b, n simstate.Expr) (*Result, error) {
	width := state.Arch().Bits

	// The terminator of a string of MaxStrlen bytes is still compared.
	limit, exceeded := uint64(state.Options.MaxStrlen)+1, true
	if c, ok := n.(*simstate.ConstantExpr); ok && c.Value < limit {
		limit, exceeded = c.Value, false
	}

	type pair struct{ a, b simstate.Expr }
	var pairs []pair
	for i := uint64(0); i < limit; i++ {
		ai, err := loadByte(state, a, i)
		if err != nil {
			return nil, err
		}
		bi, err := loadByte(state, b, i)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{a: ai, b: bi})

		// Nothing after a concrete terminator on either side is compared.
		if isConcreteZero(ai) || isConcreteZero(bi) {
			exceeded = false
			break
		}
	}

	var result simstate.Expr = constant(0, width)
	for i := len(pairs) - 1; i >= 0; i-- {
		p := pairs[i]
		result = compareBytes(p.a, p.b, simstate.NewIteExpr(simstate.NewIsZeroExpr(p.a), constant(0, width), result), width)
		if n != nil {
			result = simstate.NewIteExpr(ule(n, constant(uint64(i), simstate.ExprWidth(n))), constant(0, width), result)
		}
	}
	return &Result{RetExpr: result, BoundExceeded: exceeded}, nil
}

func ult(a, b simstate.Expr) simstate.Expr { return simstate.NewBinaryExpr(simstate.ULT, a, b) }
func ule(a, b simstate.Expr) simstate.Expr { return simstate.NewBinaryExpr(simstate.ULE, a, b) }
