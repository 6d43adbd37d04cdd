// Package ccall implements the x86 condition-code semantics used when
// lifting arithmetic and logic instructions. Every action computes the
// flags produced by one operation and packs them into a single expression.
// Actions are pure: concrete operands always yield concrete flags.
package ccall

import (
	"fmt"

	"github.com/benbjohnson/simstate"
)

// Bit positions of each flag within a packed flags expression. The most
// significant bit is CF and the least significant is OF.
const (
	FlagOF = 0
	FlagSF = 1
	FlagZF = 2
	FlagAF = 3
	FlagPF = 4
	FlagCF = 5
)

// FlagsWidth is the bit width of a packed flags expression.
const FlagsWidth = 6

// Action computes packed flags for an operation of the given width on left
// and right. Prior holds the packed flags before the operation and may be
// nil, in which case all prior flags are clear. Operands wider than width
// are truncated.
type Action func(width uint, left, right, prior simstate.Expr) simstate.Expr

// flags holds one boolean expression per flag.
type flags struct {
	cf, pf, af, zf, sf, of simstate.Expr
}

// pack concatenates the flags into a packed flags expression.
func (f flags) pack() simstate.Expr {
	return simstate.NewConcatExpr(f.cf,
		simstate.NewConcatExpr(f.pf,
			simstate.NewConcatExpr(f.af,
				simstate.NewConcatExpr(f.zf,
					simstate.NewConcatExpr(f.sf, f.of)))))
}

// unpack splits a packed flags expression into its flags.
func unpack(packed simstate.Expr) flags {
	return flags{
		cf: Flag(packed, FlagCF),
		pf: Flag(packed, FlagPF),
		af: Flag(packed, FlagAF),
		zf: Flag(packed, FlagZF),
		sf: Flag(packed, FlagSF),
		of: Flag(packed, FlagOF),
	}
}

// Flag returns the boolean value of one flag of a packed flags expression.
func Flag(packed simstate.Expr, flag uint) simstate.Expr {
	assert(flag < FlagsWidth, "invalid flag: %d", flag)
	return simstate.NewExtractExpr(packed, flag, simstate.WidthBool)
}

// normalize returns the operands and prior flags at their working widths.
func normalize(width uint, left, right, prior simstate.Expr) (l, r simstate.Expr, p flags) {
	assert(width >= simstate.Width8 && width <= simstate.Width64, "invalid action width: %d", width)
	l = simstate.NewCastExpr(left, width, false)
	r = simstate.NewCastExpr(right, width, false)
	if prior == nil {
		prior = simstate.NewConstantExpr(0, FlagsWidth)
	}
	return l, r, unpack(simstate.NewCastExpr(prior, FlagsWidth, false))
}

// result returns the parity, zero and sign flags of res along with the
// auxiliary carry of an operation on l and r.
func result(res, l, r simstate.Expr) flags {
	return flags{
		pf: parity(res),
		af: bit(xor(xor(res, l), r), 4),
		zf: simstate.NewIsZeroExpr(res),
		sf: msb(res),
	}
}

// parity returns true if the low byte of res has an even number of set bits.
func parity(res simstate.Expr) simstate.Expr {
	b := simstate.NewExtractExpr(res, 0, simstate.Width8)
	p := bit(b, 0)
	for i := uint(1); i < simstate.Width8; i++ {
		p = simstate.NewBinaryExpr(simstate.XOR, p, bit(b, i))
	}
	return simstate.NewNotExpr(p)
}

func bit(expr simstate.Expr, i uint) simstate.Expr {
	return simstate.NewExtractExpr(expr, i, simstate.WidthBool)
}

func msb(expr simstate.Expr) simstate.Expr {
	return bit(expr, simstate.ExprWidth(expr)-1)
}

func constant(value uint64, width uint) simstate.Expr {
	return simstate.NewConstantExpr(value, width)
}

func boolean(value bool) simstate.Expr {
	return simstate.NewBoolConstantExpr(value)
}

func add(a, b simstate.Expr) simstate.Expr { return simstate.NewBinaryExpr(simstate.ADD, a, b) }
func sub(a, b simstate.Expr) simstate.Expr { return simstate.NewBinaryExpr(simstate.SUB, a, b) }
func and(a, b simstate.Expr) simstate.Expr { return simstate.NewBinaryExpr(simstate.AND, a, b) }
func or(a, b simstate.Expr) simstate.Expr  { return simstate.NewBinaryExpr(simstate.OR, a, b) }
func xor(a, b simstate.Expr) simstate.Expr { return simstate.NewBinaryExpr(simstate.XOR, a, b) }
func eq(a, b simstate.Expr) simstate.Expr  { return simstate.NewBinaryExpr(simstate.EQ, a, b) }
func ne(a, b simstate.Expr) simstate.Expr  { return simstate.NewBinaryExpr(simstate.NE, a, b) }
func ult(a, b simstate.Expr) simstate.Expr { return simstate.NewBinaryExpr(simstate.ULT, a, b) }
func ule(a, b simstate.Expr) simstate.Expr { return simstate.NewBinaryExpr(simstate.ULE, a, b) }

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
