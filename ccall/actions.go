package ccall

import (
	"github.com/benbjohnson/simstate"
)

// ActionADD computes the flags of left + right.
func ActionADD(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, _ := normalize(width, left, right, prior)
	res := add(l, r)

	f := result(res, l, r)
	f.cf = ult(res, l)
	f.of = msb(and(xor(xor(l, r), constant(^uint64(0), width)), xor(l, res)))
	return f.pack()
}

// ActionSUB computes the flags of left - right. CMP uses the same flags.
func ActionSUB(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, _ := normalize(width, left, right, prior)
	res := sub(l, r)

	f := result(res, l, r)
	f.cf = ult(l, r)
	f.of = msb(and(xor(l, r), xor(l, res)))
	return f.pack()
}

// ActionADC computes the flags of left + right + CF.
func ActionADC(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, p := normalize(width, left, right, prior)
	res := add(add(l, r), simstate.NewCastExpr(p.cf, width, false))

	f := result(res, l, r)
	f.cf = simstate.NewIteExpr(p.cf, ule(res, l), ult(res, l))
	f.of = msb(and(xor(xor(l, r), constant(^uint64(0), width)), xor(l, res)))
	return f.pack()
}

// ActionSBB computes the flags of left - (right + CF).
func ActionSBB(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, p := normalize(width, left, right, prior)
	res := sub(sub(l, r), simstate.NewCastExpr(p.cf, width, false))

	f := result(res, l, r)
	f.cf = simstate.NewIteExpr(p.cf, ule(l, r), ult(l, r))
	f.of = msb(and(xor(l, r), xor(l, res)))
	return f.pack()
}

// ActionLOGIC computes the flags of a logic operation whose result is
// left. Right is ignored. CF, AF and OF are cleared.
func ActionLOGIC(width uint, left, right, prior simstate.Expr) simstate.Expr {
	res, _, _ := normalize(width, left, left, prior)
	return flags{
		cf: boolean(false),
		pf: parity(res),
		af: boolean(false),
		zf: simstate.NewIsZeroExpr(res),
		sf: msb(res),
		of: boolean(false),
	}.pack()
}

// ActionAND computes the flags of left & right. TEST uses the same flags.
func ActionAND(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, _ := normalize(width, left, right, prior)
	return ActionLOGIC(width, and(l, r), nil, prior)
}

// ActionOR computes the flags of left | right.
func ActionOR(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, _ := normalize(width, left, right, prior)
	return ActionLOGIC(width, or(l, r), nil, prior)
}

// ActionXOR computes the flags of left ^ right.
func ActionXOR(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, _ := normalize(width, left, right, prior)
	return ActionLOGIC(width, xor(l, r), nil, prior)
}

// ActionINC computes the flags of left + 1. CF is preserved.
func ActionINC(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, _, p := normalize(width, left, left, prior)
	one := constant(1, width)
	res := add(l, one)

	f := result(res, l, one)
	f.cf = p.cf
	f.of = eq(res, constant(uint64(1)<<(width-1), width))
	return f.pack()
}

// ActionDEC computes the flags of left - 1. CF is preserved.
func ActionDEC(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, _, p := normalize(width, left, left, prior)
	one := constant(1, width)
	res := sub(l, one)

	f := result(res, l, one)
	f.cf = p.cf
	f.of = eq(res, constant(uint64(1)<<(width-1)-1, width))
	return f.pack()
}

// ActionNEG computes the flags of 0 - left.
func ActionNEG(width uint, left, right, prior simstate.Expr) simstate.Expr {
	return ActionSUB(width, constant(0, width), simstate.NewCastExpr(left, width, false), prior)
}

// shiftCount returns the masked shift count of right.
func shiftCount(width uint, right simstate.Expr) simstate.Expr {
	mask := uint64(0x1f)
	if width == simstate.Width64 {
		mask = 0x3f
	}
	return and(right, constant(mask, width))
}

// shifted returns computed unless count is zero, in which case the prior
// flags are returned unchanged.
func shifted(count, prior simstate.Expr, computed flags) simstate.Expr {
	return simstate.NewIteExpr(simstate.NewIsZeroExpr(count), prior, computed.pack())
}

// ActionSHL computes the flags of left << right.
func ActionSHL(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, p := normalize(width, left, right, prior)
	count := shiftCount(width, r)
	one := constant(1, width)
	res := simstate.NewBinaryExpr(simstate.SHL, l, count)

	f := result(res, l, r)
	f.af = boolean(false)
	f.cf = msb(simstate.NewBinaryExpr(simstate.SHL, l, sub(count, one)))
	f.of = xor(msb(res), f.cf)
	return shifted(count, p.pack(), f)
}

// ActionSHR computes the flags of left >> right, shifting in zeros.
func ActionSHR(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, p := normalize(width, left, right, prior)
	count := shiftCount(width, r)
	one := constant(1, width)
	res := simstate.NewBinaryExpr(simstate.LSHR, l, count)

	f := result(res, l, r)
	f.af = boolean(false)
	f.cf = bit(simstate.NewBinaryExpr(simstate.LSHR, l, sub(count, one)), 0)
	f.of = msb(l)
	return shifted(count, p.pack(), f)
}

// ActionSAR computes the flags of left >> right, shifting in the sign bit.
func ActionSAR(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, p := normalize(width, left, right, prior)
	count := shiftCount(width, r)
	one := constant(1, width)
	res := simstate.NewBinaryExpr(simstate.ASHR, l, count)

	f := result(res, l, r)
	f.af = boolean(false)
	f.cf = bit(simstate.NewBinaryExpr(simstate.ASHR, l, sub(count, one)), 0)
	f.of = boolean(false)
	return shifted(count, p.pack(), f)
}

// rotate returns left rotated by count bits, to the left if toLeft is set.
func rotate(width uint, l, count simstate.Expr, toLeft bool) simstate.Expr {
	w := constant(uint64(width), width)
	n := simstate.NewBinaryExpr(simstate.UREM, count, w)
	inv := sub(w, n)
	if toLeft {
		return or(simstate.NewBinaryExpr(simstate.SHL, l, n), simstate.NewBinaryExpr(simstate.LSHR, l, inv))
	}
	return or(simstate.NewBinaryExpr(simstate.LSHR, l, n), simstate.NewBinaryExpr(simstate.SHL, l, inv))
}

// ActionROL computes the flags of rotating left to the left. Only CF and
// OF are updated.
func ActionROL(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, p := normalize(width, left, right, prior)
	count := shiftCount(width, r)
	res := rotate(width, l, count, true)

	f := p
	f.cf = bit(res, 0)
	f.of = xor(msb(res), f.cf)
	return shifted(count, p.pack(), f)
}

// ActionROR computes the flags of rotating left to the right. Only CF and
// OF are updated.
func ActionROR(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, p := normalize(width, left, right, prior)
	count := shiftCount(width, r)
	res := rotate(width, l, count, false)

	f := p
	f.cf = msb(res)
	f.of = xor(msb(res), bit(res, width-2))
	return shifted(count, p.pack(), f)
}

// ActionUMUL computes the flags of an unsigned multiplication. CF and OF
// are set if the product does not fit in width bits.
func ActionUMUL(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, _ := normalize(width, left, right, prior)
	res := simstate.NewBinaryExpr(simstate.MUL, l, r)

	var overflow simstate.Expr
	if width <= simstate.Width32 {
		product := simstate.NewBinaryExpr(simstate.MUL,
			simstate.NewCastExpr(l, width*2, false),
			simstate.NewCastExpr(r, width*2, false),
		)
		overflow = ne(simstate.NewExtractExpr(product, width, width), constant(0, width))
	} else {
		zero := constant(0, width)
		overflow = and(ne(l, zero), ne(simstate.NewBinaryExpr(simstate.UDIV, res, l), r))
	}

	f := result(res, l, r)
	f.af = boolean(false)
	f.cf, f.of = overflow, overflow
	return f.pack()
}

// ActionSMUL computes the flags of a signed multiplication. CF and OF are
// set if the product does not fit in width bits.
func ActionSMUL(width uint, left, right, prior simstate.Expr) simstate.Expr {
	l, r, _ := normalize(width, left, right, prior)
	res := simstate.NewBinaryExpr(simstate.MUL, l, r)

	var overflow simstate.Expr
	if width <= simstate.Width32 {
		product := simstate.NewBinaryExpr(simstate.MUL,
			simstate.NewCastExpr(l, width*2, true),
			simstate.NewCastExpr(r, width*2, true),
		)
		overflow = ne(product, simstate.NewCastExpr(res, width*2, true))
	} else {
		zero, minusOne := constant(0, width), constant(^uint64(0), width)
		minInt := constant(uint64(1)<<(width-1), width)
		overflow = or(
			and(ne(l, zero), ne(simstate.NewBinaryExpr(simstate.SDIV, res, l), r)),
			and(eq(l, minusOne), eq(r, minInt)),
		)
	}

	f := result(res, l, r)
	f.af = boolean(false)
	f.cf, f.of = overflow, overflow
	return f.pack()
}

// ActionCOPY returns the flags held in the low bits of left.
func ActionCOPY(width uint, left, right, prior simstate.Expr) simstate.Expr {
	return simstate.NewCastExpr(left, FlagsWidth, false)
}
