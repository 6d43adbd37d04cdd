package procedures

import (
	"github.com/benbjohnson/simstate"
)

// Memcmp models int memcmp(const void *s1, const void *s2, size_t n).
var Memcmp = &Procedure{
	Name:    "memcmp",
	NumArgs: 3,
	Run: func(state *simstate.State, args []simstate.Expr) (*Result, error) {
		a, b, n := args[0], args[1], args[2]
		width := state.Arch().Bits

		limit, err := sizeBound(state, n)
		if err != nil {
			return nil, err
		}

		var as, bs []simstate.Expr
		for i := uint64(0); i < limit; i++ {
			ai, err := loadByte(state, a, i)
			if err != nil {
				return nil, err
			}
			bi, err := loadByte(state, b, i)
			if err != nil {
				return nil, err
			}
			as, bs = append(as, ai), append(bs, bi)
		}

		nw := simstate.ExprWidth(n)
		var result simstate.Expr = constant(0, width)
		for i := len(as) - 1; i >= 0; i-- {
			result = compareBytes(as[i], bs[i], result, width)
			result = simstate.NewIteExpr(ule(n, constant(uint64(i), nw)), constant(0, width), result)
		}
		return &Result{RetExpr: result}, nil
	},
}

// Memcpy models void *memcpy(void *dst, const void *src, size_t n). A
// symbolic n copies up to its largest feasible value, capped at
// MaxBufferSize.
var Memcpy = &Procedure{
	Name:    "memcpy",
	NumArgs: 3,
	Run: func(state *simstate.State, args []simstate.Expr) (*Result, error) {
		dst, src, n := args[0], args[1], args[2]

		limit, err := sizeBound(state, n)
		if err != nil {
			return nil, err
		}

		// Read the whole source first so overlapping buffers copy the
		// original bytes.
		bytes := make([]simstate.Expr, limit)
		for i := range bytes {
			b, err := loadByte(state, src, uint64(i))
			if err != nil {
				return nil, err
			}
			bytes[i] = b
		}

		nw := simstate.ExprWidth(n)
		for i, b := range bytes {
			if !simstate.IsConstantExpr(n) {
				prev, err := loadByte(state, dst, uint64(i))
				if err != nil {
					return nil, err
				}
				b = simstate.NewIteExpr(ult(constant(uint64(i), nw), n), b, prev)
			}
			if err := storeByte(state, dst, uint64(i), b); err != nil {
				return nil, err
			}
		}
		return &Result{RetExpr: dst}, nil
	},
}
