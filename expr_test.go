package simstate_test

import (
	"testing"

	"github.com/benbjohnson/simstate"
	"github.com/google/go-cmp/cmp"
)

func TestExprWidth(t *testing.T) {
	x := simstate.NewSymbolExpr("x", 8)
	for _, tt := range []struct {
		name string
		expr simstate.Expr
		want uint
	}{
		{name: "ConstantExpr", expr: simstate.NewConstantExpr(0, 3), want: 3},
		{name: "SymbolExpr", expr: simstate.NewSymbolExpr("s", 128), want: 128},
		{name: "ConcatExpr", expr: &simstate.ConcatExpr{MSB: x, LSB: simstate.NewConstantExpr16(0)}, want: 24},
		{name: "ExtractExpr", expr: &simstate.ExtractExpr{Expr: x, Offset: 2, Width: 4}, want: 4},
		{name: "NotExpr", expr: &simstate.NotExpr{Expr: x}, want: 8},
		{name: "CastExpr", expr: &simstate.CastExpr{Src: x, Width: 32}, want: 32},
		{name: "IteExpr", expr: &simstate.IteExpr{Cond: simstate.NewSymbolExpr("c", 1), Then: x, Else: x}, want: 8},
		{name: "BinaryExpr/Bool", expr: &simstate.BinaryExpr{Op: simstate.ULT, LHS: x, RHS: x}, want: 1},
		{name: "BinaryExpr/NonBool", expr: &simstate.BinaryExpr{Op: simstate.ADD, LHS: x, RHS: x}, want: 8},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if w := simstate.ExprWidth(tt.expr); w != tt.want {
				t.Fatalf("width=%d, want %d", w, tt.want)
			}
		})
	}
}

func TestBinaryOp_String(t *testing.T) {
	t.Run("Known", func(t *testing.T) {
		if s := simstate.ADD.String(); s != "add" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Unknown", func(t *testing.T) {
		if s := simstate.BinaryOp(100).String(); s != "BinaryOp<100>" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
}

func TestBinaryOp_IsArithmetic(t *testing.T) {
	if !simstate.ASHR.IsArithmetic() {
		t.Fatal("expected arithmetic")
	} else if simstate.EQ.IsArithmetic() {
		t.Fatal("expected not arithmetic")
	}
}

func TestBinaryOp_IsCompare(t *testing.T) {
	if !simstate.SGE.IsCompare() {
		t.Fatal("expected compare")
	} else if simstate.SHL.IsCompare() {
		t.Fatal("expected not compare")
	}
}

func TestNewBinaryExpr(t *testing.T) {
	x, y := simstate.NewSymbolExpr("x", 8), simstate.NewSymbolExpr("y", 8)
	b := simstate.NewSymbolExpr("b", 1)

	for _, tt := range []struct {
		name string
		got  simstate.Expr
		want simstate.Expr
	}{
		{"ADD/Constant", simstate.NewBinaryExpr(simstate.ADD, c8(6), c8(4)), c8(10)},
		{"ADD/Overflow", simstate.NewBinaryExpr(simstate.ADD, c8(0xFF), c8(2)), c8(1)},
		{"ADD/NonStandardWidth", simstate.NewBinaryExpr(simstate.ADD, simstate.NewConstantExpr(7, 3), simstate.NewConstantExpr(1, 3)), simstate.NewConstantExpr(0, 3)},
		{"ADD/Zero", simstate.NewBinaryExpr(simstate.ADD, c8(0), x), x},
		{"ADD/ConstantRHS", simstate.NewBinaryExpr(simstate.ADD, x, c8(2)), &simstate.BinaryExpr{Op: simstate.ADD, LHS: c8(2), RHS: x}},
		{"ADD/Associative", simstate.NewBinaryExpr(simstate.ADD, simstate.NewBinaryExpr(simstate.ADD, c8(1), x), c8(2)), &simstate.BinaryExpr{Op: simstate.ADD, LHS: c8(3), RHS: x}},
		{"ADD/Bool", simstate.NewBinaryExpr(simstate.ADD, b, simstate.NewBoolConstantExpr(true)), &simstate.BinaryExpr{Op: simstate.EQ, LHS: simstate.NewBoolConstantExpr(false), RHS: b}},
		{"SUB/Self", simstate.NewBinaryExpr(simstate.SUB, x, x), c8(0)},
		{"SUB/ConstantRHS", simstate.NewBinaryExpr(simstate.SUB, x, c8(1)), &simstate.BinaryExpr{Op: simstate.ADD, LHS: c8(0xFF), RHS: x}},
		{"MUL/One", simstate.NewBinaryExpr(simstate.MUL, x, c8(1)), x},
		{"MUL/Zero", simstate.NewBinaryExpr(simstate.MUL, x, c8(0)), c8(0)},
		{"UDIV/Zero", simstate.NewBinaryExpr(simstate.UDIV, c8(5), c8(0)), c8(0xFF)},
		{"SDIV/Zero", simstate.NewBinaryExpr(simstate.SDIV, c8(0xFB), c8(0)), c8(1)},
		{"SDIV/Negative", simstate.NewBinaryExpr(simstate.SDIV, c8(0xFA), c8(2)), c8(0xFD)},
		{"UREM/Zero", simstate.NewBinaryExpr(simstate.UREM, c8(5), c8(0)), c8(5)},
		{"AND/AllOnes", simstate.NewBinaryExpr(simstate.AND, x, c8(0xFF)), x},
		{"AND/Zero", simstate.NewBinaryExpr(simstate.AND, c8(0), x), c8(0)},
		{"OR/AllOnes", simstate.NewBinaryExpr(simstate.OR, x, c8(0xFF)), c8(0xFF)},
		{"XOR/Self", simstate.NewBinaryExpr(simstate.XOR, x, x), c8(0)},
		{"XOR/BoolOne", simstate.NewBinaryExpr(simstate.XOR, b, simstate.NewBoolConstantExpr(true)), &simstate.BinaryExpr{Op: simstate.EQ, LHS: simstate.NewBoolConstantExpr(false), RHS: b}},
		{"XOR/BoolConstant", simstate.NewBinaryExpr(simstate.XOR, simstate.NewBoolConstantExpr(true), simstate.NewBoolConstantExpr(true)), simstate.NewBoolConstantExpr(false)},
		{"SHL/Overflow", simstate.NewBinaryExpr(simstate.SHL, c8(1), c8(9)), c8(0)},
		{"LSHR/Zero", simstate.NewBinaryExpr(simstate.LSHR, x, c8(0)), x},
		{"ASHR/Negative", simstate.NewBinaryExpr(simstate.ASHR, c8(0x80), c8(1)), c8(0xC0)},
		{"EQ/Self", simstate.NewBinaryExpr(simstate.EQ, x, x), simstate.NewBoolConstantExpr(true)},
		{"EQ/Add", simstate.NewBinaryExpr(simstate.EQ, c8(3), simstate.NewBinaryExpr(simstate.ADD, c8(1), x)), &simstate.BinaryExpr{Op: simstate.EQ, LHS: c8(2), RHS: x}},
		{"EQ/ZExt", simstate.NewBinaryExpr(simstate.EQ, simstate.NewConstantExpr16(5), simstate.NewCastExpr(x, 16, false)), &simstate.BinaryExpr{Op: simstate.EQ, LHS: c8(5), RHS: x}},
		{"EQ/ZExtOutOfRange", simstate.NewBinaryExpr(simstate.EQ, simstate.NewConstantExpr16(0x100), simstate.NewCastExpr(x, 16, false)), simstate.NewBoolConstantExpr(false)},
		{"EQ/True", simstate.NewBinaryExpr(simstate.EQ, simstate.NewBoolConstantExpr(true), b), b},
		{"NE", simstate.NewBinaryExpr(simstate.NE, x, y), &simstate.BinaryExpr{
			Op:  simstate.EQ,
			LHS: simstate.NewBoolConstantExpr(false),
			RHS: &simstate.BinaryExpr{Op: simstate.EQ, LHS: x, RHS: y},
		}},
		{"NE/Double", simstate.NewBinaryExpr(simstate.EQ, simstate.NewBoolConstantExpr(false), simstate.NewBinaryExpr(simstate.NE, x, y)), &simstate.BinaryExpr{Op: simstate.EQ, LHS: x, RHS: y}},
		{"UGT", simstate.NewBinaryExpr(simstate.UGT, x, y), &simstate.BinaryExpr{Op: simstate.ULT, LHS: y, RHS: x}},
		{"UGE", simstate.NewBinaryExpr(simstate.UGE, x, y), &simstate.BinaryExpr{Op: simstate.ULE, LHS: y, RHS: x}},
		{"SGT/Constant", simstate.NewBinaryExpr(simstate.SGT, c8(1), c8(0xFF)), simstate.NewBoolConstantExpr(true)},
		{"ULT/Self", simstate.NewBinaryExpr(simstate.ULT, x, x), simstate.NewBoolConstantExpr(false)},
		{"ULE/Self", simstate.NewBinaryExpr(simstate.ULE, x, x), simstate.NewBoolConstantExpr(true)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.got, tt.want); diff != "" {
				t.Fatal(diff)
			}
		})
	}

	t.Run("ErrWidthMismatch", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		simstate.NewBinaryExpr(simstate.ADD, x, simstate.NewConstantExpr16(1))
	})
}

func TestNewIteExpr(t *testing.T) {
	x, y := simstate.NewSymbolExpr("x", 8), simstate.NewSymbolExpr("y", 8)
	c, b := simstate.NewSymbolExpr("c", 1), simstate.NewSymbolExpr("b", 1)

	t.Run("ConstantCond", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewIteExpr(simstate.NewBoolConstantExpr(false), x, y), simstate.Expr(y)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("SameBranches", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewIteExpr(c, x, simstate.NewSymbolExpr("x", 8)), simstate.Expr(x)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("BoolThenTrue", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewIteExpr(c, simstate.NewBoolConstantExpr(true), b), simstate.Expr(&simstate.BinaryExpr{Op: simstate.OR, LHS: c, RHS: b})); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("NegatedCond", func(t *testing.T) {
		got := simstate.NewIteExpr(simstate.NewBinaryExpr(simstate.NE, x, y), x, y)
		want := &simstate.IteExpr{Cond: &simstate.BinaryExpr{Op: simstate.EQ, LHS: x, RHS: y}, Then: y, Else: x}
		if diff := cmp.Diff(got, simstate.Expr(want)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("EqPushdown", func(t *testing.T) {
		ite := simstate.NewIteExpr(c, c8(1), c8(2))
		if diff := cmp.Diff(simstate.NewBinaryExpr(simstate.EQ, ite, c8(1)), simstate.Expr(c)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestNewConcatExpr(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewConcatExpr(c8(0x12), c8(0x34)), simstate.Expr(simstate.NewConstantExpr16(0x1234))); diff != "" {
			t.Fatal(diff)
		}
	})

	// Adjacent extracts of the same expression fuse back into the source.
	t.Run("FuseExtracts", func(t *testing.T) {
		x := simstate.NewSymbolExpr("x", 16)
		got := simstate.NewConcatExpr(simstate.NewExtractExpr(x, 8, 8), simstate.NewExtractExpr(x, 0, 8))
		if diff := cmp.Diff(got, simstate.Expr(x)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Wide", func(t *testing.T) {
		s := simstate.NewSymbolExpr("s", 128)
		var got simstate.Expr
		for i := uint(0); i < 16; i++ {
			b := simstate.NewExtractExpr(s, i*8, 8)
			if got == nil {
				got = b
			} else {
				got = simstate.NewConcatExpr(b, got)
			}
		}
		if diff := cmp.Diff(got, simstate.Expr(s)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestNewExtractExpr(t *testing.T) {
	x, y := simstate.NewSymbolExpr("x", 8), simstate.NewSymbolExpr("y", 8)

	t.Run("Constant", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewExtractExpr(simstate.NewConstantExpr16(0x1234), 4, 8), simstate.Expr(c8(0x23))); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("ConcatMSB", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewExtractExpr(simstate.NewConcatExpr(x, y), 8, 8), simstate.Expr(x)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("ConcatLSB", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewExtractExpr(simstate.NewConcatExpr(x, y), 0, 8), simstate.Expr(y)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Ite", func(t *testing.T) {
		c := simstate.NewSymbolExpr("c", 1)
		got := simstate.NewExtractExpr(simstate.NewIteExpr(c, simstate.NewConstantExpr16(0x1234), simstate.NewConstantExpr16(0x5678)), 8, 8)
		want := &simstate.IteExpr{Cond: c, Then: c8(0x12), Else: c8(0x56)}
		if diff := cmp.Diff(got, simstate.Expr(want)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("ErrOutOfBounds", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		simstate.NewExtractExpr(x, 4, 8)
	})
}

func TestNewNotExpr(t *testing.T) {
	x, b := simstate.NewSymbolExpr("x", 8), simstate.NewSymbolExpr("b", 1)

	t.Run("Constant", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewNotExpr(c8(0x0F)), simstate.Expr(c8(0xF0))); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Double", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewNotExpr(simstate.NewNotExpr(x)), simstate.Expr(x)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Bool", func(t *testing.T) {
		want := &simstate.BinaryExpr{Op: simstate.EQ, LHS: simstate.NewBoolConstantExpr(false), RHS: b}
		if diff := cmp.Diff(simstate.NewNotExpr(b), simstate.Expr(want)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestNewCastExpr(t *testing.T) {
	x := simstate.NewSymbolExpr("x", 16)

	t.Run("SExt", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewCastExpr(c8(0x80), 16, true), simstate.Expr(simstate.NewConstantExpr16(0xFF80))); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("ZExt", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewCastExpr(c8(0x80), 16, false), simstate.Expr(simstate.NewConstantExpr16(0x80))); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Truncate", func(t *testing.T) {
		want := &simstate.ExtractExpr{Expr: x, Offset: 0, Width: 8}
		if diff := cmp.Diff(simstate.NewCastExpr(x, 8, false), simstate.Expr(want)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Nop", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewCastExpr(x, 16, true), simstate.Expr(x)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestNewBytesExpr(t *testing.T) {
	t.Run("Narrow", func(t *testing.T) {
		if diff := cmp.Diff(simstate.NewBytesExpr([]byte{1, 2}), simstate.Expr(simstate.NewConstantExpr16(0x0102))); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Wide", func(t *testing.T) {
		expr := simstate.NewBytesExpr([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
		if w := simstate.ExprWidth(expr); w != 72 {
			t.Fatalf("unexpected width: %d", w)
		} else if !simstate.IsConcreteExpr(expr) {
			t.Fatal("expected concrete expression")
		} else if simstate.IsConstantExpr(expr) {
			t.Fatal("expected concatenation")
		}
	})
}

func TestConstantExpr_Int64(t *testing.T) {
	if v := c8(0xFF).Int64(); v != -1 {
		t.Fatalf("unexpected value: %d", v)
	} else if v := simstate.NewConstantExpr(0b011, 3).Int64(); v != 3 {
		t.Fatalf("unexpected value: %d", v)
	}
}

func TestCompareExpr(t *testing.T) {
	x := simstate.NewSymbolExpr("x", 8)
	if v := simstate.CompareExpr(c8(1), c8(2)); v != -1 {
		t.Fatalf("unexpected result: %d", v)
	} else if v := simstate.CompareExpr(x, c8(2)); v != 1 {
		t.Fatalf("unexpected result: %d", v)
	} else if v := simstate.CompareExpr(x, simstate.NewSymbolExpr("x", 8)); v != 0 {
		t.Fatalf("unexpected result: %d", v)
	}
}

func TestFindSymbols(t *testing.T) {
	a, b := simstate.NewSymbolExpr("a", 8), simstate.NewSymbolExpr("b", 8)
	got := simstate.FindSymbols(
		simstate.NewBinaryExpr(simstate.ADD, b, a),
		simstate.NewBinaryExpr(simstate.EQ, a, c8(1)),
	)
	if diff := cmp.Diff(got, []*simstate.SymbolExpr{a, b}); diff != "" {
		t.Fatal(diff)
	}
}

func TestExprEvaluator_Evaluate(t *testing.T) {
	x := simstate.NewSymbolExpr("x", 16)
	ee := simstate.NewExprEvaluator([]*simstate.SymbolExpr{x}, [][]byte{{0x34, 0x12}})

	for _, tt := range []struct {
		name string
		expr simstate.Expr
		want uint64
	}{
		{name: "Symbol", expr: x, want: 0x1234},
		{name: "Add", expr: simstate.NewBinaryExpr(simstate.ADD, x, simstate.NewConstantExpr16(1)), want: 0x1235},
		{name: "Extract", expr: simstate.NewExtractExpr(x, 8, 8), want: 0x12},
		{name: "Ite", expr: simstate.NewIteExpr(simstate.NewEqConstExpr(x, 0x1234), c8(1), c8(2)), want: 1},
		{name: "Cast", expr: simstate.NewCastExpr(simstate.NewExtractExpr(x, 4, 8), 32, true), want: 0x23},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if c, err := ee.Evaluate(tt.expr); err != nil {
				t.Fatal(err)
			} else if c.Value != tt.want {
				t.Fatalf("value=%#x, want %#x", c.Value, tt.want)
			}
		})
	}

	t.Run("ErrUnboundSymbol", func(t *testing.T) {
		if _, err := ee.Evaluate(simstate.NewSymbolExpr("y", 8)); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("ErrWide", func(t *testing.T) {
		if _, err := ee.Evaluate(simstate.NewConcatExpr(x, simstate.NewSymbolExpr("z", 64))); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestExprEvaluator_EvaluateBytes(t *testing.T) {
	s, u := simstate.NewSymbolExpr("s", 128), simstate.NewSymbolExpr("u", 128)
	value := make([]byte, 16)
	for i := range value {
		value[i] = byte(i)
	}
	ee := simstate.NewExprEvaluator([]*simstate.SymbolExpr{s, u}, [][]byte{value, value})

	got, err := ee.EvaluateBytes(s)
	if err != nil {
		t.Fatal(err)
	} else if diff := cmp.Diff(got, []byte{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0}); diff != "" {
		t.Fatal(diff)
	}

	// Wide equality is decided byte by byte.
	c, err := ee.Evaluate(simstate.NewBinaryExpr(simstate.EQ, s, u))
	if err != nil {
		t.Fatal(err)
	} else if !c.IsTrue() {
		t.Fatal("expected true")
	}
}

func c8(v uint64) *simstate.ConstantExpr { return simstate.NewConstantExpr8(v) }
