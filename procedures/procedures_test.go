package procedures_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/benbjohnson/simstate"
	"github.com/benbjohnson/simstate/procedures"
	"github.com/benbjohnson/simstate/z3"
	"github.com/google/go-cmp/cmp"
)

func TestLookup(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		p, ok := procedures.Lookup(procedures.LibC, "strlen")
		if !ok {
			t.Fatal("expected procedure")
		} else if p != procedures.Strlen {
			t.Fatalf("unexpected procedure: %s", p.Name)
		}
	})
	t.Run("UnknownSymbol", func(t *testing.T) {
		if _, ok := procedures.Lookup(procedures.LibC, "printf"); ok {
			t.Fatal("expected no procedure")
		}
	})
	t.Run("UnknownLibrary", func(t *testing.T) {
		if _, ok := procedures.Lookup("libm.so.6", "strlen"); ok {
			t.Fatal("expected no procedure")
		}
	})
}

func TestSymbols(t *testing.T) {
	if diff := cmp.Diff(procedures.Symbols(procedures.LibC), []string{
		"memcmp", "memcpy", "strcmp", "strcpy", "strlen", "strncmp", "strncpy",
	}); diff != "" {
		t.Fatal(diff)
	}
}

func TestProcedure_Inline(t *testing.T) {
	t.Run("ErrArgumentCount", func(t *testing.T) {
		state := NewState(t, simstate.AMD64)
		if _, err := procedures.Strcmp.Inline(state, addr(0x10)); !errors.Is(err, procedures.ErrArgumentCount) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	// Registers and memory outside the model's reach are untouched.
	t.Run("NoSideEffects", func(t *testing.T) {
		state := NewState(t, simstate.AMD64)
		MustStoreMem(t, state, 0x10, simstate.NewConstantExpr32(0x41414100))
		if _, err := procedures.Strlen.Inline(state, addr(0x10)); err != nil {
			t.Fatal(err)
		} else if n := state.Memory().Len(); n != 4 {
			t.Fatalf("unexpected cell count: %d", n)
		} else if n := len(state.Constraints()); n != 0 {
			t.Fatalf("unexpected constraint count: %d", n)
		}
	})
}

func TestProcedure_Call(t *testing.T) {
	t.Run("AMD64", func(t *testing.T) {
		state := NewState(t, simstate.AMD64)
		MustStoreMem(t, state, 0x10, simstate.NewConstantExpr32(0x41414100))
		MustStoreReg(t, state, "rdi", simstate.NewConstantExpr64(0x10))
		MustStoreReg(t, state, "rsp", simstate.NewConstantExpr64(0x1000))
		if err := state.StoreMem(addr(0x1000), simstate.NewConstantExpr64(0x400123), simstate.DefaultEndness); err != nil {
			t.Fatal(err)
		}

		if _, err := procedures.Strlen.Call(state); err != nil {
			t.Fatal(err)
		}
		if got := MustRegUint64(t, state, "rax"); got != 3 {
			t.Fatalf("rax=%d, want 3", got)
		} else if got := MustRegUint64(t, state, "rip"); got != 0x400123 {
			t.Fatalf("rip=%#x, want 0x400123", got)
		} else if got := MustRegUint64(t, state, "rsp"); got != 0x1008 {
			t.Fatalf("rsp=%#x, want 0x1008", got)
		}
	})

	t.Run("X86", func(t *testing.T) {
		state := NewState(t, simstate.X86)
		MustStoreMem(t, state, 0x10, simstate.NewConstantExpr32(0x41414100))
		MustStoreMem(t, state, 0x20, simstate.NewConstantExpr32(0x41414200))
		MustStoreReg(t, state, "esp", simstate.NewConstantExpr32(0x1000))
		for i, v := range []uint64{0x8048000, 0x10, 0x20} {
			if err := state.StoreMem(simstate.NewConstantExpr32(0x1000+uint64(i)*4), simstate.NewConstantExpr32(v), simstate.DefaultEndness); err != nil {
				t.Fatal(err)
			}
		}

		if _, err := procedures.Strcmp.Call(state); err != nil {
			t.Fatal(err)
		}
		if got := MustRegUint64(t, state, "eax"); got != 0xFFFFFFFF {
			t.Fatalf("eax=%#x, want -1", got)
		} else if got := MustRegUint64(t, state, "eip"); got != 0x8048000 {
			t.Fatalf("eip=%#x, want 0x8048000", got)
		} else if got := MustRegUint64(t, state, "esp"); got != 0x1004 {
			t.Fatalf("esp=%#x, want 0x1004", got)
		}
	})
}

// NewState returns a state backed by a real solver.
func NewState(tb testing.TB, arch *simstate.Arch) *simstate.State {
	tb.Helper()
	solver := z3.NewSolver()
	tb.Cleanup(func() {
		if err := solver.Close(); err != nil {
			tb.Error(err)
		}
	})
	return simstate.NewState(arch, solver, nil)
}

// addr returns a 64-bit address constant.
func addr(v uint64) simstate.Expr {
	return simstate.NewConstantExpr64(v)
}

// MustStoreMem writes expr at a big-endian address.
func MustStoreMem(tb testing.TB, state *simstate.State, a uint64, expr simstate.Expr) {
	tb.Helper()
	if err := state.StoreMem(simstate.NewConstantExpr(a, state.Arch().Bits), expr, simstate.BigEndian); err != nil {
		tb.Fatal(err)
	}
}

func MustStoreReg(tb testing.TB, state *simstate.State, name string, expr simstate.Expr) {
	tb.Helper()
	if err := state.StoreReg(name, expr); err != nil {
		tb.Fatal(err)
	}
}

// MustRegUint64 returns the unique value of a register.
func MustRegUint64(tb testing.TB, state *simstate.State, name string) uint64 {
	tb.Helper()
	value, err := state.RegValue(name)
	if err != nil {
		tb.Fatal(err)
	}
	return MustUnique(tb, value)
}

// MustUnique returns the only value of v or fails.
func MustUnique(tb testing.TB, v *simstate.Value) uint64 {
	tb.Helper()
	values, err := v.AnyN(2)
	if err != nil {
		tb.Fatal(err)
	} else if len(values) != 1 {
		tb.Fatalf("expected unique value: %v", values)
	}
	return values[0]
}

// MustIsUnique returns true if v has exactly one value.
func MustIsUnique(tb testing.TB, v *simstate.Value) bool {
	tb.Helper()
	ok, err := v.IsUnique()
	if err != nil {
		tb.Fatal(err)
	}
	return ok
}

// MustMemValue reads size big-endian bytes at a.
func MustMemValue(tb testing.TB, state *simstate.State, a uint64, size uint) *simstate.Value {
	tb.Helper()
	v, err := state.MemValue(simstate.NewConstantExpr(a, state.Arch().Bits), size, simstate.BigEndian)
	if err != nil {
		tb.Fatal(err)
	}
	return v
}

// MustAnyN returns up to n values of v in ascending order.
func MustAnyN(tb testing.TB, v *simstate.Value, n int) []uint64 {
	tb.Helper()
	values, err := v.AnyN(n)
	if err != nil {
		tb.Fatal(err)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}

// MustInline runs p inline and returns its result.
func MustInline(tb testing.TB, p *procedures.Procedure, state *simstate.State, args ...simstate.Expr) *procedures.Result {
	tb.Helper()
	result, err := p.Inline(state, args...)
	if err != nil {
		tb.Fatal(err)
	}
	return result
}

// MustAddConstraints constrains state or fails.
func MustAddConstraints(tb testing.TB, state *simstate.State, exprs ...simstate.Expr) {
	tb.Helper()
	if err := state.AddConstraints(exprs...); err != nil {
		tb.Fatal(err)
	}
}
