package simstate_test

import (
	"errors"
	"testing"

	"github.com/benbjohnson/simstate"
	"github.com/google/go-cmp/cmp"
)

func TestCachingSolver_Solve(t *testing.T) {
	x := simstate.NewSymbolExpr("x", 8)
	constraints := []simstate.Expr{simstate.NewEqConstExpr(x, 4)}
	symbols := []*simstate.SymbolExpr{x}

	t.Run("Hit", func(t *testing.T) {
		var inner CountingSolver
		inner.SolveFunc = func(constraints []simstate.Expr, symbols []*simstate.SymbolExpr) (bool, [][]byte, error) {
			return true, [][]byte{{4}}, nil
		}
		s := MustNewCachingSolver(t, &inner, 8)

		for i := 0; i < 3; i++ {
			ok, values, err := s.Solve(constraints, symbols)
			if err != nil {
				t.Fatal(err)
			} else if !ok {
				t.Fatal("expected satisfiable")
			} else if diff := cmp.Diff(values, [][]byte{{4}}); diff != "" {
				t.Fatal(diff)
			}
			values[0][0] = 0xFF // cached models must not alias results
		}

		if inner.N != 1 {
			t.Fatalf("unexpected solver calls: %d", inner.N)
		} else if hits, misses := s.Stats(); hits != 2 || misses != 1 {
			t.Fatalf("unexpected stats: hits=%d misses=%d", hits, misses)
		}
	})

	t.Run("DistinctQueries", func(t *testing.T) {
		var inner CountingSolver
		s := MustNewCachingSolver(t, &inner, 8)
		if _, _, err := s.Solve(constraints, symbols); err != nil {
			t.Fatal(err)
		} else if _, _, err := s.Solve(constraints, nil); err != nil {
			t.Fatal(err)
		} else if inner.N != 2 {
			t.Fatalf("unexpected solver calls: %d", inner.N)
		}
	})

	t.Run("ErrNotCached", func(t *testing.T) {
		errMarker := errors.New("marker")
		var inner CountingSolver
		inner.SolveFunc = func(constraints []simstate.Expr, symbols []*simstate.SymbolExpr) (bool, [][]byte, error) {
			return false, nil, errMarker
		}
		s := MustNewCachingSolver(t, &inner, 8)

		for i := 0; i < 2; i++ {
			if _, _, err := s.Solve(constraints, symbols); err != errMarker {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if inner.N != 2 {
			t.Fatalf("unexpected solver calls: %d", inner.N)
		}
	})

	t.Run("ErrInvalidSize", func(t *testing.T) {
		if _, err := simstate.NewCachingSolver(&CountingSolver{}, 0); err == nil {
			t.Fatal("expected error")
		}
	})
}

// CountingSolver is a mock solver that records the number of queries.
// An unset SolveFunc reports every query as unsatisfiable.
type CountingSolver struct {
	N         int
	SolveFunc func(constraints []simstate.Expr, symbols []*simstate.SymbolExpr) (bool, [][]byte, error)
}

func (s *CountingSolver) Solve(constraints []simstate.Expr, symbols []*simstate.SymbolExpr) (bool, [][]byte, error) {
	s.N++
	if s.SolveFunc == nil {
		return false, nil, nil
	}
	return s.SolveFunc(constraints, symbols)
}

func MustNewCachingSolver(tb testing.TB, solver simstate.Solver, size int) *simstate.CachingSolver {
	tb.Helper()
	s, err := simstate.NewCachingSolver(solver, size)
	if err != nil {
		tb.Fatal(err)
	}
	return s
}
