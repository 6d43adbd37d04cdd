package simstate

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Solver represents a constraint solver. Solve reports whether constraints
// are satisfiable and, if so, returns a model value for each symbol as
// little-endian bytes.
type Solver interface {
	Solve(constraints []Expr, symbols []*SymbolExpr) (satisfiable bool, values [][]byte, err error)
}

// CachingSolver wraps a Solver and memoizes the results of identical queries.
type CachingSolver struct {
	solver Solver
	cache  *lru.Cache

	mu     sync.Mutex
	hits   int
	misses int
}

type solveResult struct {
	satisfiable bool
	values      [][]byte
}

// NewCachingSolver returns a solver that caches up to size query results.
func NewCachingSolver(solver Solver, size int) (*CachingSolver, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachingSolver{solver: solver, cache: cache}, nil
}

// Solve returns a cached result for the query or delegates to the underlying solver.
// Errors are never cached.
func (s *CachingSolver) Solve(constraints []Expr, symbols []*SymbolExpr) (bool, [][]byte, error) {
	key := queryKey(constraints, symbols)
	if v, ok := s.cache.Get(key); ok {
		s.mu.Lock()
		s.hits++
		s.mu.Unlock()
		result := v.(*solveResult)
		return result.satisfiable, copyValues(result.values), nil
	}

	satisfiable, values, err := s.solver.Solve(constraints, symbols)
	if err != nil {
		return false, nil, err
	}
	s.cache.Add(key, &solveResult{satisfiable: satisfiable, values: copyValues(values)})

	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
	return satisfiable, values, nil
}

// Stats returns the number of cache hits & misses.
func (s *CachingSolver) Stats() (hits, misses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses
}

// queryKey returns a string uniquely identifying a query.
func queryKey(constraints []Expr, symbols []*SymbolExpr) string {
	var buf strings.Builder
	for _, c := range constraints {
		buf.WriteString(c.String())
		buf.WriteByte('\n')
	}
	buf.WriteByte('|')
	for _, sym := range symbols {
		buf.WriteString(sym.String())
		buf.WriteByte(' ')
	}
	return buf.String()
}

func copyValues(values [][]byte) [][]byte {
	if values == nil {
		return nil
	}
	other := make([][]byte, len(values))
	for i := range values {
		other[i] = append([]byte(nil), values[i]...)
	}
	return other
}
