package simstate

import (
	"errors"
	"fmt"
)

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

var (
	ErrUnsatisfiable   = errors.New("unsatisfiable constraints")
	ErrTooFewSolutions = errors.New("too few solutions")
	ErrUnknownRegister = errors.New("unknown register")
	ErrInvalidWidth    = errors.New("invalid expression width")
	ErrSymbolicAddress = errors.New("symbolic address has too many solutions")
)

// ConcretizationError is returned when an expression cannot be reduced to
// the requested concrete values under its constraints.
type ConcretizationError struct {
	Expr Expr
	Op   string
	Err  error
}

// Error returns the error message.
func (e *ConcretizationError) Error() string {
	return fmt.Sprintf("%s: cannot concretize %s: %s", e.Op, e.Expr, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConcretizationError) Unwrap() error { return e.Err }

// MergeError is returned when states are structurally incompatible and
// cannot be merged. None of the participating states are modified.
type MergeError struct {
	Reason string
}

// Error returns the error message.
func (e *MergeError) Error() string {
	return "merge: " + e.Reason
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
