package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedExpression is returned when a formula does not match the grammar.
	ErrMalformedExpression = errors.New("malformed expression")
	// ErrUnknownItemReference is returned when an item reference cannot be resolved.
	ErrUnknownItemReference = errors.New("unknown item reference")
	// ErrDivisionByZero is returned when a divisor evaluates to zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// MalformedExpressionError describes where parsing failed.
type MalformedExpressionError struct {
	Expr   string
	Pos    int
	Reason string
}

func (e *MalformedExpressionError) Error() string {
	return fmt.Sprintf("malformed expression %q at offset %d: %s", e.Expr, e.Pos, e.Reason)
}

func (e *MalformedExpressionError) Unwrap() error { return ErrMalformedExpression }

// UnknownItemReferenceError names the reference that failed to resolve.
type UnknownItemReferenceError struct {
	ID string
}

func (e *UnknownItemReferenceError) Error() string {
	return fmt.Sprintf("unknown item reference {%s}", e.ID)
}

func (e *UnknownItemReferenceError) Unwrap() error { return ErrUnknownItemReference }

// DivisionByZeroError carries the divisor sub-expression that evaluated to zero.
type DivisionByZeroError struct {
	Divisor string
}

func (e *DivisionByZeroError) Error() string {
	return fmt.Sprintf("division by zero: divisor %s evaluated to 0", e.Divisor)
}

func (e *DivisionByZeroError) Unwrap() error { return ErrDivisionByZero }
