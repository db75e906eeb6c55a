package pricing

import (
	"errors"
	"fmt"
)

// ErrUnknownItem is returned when a scanned id is not in the catalog.
var ErrUnknownItem = errors.New("unknown item")

// UnknownItemError names the scanned id and its zero-based scan position.
type UnknownItemError struct {
	ID       string
	Position int
}

func (e *UnknownItemError) Error() string {
	return fmt.Sprintf("unknown item %q at scan position %d", e.ID, e.Position)
}

func (e *UnknownItemError) Unwrap() error { return ErrUnknownItem }

// RuleError wraps an evaluation failure with the rule that raised it.
type RuleError struct {
	Rule string
	Line int
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q (line %d): %v", e.Rule, e.Line, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }
