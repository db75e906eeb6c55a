package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is returned for a line that is neither blank, a comment, an item nor a rule.
	ErrSyntax = errors.New("catalog syntax error")
	// ErrOrder is returned when a rule references an item that was not declared before it.
	ErrOrder = errors.New("catalog order error")
	// ErrDuplicateID is returned when an item id or rule name is declared twice.
	ErrDuplicateID = errors.New("catalog duplicate id")
)

// SyntaxError reports a malformed catalog line.
type SyntaxError struct {
	Line   int
	Text   string
	Reason string
	Err    error
}

func (e *SyntaxError) Error() string {
	msg := fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyntaxError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSyntax}
	}
	return []error{ErrSyntax, e.Err}
}

// OrderError reports a rule that references an item unknown at that point of the catalog.
type OrderError struct {
	Line   int
	Rule   string
	ItemID string
	Reason string
}

func (e *OrderError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("line %d: rule %q: %s", e.Line, e.Rule, e.Reason)
	}
	return fmt.Sprintf("line %d: rule %q: %s {%s}", e.Line, e.Rule, e.Reason, e.ItemID)
}

func (e *OrderError) Unwrap() error { return ErrOrder }

// DuplicateIDError reports a second declaration of an item id or rule name.
type DuplicateIDError struct {
	Line      int
	FirstLine int
	Kind      string
	ID        string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("line %d: %s %q already declared on line %d", e.Line, e.Kind, e.ID, e.FirstLine)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }
