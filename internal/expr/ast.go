package expr

import (
	"github.com/shopspring/decimal"
)

// DivisionPrecision is the number of fractional digits kept by division.
// Addition, subtraction and multiplication are exact.
const DivisionPrecision int32 = 16

// Lookup resolves an item id to its value.
type Lookup func(id string) (decimal.Decimal, bool)

// MapLookup adapts a map to a Lookup.
func MapLookup(values map[string]decimal.Decimal) Lookup {
	return func(id string) (decimal.Decimal, bool) {
		v, ok := values[id]
		return v, ok
	}
}

// Node is an evaluable expression tree.
type Node interface {
	eval(Lookup) (decimal.Decimal, error)
	String() string
}

// Num is a numeric literal.
type Num struct {
	Value decimal.Decimal
}

func (n Num) eval(Lookup) (decimal.Decimal, error) { return n.Value, nil }

func (n Num) String() string { return n.Value.String() }

// Ref references an item by id.
type Ref struct {
	ID string
}

func (r Ref) eval(lookup Lookup) (decimal.Decimal, error) {
	if lookup == nil {
		return decimal.Zero, &UnknownItemReferenceError{ID: r.ID}
	}
	v, ok := lookup(r.ID)
	if !ok {
		return decimal.Zero, &UnknownItemReferenceError{ID: r.ID}
	}
	return v, nil
}

func (r Ref) String() string { return "{" + r.ID + "}" }

// Neg is unary minus.
type Neg struct {
	X Node
}

func (n Neg) eval(lookup Lookup) (decimal.Decimal, error) {
	v, err := n.X.eval(lookup)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

func (n Neg) String() string { return "-" + n.X.String() }

// Binary is one of + - * /.
type Binary struct {
	Op    byte
	Left  Node
	Right Node
}

func (b Binary) eval(lookup Lookup) (decimal.Decimal, error) {
	l, err := b.Left.eval(lookup)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := b.Right.eval(lookup)
	if err != nil {
		return decimal.Zero, err
	}
	switch b.Op {
	case '+':
		return l.Add(r), nil
	case '-':
		return l.Sub(r), nil
	case '*':
		return l.Mul(r), nil
	case '/':
		if r.IsZero() {
			return decimal.Zero, &DivisionByZeroError{Divisor: b.Right.String()}
		}
		return l.DivRound(r, DivisionPrecision), nil
	}
	return decimal.Zero, &MalformedExpressionError{Expr: b.String(), Reason: "unknown operator " + string(b.Op)}
}

func (b Binary) String() string {
	return "(" + b.Left.String() + " " + string(b.Op) + " " + b.Right.String() + ")"
}

// Eval evaluates a parsed expression against lookup.
func Eval(n Node, lookup Lookup) (decimal.Decimal, error) {
	if n == nil {
		return decimal.Zero, &MalformedExpressionError{Reason: "empty expression"}
	}
	return n.eval(lookup)
}

// Evaluate parses and evaluates src in one step.
func Evaluate(src string, lookup Lookup) (decimal.Decimal, error) {
	n, err := Parse(src)
	if err != nil {
		return decimal.Zero, err
	}
	return n.eval(lookup)
}

// Refs lists the distinct item ids referenced by n in first-appearance order.
func Refs(n Node) []string {
	var out []string
	seen := map[string]struct{}{}
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case Ref:
			if _, ok := seen[v.ID]; !ok {
				seen[v.ID] = struct{}{}
				out = append(out, v.ID)
			}
		case Neg:
			walk(v.X)
		case Binary:
			walk(v.Left)
			walk(v.Right)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}
