// Package catalog parses pricing catalogs: items with base prices followed by
// rules that replace the price of an item combination with a formula.
//
//	# Items
//	{8873} -> 2.49
//	{C1} -> 0.20
//	# Rules
//	{MilkCoupon} -> {8873}{C1}={8873}-({8873}*{C1})
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-checkout/internal/expr"
)

const maxLineBytes = 1 << 20

var (
	nameRe  = regexp.MustCompile(`^\{\s*([^{}]+?)\s*\}$`)
	lhsRe   = regexp.MustCompile(`^(?:\s*\{[^{}]+\}\s*)+$`)
	refRe   = regexp.MustCompile(`\{\s*([^{}]+?)\s*\}`)
	floatRe = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?$`)
)

type parseState struct {
	items     []Item
	itemLines map[string]int
	rules     []Rule
	ruleLines map[string]int
}

// Parse builds a catalog from source text.
func Parse(src string) (*Catalog, error) {
	return ParseReader(strings.NewReader(src))
}

// ParseReader builds a catalog from r. Nothing is returned on error.
func ParseReader(r io.Reader) (*Catalog, error) {
	st := &parseState{
		itemLines: map[string]int{},
		ruleLines: map[string]int{},
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := st.line(lineNo, sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return newCatalog(st.items, st.rules), nil
}

func (st *parseState) line(no int, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" || strings.HasPrefix(text, "#") {
		return nil
	}
	key, val, ok := strings.Cut(text, "->")
	if !ok {
		return &SyntaxError{Line: no, Text: text, Reason: "expected '{id} -> value'"}
	}
	m := nameRe.FindStringSubmatch(strings.TrimSpace(key))
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return &SyntaxError{Line: no, Text: text, Reason: "declaration name must be a single {id}"}
	}
	name := m[1]
	val = strings.TrimSpace(val)
	if lhs, rhs, isRule := strings.Cut(val, "="); isRule {
		return st.rule(no, text, name, lhs, rhs)
	}
	return st.item(no, text, name, val)
}

func (st *parseState) item(no int, text, id, val string) error {
	if !floatRe.MatchString(val) {
		return &SyntaxError{Line: no, Text: text, Reason: "item price must be a number"}
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return &SyntaxError{Line: no, Text: text, Reason: "item price must be a number", Err: err}
	}
	if first, dup := st.itemLines[id]; dup {
		return &DuplicateIDError{Line: no, FirstLine: first, Kind: "item", ID: id}
	}
	st.itemLines[id] = no
	st.items = append(st.items, Item{ID: id, Price: price, Line: no})
	return nil
}

func (st *parseState) rule(no int, text, name, lhs, rhs string) error {
	lhs = strings.TrimSpace(lhs)
	rhs = strings.TrimSpace(rhs)
	if lhs == "" || !lhsRe.MatchString(lhs) {
		return &SyntaxError{Line: no, Text: text, Reason: "rule requires one or more {id} before '='"}
	}
	if rhs == "" {
		return &SyntaxError{Line: no, Text: text, Reason: "rule requires a formula after '='"}
	}
	program, err := expr.Parse(rhs)
	if err != nil {
		return &SyntaxError{Line: no, Text: text, Reason: "invalid rule formula", Err: err}
	}
	if len(st.items) == 0 {
		return &OrderError{Line: no, Rule: name, Reason: "rule declared before any item"}
	}

	need := map[string]int{}
	var order []string
	for _, m := range refRe.FindAllStringSubmatch(lhs, -1) {
		id := m[1]
		if _, ok := st.itemLines[id]; !ok {
			return &OrderError{Line: no, Rule: name, ItemID: id, Reason: "requires undeclared item"}
		}
		if need[id] == 0 {
			order = append(order, id)
		}
		need[id]++
	}
	for _, id := range expr.Refs(program) {
		if _, ok := st.itemLines[id]; !ok {
			return &OrderError{Line: no, Rule: name, ItemID: id, Reason: "formula references undeclared item"}
		}
	}
	if first, dup := st.ruleLines[name]; dup {
		return &DuplicateIDError{Line: no, FirstLine: first, Kind: "rule", ID: name}
	}
	st.ruleLines[name] = no
	st.rules = append(st.rules, Rule{
		Name:       name,
		LHS:        need,
		Order:      order,
		Expression: rhs,
		Line:       no,
		program:    program,
	})
	return nil
}
