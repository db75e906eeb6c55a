package pricing

import (
	"fmt"
	"maps"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-checkout/internal/catalog"
	"github.com/noah-isme/backend-checkout/internal/expr"
)

// Multiset counts scanned units per item id.
type Multiset map[string]int

// NewMultiset counts ids.
func NewMultiset(ids []string) Multiset {
	m := make(Multiset, len(ids))
	for _, id := range ids {
		m[id]++
	}
	return m
}

// Total returns the number of units held.
func (m Multiset) Total() int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// Clone returns an independent copy.
func (m Multiset) Clone() Multiset { return maps.Clone(m) }

// GroupCharge is the price of one rule firing and the units it consumed.
type GroupCharge struct {
	Rule     string
	Amount   decimal.Decimal
	Consumed map[string]int
}

// Firing summarises every firing of one rule within a basket.
type Firing struct {
	Rule      catalog.Rule
	Times     int
	PerFiring decimal.Decimal
}

// Application is the outcome of running every rule over a basket.
type Application struct {
	Charges  []GroupCharge
	Firings  []Firing
	Leftover Multiset
}

// Apply runs the rules of c over basket in declaration order. Each rule is
// visited once and fires as many whole times as the remaining units allow;
// consumed units are unavailable to later rules. basket is not modified.
func Apply(c *catalog.Catalog, basket Multiset) (Application, error) {
	available := basket.Clone()
	if available == nil {
		available = Multiset{}
	}
	lookup := c.Lookup()
	var out Application
	for _, rule := range c.Rules() {
		reps := repetitions(rule, available)
		if reps == 0 {
			continue
		}
		amount, err := expr.Eval(rule.Program(), lookup)
		if err != nil {
			return Application{}, &RuleError{Rule: rule.Name, Line: rule.Line, Err: err}
		}
		for i := 0; i < reps; i++ {
			out.Charges = append(out.Charges, GroupCharge{
				Rule:     rule.Name,
				Amount:   amount,
				Consumed: maps.Clone(rule.LHS),
			})
		}
		for id, need := range rule.LHS {
			available[id] -= need * reps
		}
		out.Firings = append(out.Firings, Firing{Rule: rule, Times: reps, PerFiring: amount})
	}
	for id, n := range available {
		if n <= 0 {
			delete(available, id)
		}
	}
	out.Leftover = available
	return out, nil
}

func repetitions(rule catalog.Rule, available Multiset) int {
	if len(rule.LHS) == 0 {
		return 0
	}
	reps := -1
	for id, need := range rule.LHS {
		if need <= 0 {
			continue
		}
		n := available[id] / need
		if reps < 0 || n < reps {
			reps = n
		}
		if reps == 0 {
			return 0
		}
	}
	if reps < 0 {
		return 0
	}
	return reps
}

func checkConservation(basket Multiset, app Application) error {
	seen := app.Leftover.Clone()
	if seen == nil {
		seen = Multiset{}
	}
	for _, ch := range app.Charges {
		for id, n := range ch.Consumed {
			seen[id] += n
		}
	}
	for id, n := range basket {
		if seen[id] != n {
			return fmt.Errorf("pricing: item %s accounted %d times, scanned %d", id, seen[id], n)
		}
		delete(seen, id)
	}
	for id, n := range seen {
		if n != 0 {
			return fmt.Errorf("pricing: item %s accounted %d times but never scanned", id, n)
		}
	}
	return nil
}
