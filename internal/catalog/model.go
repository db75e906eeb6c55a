package catalog

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-checkout/internal/common"
	"github.com/noah-isme/backend-checkout/internal/expr"
)

// CouponPrefix marks items whose value is a factor rather than a currency amount.
const CouponPrefix = "C"

// Item is a priced entry of the catalog.
type Item struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
	Line  int             `json:"line"`
}

// IsCoupon reports whether the item follows the coupon naming convention.
func (i Item) IsCoupon() bool { return strings.HasPrefix(i.ID, CouponPrefix) }

// Rule charges Expression for every complete LHS combination found in a basket.
type Rule struct {
	Name       string         `json:"name"`
	LHS        map[string]int `json:"lhs"`
	Order      []string       `json:"order"`
	Expression string         `json:"expression"`
	Line       int            `json:"line"`

	program expr.Node
}

// Program returns the parsed formula.
func (r Rule) Program() expr.Node { return r.program }

// Size is the number of item units one firing consumes.
func (r Rule) Size() int {
	n := 0
	for _, c := range r.LHS {
		n += c
	}
	return n
}

func (r Rule) clone() Rule {
	r.LHS = maps.Clone(r.LHS)
	r.Order = slices.Clone(r.Order)
	return r
}

// Catalog is the immutable result of parsing. The zero value is an empty catalog.
type Catalog struct {
	items       []Item
	index       map[string]int
	rules       []Rule
	fingerprint string
}

func newCatalog(items []Item, rules []Rule) *Catalog {
	c := &Catalog{
		items: items,
		index: make(map[string]int, len(items)),
		rules: rules,
	}
	for i, it := range items {
		c.index[it.ID] = i
	}
	c.fingerprint = c.computeFingerprint()
	return c
}

// Items returns the items in declaration order.
func (c *Catalog) Items() []Item {
	if c == nil {
		return nil
	}
	return slices.Clone(c.items)
}

// Rules returns the rules in declaration order, which is their priority order.
func (c *Catalog) Rules() []Rule {
	if c == nil {
		return nil
	}
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.clone()
	}
	return out
}

// Item looks up an item by id.
func (c *Catalog) Item(id string) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

// Has reports whether id is a declared item.
func (c *Catalog) Has(id string) bool {
	_, ok := c.Item(id)
	return ok
}

// Price returns the base price of id.
func (c *Catalog) Price(id string) (decimal.Decimal, bool) {
	it, ok := c.Item(id)
	return it.Price, ok
}

// Position returns the declaration index of id, or -1.
func (c *Catalog) Position(id string) int {
	if c == nil {
		return -1
	}
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// Lookup exposes base prices to the expression evaluator.
func (c *Catalog) Lookup() expr.Lookup {
	return c.Price
}

// ItemCount returns the number of declared items.
func (c *Catalog) ItemCount() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// RuleCount returns the number of declared rules.
func (c *Catalog) RuleCount() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Fingerprint identifies the catalog content; equal catalogs share a fingerprint.
func (c *Catalog) Fingerprint() string {
	if c == nil {
		return ""
	}
	return c.fingerprint
}

func (c *Catalog) computeFingerprint() string {
	var b strings.Builder
	for _, it := range c.items {
		b.WriteString("item ")
		b.WriteString(it.ID)
		b.WriteByte('=')
		b.WriteString(it.Price.String())
		b.WriteByte('\n')
	}
	for _, r := range c.rules {
		b.WriteString("rule ")
		b.WriteString(r.Name)
		b.WriteByte(':')
		for _, id := range r.Order {
			b.WriteString(id)
			b.WriteByte('x')
			b.WriteString(strconv.Itoa(r.LHS[id]))
			b.WriteByte(',')
		}
		b.WriteByte('=')
		b.WriteString(r.program.String())
		b.WriteByte('\n')
	}
	return common.Digest(b.String())
}
