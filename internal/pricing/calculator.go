// Package pricing prices a basket of scanned items against a catalog: rules
// fire in declaration order and consume the units they match, everything left
// over is charged at its base price.
package pricing

import (
	"errors"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-checkout/internal/catalog"
)

// DefaultPlaces is the number of fractional digits kept in totals.
const DefaultPlaces int32 = 2

// RuleLine reports how often a rule fired and what it charged.
type RuleLine struct {
	Rule      string          `json:"rule"`
	Times     int             `json:"times"`
	PerFiring decimal.Decimal `json:"perFiring"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Savings   decimal.Decimal `json:"savings"`
}

// LeftoverLine reports units no rule consumed.
type LeftoverLine struct {
	ItemID    string          `json:"itemId"`
	Count     int             `json:"count"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Result is the priced basket. Only Total is rounded.
type Result struct {
	Total     decimal.Decimal `json:"total"`
	Unrounded decimal.Decimal `json:"unrounded"`
	Savings   decimal.Decimal `json:"savings"`
	Scanned   int             `json:"scanned"`
	Rules     []RuleLine      `json:"rules"`
	Leftovers []LeftoverLine  `json:"leftovers"`
}

// Calculator prices baskets. The zero value rounds totals to DefaultPlaces.
type Calculator struct {
	places   int32
	explicit bool
}

// NewCalculator returns a calculator rounding totals to places fractional
// digits. A negative value selects DefaultPlaces.
func NewCalculator(places int32) Calculator {
	if places < 0 {
		places = DefaultPlaces
	}
	return Calculator{places: places, explicit: true}
}

// Places returns the rounding precision applied to totals.
func (c Calculator) Places() int32 {
	if !c.explicit {
		return DefaultPlaces
	}
	return c.places
}

// Calculate prices scans against cat. Any unknown id or rule evaluation
// failure aborts the whole calculation.
func (c Calculator) Calculate(cat *catalog.Catalog, scans []string) (Result, error) {
	if cat == nil {
		return Result{}, errors.New("pricing: catalog is required")
	}
	for i, id := range scans {
		if !cat.Has(id) {
			return Result{}, &UnknownItemError{ID: id, Position: i}
		}
	}
	basket := NewMultiset(scans)
	app, err := Apply(cat, basket)
	if err != nil {
		return Result{}, err
	}
	if err := checkConservation(basket, app); err != nil {
		return Result{}, err
	}

	res := Result{
		Scanned:   len(scans),
		Savings:   decimal.Zero,
		Rules:     []RuleLine{},
		Leftovers: []LeftoverLine{},
	}
	total := decimal.Zero
	for _, ch := range app.Charges {
		total = total.Add(ch.Amount)
	}
	for _, f := range app.Firings {
		times := decimal.NewFromInt(int64(f.Times))
		base := decimal.Zero
		for id, need := range f.Rule.LHS {
			price, _ := cat.Price(id)
			base = base.Add(price.Mul(decimal.NewFromInt(int64(need))))
		}
		line := RuleLine{
			Rule:      f.Rule.Name,
			Times:     f.Times,
			PerFiring: f.PerFiring,
			Subtotal:  f.PerFiring.Mul(times),
			Savings:   base.Sub(f.PerFiring).Mul(times),
		}
		res.Savings = res.Savings.Add(line.Savings)
		res.Rules = append(res.Rules, line)
	}

	ids := lo.Keys(map[string]int(app.Leftover))
	slices.SortFunc(ids, func(a, b string) int { return cat.Position(a) - cat.Position(b) })
	for _, id := range ids {
		price, _ := cat.Price(id)
		count := app.Leftover[id]
		line := LeftoverLine{
			ItemID:    id,
			Count:     count,
			UnitPrice: price,
			Subtotal:  price.Mul(decimal.NewFromInt(int64(count))),
		}
		total = total.Add(line.Subtotal)
		res.Leftovers = append(res.Leftovers, line)
	}

	res.Unrounded = total
	res.Total = total.Round(c.Places())
	return res, nil
}
