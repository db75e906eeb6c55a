package pricing

import (
	"slices"

	"github.com/noah-isme/backend-checkout/internal/catalog"
)

// Session accumulates scans for one checkout lane. It is not safe for
// concurrent use; each lane owns its session.
type Session struct {
	catalog *catalog.Catalog
	calc    Calculator
	scans   []string
}

// NewSession starts an empty session against c.
func NewSession(c *catalog.Catalog, calc Calculator) *Session {
	return &Session{catalog: c, calc: calc}
}

// Scan records id after checking it is in the catalog.
func (s *Session) Scan(id string) (catalog.Item, error) {
	item, ok := s.catalog.Item(id)
	if !ok {
		return catalog.Item{}, &UnknownItemError{ID: id, Position: len(s.scans)}
	}
	s.scans = append(s.scans, id)
	return item, nil
}

// Scanned returns the ids scanned so far in scan order.
func (s *Session) Scanned() []string { return slices.Clone(s.scans) }

// Total prices everything scanned so far.
func (s *Session) Total() (Result, error) {
	return s.calc.Calculate(s.catalog, s.scans)
}

// Reset empties the session.
func (s *Session) Reset() { s.scans = nil }
