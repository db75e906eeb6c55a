package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Service owns the catalog loaded for this process and exposes read-only views of it.
type Service struct {
	catalog  *Catalog
	source   string
	loadedAt time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Path   string
	Logger *zerolog.Logger
}

// ItemView is the public representation of an item.
type ItemView struct {
	ID     string `json:"id"`
	Price  string `json:"price"`
	Coupon bool   `json:"coupon"`
}

// Requirement is one LHS entry of a rule.
type Requirement struct {
	ItemID string `json:"itemId"`
	Count  int    `json:"count"`
}

// RuleView is the public representation of a rule.
type RuleView struct {
	Priority   int           `json:"priority"`
	Name       string        `json:"name"`
	Requires   []Requirement `json:"requires"`
	Expression string        `json:"expression"`
}

// Info summarises the loaded catalog.
type Info struct {
	Source      string    `json:"source"`
	LoadedAt    time.Time `json:"loadedAt"`
	Fingerprint string    `json:"fingerprint"`
	Items       int       `json:"items"`
	Rules       int       `json:"rules"`
}

// ItemPage is a page of items in declaration order.
type ItemPage struct {
	Items []ItemView
	Total int
	Page  int
	Limit int
}

// NewService reads and parses the catalog file at cfg.Path.
func NewService(cfg ServiceConfig) (*Service, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("catalog: path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()

	c, err := ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", path, err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Info().
			Str("path", path).
			Int("items", c.ItemCount()).
			Int("rules", c.RuleCount()).
			Str("fingerprint", c.Fingerprint()).
			Msg("catalog loaded")
	}
	return &Service{catalog: c, source: path, loadedAt: time.Now().UTC()}, nil
}

// NewStaticService wraps an already parsed catalog.
func NewStaticService(c *Catalog, source string) *Service {
	return &Service{catalog: c, source: source, loadedAt: time.Now().UTC()}
}

// Catalog returns the loaded catalog. It is safe for concurrent use.
func (s *Service) Catalog() *Catalog {
	if s == nil {
		return nil
	}
	return s.catalog
}

// Source names where the catalog was loaded from.
func (s *Service) Source() string {
	if s == nil {
		return ""
	}
	return s.source
}

// LoadedAt reports when the catalog was parsed.
func (s *Service) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

// ListItems returns one page of items. page and limit are 1-based and clamped.
func (s *Service) ListItems(page, limit int) ItemPage {
	items := s.Catalog().Items()
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = len(items)
	}
	start, end := len(items), len(items)
	if limit > 0 && page-1 <= len(items)/limit {
		start = min((page-1)*limit, len(items))
		end = start + min(limit, len(items)-start)
	}
	views := lo.Map(items[start:end], func(it Item, _ int) ItemView {
		return ItemView{ID: it.ID, Price: it.Price.String(), Coupon: it.IsCoupon()}
	})
	return ItemPage{Items: views, Total: len(items), Page: page, Limit: limit}
}

// ListRules returns every rule in priority order.
func (s *Service) ListRules() []RuleView {
	return lo.Map(s.Catalog().Rules(), func(r Rule, i int) RuleView {
		return RuleView{
			Priority: i + 1,
			Name:     r.Name,
			Requires: lo.Map(r.Order, func(id string, _ int) Requirement {
				return Requirement{ItemID: id, Count: r.LHS[id]}
			}),
			Expression: r.Expression,
		}
	})
}
