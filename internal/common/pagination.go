package common

import (
	"net/http"
	"strconv"
)

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// Upper bounds applied to query-supplied pagination.
const (
	MaxPage    = 1_000_000
	MaxPerPage = 1000
)

// ParsePagination extracts page and per-page parameters from query values,
// clamped to MaxPage and MaxPerPage. A defaultPerPage of zero means
// "everything" unless limit is given.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page = 1
	perPage = defaultPerPage
	q := r.URL.Query()
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = min(p, MaxPage)
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		perPage = min(l, MaxPerPage)
	}
	return
}
